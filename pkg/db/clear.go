package db

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
)

const clearLogPrefix = "db:clear"

// ClearInstalls removes every install record. The schema is kept.
func ClearInstalls(ctx context.Context, pool *pgxpool.Pool) error {
	slog.Info(fmt.Sprintf("%s - Clearing install records", clearLogPrefix))

	tag, err := pool.Exec(ctx, `TRUNCATE TABLE installs`)
	if err != nil {
		return fmt.Errorf("%s - truncate failed: %w", clearLogPrefix, err)
	}

	slog.Info(fmt.Sprintf("%s - Install records cleared (%s)", clearLogPrefix, tag.String()))
	return nil
}
