package db

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"regexp"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const ensureLogPrefix = "db:ensure"

var safeDBName = regexp.MustCompile(`^[a-zA-Z0-9_]+$`)

// StoreState describes an install-store database as found by EnsureDatabase.
type StoreState struct {
	Database string
	Created  bool
	// Schema is false until the installs migration has been applied.
	Schema   bool
	Installs int
}

func (s StoreState) String() string {
	switch {
	case !s.Schema:
		return fmt.Sprintf("database %q has no installs table (run 'pkgservice-sim migrate up')", s.Database)
	case s.Installs == 1:
		return fmt.Sprintf("database %q holds 1 install record", s.Database)
	default:
		return fmt.Sprintf("database %q holds %d install records", s.Database, s.Installs)
	}
}

// queryRower is satisfied by pgxpool.Pool, pgx.Conn and pgx.Tx.
type queryRower interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// EnsureDatabase creates the install-store database named in databaseURL
// when it does not exist, connects to it and reports whether the installs
// schema is in place. Call it before NewPool.
func EnsureDatabase(ctx context.Context, databaseURL string) (*StoreState, error) {
	u, err := url.Parse(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("%s - invalid database URL: %w", ensureLogPrefix, err)
	}
	name, err := databaseName(u)
	if err != nil {
		return nil, err
	}

	created, err := createIfMissing(ctx, maintenanceURL(u), name)
	if err != nil {
		return nil, err
	}

	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("%s - failed to connect to %q: %w", ensureLogPrefix, name, err)
	}
	defer pool.Close()
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("%s - database %q not reachable: %w", ensureLogPrefix, name, err)
	}

	state := &StoreState{Database: name, Created: created}
	if state.Schema, err = hasInstallsTable(ctx, pool); err != nil {
		return nil, err
	}
	if state.Schema {
		if err := pool.QueryRow(ctx, `SELECT COUNT(*) FROM installs`).Scan(&state.Installs); err != nil {
			return nil, fmt.Errorf("%s - failed to count installs: %w", ensureLogPrefix, err)
		}
	}
	slog.Info(fmt.Sprintf("%s - %s", ensureLogPrefix, state))
	return state, nil
}

func databaseName(u *url.URL) (string, error) {
	name := strings.TrimSpace(strings.TrimPrefix(u.Path, "/"))
	if name == "" {
		return "", fmt.Errorf("%s - database name empty in URL", ensureLogPrefix)
	}
	if !safeDBName.MatchString(name) {
		return "", fmt.Errorf("%s - database name %q contains invalid characters", ensureLogPrefix, name)
	}
	return name, nil
}

// createIfMissing connects to the maintenance database and creates name.
func createIfMissing(ctx context.Context, adminURL, name string) (bool, error) {
	cfg, err := pgx.ParseConfig(adminURL)
	if err != nil {
		return false, fmt.Errorf("%s - failed to parse maintenance URL: %w", ensureLogPrefix, err)
	}
	cfg.DefaultQueryExecMode = pgx.QueryExecModeSimpleProtocol

	conn, err := pgx.ConnectConfig(ctx, cfg)
	if err != nil {
		return false, fmt.Errorf("%s - failed to connect to postgres: %w", ensureLogPrefix, err)
	}
	defer conn.Close(ctx)

	var exists bool
	if err := conn.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM pg_database WHERE datname = $1)`, name).Scan(&exists); err != nil {
		return false, fmt.Errorf("%s - failed to check database: %w", ensureLogPrefix, err)
	}
	if exists {
		return false, nil
	}

	slog.Info(fmt.Sprintf("%s - Creating install store %q", ensureLogPrefix, name))
	if _, err := conn.Exec(ctx, "CREATE DATABASE "+quoteIdent(name)); err != nil {
		return false, fmt.Errorf("%s - CREATE DATABASE failed: %w", ensureLogPrefix, err)
	}
	return true, nil
}

func hasInstallsTable(ctx context.Context, q queryRower) (bool, error) {
	var exists bool
	err := q.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM information_schema.tables WHERE table_schema = 'public' AND table_name = 'installs')`).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("%s - failed to check installs schema: %w", ensureLogPrefix, err)
	}
	return exists, nil
}

// maintenanceURL points u at the postgres maintenance database.
func maintenanceURL(u *url.URL) string {
	admin := *u
	admin.Path = "/postgres"
	return admin.String()
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
