package db

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/morezero/pkgservice-client/pkg/pkgservice"
)

const pgStoreLogPrefix = "db:pg_store"

// PGStore keeps install records in Postgres.
type PGStore struct {
	pool *pgxpool.Pool
}

// NewPGStore creates a PGStore on pool. The caller owns the pool.
func NewPGStore(pool *pgxpool.Pool) *PGStore {
	return &PGStore{pool: pool}
}

const installColumns = `repository_url, package_id, target, status, version, modified`

func (s *PGStore) Get(ctx context.Context, repoURL, packageID string) (*InstallRecord, error) {
	slog.Debug(fmt.Sprintf("%s - Get repo=%s package=%s", pgStoreLogPrefix, repoURL, packageID))

	row := s.pool.QueryRow(ctx,
		`SELECT `+installColumns+`
		 FROM installs
		 WHERE repository_url = $1 AND package_id = $2`, repoURL, packageID)
	rec, err := scanInstall(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%s - failed to get %s: %w", pgStoreLogPrefix, packageID, err)
	}
	return rec, nil
}

func (s *PGStore) Put(ctx context.Context, rec InstallRecord) error {
	slog.Debug(fmt.Sprintf("%s - Put repo=%s package=%s status=%s", pgStoreLogPrefix, rec.RepositoryURL, rec.PackageID, rec.Status))

	if rec.Modified.IsZero() {
		rec.Modified = time.Now().UTC()
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO installs (`+installColumns+`)
		 VALUES ($1, $2, $3, $4, NULLIF($5, ''), $6)
		 ON CONFLICT (repository_url, package_id) DO UPDATE SET
		   target = EXCLUDED.target,
		   status = EXCLUDED.status,
		   version = EXCLUDED.version,
		   modified = EXCLUDED.modified,
		   revision = installs.revision + 1`,
		rec.RepositoryURL, rec.PackageID, string(rec.Target), string(rec.Status), rec.Version, rec.Modified)
	if err != nil {
		return fmt.Errorf("%s - failed to put %s: %w", pgStoreLogPrefix, rec.PackageID, err)
	}
	return nil
}

func (s *PGStore) Delete(ctx context.Context, repoURL, packageID string) error {
	_, err := s.pool.Exec(ctx,
		`DELETE FROM installs WHERE repository_url = $1 AND package_id = $2`, repoURL, packageID)
	if err != nil {
		return fmt.Errorf("%s - failed to delete %s: %w", pgStoreLogPrefix, packageID, err)
	}
	return nil
}

func (s *PGStore) List(ctx context.Context, repoURL string) ([]InstallRecord, error) {
	query := `SELECT ` + installColumns + ` FROM installs`
	var args []any
	if repoURL != "" {
		query += ` WHERE repository_url = $1`
		args = append(args, repoURL)
	}
	query += ` ORDER BY repository_url, package_id`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%s - failed to list installs: %w", pgStoreLogPrefix, err)
	}
	defer rows.Close()

	var out []InstallRecord
	for rows.Next() {
		rec, err := scanInstall(rows)
		if err != nil {
			return nil, fmt.Errorf("%s - failed to scan install: %w", pgStoreLogPrefix, err)
		}
		out = append(out, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s - failed to list installs: %w", pgStoreLogPrefix, err)
	}
	return out, nil
}

func (s *PGStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func scanInstall(row pgx.Row) (*InstallRecord, error) {
	var (
		rec            InstallRecord
		target, status string
		version        *string
	)
	if err := row.Scan(&rec.RepositoryURL, &rec.PackageID, &target, &status, &version, &rec.Modified); err != nil {
		return nil, err
	}
	rec.Target = pkgservice.Target(target)
	rec.Status = pkgservice.InstallStatus(status)
	if version != nil {
		rec.Version = *version
	}
	return &rec, nil
}
