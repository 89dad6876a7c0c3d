package main

import (
	"context"
	"fmt"
	"net/url"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/morezero/pkgservice-client/internal/config"
	"github.com/morezero/pkgservice-client/pkg/catalog"
	"github.com/morezero/pkgservice-client/pkg/db"
)

type dbCommand func(ctx context.Context, cfg *config.Config, pool *pgxpool.Pool) error

// withPool loads config, connects to DATABASE_URL and runs fn.
func withPool(fn dbCommand) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.ValidateForDB(); err != nil {
		return err
	}
	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()
	return fn(ctx, cfg, pool)
}

func runMigrateUp(ctx context.Context, cfg *config.Config, pool *pgxpool.Pool) error {
	migrations, err := db.LoadMigrations(db.FindMigrationDir(cfg.MigrationPath))
	if err != nil {
		return fmt.Errorf("load migrations: %w", err)
	}
	if err := db.RunMigrations(ctx, pool, migrations); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	return nil
}

func runMigrateStatus(ctx context.Context, cfg *config.Config, pool *pgxpool.Pool) error {
	return db.MigrationStatus(ctx, pool, cfg.MigrationPath)
}

func runMigrateDown(ctx context.Context, cfg *config.Config, pool *pgxpool.Pool) error {
	return db.MigrationDown(ctx, pool, cfg.MigrationPath)
}

func runClear(ctx context.Context, _ *config.Config, pool *pgxpool.Pool) error {
	if err := db.ClearInstalls(ctx, pool); err != nil {
		return fmt.Errorf("clear installs: %w", err)
	}
	return nil
}

// runSeed records preinstalled packages, replacing existing records.
func runSeed(ctx context.Context, cfg *config.Config, pool *pgxpool.Pool, catalogFile string) error {
	if catalogFile == "" {
		catalogFile = cfg.CatalogFile
	}
	cat, err := catalog.Load(catalogFile)
	if err != nil {
		return fmt.Errorf("load catalog: %w", err)
	}
	n, err := db.SeedInstalls(ctx, db.NewPGStore(pool), cat, true)
	if err != nil {
		return fmt.Errorf("seed installs: %w", err)
	}
	fmt.Printf("Seeded %d install records from catalog %s.\n", n, cat.Name())
	return nil
}

// targetDatabaseURL replaces the database name of databaseURL, keeping the
// host, credentials and query.
func targetDatabaseURL(databaseURL, dbName string) (string, error) {
	if databaseURL == "" {
		return "", fmt.Errorf("DATABASE_URL is required")
	}
	u, err := url.Parse(databaseURL)
	if err != nil {
		return "", fmt.Errorf("parse DATABASE_URL: %w", err)
	}
	u.Path = "/" + dbName
	return u.String(), nil
}

func runEnsureDB(dbName string) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	targetURL, err := targetDatabaseURL(cfg.DatabaseURL, dbName)
	if err != nil {
		return err
	}
	state, err := db.EnsureDatabase(context.Background(), targetURL)
	if err != nil {
		return err
	}
	if state.Created {
		fmt.Printf("Created database %q.\n", dbName)
	}
	fmt.Printf("Ready: %s.\n", state)
	return nil
}
