// Package main is the entrypoint for the simulated package service.
package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/morezero/pkgservice-client/internal/config"
	"github.com/morezero/pkgservice-client/internal/server"
)

const usage = `Usage: pkgservice-sim [command]
       pkgservice-sim serve              Start the service (NATS requests, HTTP health, /ws gateway).
       pkgservice-sim migrate up         Run database migrations.
       pkgservice-sim migrate down       Roll back one migration (not supported by every migration).
       pkgservice-sim migrate status     Show migration status.
       pkgservice-sim ensure-db [name]   Create database if missing (default name: pkgservice_test). Uses DATABASE_URL host/user.
       pkgservice-sim clear              Truncate install records; schema is preserved.
       pkgservice-sim seed [file]        Record the catalog's preinstalled packages (file overrides PKGSVC_CATALOG_FILE).

Commands:
  serve           (default) Start the simulated package service. SIGHUP reloads the catalog.
  migrate up      Run database migrations only.
  migrate down    Roll back last migration.
  migrate status  Show current migration status.
  ensure-db [name] Create database on same host as DATABASE_URL; then run tests with that URL.
  clear           Truncate install records.
  seed [file]     Seed install records from the catalog.

Environment: COMMS_URL, DATABASE_URL (empty = in-memory store for serve; required otherwise),
MIGRATION_PATH, RUN_MIGRATIONS, PKGSVC_CATALOG_FILE, HTTP_PORT (default 8080), LOG_LEVEL. See README.
`

func main() {
	args := os.Args[1:]
	cmd := ""
	if len(args) > 0 && args[0] != "" {
		cmd = args[0]
	}

	switch cmd {
	case "migrate":
		if len(args) < 2 {
			log.Fatalf("pkgservice-sim migrate: require subcommand (up, down, status)")
		}
		sub := args[1]
		switch sub {
		case "up":
			if err := withPool(runMigrateUp); err != nil {
				log.Fatalf("pkgservice-sim migrate up: %v", err)
			}
		case "status":
			if err := withPool(runMigrateStatus); err != nil {
				log.Fatalf("pkgservice-sim migrate status: %v", err)
			}
		case "down":
			if err := withPool(runMigrateDown); err != nil {
				log.Fatalf("pkgservice-sim migrate down: %v", err)
			}
		default:
			log.Fatalf("pkgservice-sim migrate: unknown subcommand %q (use up, down, status)", sub)
		}
		return
	case "clear":
		if err := withPool(runClear); err != nil {
			log.Fatalf("pkgservice-sim clear: %v", err)
		}
		return
	case "seed":
		catalogFile := ""
		if len(args) > 1 {
			catalogFile = args[1]
		}
		if err := withPool(func(ctx context.Context, cfg *config.Config, pool *pgxpool.Pool) error {
			return runSeed(ctx, cfg, pool, catalogFile)
		}); err != nil {
			log.Fatalf("pkgservice-sim seed: %v", err)
		}
		return
	case "ensure-db":
		dbName := "pkgservice_test"
		if len(args) > 1 && args[1] != "" {
			dbName = args[1]
		}
		if err := runEnsureDB(dbName); err != nil {
			log.Fatalf("pkgservice-sim ensure-db: %v", err)
		}
		return
	case "help", "-h", "--help":
		fmt.Print(usage)
		return
	case "serve", "":
	default:
		fmt.Fprintf(os.Stderr, "Unknown command %q.\n%s", cmd, usage)
		os.Exit(1)
	}

	if err := server.Run(); err != nil {
		log.Fatalf("pkgservice-sim: %v", err)
	}
}
