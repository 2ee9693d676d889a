// Command migrate runs schema and maintenance operations against the
// confession store.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"strconv"
	"strings"

	"confessions/internal/config"
	"confessions/internal/database"
	"confessions/internal/repository"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func usage() error {
	return fmt.Errorf("usage: go run ./cmd/migrate <up|auto|status|down <version>|reconcile-likes>")
}

func run() error {
	flag.Parse()
	if flag.NArg() < 1 {
		return usage()
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	db, err := database.ConnectWithOptions(cfg, database.ConnectOptions{ApplySchema: false})
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}

	ctx := context.Background()
	switch cmd := strings.ToLower(strings.TrimSpace(flag.Arg(0))); cmd {
	case "up":
		ran, err := database.RunMigrations(ctx, db)
		if err != nil {
			return fmt.Errorf("sql migrations failed: %w", err)
		}
		if len(ran) == 0 {
			log.Println("confession schema already up to date")
		}
		for _, m := range ran {
			log.Printf("applied %s (%s)", m.Label(), strings.Join(m.Tables, ", "))
		}
	case "auto":
		cfg.DBSchemaMode = database.SchemaModeAuto
		if err := database.ApplySchema(ctx, db, cfg); err != nil {
			return fmt.Errorf("auto schema apply failed: %w", err)
		}
		log.Println("automigrations applied")
	case "status":
		status, err := database.GetSchemaStatus(ctx, db, cfg)
		if err != nil {
			return fmt.Errorf("schema status failed: %w", err)
		}
		log.Printf("mode=%s env=%s run_sql=%t run_auto=%t applied=%d pending=%d",
			status.Mode, status.Environment, status.WillRunSQL, status.WillRunAutoMigrate,
			len(status.Applied), len(status.Pending))
		for _, ts := range status.Tables {
			if !ts.Exists {
				log.Printf("table %s: missing", ts.Name)
				continue
			}
			log.Printf("table %s: %d rows", ts.Name, ts.Rows)
		}
		for _, m := range status.Pending {
			log.Printf("pending: %s (%s)", m.Label(), strings.Join(m.Tables, ", "))
		}
	case "down":
		if flag.NArg() < 2 {
			return usage()
		}
		version, err := strconv.Atoi(flag.Arg(1))
		if err != nil {
			return fmt.Errorf("invalid version %q: %w", flag.Arg(1), err)
		}
		if err := database.RollbackMigration(ctx, db, version); err != nil {
			return fmt.Errorf("rollback failed: %w", err)
		}
		log.Printf("rolled back migration %d", version)
	case "reconcile-likes":
		fixed, err := repository.NewConfessionRepository(db).ReconcileLikeCounts(ctx)
		if err != nil {
			return fmt.Errorf("reconcile like counts: %w", err)
		}
		log.Printf("like counts corrected on %d confessions", fixed)
	default:
		return usage()
	}

	return nil
}
