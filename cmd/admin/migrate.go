package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"posrecon/internal/infrastructure/postgres"
	"posrecon/internal/infrastructure/sqlite"
	"posrecon/internal/shared/config"
)

func runMigrate(args []string) {
	fs := flag.NewFlagSet("migrate", flag.ExitOnError)
	fs.Usage = func() {
		fmt.Println("Usage: admin migrate")
		fmt.Println("\nApplies pending schema migrations to the configured event store.")
	}
	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	switch cfg.Database.Driver {
	case config.DriverSQLite:
		// Open bootstraps the schema.
		store, err := sqlite.Open(cfg.Database.SQLitePath)
		if err != nil {
			log.Fatalf("Migration failed: %v", err)
		}
		store.Close()
	default:
		db, err := postgres.New(cfg.Database.ConnectionString())
		if err != nil {
			log.Fatalf("Failed to connect to database: %v", err)
		}
		defer db.Close()

		if err := postgres.Migrate(db); err != nil {
			db.Close()
			log.Fatalf("Migration failed: %v", err)
		}
	}

	log.Println("Migrations applied")
}
