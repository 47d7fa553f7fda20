package main

import (
	"fmt"
	"os"
	_ "time/tzdata"
)

const usage = `POS Reconciliation Admin CLI - Backfill missing sales into the webhook event store

Usage:
  admin <command> [options]

Commands:
  backfill       Reconcile POS exports against stored events and insert what is missing
  provider-day   Count stored sales per provider for one business day
  migrate        Apply the event store schema

Examples:
  # Dry run over every day found in an export
  admin backfill --file=exports/12-12-2025.xlsx --all

  # Insert the missing sales of one day
  admin backfill --file=exports/12-12-2025.xlsx --day=2025-12-12 --apply

  # Several exports, verbose output
  admin backfill --file=dec-12.xlsx,dec-13.csv --all --verbose

  # Remove earlier backfilled rows for a day, then re-insert
  admin backfill --file=dec-12.xlsx --day=2025-12-12 --apply --purge-manual

  # Per-provider counts for a day
  admin provider-day --day=2025-12-12
`

func main() {
	if len(os.Args) < 2 {
		fmt.Print(usage)
		os.Exit(1)
	}

	command := os.Args[1]

	switch command {
	case "backfill":
		runBackfill(os.Args[2:])
	case "provider-day":
		runProviderDay(os.Args[2:])
	case "migrate":
		runMigrate(os.Args[2:])
	case "help", "-h", "--help":
		fmt.Print(usage)
	default:
		fmt.Printf("Unknown command: %s\n\n", command)
		fmt.Print(usage)
		os.Exit(1)
	}
}
