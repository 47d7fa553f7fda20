package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"posrecon/internal/domain/businessday"
	"posrecon/internal/domain/reconcile"
	"posrecon/internal/domain/sale"
	"posrecon/internal/infrastructure/tabular"
	"posrecon/internal/shared/config"
)

// missingSample caps the missing rows printed in verbose mode.
const missingSample = 10

func runBackfill(args []string) {
	fs := flag.NewFlagSet("backfill", flag.ExitOnError)

	filesStr := fs.String("file", "", "POS export(s) to reconcile, .xlsx or .csv (comma-separated for multiple)")
	dayStr := fs.String("day", "", "Business day(s) to reconcile, YYYY-MM-DD (comma-separated for multiple)")
	allDays := fs.Bool("all", false, "Reconcile every day found in the exports")
	apply := fs.Bool("apply", false, "Insert missing sales (default is a dry run)")
	dryRun := fs.Bool("dry-run", false, "Only report what would be inserted")
	verbose := fs.Bool("verbose", false, "Log each missing sale and print a sample")
	purge := fs.Bool("purge-manual", false, "Delete previously backfilled events of --day before reconciling (requires --apply)")
	timeoutStr := fs.String("timeout", "30m", "Timeout for the operation (e.g., 5m, 1h)")

	fs.Usage = func() {
		fmt.Println("Usage: admin backfill [options]")
		fmt.Println("\nOptions:")
		fs.PrintDefaults()
		fmt.Println("\nExamples:")
		fmt.Println("  admin backfill --file=12-12-2025.xlsx --all")
		fmt.Println("  admin backfill --file=12-12-2025.xlsx --day=2025-12-12 --apply")
		fmt.Println("  admin backfill --file=dec.csv --day=2025-12-12 --apply --purge-manual")
	}

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	paths := splitList(*filesStr)
	if len(paths) == 0 {
		fmt.Println("Error: must specify --file")
		fs.Usage()
		os.Exit(1)
	}
	if *dayStr == "" && !*allDays {
		fmt.Println("Error: must specify --day or --all")
		fs.Usage()
		os.Exit(1)
	}
	if *apply && *dryRun {
		fmt.Println("Error: --apply and --dry-run are mutually exclusive")
		os.Exit(1)
	}

	days, err := parseDays(*dayStr)
	if err != nil {
		log.Fatalf("Invalid --day: %v", err)
	}
	if *purge && (len(days) == 0 || !*apply) {
		fmt.Println("Error: --purge-manual requires --day and --apply")
		os.Exit(1)
	}

	mode := reconcile.ModeDryRun
	if *apply {
		mode = reconcile.ModeApply
	}

	timeout, err := time.ParseDuration(*timeoutStr)
	if err != nil {
		log.Fatalf("Invalid timeout format: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	rt, err := setup(ctx)
	if err != nil {
		log.Fatalf("Setup failed: %v", err)
	}

	startTime := time.Now()
	err = rt.run(func(a *app) error {
		return executeBackfill(ctx, a, backfillPlan{
			paths:   paths,
			days:    days,
			mode:    mode,
			verbose: *verbose,
			purge:   *purge,
		})
	})
	if err != nil {
		if errors.Is(err, reconcile.ErrStoreUnavailable) {
			log.Fatalf("Event store unavailable, run aborted: %v", err)
		}
		log.Fatalf("Backfill failed: %v", err)
	}

	log.Printf("Backfill completed in %v", time.Since(startTime))
}

type backfillPlan struct {
	paths   []string
	days    []string
	mode    reconcile.Mode
	verbose bool
	purge   bool
}

// executeBackfill reads the exports, optionally purges earlier backfills and
// reconciles. The result is printed even when the run aborts part way.
func executeBackfill(ctx context.Context, a *app, plan backfillPlan) error {
	layout, err := importLayout(a.cfg)
	if err != nil {
		return err
	}

	candidates, stats, err := loadCandidates(plan.paths, layout, a.normalizer)
	if err != nil {
		return fmt.Errorf("failed to read exports: %w", err)
	}
	log.Printf("Loaded %d sale(s) from %d file(s): rows=%d, summary=%d, rejected=%d",
		len(candidates), stats.Files, stats.Rows, stats.Summary, stats.Rejected)

	engine := reconcile.NewEngine(a.store, a.normalizer, a.cfg.Business.EventPrefix)

	fmt.Printf("\nPlan: mode=%s files=%d days=%s\n", plan.mode, len(plan.paths), describeDays(plan.days))

	if plan.purge {
		for _, day := range plan.days {
			deleted, err := engine.PurgeBackfilled(ctx, day)
			if err != nil {
				return fmt.Errorf("purge failed for %s: %w", day, err)
			}
			fmt.Printf("Purged %d backfilled event(s) on %s\n", deleted, day)
		}
	}

	result, err := engine.Reconcile(ctx, candidates, reconcile.Options{
		Mode:    plan.mode,
		Days:    plan.days,
		Verbose: plan.verbose,
	})
	if result != nil {
		printBackfillResult(result, plan.verbose)
	}
	return err
}

// importLayout applies IMPORT_HEADER_ROW and IMPORT_COLUMNS to the default
// export layout.
func importLayout(cfg *config.Config) (tabular.Layout, error) {
	layout := tabular.DefaultLayout()
	layout.HeaderRow = cfg.Import.HeaderRow
	layout, err := layout.WithOverrides(cfg.Import.Columns)
	if err != nil {
		return tabular.Layout{}, fmt.Errorf("invalid IMPORT_COLUMNS: %w", err)
	}
	return layout, nil
}

type importStats struct {
	Files    int
	Rows     int
	Summary  int
	Rejected int
}

// loadCandidates reads every export and normalizes its rows. Summary rows
// are dropped silently; other unusable rows are logged and counted.
func loadCandidates(paths []string, layout tabular.Layout, normalizer *sale.Normalizer) ([]sale.Transaction, importStats, error) {
	var candidates []sale.Transaction
	var stats importStats

	for _, path := range paths {
		sheet, err := tabular.ReadFile(path, layout)
		if err != nil {
			return nil, stats, err
		}
		stats.Files++

		for _, row := range sheet.Rows {
			stats.Rows++
			t, err := normalizer.Normalize(row)
			switch {
			case errors.Is(err, sale.ErrSummaryRow):
				stats.Summary++
			case err != nil:
				stats.Rejected++
				log.Printf("Skipping %s row %d: %v", row.Batch, row.RowNumber, err)
			default:
				candidates = append(candidates, t)
			}
		}
	}

	return candidates, stats, nil
}

func parseDays(s string) ([]string, error) {
	var days []string
	for _, day := range splitList(s) {
		if _, _, _, err := businessday.ParseDay(day); err != nil {
			return nil, err
		}
		days = append(days, day)
	}
	return days, nil
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func describeDays(days []string) string {
	if len(days) == 0 {
		return "all"
	}
	return strings.Join(days, ",")
}

func printBackfillResult(result *reconcile.Result, verbose bool) {
	for _, d := range result.Days {
		fmt.Printf("\n=== %s ===\n", d.Day)
		fmt.Printf("  Source rows:       %d\n", d.SourceRows)
		fmt.Printf("  Existing records:  %d (manual %d)\n", d.ExistingRecords, d.ManualRecords)
		fmt.Printf("  Matched:           strict=%d fallback=%d ultra=%d\n",
			d.MatchedBy[reconcile.TierStrict], d.MatchedBy[reconcile.TierFallback], d.MatchedBy[reconcile.TierUltra])
		if d.Malformed > 0 || d.OutOfWindow > 0 {
			fmt.Printf("  Unusable records:  malformed=%d out_of_window=%d\n", d.Malformed, d.OutOfWindow)
		}
		fmt.Printf("  Missing:           %d\n", d.Missing)
		if result.Mode == reconcile.ModeApply {
			fmt.Printf("  Inserted:          %d\n", d.Inserted)
			fmt.Printf("  Skipped:           %d\n", d.Skipped)
			fmt.Printf("  Failed:            %d\n", d.Failed)
		}
	}

	fmt.Printf("\n=== Totals (run %s, %s) ===\n", result.RunID, result.Mode)
	fmt.Printf("  Source rows:       %d\n", result.SourceRows())
	fmt.Printf("  Existing records:  %d\n", result.Existing())
	fmt.Printf("  Missing:           %d\n", len(result.Missing))
	if result.Mode == reconcile.ModeApply {
		fmt.Printf("  Inserted:          %d\n", result.Inserted)
		fmt.Printf("  Skipped:           %d\n", result.Skipped)
		fmt.Printf("  Failed:            %d\n", result.Failed)
	}

	if verbose && len(result.Missing) > 0 {
		fmt.Println("\nMissing sample:")
		for i, t := range result.Missing {
			if i >= missingSample {
				fmt.Printf("    ... and %d more\n", len(result.Missing)-missingSample)
				break
			}
			fmt.Printf("    - %s %s row %d: %s $%s tip $%s (%s / %s)\n",
				t.Day, t.Batch, t.RowNumber, t.Service,
				t.AmountDue.StringFixed(2), t.Tip.StringFixed(2), t.CustomerName, t.ProviderName)
		}
	}

	if len(result.Errors) > 0 {
		fmt.Printf("\n  Errors:            %d\n", len(result.Errors))
		for i, e := range result.Errors {
			if i >= 5 {
				fmt.Printf("    ... and %d more errors\n", len(result.Errors)-5)
				break
			}
			fmt.Printf("    - %s\n", e)
		}
	}
}
