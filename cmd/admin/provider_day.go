package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"posrecon/internal/domain/businessday"
	"posrecon/internal/domain/reconcile"
)

func runProviderDay(args []string) {
	fs := flag.NewFlagSet("provider-day", flag.ExitOnError)

	day := fs.String("day", "", "Business day, YYYY-MM-DD")
	providerID := fs.String("provider-id", "", "Only show this provider")
	timeoutStr := fs.String("timeout", "2m", "Timeout for the operation (e.g., 30s, 5m)")

	fs.Usage = func() {
		fmt.Println("Usage: admin provider-day [options]")
		fmt.Println("\nOptions:")
		fs.PrintDefaults()
		fmt.Println("\nExamples:")
		fmt.Println("  admin provider-day --day=2025-12-12")
		fmt.Println("  admin provider-day --day=2025-12-12 --provider-id=p-alex")
	}

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	if *day == "" {
		fmt.Println("Error: must specify --day")
		fs.Usage()
		os.Exit(1)
	}
	if _, _, _, err := businessday.ParseDay(*day); err != nil {
		log.Fatalf("Invalid --day: %v", err)
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

	var report *reconcile.ProviderDay
	err = rt.run(func(a *app) error {
		engine := reconcile.NewEngine(a.store, a.normalizer, a.cfg.Business.EventPrefix)
		var countErr error
		report, countErr = engine.ProviderCounts(ctx, *day)
		return countErr
	})
	if err != nil {
		if errors.Is(err, reconcile.ErrStoreUnavailable) {
			log.Fatalf("Event store unavailable: %v", err)
		}
		log.Fatalf("Provider count failed: %v", err)
	}

	fmt.Printf("\n=== %s ===\n", report.Day)
	fmt.Printf("  Records in window:  %d\n", report.Records)
	fmt.Printf("  Malformed:          %d\n", report.Malformed)
	fmt.Println()

	shown := 0
	for _, p := range report.Providers {
		if *providerID != "" && p.ProviderID != *providerID {
			continue
		}
		id := p.ProviderID
		if id == "" {
			id = "-"
		}
		fmt.Printf("  %-12s %-28s %d\n", id, p.ProviderName, p.Events)
		shown++
	}
	if shown == 0 {
		fmt.Println("  No matching providers")
	}
}
