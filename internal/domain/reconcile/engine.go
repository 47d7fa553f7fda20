package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"posrecon/internal/domain/sale"
)

var (
	reconcileTracer = otel.Tracer("posrecon/reconcile")
	reconcileMeter  = otel.Meter("posrecon/reconcile")

	candidatesTotal, _ = reconcileMeter.Int64Counter("reconcile.candidates.total", metric.WithDescription("Import rows compared against the store"))
	matchedTotal, _    = reconcileMeter.Int64Counter("reconcile.matched.total", metric.WithDescription("Import rows found in the store by tier"))
	missingTotal, _    = reconcileMeter.Int64Counter("reconcile.missing.total", metric.WithDescription("Import rows missing from the store"))
	insertTotal, _     = reconcileMeter.Int64Counter("reconcile.insert.total", metric.WithDescription("Insert attempts by outcome"))
)

// Engine compares imported sales with the event store day by day and, in
// apply mode, inserts the ones that are missing.
type Engine struct {
	repo    Repository
	builder *IndexBuilder
	gate    *InsertGate
}

func NewEngine(repo Repository, normalizer *sale.Normalizer, prefix string) *Engine {
	return &Engine{
		repo:    repo,
		builder: NewIndexBuilder(repo, normalizer),
		gate:    NewInsertGate(repo, normalizer.Clock(), prefix),
	}
}

// Gate exposes the engine's insert gate.
func (e *Engine) Gate() *InsertGate {
	return e.gate
}

// Reconcile runs one reconciliation over candidates. When the store becomes
// unreachable, or ctx ends, the partial result is returned with the error.
func (e *Engine) Reconcile(ctx context.Context, candidates []sale.Transaction, opts Options) (*Result, error) {
	if opts.Mode == "" {
		opts.Mode = ModeDryRun
	}
	if opts.Mode != ModeDryRun && opts.Mode != ModeApply {
		return nil, fmt.Errorf("unknown mode %q", opts.Mode)
	}

	result := &Result{
		RunID:  uuid.NewString(),
		Mode:   opts.Mode,
		Errors: []string{},
	}

	ctx, span := reconcileTracer.Start(ctx, "reconcile.Run", trace.WithAttributes(
		attribute.String("reconcile.run_id", result.RunID),
		attribute.String("reconcile.mode", string(opts.Mode)),
		attribute.Int("reconcile.candidates", len(candidates)),
	))
	defer span.End()

	byDay := groupByDay(candidates)
	days := selectDays(byDay, opts.Days)

	log.Printf("Reconcile run %s (%s): %d candidates across %d day(s)", result.RunID, opts.Mode, len(candidates), len(days))

	for _, day := range days {
		report := newDayReport(day, len(byDay[day]))
		result.Days = append(result.Days, report)

		if err := e.reconcileDay(ctx, report, byDay[day], opts, result); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			log.Printf("Reconcile run %s aborted on %s: %v", result.RunID, day, err)
			return result, err
		}
	}

	log.Printf("Reconcile run %s completed: days=%d, source=%d, existing=%d, missing=%d, inserted=%d, skipped=%d, failed=%d",
		result.RunID, len(result.Days), result.SourceRows(), result.Existing(), len(result.Missing),
		result.Inserted, result.Skipped, result.Failed)

	return result, nil
}

func (e *Engine) reconcileDay(ctx context.Context, report *DayReport, candidates []sale.Transaction, opts Options, result *Result) error {
	ctx, span := reconcileTracer.Start(ctx, "reconcile.Day", trace.WithAttributes(
		attribute.String("reconcile.day", report.Day),
	))
	defer span.End()

	if err := ctx.Err(); err != nil {
		return err
	}

	idx, err := e.builder.Build(ctx, report.Day)
	if err != nil {
		return err
	}
	report.ExistingRecords = idx.Records
	report.Indexed = idx.Indexed
	report.Malformed = idx.Malformed
	report.OutOfWindow = idx.OutOfWindow

	start, end, err := e.builder.normalizer.Clock().DayRange(report.Day)
	if err != nil {
		return err
	}
	manual, err := e.repo.CountByDayRange(ctx, start, end, e.gate.Prefix()+"-")
	if err != nil {
		return fmt.Errorf("failed to count backfilled events for %s: %w", report.Day, err)
	}
	report.ManualRecords = manual

	if err := report.advance(DayIndexBuilt); err != nil {
		return err
	}
	if err := report.advance(DayReconciling); err != nil {
		return err
	}

	dayAttr := metric.WithAttributes(attribute.String("mode", string(opts.Mode)))
	candidatesTotal.Add(ctx, int64(len(candidates)), dayAttr)

	var missing []sale.Transaction
	for _, c := range candidates {
		keys := sale.Keys(c)
		if tier, ok := idx.Match(keys); ok {
			report.MatchedBy[tier]++
			matchedTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("tier", string(tier))))
			continue
		}
		missing = append(missing, c)
		if opts.Verbose {
			log.Printf("Missing %s row %d: %s", report.Day, c.RowNumber, keys.Strict)
		}
	}
	report.Missing = len(missing)
	result.Missing = append(result.Missing, missing...)
	missingTotal.Add(ctx, int64(len(missing)), dayAttr)

	if opts.Mode == ModeApply {
		if err := e.applyDay(ctx, report, idx.Clone(), missing, result); err != nil {
			return err
		}
	}

	if err := report.advance(DayDone); err != nil {
		return err
	}

	span.SetAttributes(
		attribute.Int("reconcile.source_rows", report.SourceRows),
		attribute.Int("reconcile.existing", report.ExistingRecords),
		attribute.Int("reconcile.missing", report.Missing),
	)

	log.Printf("Day %s: source=%d, existing=%d (manual=%d), malformed=%d, out_of_window=%d, missing=%d, inserted=%d, skipped=%d, failed=%d",
		report.Day, report.SourceRows, report.ExistingRecords, report.ManualRecords, report.Malformed,
		report.OutOfWindow, report.Missing, report.Inserted, report.Skipped, report.Failed)

	return nil
}

// applyDay inserts the day's missing sales. seen starts as a copy of the
// day's index and learns each sale as it is written, so a sale repeated
// within the import is written once.
func (e *Engine) applyDay(ctx context.Context, report *DayReport, seen *ExistingIndex, missing []sale.Transaction, result *Result) error {
	for _, c := range missing {
		if err := ctx.Err(); err != nil {
			return err
		}

		keys := sale.Keys(c)
		if _, ok := seen.Match(keys); ok {
			report.Skipped++
			result.Skipped++
			insertTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", "duplicate")))
			continue
		}

		outcome, err := e.gate.Insert(ctx, c, result.RunID)
		if err != nil {
			if errors.Is(err, ErrStoreUnavailable) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return err
			}
			report.Failed++
			result.Failed++
			result.Errors = append(result.Errors, fmt.Sprintf("%s row %d (%s): %v", report.Day, c.RowNumber, e.gate.EventID(c), err))
			insertTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", "failed")))
			continue
		}

		switch outcome {
		case InsertCreated:
			report.Inserted++
			result.Inserted++
		case InsertAlreadyExists:
			report.Skipped++
			result.Skipped++
		}
		insertTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", string(outcome))))
		seen.Strict.Add(keys.Strict)
	}
	return nil
}

func groupByDay(candidates []sale.Transaction) map[string][]sale.Transaction {
	byDay := make(map[string][]sale.Transaction)
	for _, c := range candidates {
		byDay[c.Day] = append(byDay[c.Day], c)
	}
	return byDay
}

// selectDays returns the days to process in ascending order. An empty
// selector means every day present in the input.
func selectDays(byDay map[string][]sale.Transaction, selector []string) []string {
	set := make(map[string]struct{})
	if len(selector) == 0 {
		for day := range byDay {
			set[day] = struct{}{}
		}
	} else {
		for _, day := range selector {
			set[day] = struct{}{}
		}
	}

	days := make([]string, 0, len(set))
	for day := range set {
		days = append(days, day)
	}
	sort.Strings(days)
	return days
}
