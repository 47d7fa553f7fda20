package reconcile

import (
	"context"
	"fmt"
	"log"
	"sort"

	"posrecon/internal/domain/sale"
)

// ProviderCount is the number of stored sales of one provider on a day.
type ProviderCount struct {
	ProviderID   string
	ProviderName string
	Events       int
}

// ProviderDay is the per-provider breakdown of one business day.
type ProviderDay struct {
	Day       string
	Records   int
	Malformed int
	Providers []ProviderCount
}

// ProviderCounts counts the stored sales of a business day per provider.
// Records on neighbouring days that fall inside the UTC window are ignored.
func (b *IndexBuilder) ProviderCounts(ctx context.Context, day string) (*ProviderDay, error) {
	start, end, err := b.normalizer.Clock().DayRange(day)
	if err != nil {
		return nil, err
	}

	events, err := b.repo.FindByDayRange(ctx, start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to load events for %s: %w", day, err)
	}

	out := &ProviderDay{Day: day, Records: len(events)}
	counts := make(map[string]*ProviderCount)

	for _, ev := range events {
		parts, err := b.KeyParts(ev)
		if err != nil {
			out.Malformed++
			continue
		}
		if parts.Day != day {
			continue
		}

		fields, _ := b.fields(ev)
		name, id := b.normalizer.CanonicalProvider(fields[PayloadProvider], fields[PayloadProviderID])

		key := id
		if key == "" {
			key = sale.NormalizePerson(name)
		}
		c, ok := counts[key]
		if !ok {
			c = &ProviderCount{ProviderID: id, ProviderName: name}
			counts[key] = c
		}
		c.Events++
	}

	for _, c := range counts {
		out.Providers = append(out.Providers, *c)
	}
	sort.Slice(out.Providers, func(i, j int) bool {
		if out.Providers[i].Events != out.Providers[j].Events {
			return out.Providers[i].Events > out.Providers[j].Events
		}
		return out.Providers[i].ProviderName < out.Providers[j].ProviderName
	})

	return out, nil
}

// PurgeBackfilled deletes the events an earlier backfill wrote for a day.
// Events from the live stream are never touched.
func (e *Engine) PurgeBackfilled(ctx context.Context, day string) (int64, error) {
	start, end, err := e.builder.normalizer.Clock().DayRange(day)
	if err != nil {
		return 0, err
	}

	deleted, err := e.repo.DeleteByDayRange(ctx, start, end, e.gate.Prefix()+"-")
	if err != nil {
		return 0, fmt.Errorf("failed to purge backfilled events for %s: %w", day, err)
	}

	log.Printf("Purged %d backfilled event(s) for %s", deleted, day)
	return deleted, nil
}

// ProviderCounts counts the stored sales of a business day per provider.
func (e *Engine) ProviderCounts(ctx context.Context, day string) (*ProviderDay, error) {
	return e.builder.ProviderCounts(ctx, day)
}
