package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"time"

	"posrecon/internal/domain/sale"
)

// Tier names the match key that found a sale in the store.
type Tier string

const (
	TierStrict   Tier = "strict"
	TierFallback Tier = "fallback"
	TierUltra    Tier = "ultra"
)

// unixMillisFloor separates epoch-millisecond timestamps from spreadsheet
// serial numbers in stored payloads.
const unixMillisFloor = 100_000_000_000

// KeySet is a set of match keys.
type KeySet map[string]struct{}

func (s KeySet) Has(key string) bool {
	_, ok := s[key]
	return ok
}

func (s KeySet) Add(key string) {
	s[key] = struct{}{}
}

func (s KeySet) Clone() KeySet {
	out := make(KeySet, len(s))
	for k := range s {
		out[k] = struct{}{}
	}
	return out
}

// ExistingIndex holds the match keys of every stored sale of one business day.
type ExistingIndex struct {
	Day      string
	Strict   KeySet
	Fallback KeySet
	Ultra    KeySet

	Records     int // Events returned by the window query
	Indexed     int
	Malformed   int
	OutOfWindow int
}

func newExistingIndex(day string) *ExistingIndex {
	return &ExistingIndex{
		Day:      day,
		Strict:   KeySet{},
		Fallback: KeySet{},
		Ultra:    KeySet{},
	}
}

// Match checks keys against the index, most specific tier first.
func (idx *ExistingIndex) Match(keys sale.MatchKeys) (Tier, bool) {
	switch {
	case idx.Strict.Has(keys.Strict):
		return TierStrict, true
	case idx.Fallback.Has(keys.Fallback):
		return TierFallback, true
	case idx.Ultra.Has(keys.Ultra):
		return TierUltra, true
	}
	return "", false
}

// Clone returns a copy whose key sets can grow without touching the receiver.
func (idx *ExistingIndex) Clone() *ExistingIndex {
	out := *idx
	out.Strict = idx.Strict.Clone()
	out.Fallback = idx.Fallback.Clone()
	out.Ultra = idx.Ultra.Clone()
	return &out
}

// IndexBuilder reads one day of stored events and derives their match keys
// through the same normalization the import side uses.
type IndexBuilder struct {
	repo       Repository
	normalizer *sale.Normalizer
}

func NewIndexBuilder(repo Repository, normalizer *sale.Normalizer) *IndexBuilder {
	return &IndexBuilder{repo: repo, normalizer: normalizer}
}

// Build loads the day's UTC window and indexes every readable record. Records
// that cannot be read are counted as malformed and skipped; records whose own
// timestamp lands on another business day are counted as out of window.
func (b *IndexBuilder) Build(ctx context.Context, day string) (*ExistingIndex, error) {
	start, end, err := b.normalizer.Clock().DayRange(day)
	if err != nil {
		return nil, err
	}

	events, err := b.repo.FindByDayRange(ctx, start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to load events for %s: %w", day, err)
	}

	idx := newExistingIndex(day)
	idx.Records = len(events)

	for _, ev := range events {
		parts, err := b.KeyParts(ev)
		if err != nil {
			idx.Malformed++
			log.Printf("Skipping event %s on %s: %v", ev.EventID, day, err)
			continue
		}
		if parts.Day != day {
			idx.OutOfWindow++
			continue
		}
		idx.add(parts)
	}

	return idx, nil
}

func (idx *ExistingIndex) add(p sale.KeyParts) {
	keys := sale.BuildKeys(p)

	if sale.NormalizePerson(p.Customer) != "" || sale.NormalizePerson(p.Provider) != "" {
		idx.Strict.Add(keys.Strict)
	}
	idx.Fallback.Add(keys.Fallback)
	if p.Amount.IsZero() && p.Tip.IsZero() {
		idx.Ultra.Add(keys.Ultra)
	}
	idx.Indexed++
}

// KeyParts reads the match key inputs of a stored event.
func (b *IndexBuilder) KeyParts(ev *Event) (sale.KeyParts, error) {
	fields, err := b.fields(ev)
	if err != nil {
		return sale.KeyParts{}, err
	}

	service := fields[PayloadService]
	if sale.NormalizeService(service) == "" {
		return sale.KeyParts{}, fmt.Errorf("%w: no service", ErrMalformedRecord)
	}

	at, err := b.timestamp(fields[PayloadTimestamp])
	if err != nil {
		return sale.KeyParts{}, fmt.Errorf("%w: %v", ErrMalformedRecord, err)
	}
	clock := b.normalizer.Clock()
	day, err := clock.Day(at)
	if err != nil {
		return sale.KeyParts{}, fmt.Errorf("%w: %v", ErrMalformedRecord, err)
	}
	minute, err := clock.Minute(at)
	if err != nil {
		return sale.KeyParts{}, fmt.Errorf("%w: %v", ErrMalformedRecord, err)
	}

	provider, _ := b.normalizer.CanonicalProvider(fields[PayloadProvider], fields[PayloadProviderID])

	return sale.KeyParts{
		Day:      day,
		Minute:   minute,
		Service:  service,
		Amount:   sale.ParseMoney(fields[PayloadAmount]),
		Tip:      sale.ParseMoney(fields[PayloadTip]),
		Customer: fields[PayloadCustomer],
		Provider: provider,
	}, nil
}

func (b *IndexBuilder) fields(ev *Event) (Extracted, error) {
	raw := []byte(ev.Payload)
	if len(raw) == 0 {
		raw = []byte(ev.RawBody)
	}
	payload, err := DecodePayload(raw)
	if err != nil {
		return nil, err
	}
	return Extract(payload), nil
}

func (b *IndexBuilder) timestamp(raw string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, errors.New("no timestamp")
	}
	if ms, err := strconv.ParseInt(raw, 10, 64); err == nil && ms >= unixMillisFloor {
		return time.UnixMilli(ms).UTC(), nil
	}
	return b.normalizer.ParseTimestamp(raw)
}
