package reconcile

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"posrecon/internal/domain/sale"
)

func TestIndexBuilder_HistoricalShapes(t *testing.T) {
	store := &memoryStore{}
	store.seed(t, "live-1", at2025Dec12, map[string]any{
		"transactionDate":     "2025-12-12T19:05:00.000Z",
		"itemSold":            "Gel Manicure",
		"amountDue":           35,
		"tip":                 7,
		"customerName":        "Jane Doe",
		"serviceProviderName": "Alex Santiesteban",
	})
	store.seed(t, "live-2", at2025Dec12, map[string]any{
		"id": "evt-2",
		"payload": map[string]any{
			"createdDate": "2025-12-12T15:30:00-05:00",
			"serviceName": "Pedicure",
			"price":       "$40.00",
			"tipAmount":   "5",
			"clientName":  "Ana Lopez",
		},
	})

	n := newTestNormalizer(t)
	idx, err := NewIndexBuilder(store, n).Build(context.Background(), "2025-12-12")
	require.NoError(t, err)

	assert.Equal(t, 2, idx.Records)
	assert.Equal(t, 2, idx.Indexed)
	assert.Zero(t, idx.Malformed)

	assert.True(t, idx.Strict.Has("2025-12-12|14:05|gelmanicure|35.00|7.00|jane doe|alex santiesteban"))
	assert.True(t, idx.Fallback.Has("2025-12-12|14:05|gelmanicure|35.00|7.00"))
	assert.True(t, idx.Strict.Has("2025-12-12|15:30|pedicure|40.00|5.00|ana lopez|"))
	assert.True(t, idx.Fallback.Has("2025-12-12|15:30|pedicure|40.00|5.00"))
	assert.Empty(t, idx.Ultra, "ultra keys only come from records without money")
}

func TestIndexBuilder_UltraOnlyForZeroMoney(t *testing.T) {
	store := &memoryStore{}
	store.seed(t, "live-1", at2025Dec12, map[string]any{
		"transactionDate": "2025-12-12T19:05:00Z",
		"itemSold":        "Brow Wax",
	})
	store.seed(t, "live-2", at2025Dec12, map[string]any{
		"transactionDate": "2025-12-12T19:05:00Z",
		"itemSold":        "Lip Wax",
		"amountDue":       "0",
		"tip":             "3",
	})

	idx, err := NewIndexBuilder(store, newTestNormalizer(t)).Build(context.Background(), "2025-12-12")
	require.NoError(t, err)

	assert.True(t, idx.Ultra.Has("2025-12-12|14:05|browwax"))
	assert.False(t, idx.Ultra.Has("2025-12-12|14:05|lipwax"))
	assert.Empty(t, idx.Strict, "no identity fields, no strict key")
	assert.Len(t, idx.Fallback, 2)
}

func TestIndexBuilder_SkipsUnreadableRecords(t *testing.T) {
	store := &memoryStore{}
	store.seed(t, "no-service", at2025Dec12, map[string]any{"transactionDate": "2025-12-12T19:05:00Z"})
	store.seed(t, "no-time", at2025Dec12, map[string]any{"itemSold": "Pedicure"})
	store.seed(t, "bad-time", at2025Dec12, map[string]any{"itemSold": "Pedicure", "transactionDate": "sometime"})
	store.seed(t, "ok", at2025Dec12, map[string]any{"itemSold": "Pedicure", "transactionDate": "2025-12-12T19:05:00Z"})
	store.events = append(store.events, &Event{EventID: "garbage", CreatedDate: &at2025Dec12, Payload: []byte("{oops")})

	idx, err := NewIndexBuilder(store, newTestNormalizer(t)).Build(context.Background(), "2025-12-12")
	require.NoError(t, err)

	assert.Equal(t, 5, idx.Records)
	assert.Equal(t, 4, idx.Malformed)
	assert.Equal(t, 1, idx.Indexed)
}

func TestIndexBuilder_RederivesDayFromRecord(t *testing.T) {
	store := &memoryStore{}
	// Stored inside the 2025-12-12 window, but its own timestamp is 23:30 the evening before.
	store.seed(t, "boundary", time.Date(2025, 12, 12, 5, 10, 0, 0, time.UTC), map[string]any{
		"transactionDate": "2025-12-11T23:30:00-05:00",
		"itemSold":        "Pedicure",
		"amountDue":       40,
	})

	idx, err := NewIndexBuilder(store, newTestNormalizer(t)).Build(context.Background(), "2025-12-12")
	require.NoError(t, err)

	assert.Equal(t, 1, idx.OutOfWindow)
	assert.Zero(t, idx.Indexed)
	assert.Empty(t, idx.Fallback)
}

func TestIndexBuilder_EpochMillis(t *testing.T) {
	store := &memoryStore{}
	store.seed(t, "millis", at2025Dec12, map[string]any{
		"transactionDate": at2025Dec12.UnixMilli(),
		"itemSold":        "Pedicure",
	})

	idx, err := NewIndexBuilder(store, newTestNormalizer(t)).Build(context.Background(), "2025-12-12")
	require.NoError(t, err)
	assert.True(t, idx.Fallback.Has("2025-12-12|14:05|pedicure|0.00|0.00"))
}

func TestIndexBuilder_QueriesBusinessDayWindow(t *testing.T) {
	var gotStart, gotEnd time.Time
	store := &MockEventStore{
		FindByDayRangeFunc: func(ctx context.Context, start, end time.Time) ([]*Event, error) {
			gotStart, gotEnd = start, end
			return nil, nil
		},
	}

	_, err := NewIndexBuilder(store, newTestNormalizer(t)).Build(context.Background(), "2025-12-12")
	require.NoError(t, err)
	assert.True(t, time.Date(2025, 12, 12, 5, 0, 0, 0, time.UTC).Equal(gotStart), "start = %s", gotStart)
	assert.True(t, time.Date(2025, 12, 13, 5, 0, 0, 0, time.UTC).Equal(gotEnd), "end = %s", gotEnd)
}

func TestIndexBuilder_StoreError(t *testing.T) {
	store := &MockEventStore{
		FindByDayRangeFunc: func(ctx context.Context, start, end time.Time) ([]*Event, error) {
			return nil, fmt.Errorf("dial tcp: %w", ErrStoreUnavailable)
		},
	}

	_, err := NewIndexBuilder(store, newTestNormalizer(t)).Build(context.Background(), "2025-12-12")
	assert.True(t, errors.Is(err, ErrStoreUnavailable))
}

func TestExistingIndex_Match(t *testing.T) {
	keys := sale.BuildKeys(sale.KeyParts{Day: "2025-12-12", Minute: "14:05", Service: "Gel Manicure", Customer: "Jane"})

	idx := newExistingIndex("2025-12-12")
	_, ok := idx.Match(keys)
	assert.False(t, ok)

	idx.Ultra.Add(keys.Ultra)
	tier, ok := idx.Match(keys)
	assert.True(t, ok)
	assert.Equal(t, TierUltra, tier)

	idx.Strict.Add(keys.Strict)
	tier, _ = idx.Match(keys)
	assert.Equal(t, TierStrict, tier)

	clone := idx.Clone()
	clone.Fallback.Add("other")
	assert.False(t, idx.Fallback.Has("other"), "clone must not share sets")
}
