package reconcile

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/stretchr/testify/require"

	"posrecon/internal/domain/businessday"
	"posrecon/internal/domain/sale"
)

type MockEventStore struct {
	FindByDayRangeFunc   func(ctx context.Context, start, end time.Time) ([]*Event, error)
	CountByDayRangeFunc  func(ctx context.Context, start, end time.Time, prefix string) (int64, error)
	CreateFunc           func(ctx context.Context, params CreateEventParams) (*Event, error)
	DeleteByDayRangeFunc func(ctx context.Context, start, end time.Time, prefix string) (int64, error)
	PingFunc             func(ctx context.Context) error
}

func (m *MockEventStore) FindByDayRange(ctx context.Context, start, end time.Time) ([]*Event, error) {
	if m.FindByDayRangeFunc != nil {
		return m.FindByDayRangeFunc(ctx, start, end)
	}
	return nil, nil
}
func (m *MockEventStore) CountByDayRange(ctx context.Context, start, end time.Time, prefix string) (int64, error) {
	if m.CountByDayRangeFunc != nil {
		return m.CountByDayRangeFunc(ctx, start, end, prefix)
	}
	return 0, nil
}
func (m *MockEventStore) Create(ctx context.Context, params CreateEventParams) (*Event, error) {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, params)
	}
	return nil, nil
}
func (m *MockEventStore) DeleteByDayRange(ctx context.Context, start, end time.Time, prefix string) (int64, error) {
	if m.DeleteByDayRangeFunc != nil {
		return m.DeleteByDayRangeFunc(ctx, start, end, prefix)
	}
	return 0, nil
}
func (m *MockEventStore) Ping(ctx context.Context) error {
	if m.PingFunc != nil {
		return m.PingFunc(ctx)
	}
	return nil
}

// memoryStore is a Repository kept in memory with a unique event id, enough
// to exercise repeated runs.
type memoryStore struct {
	mu      sync.Mutex
	events  []*Event
	creates int
}

func (s *memoryStore) FindByDayRange(ctx context.Context, start, end time.Time) ([]*Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*Event
	for _, ev := range s.events {
		at := ev.ReceivedAt
		if ev.CreatedDate != nil {
			at = *ev.CreatedDate
		}
		if !at.Before(start) && at.Before(end) {
			out = append(out, ev)
		}
	}
	return out, nil
}

func (s *memoryStore) CountByDayRange(ctx context.Context, start, end time.Time, prefix string) (int64, error) {
	events, _ := s.FindByDayRange(ctx, start, end)
	var n int64
	for _, ev := range events {
		if strings.HasPrefix(ev.EventID, prefix) {
			n++
		}
	}
	return n, nil
}

func (s *memoryStore) Create(ctx context.Context, params CreateEventParams) (*Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, ev := range s.events {
		if ev.EventID == params.EventID {
			return nil, fmt.Errorf("create %s: %w", params.EventID, ErrEventExists)
		}
	}
	created := params.CreatedDate
	day := params.Day
	ev := &Event{
		ID:          int64(len(s.events) + 1),
		EventID:     params.EventID,
		EntityType:  params.EntityType,
		Action:      params.Action,
		BusinessIDs: params.BusinessIDs,
		CreatedDate: &created,
		ReceivedAt:  time.Now().UTC(),
		RawBody:     params.RawBody,
		Headers:     params.Headers,
		Payload:     params.Payload,
		SourceIP:    params.SourceIP,
		UserAgent:   params.UserAgent,
		Day:         &day,
	}
	s.events = append(s.events, ev)
	s.creates++
	return ev, nil
}

func (s *memoryStore) DeleteByDayRange(ctx context.Context, start, end time.Time, prefix string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var kept []*Event
	var deleted int64
	for _, ev := range s.events {
		at := ev.ReceivedAt
		if ev.CreatedDate != nil {
			at = *ev.CreatedDate
		}
		if !at.Before(start) && at.Before(end) && strings.HasPrefix(ev.EventID, prefix) {
			deleted++
			continue
		}
		kept = append(kept, ev)
	}
	s.events = kept
	return deleted, nil
}

func (s *memoryStore) Ping(ctx context.Context) error { return nil }

// seed stores a live-stream event with the given payload, stamped at createdAt.
func (s *memoryStore) seed(t *testing.T, eventID string, createdAt time.Time, payload any) {
	t.Helper()
	body, err := json.Marshal(payload)
	require.NoError(t, err)

	s.mu.Lock()
	defer s.mu.Unlock()
	at := createdAt.UTC()
	s.events = append(s.events, &Event{
		ID:          int64(len(s.events) + 1),
		EventID:     eventID,
		EntityType:  "transaction",
		Action:      "created",
		CreatedDate: &at,
		ReceivedAt:  at,
		RawBody:     string(body),
		Payload:     body,
	})
}

var testDirectory = sale.Directory{
	"p-alex": "Alex Santiesteban",
	"p-mary": "Mary Betandcourt",
}

func newTestNormalizer(t *testing.T) *sale.Normalizer {
	t.Helper()
	clock, err := businessday.LoadClock(businessday.DefaultTimezone)
	require.NoError(t, err)
	return sale.NewNormalizer(clock, testDirectory)
}

func candidate(t *testing.T, n *sale.Normalizer, row int, fields map[sale.Field]string) sale.Transaction {
	t.Helper()
	txn, err := n.Normalize(sale.RawRow{Batch: "12-12-2025", RowNumber: row, Fields: fields})
	require.NoError(t, err)
	return txn
}

// janeRow is the reference sale used across the engine tests.
func janeRow() map[sale.Field]string {
	return map[sale.Field]string{
		sale.FieldCheckoutDate:  "12/12/2025 2:05 PM",
		sale.FieldTransactionID: "TX-1001",
		sale.FieldItemSold:      "Gel Manicure",
		sale.FieldAmountDue:     "35.00",
		sale.FieldTip:           "7.00",
		sale.FieldCustomer:      "Jane Doe",
		sale.FieldProviderName:  "Alex S",
		sale.FieldCreditCard:    "42.00",
	}
}

// at2025Dec12 is 14:05 business time on 2025-12-12.
var at2025Dec12 = time.Date(2025, 12, 12, 19, 5, 0, 0, time.UTC)
