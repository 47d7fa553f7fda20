package reconcile

import (
	"context"
	"time"
)

// Repository defines the event store operations the engine relies on.
// Implementations wrap connectivity failures in ErrStoreUnavailable.
type Repository interface {
	// FindByDayRange returns events whose stored timestamp falls in [start, end).
	FindByDayRange(ctx context.Context, start, end time.Time) ([]*Event, error)
	// CountByDayRange counts events in [start, end) whose event id starts with
	// prefix. An empty prefix counts every event.
	CountByDayRange(ctx context.Context, start, end time.Time, prefix string) (int64, error)
	// Create inserts an event. A conflict on the event id returns ErrEventExists.
	Create(ctx context.Context, params CreateEventParams) (*Event, error)
	// DeleteByDayRange removes events in [start, end) whose event id starts with prefix.
	DeleteByDayRange(ctx context.Context, start, end time.Time, prefix string) (int64, error)
	Ping(ctx context.Context) error
}
