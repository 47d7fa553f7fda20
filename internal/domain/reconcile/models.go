package reconcile

import (
	"encoding/json"
	"time"

	"posrecon/internal/domain/sale"
)

// Event is a persisted webhook event. Its payload is free-form JSON that has
// encoded sale fields under several naming conventions over time.
type Event struct {
	ID          int64             `json:"id"`
	EventID     string            `json:"eventId"`
	EntityType  string            `json:"entityType"`
	Action      string            `json:"action"`
	BusinessIDs []string          `json:"businessIds"`
	CreatedDate *time.Time        `json:"createdDate,omitempty"`
	ReceivedAt  time.Time         `json:"receivedAt"`
	RawBody     string            `json:"rawBody"`
	Headers     map[string]string `json:"headers"`
	Payload     json.RawMessage   `json:"payload"`
	SourceIP    string            `json:"sourceIp"`
	UserAgent   string            `json:"userAgent"`
	Day         *time.Time        `json:"day,omitempty"`
}

// CreateEventParams is used for inserting a backfilled event.
type CreateEventParams struct {
	EventID     string
	EntityType  string
	Action      string
	BusinessIDs []string
	CreatedDate time.Time
	RawBody     string
	Headers     map[string]string
	Payload     json.RawMessage
	SourceIP    string
	UserAgent   string
	Day         time.Time
}

// Mode selects whether a run writes to the store.
type Mode string

const (
	ModeDryRun Mode = "dry-run"
	ModeApply  Mode = "apply"
)

// Options controls a reconciliation run.
type Options struct {
	Mode    Mode
	Days    []string // Day selector; empty means every day found in the input
	Verbose bool
}

// DayState tracks a day through a run. Days only move forward.
type DayState string

const (
	DayPending     DayState = "pending"
	DayIndexBuilt  DayState = "index_built"
	DayReconciling DayState = "reconciling"
	DayDone        DayState = "done"
)

var dayTransitions = map[DayState]DayState{
	DayPending:     DayIndexBuilt,
	DayIndexBuilt:  DayReconciling,
	DayReconciling: DayDone,
}

// DayReport holds the counts for one business day of a run.
type DayReport struct {
	Day   string
	State DayState

	SourceRows      int // Candidates from the import for this day
	ExistingRecords int // Store records in the day's UTC window
	ManualRecords   int64
	Indexed         int // Records that produced match keys
	Malformed       int
	OutOfWindow     int

	MatchedBy map[Tier]int
	Missing   int
	Inserted  int
	Skipped   int
	Failed    int
}

func newDayReport(day string, sourceRows int) *DayReport {
	return &DayReport{
		Day:        day,
		State:      DayPending,
		SourceRows: sourceRows,
		MatchedBy:  map[Tier]int{},
	}
}

func (r *DayReport) advance(to DayState) error {
	if next, ok := dayTransitions[r.State]; !ok || next != to {
		return &TransitionError{Day: r.Day, From: r.State, To: to}
	}
	r.State = to
	return nil
}

// Result is the outcome of a reconciliation run.
type Result struct {
	RunID    string
	Mode     Mode
	Days     []*DayReport
	Missing  []sale.Transaction
	Inserted int
	Skipped  int
	Failed   int
	Errors   []string
}

// Existing sums ExistingRecords over all days.
func (r *Result) Existing() int {
	total := 0
	for _, d := range r.Days {
		total += d.ExistingRecords
	}
	return total
}

// SourceRows sums SourceRows over all days.
func (r *Result) SourceRows() int {
	total := 0
	for _, d := range r.Days {
		total += d.SourceRows
	}
	return total
}
