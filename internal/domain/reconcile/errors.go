package reconcile

import (
	"errors"
	"fmt"
)

var (
	// ErrMalformedRecord marks a persisted event whose sale fields cannot be read.
	ErrMalformedRecord = errors.New("malformed existing record")

	// ErrEventExists is returned by a Repository when an event id is already stored.
	ErrEventExists = errors.New("event already exists")

	// ErrStoreUnavailable wraps connectivity failures. It aborts a run.
	ErrStoreUnavailable = errors.New("event store unavailable")
)

// TransitionError reports an out-of-order day state change.
type TransitionError struct {
	Day  string
	From DayState
	To   DayState
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("day %s: cannot move from %s to %s", e.Day, e.From, e.To)
}
