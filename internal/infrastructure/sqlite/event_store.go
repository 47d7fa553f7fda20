package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"posrecon/internal/domain/reconcile"
)

// timeLayout is fixed width so stored instants order correctly as text.
const timeLayout = "2006-01-02 15:04:05.000000000"

const schema = `
CREATE TABLE IF NOT EXISTS webhook_events (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	event_id     TEXT NOT NULL UNIQUE,
	entity_type  TEXT,
	action       TEXT,
	business_ids TEXT NOT NULL DEFAULT '[]',
	created_date TEXT,
	received_at  TEXT NOT NULL,
	raw_body     TEXT,
	headers      TEXT NOT NULL DEFAULT '{}',
	payload      TEXT,
	source_ip    TEXT,
	user_agent   TEXT,
	day          TEXT
);
CREATE INDEX IF NOT EXISTS idx_webhook_events_occurred_at ON webhook_events (COALESCE(created_date, received_at));
`

// EventStore keeps webhook events in a local SQLite file. It is used for
// offline runs and tests.
type EventStore struct {
	db *sql.DB
}

// Open opens (creating if needed) the database at path and ensures the schema.
func Open(path string) (*EventStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database at %s: %w", path, err)
	}
	// One writer at a time; SQLite serializes anyway.
	db.SetMaxOpenConns(1)

	store := &EventStore{db: db}
	if err := store.Migrate(context.Background()); err != nil {
		db.Close()
		return nil, err
	}

	log.Printf("SQLite event store ready at %s", path)
	return store, nil
}

// Migrate creates the events table when it does not exist.
func (s *EventStore) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return classifyError("failed to create tables", err)
	}
	return nil
}

func (s *EventStore) Close() error {
	return s.db.Close()
}

const eventColumns = `id, event_id, entity_type, action, business_ids, created_date, received_at,
	raw_body, headers, payload, source_ip, user_agent, day`

func (s *EventStore) FindByDayRange(ctx context.Context, start, end time.Time) ([]*reconcile.Event, error) {
	query := `
		SELECT ` + eventColumns + `
		FROM webhook_events
		WHERE COALESCE(created_date, received_at) >= ?
		  AND COALESCE(created_date, received_at) < ?
		ORDER BY COALESCE(created_date, received_at), id
	`

	rows, err := s.db.QueryContext(ctx, query, formatTime(start), formatTime(end))
	if err != nil {
		return nil, classifyError("failed to find events", err)
	}
	defer rows.Close()

	var events []*reconcile.Event
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, classifyError("failed to scan event", err)
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, classifyError("failed to iterate events", err)
	}
	return events, nil
}

func (s *EventStore) CountByDayRange(ctx context.Context, start, end time.Time, prefix string) (int64, error) {
	query := `
		SELECT COUNT(*)
		FROM webhook_events
		WHERE COALESCE(created_date, received_at) >= ?
		  AND COALESCE(created_date, received_at) < ?
		  AND substr(event_id, 1, ?) = ?
	`

	var count int64
	err := s.db.QueryRowContext(ctx, query, formatTime(start), formatTime(end), len(prefix), prefix).Scan(&count)
	if err != nil {
		return 0, classifyError("failed to count events", err)
	}
	return count, nil
}

// Create inserts an event. The insert is a no-op on an existing event id,
// which is reported as reconcile.ErrEventExists.
func (s *EventStore) Create(ctx context.Context, params reconcile.CreateEventParams) (*reconcile.Event, error) {
	businessIDs := params.BusinessIDs
	if businessIDs == nil {
		businessIDs = []string{}
	}
	ids, err := json.Marshal(businessIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to encode business ids: %w", err)
	}
	headers, err := json.Marshal(params.Headers)
	if err != nil {
		return nil, fmt.Errorf("failed to encode headers: %w", err)
	}

	var payload any
	if len(params.Payload) > 0 {
		payload = string(params.Payload)
	}

	query := `
		INSERT INTO webhook_events (event_id, entity_type, action, business_ids, created_date, received_at,
		                            raw_body, headers, payload, source_ip, user_agent, day)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(event_id) DO NOTHING
	`

	result, err := s.db.ExecContext(ctx, query,
		params.EventID, params.EntityType, params.Action, string(ids),
		formatTime(params.CreatedDate), formatTime(time.Now()),
		params.RawBody, string(headers), payload,
		params.SourceIP, params.UserAgent, formatTime(params.Day),
	)
	if err != nil {
		return nil, classifyError("failed to create event "+params.EventID, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return nil, classifyError("failed to create event "+params.EventID, err)
	}
	if affected == 0 {
		return nil, fmt.Errorf("failed to create event %s: %w", params.EventID, reconcile.ErrEventExists)
	}

	row := s.db.QueryRowContext(ctx, `SELECT `+eventColumns+` FROM webhook_events WHERE event_id = ?`, params.EventID)
	ev, err := scanEvent(row)
	if err != nil {
		return nil, classifyError("failed to read back event "+params.EventID, err)
	}
	return ev, nil
}

func (s *EventStore) DeleteByDayRange(ctx context.Context, start, end time.Time, prefix string) (int64, error) {
	if strings.TrimSpace(prefix) == "" {
		return 0, fmt.Errorf("refusing to delete events without an event id prefix")
	}

	query := `
		DELETE FROM webhook_events
		WHERE COALESCE(created_date, received_at) >= ?
		  AND COALESCE(created_date, received_at) < ?
		  AND substr(event_id, 1, ?) = ?
	`

	result, err := s.db.ExecContext(ctx, query, formatTime(start), formatTime(end), len(prefix), prefix)
	if err != nil {
		return 0, classifyError("failed to delete events", err)
	}
	return result.RowsAffected()
}

func (s *EventStore) Ping(ctx context.Context) error {
	return classifyError("failed to ping database", s.db.PingContext(ctx))
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEvent(row rowScanner) (*reconcile.Event, error) {
	var ev reconcile.Event
	var entityType, action, businessIDs, createdDate, rawBody, headers, payload, sourceIP, userAgent, day sql.NullString
	var receivedAt string

	if err := row.Scan(
		&ev.ID, &ev.EventID, &entityType, &action, &businessIDs, &createdDate, &receivedAt,
		&rawBody, &headers, &payload, &sourceIP, &userAgent, &day,
	); err != nil {
		return nil, err
	}

	ev.EntityType = entityType.String
	ev.Action = action.String
	ev.RawBody = rawBody.String
	ev.SourceIP = sourceIP.String
	ev.UserAgent = userAgent.String
	if payload.Valid {
		ev.Payload = json.RawMessage(payload.String)
	}
	if businessIDs.Valid {
		_ = json.Unmarshal([]byte(businessIDs.String), &ev.BusinessIDs)
	}
	if headers.Valid {
		_ = json.Unmarshal([]byte(headers.String), &ev.Headers)
	}

	var err error
	if ev.ReceivedAt, err = parseTime(receivedAt); err != nil {
		return nil, err
	}
	if ev.CreatedDate, err = parseNullTime(createdDate); err != nil {
		return nil, err
	}
	if ev.Day, err = parseNullTime(day); err != nil {
		return nil, err
	}

	return &ev, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.ParseInLocation(timeLayout, s, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("bad stored timestamp %q: %w", s, err)
	}
	return t, nil
}

func parseNullTime(s sql.NullString) (*time.Time, error) {
	if !s.Valid || s.String == "" {
		return nil, nil
	}
	t, err := parseTime(s.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// classifyError maps SQLite result codes onto the engine's error taxonomy.
func classifyError(op string, err error) error {
	if err == nil {
		return nil
	}

	var sqliteErr *sqlite.Error
	if errors.As(err, &sqliteErr) {
		code := sqliteErr.Code()
		switch {
		case code == sqlite3.SQLITE_CONSTRAINT_UNIQUE, code == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
			return fmt.Errorf("%s: %w", op, reconcile.ErrEventExists)
		}
		// Extended codes carry the primary code in the low byte.
		switch code & 0xff {
		case sqlite3.SQLITE_CANTOPEN, sqlite3.SQLITE_BUSY, sqlite3.SQLITE_LOCKED, sqlite3.SQLITE_IOERR, sqlite3.SQLITE_NOTADB:
			return fmt.Errorf("%s: %w: %v", op, reconcile.ErrStoreUnavailable, err)
		}
		return fmt.Errorf("%s: %w", op, err)
	}

	if errors.Is(err, sql.ErrConnDone) {
		return fmt.Errorf("%s: %w: %v", op, reconcile.ErrStoreUnavailable, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}
