package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"

	"posrecon/internal/domain/reconcile"
)

// EventRepository stores webhook events in Postgres.
type EventRepository struct {
	db *DB
}

func NewEventRepository(db *DB) *EventRepository {
	return &EventRepository{db: db}
}

const eventColumns = `id, event_id, entity_type, action, business_ids, created_date, received_at,
	raw_body, headers, payload, source_ip, user_agent, day`

func (r *EventRepository) FindByDayRange(ctx context.Context, start, end time.Time) ([]*reconcile.Event, error) {
	query := `
		SELECT ` + eventColumns + `
		FROM webhook_events
		WHERE COALESCE(created_date, received_at) >= $1
		  AND COALESCE(created_date, received_at) < $2
		ORDER BY COALESCE(created_date, received_at), id
	`

	rows, err := r.db.QueryContext(ctx, query, start.UTC(), end.UTC())
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

func (r *EventRepository) CountByDayRange(ctx context.Context, start, end time.Time, prefix string) (int64, error) {
	query := `
		SELECT COUNT(*)
		FROM webhook_events
		WHERE COALESCE(created_date, received_at) >= $1
		  AND COALESCE(created_date, received_at) < $2
		  AND event_id LIKE $3
	`

	var count int64
	err := r.db.QueryRowContext(ctx, query, start.UTC(), end.UTC(), likePrefix(prefix)).Scan(&count)
	if err != nil {
		return 0, classifyError("failed to count events", err)
	}
	return count, nil
}

func (r *EventRepository) Create(ctx context.Context, params reconcile.CreateEventParams) (*reconcile.Event, error) {
	headers, err := json.Marshal(params.Headers)
	if err != nil {
		return nil, fmt.Errorf("failed to encode headers: %w", err)
	}

	businessIDs := params.BusinessIDs
	if businessIDs == nil {
		businessIDs = []string{}
	}
	var payload any
	if len(params.Payload) > 0 {
		payload = string(params.Payload)
	}

	query := `
		INSERT INTO webhook_events (event_id, entity_type, action, business_ids, created_date,
		                            raw_body, headers, payload, source_ip, user_agent, day)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING ` + eventColumns

	ev, err := scanEvent(r.db.QueryRowContext(
		ctx, query,
		params.EventID, params.EntityType, params.Action, pq.Array(businessIDs),
		params.CreatedDate.UTC(), params.RawBody, string(headers), payload,
		params.SourceIP, params.UserAgent, params.Day.UTC(),
	))
	if err != nil {
		return nil, classifyError("failed to create event "+params.EventID, err)
	}
	return ev, nil
}

func (r *EventRepository) DeleteByDayRange(ctx context.Context, start, end time.Time, prefix string) (int64, error) {
	if strings.TrimSpace(prefix) == "" {
		return 0, fmt.Errorf("refusing to delete events without an event id prefix")
	}

	query := `
		DELETE FROM webhook_events
		WHERE COALESCE(created_date, received_at) >= $1
		  AND COALESCE(created_date, received_at) < $2
		  AND event_id LIKE $3
	`

	result, err := r.db.ExecContext(ctx, query, start.UTC(), end.UTC(), likePrefix(prefix))
	if err != nil {
		return 0, classifyError("failed to delete events", err)
	}
	return result.RowsAffected()
}

func (r *EventRepository) Ping(ctx context.Context) error {
	return classifyError("failed to ping database", r.db.PingContext(ctx))
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEvent(row rowScanner) (*reconcile.Event, error) {
	var ev reconcile.Event
	var businessIDs pq.StringArray
	var createdDate, day sql.NullTime
	var entityType, action, rawBody, sourceIP, userAgent sql.NullString
	var headers, payload []byte

	if err := row.Scan(
		&ev.ID, &ev.EventID, &entityType, &action, &businessIDs, &createdDate, &ev.ReceivedAt,
		&rawBody, &headers, &payload, &sourceIP, &userAgent, &day,
	); err != nil {
		return nil, err
	}

	ev.EntityType = entityType.String
	ev.Action = action.String
	ev.BusinessIDs = []string(businessIDs)
	ev.RawBody = rawBody.String
	ev.SourceIP = sourceIP.String
	ev.UserAgent = userAgent.String
	ev.Payload = payload
	if createdDate.Valid {
		t := createdDate.Time
		ev.CreatedDate = &t
	}
	if day.Valid {
		t := day.Time
		ev.Day = &t
	}
	if len(headers) > 0 {
		// Headers of live events are whatever the sender posted; a bad blob is not fatal.
		_ = json.Unmarshal(headers, &ev.Headers)
	}

	return &ev, nil
}

// likePrefix escapes LIKE wildcards in prefix and appends '%'.
func likePrefix(prefix string) string {
	escaped := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(prefix)
	return escaped + "%"
}
