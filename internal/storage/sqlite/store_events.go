package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/mittbeet/mittbeet/internal/domain/event"
	"github.com/mittbeet/mittbeet/internal/metrics"
	"github.com/mittbeet/mittbeet/internal/storage"
)

// execer abstracts *sql.DB and *sql.Tx so appends can run standalone or
// inside an enclosing transaction (day-gate opens, delivery creation).
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// AppendEvent validates an event against the catalog and appends it. The
// stored event is returned with its journal id and append timestamp set.
func (s *Store) AppendEvent(ctx context.Context, evt event.Event) (event.Event, error) {
	if err := ctx.Err(); err != nil {
		return event.Event{}, err
	}
	if s == nil || s.sqlDB == nil {
		return event.Event{}, fmt.Errorf("storage is not configured")
	}
	return s.appendEvent(ctx, s.sqlDB, evt)
}

func (s *Store) appendEvent(ctx context.Context, db execer, evt event.Event) (event.Event, error) {
	if s.registry == nil {
		return event.Event{}, fmt.Errorf("event registry is required")
	}
	validated, err := s.registry.ValidateForAppend(evt)
	if err != nil {
		return event.Event{}, err
	}
	evt = validated

	if evt.CreatedAt.IsZero() {
		evt.CreatedAt = time.Now().UTC()
	}
	evt.CreatedAt = evt.CreatedAt.UTC().Truncate(time.Millisecond)

	result, err := db.ExecContext(ctx,
		`INSERT INTO events (event_type, version, aggregate_id, payload_json, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		string(evt.Type), evt.Version, evt.AggregateID, evt.PayloadJSON, toMillis(evt.CreatedAt),
	)
	if err != nil {
		return event.Event{}, storage.WriteError{Op: "append event", Err: err}
	}
	id, err := result.LastInsertId()
	if err != nil {
		return event.Event{}, storage.WriteError{Op: "read event id", Err: err}
	}
	evt.ID = id

	metrics.EventsAppended.WithLabelValues(string(evt.Type)).Inc()
	return evt, nil
}

// QueryEvents returns journal events matching the query, ordered ascending
// by created_at with id as the tiebreak.
func (s *Store) QueryEvents(ctx context.Context, query storage.EventQuery) ([]event.Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}
	if query.Limit <= 0 {
		return nil, fmt.Errorf("limit must be greater than zero")
	}
	if query.Offset < 0 {
		return nil, fmt.Errorf("offset must not be negative")
	}

	where, params := buildEventFilter(query)
	sqlText := fmt.Sprintf(
		`SELECT id, event_type, version, aggregate_id, payload_json, created_at
		 FROM events %s
		 ORDER BY created_at ASC, id ASC
		 LIMIT ? OFFSET ?`,
		where,
	)
	params = append(params, query.Limit, query.Offset)

	rows, err := s.sqlDB.QueryContext(ctx, sqlText, params...)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var events []event.Event
	for rows.Next() {
		var (
			evt       event.Event
			typ       string
			createdAt int64
		)
		if err := rows.Scan(&evt.ID, &typ, &evt.Version, &evt.AggregateID, &evt.PayloadJSON, &createdAt); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		evt.Type = event.Type(typ)
		evt.CreatedAt = fromMillis(createdAt)
		events = append(events, evt)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return events, nil
}

func buildEventFilter(query storage.EventQuery) (whereClause string, params []any) {
	var clauses []string
	if len(query.Types) > 0 {
		placeholders := make([]string, len(query.Types))
		for i, typ := range query.Types {
			placeholders[i] = "?"
			params = append(params, string(typ))
		}
		clauses = append(clauses, "event_type IN ("+strings.Join(placeholders, ", ")+")")
	}
	if len(query.AggregateIDs) > 0 {
		placeholders := make([]string, len(query.AggregateIDs))
		for i, aggregateID := range query.AggregateIDs {
			placeholders[i] = "?"
			params = append(params, aggregateID)
		}
		clauses = append(clauses, "aggregate_id IN ("+strings.Join(placeholders, ", ")+")")
	}
	if len(clauses) == 0 {
		return "", nil
	}
	return "WHERE " + strings.Join(clauses, " AND "), params
}

// DeleteEventByID removes one event. This is the narrow administrative
// correction path; projectors must never call it.
func (s *Store) DeleteEventByID(ctx context.Context, id int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}

	result, err := s.sqlDB.ExecContext(ctx, "DELETE FROM events WHERE id = ?", id)
	if err != nil {
		return storage.WriteError{Op: "delete event", Err: err}
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete event rows affected: %w", err)
	}
	if affected == 0 {
		return storage.ErrNotFound
	}
	return nil
}
