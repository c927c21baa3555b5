package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"smokehouse/internal/models"

	"github.com/google/uuid"
)

// sqliteTimestamp is the layout SQLite compares TIMESTAMP text in.
const sqliteTimestamp = "2006-01-02 15:04:05"

const (
	insertEventSQL = `
		INSERT INTO process_events (id, occurred_at, type, message, meta)
		VALUES (?, ?, ?, ?, ?)
	`
	selectEventsSQL = `SELECT id, occurred_at, type, message, meta FROM process_events`
)

type EventSQLite struct {
	db *sql.DB
}

func NewEventSQLite(db *sql.DB) *EventSQLite { return &EventSQLite{db: db} }

// Append stores e, assigning an id and timestamp when they are missing.
func (r *EventSQLite) Append(ctx context.Context, e models.ProcessEvent) error {
	if e.EventID == "" {
		e.EventID = uuid.NewString()
	}
	if e.OccurredAt.IsZero() {
		e.OccurredAt = time.Now()
	}

	meta, err := encodeMeta(e.Metadata)
	if err != nil {
		return fmt.Errorf("encode event metadata: %w", err)
	}

	_, err = r.db.ExecContext(ctx, insertEventSQL,
		e.EventID,
		e.OccurredAt.UTC().Format(sqliteTimestamp),
		normalizeType(e.Type),
		e.Description,
		meta,
	)
	return err
}

// List returns events within [from, to] of the given type (any bound may be
// empty), oldest first.
func (r *EventSQLite) List(ctx context.Context, from, to time.Time, typ string) ([]models.ProcessEvent, error) {
	q, args := buildEventQuery(from, to, typ)

	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.ProcessEvent
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

func buildEventQuery(from, to time.Time, typ string) (string, []any) {
	var (
		where []string
		args  []any
	)
	if !from.IsZero() {
		where = append(where, "occurred_at >= ?")
		args = append(args, from.UTC().Format(sqliteTimestamp))
	}
	if !to.IsZero() {
		where = append(where, "occurred_at <= ?")
		args = append(args, to.UTC().Format(sqliteTimestamp))
	}
	if typ = normalizeType(typ); typ != "" {
		where = append(where, "type = ?")
		args = append(args, typ)
	}

	q := selectEventsSQL
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	return q + " ORDER BY occurred_at ASC", args
}

func scanEvent(rows *sql.Rows) (models.ProcessEvent, error) {
	var (
		ev   models.ProcessEvent
		meta sql.NullString
	)
	if err := rows.Scan(&ev.EventID, &ev.OccurredAt, &ev.Type, &ev.Description, &meta); err != nil {
		return models.ProcessEvent{}, err
	}
	ev.OccurredAt = ev.OccurredAt.UTC()
	if meta.Valid && meta.String != "" {
		var v any
		if err := json.Unmarshal([]byte(meta.String), &v); err == nil {
			ev.Metadata = v
		} else {
			ev.Metadata = meta.String
		}
	}
	return ev, nil
}

func encodeMeta(meta any) (*string, error) {
	if meta == nil {
		return nil, nil
	}
	b, err := json.Marshal(meta)
	if err != nil {
		return nil, err
	}
	s := string(b)
	return &s, nil
}

func normalizeType(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}
