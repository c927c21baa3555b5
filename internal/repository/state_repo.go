package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"smokehouse/internal/models"
)

type StateSQLite struct {
	db *sql.DB
}

func NewStateSQLite(db *sql.DB) *StateSQLite {
	return &StateSQLite{db: db}
}

// constants and helpers for clarity and reuse
const (
	processStateRowID = 1

	insertOrUpdateStateSQL = `
		INSERT INTO process_state (id, state, snapshot, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			state=excluded.state,
			snapshot=excluded.snapshot,
			updated_at=excluded.updated_at
	`

	selectStateSQL = `
		SELECT snapshot, updated_at
		FROM process_state WHERE id=?
	`
)

// Save updates or inserts the process_state row (id always 1).
func (r *StateSQLite) Save(ctx context.Context, snap models.ProcessSnapshot) error {
	// ensure UpdatedAt is always persisted as UTC; set if zero
	if snap.UpdatedAt.IsZero() {
		snap.UpdatedAt = time.Now().UTC()
	} else {
		snap.UpdatedAt = snap.UpdatedAt.UTC()
	}

	body, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}

	_, err = r.db.ExecContext(ctx, insertOrUpdateStateSQL,
		processStateRowID,
		snap.State.String(),
		string(body),
		snap.UpdatedAt,
	)
	return err
}

// Load fetches the single process_state row. The bool is false when no
// snapshot has been saved yet.
func (r *StateSQLite) Load(ctx context.Context) (models.ProcessSnapshot, bool, error) {
	var (
		body      string
		updatedAt time.Time
	)
	err := r.db.QueryRowContext(ctx, selectStateSQL, processStateRowID).Scan(&body, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.ProcessSnapshot{}, false, nil // no state yet
		}
		return models.ProcessSnapshot{}, false, err
	}

	var snap models.ProcessSnapshot
	if err := json.Unmarshal([]byte(body), &snap); err != nil {
		return models.ProcessSnapshot{}, false, fmt.Errorf("decode snapshot: %w", err)
	}
	snap.UpdatedAt = updatedAt.UTC()
	return snap, true, nil
}
