package repository

import (
	"context"
	"database/sql"
	"time"

	"smokehouse/internal/models"
)

// StateRepo persists the last process snapshot.
type StateRepo interface {
	Save(ctx context.Context, s models.ProcessSnapshot) error
	Load(ctx context.Context) (models.ProcessSnapshot, bool, error)
}

// EventRepo is the append-only process event log.
type EventRepo interface {
	Append(ctx context.Context, e models.ProcessEvent) error
	List(ctx context.Context, from, to time.Time, typ string) ([]models.ProcessEvent, error)
}

// KVStore is a namespaced key/value store that lives outside the flash
// filesystem. Multi-key writes are atomic.
type KVStore interface {
	Get(ctx context.Context, namespace, key string) (string, bool, error)
	SetMany(ctx context.Context, namespace string, values map[string]string) error
	Delete(ctx context.Context, namespace string, keys ...string) error
}

type Repository struct {
	StateRepo StateRepo
	EventRepo EventRepo
	KV        KVStore
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{
		StateRepo: NewStateSQLite(db),
		EventRepo: NewEventSQLite(db),
		KV:        NewKVSQLite(db),
	}
}
