package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"time"
)

type KVSQLite struct {
	db *sql.DB
}

func NewKVSQLite(db *sql.DB) *KVSQLite { return &KVSQLite{db: db} }

// Ensure implementation of KVStore interface at compile time.
var _ KVStore = (*KVSQLite)(nil)

const (
	selectKVSQL = `SELECT value FROM kv WHERE namespace = ? AND key = ?`

	upsertKVSQL = `
		INSERT INTO kv (namespace, key, value, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(namespace, key) DO UPDATE SET
			value=excluded.value,
			updated_at=excluded.updated_at
	`

	deleteKVSQL = `DELETE FROM kv WHERE namespace = ? AND key = ?`
)

// Get returns (value, true, nil), or ("", false, nil) when the key is absent.
func (r *KVSQLite) Get(ctx context.Context, namespace, key string) (string, bool, error) {
	var v string
	err := r.db.QueryRowContext(ctx, selectKVSQL, namespace, key).Scan(&v)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("select %s/%s: %w", namespace, key, err)
	}
	return v, true, nil
}

// SetMany writes every value in one transaction. Keys are written in sorted
// order so the statement sequence is deterministic.
func (r *KVSQLite) SetMany(ctx context.Context, namespace string, values map[string]string) error {
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	now := time.Now().UTC()
	return r.inTx(ctx, func(tx *sql.Tx) error {
		for _, k := range keys {
			if _, err := tx.ExecContext(ctx, upsertKVSQL, namespace, k, values[k], now); err != nil {
				return fmt.Errorf("upsert %s/%s: %w", namespace, k, err)
			}
		}
		return nil
	})
}

// Delete removes keys in one transaction. Absent keys are not an error.
func (r *KVSQLite) Delete(ctx context.Context, namespace string, keys ...string) error {
	return r.inTx(ctx, func(tx *sql.Tx) error {
		for _, k := range keys {
			if _, err := tx.ExecContext(ctx, deleteKVSQL, namespace, k); err != nil {
				return fmt.Errorf("delete %s/%s: %w", namespace, k, err)
			}
		}
		return nil
	})
}

func (r *KVSQLite) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin kv transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit kv transaction: %w", err)
	}
	return nil
}
