package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// Dialect selects placeholder syntax for SQLKV.
type Dialect int

const (
	Postgres Dialect = iota
	SQLite
)

// SQLKV keeps KV entries in a single kv_store table.
type SQLKV struct {
	db      *sql.DB
	dialect Dialect
}

// NewSQLKV creates the kv_store table if missing.
func NewSQLKV(ctx context.Context, db *sql.DB, dialect Dialect) (*SQLKV, error) {
	kv := &SQLKV{db: db, dialect: dialect}
	if err := kv.migrate(ctx); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return kv, nil
}

func (k *SQLKV) migrate(ctx context.Context) error {
	_, err := k.db.ExecContext(ctx, `
	CREATE TABLE IF NOT EXISTS kv_store (
		store_key   TEXT PRIMARY KEY,
		store_value TEXT NOT NULL,
		updated_at  TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`)
	return err
}

func (k *SQLKV) ph(n int) string {
	if k.dialect == SQLite {
		return "?"
	}
	return fmt.Sprintf("$%d", n)
}

// Get returns the value for key.
func (k *SQLKV) Get(ctx context.Context, key string) ([]byte, error) {
	var v string
	err := k.db.QueryRowContext(ctx,
		`SELECT store_value FROM kv_store WHERE store_key = `+k.ph(1), key,
	).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return []byte(v), nil
}

// Set upserts the value for key in a single statement.
func (k *SQLKV) Set(ctx context.Context, key string, value []byte) error {
	_, err := k.db.ExecContext(ctx, `
		INSERT INTO kv_store (store_key, store_value, updated_at)
		VALUES (`+k.ph(1)+`, `+k.ph(2)+`, CURRENT_TIMESTAMP)
		ON CONFLICT (store_key) DO UPDATE SET
			store_value = excluded.store_value,
			updated_at = CURRENT_TIMESTAMP
	`, key, string(value))
	return err
}

// Delete removes key.
func (k *SQLKV) Delete(ctx context.Context, key string) error {
	_, err := k.db.ExecContext(ctx, `DELETE FROM kv_store WHERE store_key = `+k.ph(1), key)
	return err
}

// Ping checks the connection.
func (k *SQLKV) Ping(ctx context.Context) error {
	return k.db.PingContext(ctx)
}
