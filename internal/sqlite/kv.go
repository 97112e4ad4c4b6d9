package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

const createKV = `CREATE TABLE IF NOT EXISTS _shelf_kv (
    key TEXT PRIMARY KEY,
    value BLOB NOT NULL
);`

// Get returns the value stored under key and whether it exists.
func (b *Backend) Get(ctx context.Context, key string) ([]byte, bool, error) {
	db, err := b.conn()
	if err != nil {
		return nil, false, err
	}
	var value []byte
	err = db.QueryRowContext(ctx, "SELECT value FROM _shelf_kv WHERE key = ?", key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get %s: %w", key, err)
	}
	return value, true, nil
}

// Put stores value under key, replacing any previous value.
func (b *Backend) Put(ctx context.Context, key string, value []byte) error {
	db, err := b.conn()
	if err != nil {
		return err
	}
	if value == nil {
		value = []byte{}
	}
	_, err = db.ExecContext(ctx,
		`INSERT INTO _shelf_kv (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		key, value)
	if err != nil {
		return fmt.Errorf("put %s: %w", key, err)
	}
	return nil
}
