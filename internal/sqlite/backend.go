// Package sqlite implements the storage substrate on SQLite: one database
// file per partition, a key-value table for counters and metadata, a SQL
// surface returning cursors, and BEGIN/COMMIT atomic units.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/mesh-intelligence/shelf/pkg/types"
)

// Compile-time interface check.
var _ types.Substrate = (*Backend)(nil)

// queryer is satisfied by *sql.DB and *sql.Tx.
type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// Backend is the substrate for one partition.
type Backend struct {
	mu       sync.RWMutex
	attached bool
	db       *sql.DB
	path     string

	// inAtomic is set while RunAtomically holds the single connection.
	inAtomic atomic.Bool
}

// NewBackend creates a detached backend. Call Attach to open a partition.
func NewBackend() *Backend {
	return &Backend{}
}

// Open attaches a new backend to the database file at path.
func Open(path string) (*Backend, error) {
	b := NewBackend()
	if err := b.attachPath(path); err != nil {
		return nil, err
	}
	return b, nil
}

// PartitionPath returns the database file for the configured partition.
func PartitionPath(cfg types.Config) string {
	dataDir := cfg.DataDir
	if dataDir == "" {
		dataDir = "."
	}
	return filepath.Join(dataDir, cfg.PartitionName()+".db")
}

// Attach opens the partition database described by cfg, creating DataDir
// when needed. Existing data is kept.
func (b *Backend) Attach(cfg types.Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	path := PartitionPath(cfg)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}
	return b.attachPath(path)
}

func (b *Backend) attachPath(path string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.attached {
		return types.ErrAlreadyAttached
	}

	db, err := openDB(path)
	if err != nil {
		return err
	}
	if _, err := db.Exec(createKV); err != nil {
		db.Close()
		return fmt.Errorf("create kv table: %w", err)
	}

	b.db = db
	b.path = path
	b.attached = true
	return nil
}

// Path returns the attached database file.
func (b *Backend) Path() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.path
}

// Detach closes the database. It is idempotent; afterwards every operation
// returns ErrStoreClosed.
func (b *Backend) Detach() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.attached {
		return nil
	}
	err := b.db.Close()
	b.db = nil
	b.attached = false
	if err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}

// Close is Detach.
func (b *Backend) Close() error {
	return b.Detach()
}

// conn returns the database for a statement outside an atomic unit.
func (b *Backend) conn() (*sql.DB, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if !b.attached {
		return nil, types.ErrStoreClosed
	}
	if b.inAtomic.Load() {
		return nil, fmt.Errorf("%w: statement issued outside the open atomic unit", types.ErrNestedAtomic)
	}
	return b.db, nil
}

// Exec runs one statement. Statements that produce rows return them in the
// cursor; others report rows affected.
func (b *Backend) Exec(ctx context.Context, query string, args ...any) (*types.Cursor, error) {
	db, err := b.conn()
	if err != nil {
		return nil, err
	}
	return execOn(ctx, db, query, args)
}

// RunAtomically runs fn inside one transaction. Every statement fn issues
// through the executor it is given commits together or rolls back together.
func (b *Backend) RunAtomically(ctx context.Context, fn func(types.Executor) error) error {
	db, err := b.conn()
	if err != nil {
		return err
	}
	if !b.inAtomic.CompareAndSwap(false, true) {
		return types.ErrNestedAtomic
	}
	defer b.inAtomic.Store(false)

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback() // no-op after commit

	if err := fn(txExecutor{tx: tx}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// txExecutor runs statements on an open transaction.
type txExecutor struct {
	tx *sql.Tx
}

func (e txExecutor) Exec(ctx context.Context, query string, args ...any) (*types.Cursor, error) {
	return execOn(ctx, e.tx, query, args)
}

func execOn(ctx context.Context, q queryer, query string, args []any) (*types.Cursor, error) {
	if !returnsRows(query) {
		res, err := q.ExecContext(ctx, query, args...)
		if err != nil {
			return nil, err
		}
		n, _ := res.RowsAffected()
		return types.NewCursor(nil, n), nil
	}

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out, err := scanRows(rows)
	if err != nil {
		return nil, err
	}
	return types.NewCursor(out, 0), nil
}

// returnsRows reports whether query yields a result set.
func returnsRows(query string) bool {
	fields := strings.Fields(query)
	if len(fields) == 0 {
		return false
	}
	switch strings.ToUpper(fields[0]) {
	case "SELECT", "WITH", "PRAGMA", "VALUES", "EXPLAIN":
		return true
	}
	for _, f := range fields {
		if strings.EqualFold(f, "RETURNING") {
			return true
		}
	}
	return false
}

// scanRows reads every row into a map keyed by column name. Text read back
// as []byte is returned as string.
func scanRows(rows *sql.Rows) ([]types.Row, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("read columns: %w", err)
	}
	var out []types.Row
	for rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		row := make(types.Row, len(cols))
		for i, c := range cols {
			if b, ok := values[i].([]byte); ok {
				row[c] = string(b)
				continue
			}
			row[c] = values[i]
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}
	return out, nil
}
