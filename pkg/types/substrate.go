package types

import "context"

// Row is one logical row keyed by column name.
type Row map[string]any

// Assoc is the in-memory form of an associative-map field. It serializes as
// a plain JSON object and is rebuilt from one when read back.
type Assoc map[string]any

// Op is a parameterized SQL statement ready for execution.
type Op struct {
	SQL    string
	Params []any
}

// Cursor holds the rows produced by one statement.
type Cursor struct {
	rows     []Row
	affected int64
}

// NewCursor wraps rows returned by the SQL surface.
func NewCursor(rows []Row, affected int64) *Cursor {
	return &Cursor{rows: rows, affected: affected}
}

// ToArray returns every row. The slice is never nil.
func (c *Cursor) ToArray() []Row {
	if c == nil || c.rows == nil {
		return []Row{}
	}
	return c.rows
}

// RowsAffected reports how many rows a write statement changed.
func (c *Cursor) RowsAffected() int64 {
	if c == nil {
		return 0
	}
	return c.affected
}

// Executor runs a single statement on the SQL surface.
type Executor interface {
	Exec(ctx context.Context, query string, args ...any) (*Cursor, error)
}

// KV is the substrate's key-value surface for counters and small metadata.
type KV interface {
	// Get returns the stored value and whether the key exists.
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Put(ctx context.Context, key string, value []byte) error
}

// Substrate is the per-partition durable storage the engine runs on.
type Substrate interface {
	KV
	Executor

	// RunAtomically executes fn inside one atomic unit. Every statement run
	// through the Executor handed to fn commits together or not at all.
	// Nested calls return ErrNestedAtomic.
	RunAtomically(ctx context.Context, fn func(Executor) error) error

	Close() error
}

// Comparison operators accepted in conditions.
const (
	OpEq      = "="
	OpNe      = "!="
	OpLt      = "<"
	OpLte     = "<="
	OpGt      = ">"
	OpGte     = ">="
	OpLike    = "LIKE"
	OpNotLike = "NOT LIKE"
	OpIs      = "IS"
	OpIsNot   = "IS NOT"
	OpIn      = "IN"
)

// Condition is one (field, operator, value) predicate.
type Condition struct {
	Field string
	Op    string
	Value any
}

// Eq builds an equality condition.
func Eq(field string, value any) Condition {
	return Condition{Field: field, Op: OpEq, Value: value}
}

// Direction orders a select.
type Direction string

const (
	Asc  Direction = "ASC"
	Desc Direction = "DESC"
)

// Query describes a select: ANDed conditions, optional single-field
// ordering, and optional limit/offset. Offset is ignored without Limit.
type Query struct {
	Where   []Condition
	OrderBy string
	Dir     Direction
	Limit   *int
	Offset  *int
}
