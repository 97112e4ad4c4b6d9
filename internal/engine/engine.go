// Package engine is the schema-driven persistence engine of one partition.
//
// Callers register tables (a schema plus options), then insert, update,
// upsert, delete and select logical rows. Each write runs the coercion
// pipeline, builds parameterized SQL and executes it in one atomic unit on
// the partition's substrate. Reads parse stored values back and validate
// them against the schema.
//
// An Engine is built for a single writer: the host serializes calls into
// one partition.
package engine

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mesh-intelligence/shelf/internal/schema"
	"github.com/mesh-intelligence/shelf/pkg/types"
)

// Engine runs table operations against one partition.
type Engine struct {
	sub      types.Substrate
	registry *Registry
	counters *Counters

	log    *slog.Logger
	notify Notifier
	now    func() time.Time
	newID  func() string

	user string

	mu  sync.RWMutex
	org string

	pending sync.WaitGroup
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.log = l
		}
	}
}

// WithNotifier sets the callback invoked after successful writes.
func WithNotifier(n Notifier) Option {
	return func(e *Engine) {
		e.notify = n
	}
}

// WithClock overrides the time source used for timestamps.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// WithUser fixes the user identity rows are owned by.
func WithUser(userID string) Option {
	return func(e *Engine) {
		e.user = userID
	}
}

// WithIDGenerator overrides the generator of batch ids and queue ids.
func WithIDGenerator(gen func() string) Option {
	return func(e *Engine) {
		if gen != nil {
			e.newID = gen
		}
	}
}

// New creates an engine over sub and loads the persisted id counters.
func New(ctx context.Context, sub types.Substrate, opts ...Option) (*Engine, error) {
	e := &Engine{
		sub:   sub,
		log:   slog.Default(),
		now:   time.Now,
		newID: newUUID,
	}
	for _, opt := range opts {
		opt(e)
	}
	e.registry = NewRegistry(sub, e.log)
	e.counters = NewCounters(sub)
	if err := e.counters.Load(ctx); err != nil {
		return nil, err
	}
	return e, nil
}

// newUUID returns a UUID v7, falling back to v4.
func newUUID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.New().String()
	}
	return id.String()
}

// RegisterTable registers name with root and opts, or returns the table
// already registered under name.
func (e *Engine) RegisterTable(ctx context.Context, name string, root *schema.Node, opts types.TableOptions) (*Table, error) {
	cfg, err := e.registry.Register(ctx, name, root, opts)
	if err != nil {
		return nil, err
	}
	return &Table{e: e, cfg: cfg}, nil
}

// Table returns the handle of a registered table.
func (e *Engine) Table(name string) (*Table, error) {
	cfg, err := e.registry.Lookup(name)
	if err != nil {
		return nil, err
	}
	return &Table{e: e, cfg: cfg}, nil
}

// Tables returns the registered table names, sorted.
func (e *Engine) Tables() []string {
	return e.registry.Names()
}

// Logger returns the engine's logger.
func (e *Engine) Logger() *slog.Logger {
	return e.log
}

// NextID allocates the next id for table from the counter store.
func (e *Engine) NextID(ctx context.Context, table string) (int64, error) {
	return e.counters.Next(ctx, table)
}

// SetOwnerScope sets the organization rows are scoped to. An empty id
// clears it, leaving user scoping only.
func (e *Engine) SetOwnerScope(organizationID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.org = organizationID
}

// User returns the user identity fixed at construction.
func (e *Engine) User() string {
	return e.user
}

// Organization returns the active organization scope, if any.
func (e *Engine) Organization() string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.org
}

// Wait blocks until every notification already dispatched has returned.
func (e *Engine) Wait() {
	e.pending.Wait()
}

// Close waits for pending notifications and closes the substrate.
func (e *Engine) Close() error {
	e.Wait()
	return e.sub.Close()
}

func (e *Engine) lookup(name string) (*TableConfig, error) {
	return e.registry.Lookup(name)
}
