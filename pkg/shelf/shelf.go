// Package shelf is the public entry point: it opens a partition on SQLite
// and runs the persistence engine over it.
//
// Example:
//
//	s, err := shelf.Open(ctx, types.Config{
//	    Backend: types.BackendSQLite,
//	    DataDir: ".shelf-db",
//	    UserID:  "u1",
//	})
//	defer s.Close()
//	users, err := s.RegisterTable(ctx, "users", userSchema, types.TableOptions{
//	    UserScoped: true,
//	    AutoFields: types.AutoFields{ID: true, Timestamps: true},
//	})
//	row, err := users.Insert(ctx, types.Row{"email": "a@example.com"})
package shelf

import (
	"context"
	"fmt"
	"os"

	"github.com/mesh-intelligence/shelf/internal/engine"
	"github.com/mesh-intelligence/shelf/internal/logging"
	"github.com/mesh-intelligence/shelf/internal/schema"
	"github.com/mesh-intelligence/shelf/internal/sqlite"
	"github.com/mesh-intelligence/shelf/pkg/types"
)

// Version is the shelf release.
const Version = "v0.1.0"

// Engine types re-exported for callers outside this module.
type (
	Engine      = engine.Engine
	Table       = engine.Table
	Query       = engine.Query
	Option      = engine.Option
	Notifier    = engine.Notifier
	BatchOp     = engine.BatchOp
	BatchKind   = engine.BatchKind
	BatchResult = engine.BatchResult
	Schema      = schema.Node
)

// Typed maps a struct type onto a table.
type Typed[T any] = engine.Typed[T]

// Engine options.
var (
	WithLogger      = engine.WithLogger
	WithNotifier    = engine.WithNotifier
	WithClock       = engine.WithClock
	WithIDGenerator = engine.WithIDGenerator
)

// NewTyped wraps t for struct type T.
func NewTyped[T any](t *Table) *Typed[T] {
	return engine.NewTyped[T](t)
}

// SchemaFromCUE builds a table schema from CUE source, taking the value at
// path (e.g. "#User").
func SchemaFromCUE(src []byte, filename, path string) (*Schema, error) {
	return schema.FromCUE(src, filename, path)
}

// Shelf is an engine attached to one partition.
type Shelf struct {
	*engine.Engine
	backend *sqlite.Backend
}

// Open attaches the partition described by cfg and starts an engine on it.
// cfg.UserID becomes the engine's user identity. Logs go to stderr at
// cfg.LogLevel unless opts set a logger.
func Open(ctx context.Context, cfg types.Config, opts ...Option) (*Shelf, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	log, err := logging.New(os.Stderr, cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return nil, fmt.Errorf("configure logging: %w", err)
	}

	backend := sqlite.NewBackend()
	if err := backend.Attach(cfg); err != nil {
		return nil, fmt.Errorf("attach partition %s: %w", cfg.PartitionName(), err)
	}

	base := []Option{engine.WithLogger(log), engine.WithUser(cfg.UserID)}
	e, err := engine.New(ctx, backend, append(base, opts...)...)
	if err != nil {
		backend.Close()
		return nil, err
	}
	log.Debug("partition opened", "path", backend.Path(), "driver", sqlite.DriverType())
	return &Shelf{Engine: e, backend: backend}, nil
}

// KV returns the partition's key-value store. Keys "counters" and
// "schema:<table>" belong to the engine.
func (s *Shelf) KV() types.KV {
	return s.backend
}

// Path returns the partition's database file.
func (s *Shelf) Path() string {
	return s.backend.Path()
}
