package engine

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sort"
	"strings"
	"sync"

	"github.com/mesh-intelligence/shelf/internal/schema"
	"github.com/mesh-intelligence/shelf/internal/sqlbuild"
	"github.com/mesh-intelligence/shelf/pkg/types"
)

// schemaKeyPrefix prefixes the KV key holding a table's schema fingerprint.
const schemaKeyPrefix = "schema:"

// reservedPrefix marks table names used by the substrate itself.
const reservedPrefix = "_shelf"

// TableConfig is the immutable configuration of a registered table.
type TableConfig struct {
	Name        string
	Schema      *schema.Node
	Descriptor  *schema.Descriptor
	Options     types.TableOptions
	Fingerprint string

	build *sqlbuild.Table
	auto  []string
}

// Registry owns the table configurations of one partition.
type Registry struct {
	sub types.Substrate
	log *slog.Logger

	mu     sync.RWMutex
	tables map[string]*TableConfig
}

// NewRegistry creates an empty registry over sub.
func NewRegistry(sub types.Substrate, log *slog.Logger) *Registry {
	return &Registry{sub: sub, log: log, tables: make(map[string]*TableConfig)}
}

// Register creates the table on first call and returns the existing
// configuration on later calls, ignoring the arguments. The first call
// issues the table and index DDL in one atomic unit and records the schema
// fingerprint; a stored fingerprint that differs from root is logged, not
// migrated.
func (r *Registry) Register(ctx context.Context, name string, root *schema.Node, opts types.TableOptions) (*TableConfig, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if cfg, ok := r.tables[name]; ok {
		return cfg, nil
	}

	if strings.HasPrefix(name, reservedPrefix) {
		return nil, fmt.Errorf("%w: table name %q is reserved", types.ErrInvalidSchema, name)
	}
	desc, err := schema.Compile(root)
	if err != nil {
		return nil, fmt.Errorf("register %s: %w", name, err)
	}
	opts.Indexes = slices.Clone(opts.Indexes)
	opts.UniqueIndexes = slices.Clone(opts.UniqueIndexes)

	create, err := sqlbuild.CreateTable(name, desc, opts)
	if err != nil {
		return nil, fmt.Errorf("register %s: %w", name, err)
	}
	indexes, err := sqlbuild.IndexStatements(name, desc, opts)
	if err != nil {
		return nil, fmt.Errorf("register %s: %w", name, err)
	}

	ddl := append([]string{create}, indexes...)
	err = r.sub.RunAtomically(ctx, func(ex types.Executor) error {
		for _, stmt := range ddl {
			if _, err := ex.Exec(ctx, stmt); err != nil {
				return &types.StorageError{SQL: stmt, Err: err}
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("register %s: %w", name, err)
	}

	cfg := &TableConfig{
		Name:        name,
		Schema:      root,
		Descriptor:  desc,
		Options:     opts,
		Fingerprint: schema.Fingerprint(root),
		build:       sqlbuild.NewTable(name, sqlbuild.ColumnNames(desc, opts)),
		auto:        opts.AutoColumns(),
	}
	if err := r.checkFingerprint(ctx, cfg); err != nil {
		return nil, fmt.Errorf("register %s: %w", name, err)
	}

	r.tables[name] = cfg
	r.log.Info("table registered", "table", name, "columns", len(cfg.build.Columns), "indexes", len(indexes))
	return cfg, nil
}

// checkFingerprint stores the fingerprint of a new table, or warns when the
// table already exists with a different shape.
func (r *Registry) checkFingerprint(ctx context.Context, cfg *TableConfig) error {
	key := schemaKeyPrefix + cfg.Name
	prev, ok, err := r.sub.Get(ctx, key)
	if err != nil {
		return err
	}
	if !ok {
		return r.sub.Put(ctx, key, []byte(cfg.Fingerprint))
	}
	if string(prev) != cfg.Fingerprint {
		r.log.Warn("schema differs from the one the table was created with; no migration is applied",
			"table", cfg.Name, "stored", string(prev), "registered", cfg.Fingerprint)
	}
	return nil
}

// Lookup returns the configuration of a registered table.
func (r *Registry) Lookup(name string) (*TableConfig, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	cfg, ok := r.tables[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", types.ErrUnregisteredTable, name)
	}
	return cfg, nil
}

// Names returns the registered table names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.tables))
	for name := range r.tables {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Columns returns every column of the table in DDL order.
func (c *TableConfig) Columns() []string {
	return slices.Clone(c.build.Columns)
}
