package engine

import (
	"context"

	"github.com/mesh-intelligence/shelf/pkg/types"
)

// Table is the handle of one registered table. It forwards to the engine
// that registered it.
type Table struct {
	e   *Engine
	cfg *TableConfig
}

// Name returns the table name.
func (t *Table) Name() string { return t.cfg.Name }

// Options returns the options the table was registered with.
func (t *Table) Options() types.TableOptions { return t.cfg.Options }

// Config returns the table's registered configuration.
func (t *Table) Config() *TableConfig { return t.cfg }

func (t *Table) Insert(ctx context.Context, data types.Row) (types.Row, error) {
	return t.e.Insert(ctx, t.cfg.Name, data)
}

func (t *Table) BatchInsert(ctx context.Context, data []types.Row) ([]types.Row, error) {
	return t.e.BatchInsert(ctx, t.cfg.Name, data)
}

func (t *Table) Update(ctx context.Context, id int64, data types.Row) (types.Row, error) {
	return t.e.Update(ctx, t.cfg.Name, id, data)
}

func (t *Table) Upsert(ctx context.Context, data types.Row, conflictField string) (types.Row, error) {
	return t.e.Upsert(ctx, t.cfg.Name, data, conflictField)
}

func (t *Table) Delete(ctx context.Context, id int64) (int64, error) {
	return t.e.Delete(ctx, t.cfg.Name, id, nil)
}

func (t *Table) DeleteWhere(ctx context.Context, cond types.Condition) (int64, error) {
	return t.e.DeleteWhere(ctx, t.cfg.Name, cond)
}

// Select runs q without the ownership filter.
func (t *Table) Select(ctx context.Context, q types.Query) ([]types.Row, error) {
	return t.e.Select(ctx, t.cfg.Name, q)
}
