package engine

import (
	"context"
	"fmt"

	"github.com/mesh-intelligence/shelf/internal/coerce"
	"github.com/mesh-intelligence/shelf/internal/logging"
	"github.com/mesh-intelligence/shelf/pkg/types"
)

// Insert validates data, injects the table's auto-fields and writes one
// row. It returns the logical row as stored, auto-fields included.
func (e *Engine) Insert(ctx context.Context, table string, data types.Row) (types.Row, error) {
	ctx = logging.WithTable(ctx, table)
	cfg, err := e.lookup(table)
	if err != nil {
		return nil, err
	}
	row, op, err := e.buildInsert(ctx, cfg, data)
	if err != nil {
		return nil, err
	}
	if _, err := e.ExecTransaction(ctx, []types.Op{op}); err != nil {
		return nil, fmt.Errorf("insert into %s: %w", table, err)
	}
	e.emit(TableEvent(table, EventInserted), row)
	return row, nil
}

// BatchInsert inserts every row in one atomic unit.
func (e *Engine) BatchInsert(ctx context.Context, table string, data []types.Row) ([]types.Row, error) {
	ctx = logging.WithTable(ctx, table)
	cfg, err := e.lookup(table)
	if err != nil {
		return nil, err
	}
	rows := make([]types.Row, 0, len(data))
	ops := make([]types.Op, 0, len(data))
	for i, d := range data {
		row, op, err := e.buildInsert(ctx, cfg, d)
		if err != nil {
			return nil, fmt.Errorf("batch insert into %s: row %d: %w", table, i, err)
		}
		rows = append(rows, row)
		ops = append(ops, op)
	}
	if _, err := e.ExecTransaction(ctx, ops); err != nil {
		return nil, fmt.Errorf("batch insert into %s: %w", table, err)
	}
	e.emit(TableEvent(table, EventInserted), rows)
	return rows, nil
}

// Update validates the fields present in data and writes them to the row
// with the given id. Defaults are not applied.
func (e *Engine) Update(ctx context.Context, table string, id int64, data types.Row) (types.Row, error) {
	ctx = logging.WithTable(ctx, table)
	cfg, err := e.lookup(table)
	if err != nil {
		return nil, err
	}
	row, op, err := e.buildUpdate(cfg, id, data)
	if err != nil {
		return nil, err
	}
	if _, err := e.ExecTransaction(ctx, []types.Op{op}); err != nil {
		return nil, fmt.Errorf("update %s %d: %w", table, id, err)
	}
	e.emit(TableEvent(table, EventUpdated), row)
	return row, nil
}

// Upsert inserts data, or updates the existing row holding the same value
// in the conflict field. An empty conflictField falls back to the table's
// configured one. It returns the row as stored afterwards.
func (e *Engine) Upsert(ctx context.Context, table string, data types.Row, conflictField string) (types.Row, error) {
	ctx = logging.WithTable(ctx, table)
	cfg, err := e.lookup(table)
	if err != nil {
		return nil, err
	}
	_, op, key, err := e.buildUpsert(ctx, cfg, data, conflictField)
	if err != nil {
		return nil, err
	}
	if _, err := e.ExecTransaction(ctx, []types.Op{op}); err != nil {
		return nil, fmt.Errorf("upsert into %s: %w", table, err)
	}

	sel, err := cfg.build.Select(types.Query{Where: []types.Condition{key}, Limit: intPtr(1)})
	if err != nil {
		return nil, err
	}
	raw, err := e.query(ctx, sel)
	if err != nil {
		return nil, fmt.Errorf("upsert into %s: read back: %w", table, err)
	}
	rows, err := e.readRows(cfg, raw)
	if err != nil {
		return nil, err
	}
	var row types.Row
	if len(rows) > 0 {
		row = rows[0]
	}
	e.emit(TableEvent(table, EventUpserted), row)
	return row, nil
}

// Delete removes the row with the given id or, when id is zero, the rows
// matching where. With neither it fails with ErrMissingWhereClause before
// touching storage. It returns the number of rows removed.
func (e *Engine) Delete(ctx context.Context, table string, id int64, where *types.Condition) (int64, error) {
	ctx = logging.WithTable(ctx, table)
	cfg, err := e.lookup(table)
	if err != nil {
		return 0, err
	}
	op, err := e.buildDelete(cfg, id, where)
	if err != nil {
		return 0, err
	}
	cursors, err := e.ExecTransaction(ctx, []types.Op{op})
	if err != nil {
		return 0, fmt.Errorf("delete from %s: %w", table, err)
	}
	n := cursors[0].RowsAffected()
	e.emit(TableEvent(table, EventDeleted), deletePayload(id, where, n))
	return n, nil
}

// DeleteWhere removes the rows matching cond.
func (e *Engine) DeleteWhere(ctx context.Context, table string, cond types.Condition) (int64, error) {
	return e.Delete(ctx, table, 0, &cond)
}

// Select returns the rows matching q, parsed and validated. It applies no
// ownership filter; use the table's Query for scoped reads.
func (e *Engine) Select(ctx context.Context, table string, q types.Query) ([]types.Row, error) {
	ctx = logging.WithTable(ctx, table)
	cfg, err := e.lookup(table)
	if err != nil {
		return nil, err
	}
	return e.selectRows(ctx, cfg, q)
}

func (e *Engine) selectRows(ctx context.Context, cfg *TableConfig, q types.Query) ([]types.Row, error) {
	where, err := e.storeConditions(cfg, q.Where)
	if err != nil {
		return nil, err
	}
	q.Where = where
	op, err := cfg.build.Select(q)
	if err != nil {
		return nil, err
	}
	raw, err := e.query(ctx, op)
	if err != nil {
		return nil, fmt.Errorf("select from %s: %w", cfg.Name, err)
	}
	return e.readRows(cfg, raw)
}

// buildInsert returns the logical row and its insert statement.
func (e *Engine) buildInsert(ctx context.Context, cfg *TableConfig, data types.Row) (types.Row, types.Op, error) {
	row, err := e.validate(cfg, data, false)
	if err != nil {
		return nil, types.Op{}, err
	}
	auto, err := e.autoValues(ctx, cfg, data)
	if err != nil {
		return nil, types.Op{}, err
	}
	for k, v := range auto {
		row[k] = v
	}
	stored, err := coerce.Transform(cfg.Descriptor.Desc, row)
	if err != nil {
		return nil, types.Op{}, fmt.Errorf("insert into %s: %w", cfg.Name, err)
	}
	op, err := cfg.build.Insert(stored)
	if err != nil {
		return nil, types.Op{}, err
	}
	return row, op, nil
}

// autoValues computes the auto-fields of a new row. Queue linkage may be
// supplied by the caller in data; it is generated otherwise.
func (e *Engine) autoValues(ctx context.Context, cfg *TableConfig, data types.Row) (types.Row, error) {
	opts := cfg.Options
	auto := make(types.Row, len(cfg.auto))
	if opts.AutoFields.ID {
		id, err := e.counters.Next(ctx, cfg.Name)
		if err != nil {
			return nil, fmt.Errorf("allocate %s id: %w", cfg.Name, err)
		}
		auto[types.ColID] = id
	}
	if opts.AutoFields.Timestamps {
		now := e.now().UnixMilli()
		auto[types.ColCreatedAt] = now
		auto[types.ColUpdatedAt] = now
	}
	if opts.HasUserColumn() {
		auto[types.ColUserID] = e.user
	}
	if opts.HasOrganizationColumn() {
		if org := e.Organization(); org != "" {
			auto[types.ColOrganizationID] = org
		}
	}
	if opts.AutoFields.Queue {
		queueID, _ := data[types.ColQueueID].(string)
		if queueID == "" {
			queueID = e.newID()
		}
		status, _ := data[types.ColQueueStatus].(string)
		if status == "" {
			status = types.QueueStatusPending
		}
		auto[types.ColQueueID] = queueID
		auto[types.ColQueueStatus] = status
	}
	return auto, nil
}

// buildUpdate returns the partial logical row (with its id) and the update
// statement.
func (e *Engine) buildUpdate(cfg *TableConfig, id int64, data types.Row) (types.Row, types.Op, error) {
	if id <= 0 {
		return nil, types.Op{}, fmt.Errorf("update %s: %w", cfg.Name, types.ErrMissingID)
	}
	row, err := e.updateRow(cfg, data)
	if err != nil {
		return nil, types.Op{}, err
	}
	stored, err := coerce.Transform(cfg.Descriptor.Desc, row)
	if err != nil {
		return nil, types.Op{}, fmt.Errorf("update %s: %w", cfg.Name, err)
	}
	op, err := cfg.build.Update(id, stored)
	if err != nil {
		return nil, types.Op{}, err
	}
	row[types.ColID] = id
	return row, op, nil
}

// updateRow is the update-context pass over data: partial validation plus
// a fresh updated_at.
func (e *Engine) updateRow(cfg *TableConfig, data types.Row) (types.Row, error) {
	row, err := e.validate(cfg, data, true)
	if err != nil {
		return nil, err
	}
	if cfg.Options.AutoFields.Timestamps {
		row[types.ColUpdatedAt] = e.now().UnixMilli()
	}
	return row, nil
}

// buildUpsert returns the validated row to create, the upsert statement and
// the condition that finds the affected row afterwards.
func (e *Engine) buildUpsert(ctx context.Context, cfg *TableConfig, data types.Row, conflictField string) (types.Row, types.Op, types.Condition, error) {
	if conflictField == "" {
		conflictField = cfg.Options.ConflictField
	}
	if conflictField == "" {
		return nil, types.Op{}, types.Condition{}, fmt.Errorf("upsert into %s: %w", cfg.Name, types.ErrMissingConflictField)
	}

	create, err := e.validate(cfg, data, false)
	if err != nil {
		return nil, types.Op{}, types.Condition{}, err
	}
	key, ok := create[conflictField]
	if !ok {
		return nil, types.Op{}, types.Condition{}, fmt.Errorf("upsert into %s: %w: row has no value for %q",
			cfg.Name, types.ErrMissingConflictField, conflictField)
	}
	auto, err := e.autoValues(ctx, cfg, data)
	if err != nil {
		return nil, types.Op{}, types.Condition{}, err
	}
	for k, v := range auto {
		create[k] = v
	}
	update, err := e.updateRow(cfg, data)
	if err != nil {
		return nil, types.Op{}, types.Condition{}, err
	}

	storedCreate, err := coerce.Transform(cfg.Descriptor.Desc, create)
	if err != nil {
		return nil, types.Op{}, types.Condition{}, fmt.Errorf("upsert into %s: %w", cfg.Name, err)
	}
	storedUpdate, err := coerce.Transform(cfg.Descriptor.Desc, update)
	if err != nil {
		return nil, types.Op{}, types.Condition{}, fmt.Errorf("upsert into %s: %w", cfg.Name, err)
	}
	op, err := cfg.build.Upsert(storedCreate, storedUpdate, conflictField)
	if err != nil {
		return nil, types.Op{}, types.Condition{}, fmt.Errorf("upsert into %s: %w", cfg.Name, err)
	}
	storedKey, err := coerce.TransformValue(cfg.Descriptor.Desc.Field(conflictField), key)
	if err != nil {
		return nil, types.Op{}, types.Condition{}, err
	}
	return create, op, types.Eq(conflictField, storedKey), nil
}

func (e *Engine) buildDelete(cfg *TableConfig, id int64, where *types.Condition) (types.Op, error) {
	if id > 0 {
		return cfg.build.DeleteByID(id)
	}
	if where == nil || where.Field == "" {
		return types.Op{}, fmt.Errorf("delete from %s: %w", cfg.Name, types.ErrMissingWhereClause)
	}
	cond, err := e.storeCondition(cfg, *where)
	if err != nil {
		return types.Op{}, err
	}
	return cfg.build.DeleteWhere(cond)
}

func deletePayload(id int64, where *types.Condition, n int64) map[string]any {
	p := map[string]any{"count": n}
	if id > 0 {
		p["id"] = id
	} else if where != nil {
		p["where"] = *where
	}
	return p
}

func intPtr(i int) *int { return &i }
