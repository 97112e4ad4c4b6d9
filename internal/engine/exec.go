package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/mesh-intelligence/shelf/internal/coerce"
	"github.com/mesh-intelligence/shelf/internal/logging"
	"github.com/mesh-intelligence/shelf/internal/schema"
	"github.com/mesh-intelligence/shelf/pkg/types"
)

// ExecTransaction runs ops in one atomic unit. An empty list fails before
// anything runs. The first failing statement aborts the unit and is
// returned as a *types.StorageError carrying its SQL and parameters.
func (e *Engine) ExecTransaction(ctx context.Context, ops []types.Op) ([]*types.Cursor, error) {
	if len(ops) == 0 {
		return nil, fmt.Errorf("%w: empty transaction", types.ErrInvalidOperation)
	}
	log := logging.FromContext(ctx, e.log)
	cursors := make([]*types.Cursor, 0, len(ops))
	err := e.sub.RunAtomically(ctx, func(ex types.Executor) error {
		for _, op := range ops {
			log.Debug("exec", "sql", op.SQL, "params", len(op.Params))
			cur, err := ex.Exec(ctx, op.SQL, op.Params...)
			if err != nil {
				return &types.StorageError{SQL: op.SQL, Params: op.Params, Err: err}
			}
			cursors = append(cursors, cur)
		}
		return nil
	})
	if err != nil {
		var serr *types.StorageError
		if !errors.As(err, &serr) {
			err = &types.StorageError{Err: err}
		}
		log.Error("transaction failed", "ops", len(ops), "err", err)
		return nil, err
	}
	return cursors, nil
}

// ExecSelect runs a read-only statement, which must begin with SELECT. With
// table empty the raw rows are returned; otherwise each row is parsed and
// validated against that table's schema.
func (e *Engine) ExecSelect(ctx context.Context, query string, params []any, table string) ([]types.Row, error) {
	if !isSelect(query) {
		return nil, fmt.Errorf("%w: only SELECT statements may be executed here", types.ErrInvalidOperation)
	}
	var cfg *TableConfig
	if table != "" {
		var err error
		if cfg, err = e.lookup(table); err != nil {
			return nil, err
		}
	}
	rows, err := e.query(ctx, types.Op{SQL: query, Params: params})
	if err != nil {
		return nil, err
	}
	if cfg == nil {
		return rows, nil
	}
	return e.readRows(cfg, rows)
}

func isSelect(query string) bool {
	s := strings.TrimSpace(query)
	return len(s) >= len("select") && strings.EqualFold(s[:len("select")], "select")
}

// query runs one statement outside a transaction.
func (e *Engine) query(ctx context.Context, op types.Op) ([]types.Row, error) {
	logging.FromContext(ctx, e.log).Debug("query", "sql", op.SQL, "params", len(op.Params))
	cur, err := e.sub.Exec(ctx, op.SQL, op.Params...)
	if err != nil {
		return nil, &types.StorageError{SQL: op.SQL, Params: op.Params, Err: err}
	}
	return cur.ToArray(), nil
}

// readRows rebuilds stored rows into logical rows. A row that fails schema
// validation is an error, never dropped.
func (e *Engine) readRows(cfg *TableConfig, raw []types.Row) ([]types.Row, error) {
	out := make([]types.Row, 0, len(raw))
	for _, r := range raw {
		row, err := e.readRow(cfg, r)
		if err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, nil
}

func (e *Engine) readRow(cfg *TableConfig, raw types.Row) (types.Row, error) {
	parsed := coerce.ParseFromStorage(cfg.Descriptor.Desc, raw)
	row, err := cfg.Descriptor.ValidateRow(parsed, false)
	if err != nil {
		return nil, fmt.Errorf("read %s row: %w", cfg.Name, tagTable(cfg.Name, err))
	}
	for _, c := range cfg.auto {
		if v, ok := parsed[c]; ok {
			row[c] = v
		}
	}
	return row, nil
}

// validate preprocesses and validates caller input. With partial set,
// absent fields are skipped and no defaults are applied.
func (e *Engine) validate(cfg *TableConfig, data types.Row, partial bool) (types.Row, error) {
	pre := coerce.Preprocess(cfg.Descriptor.Desc, data)
	row, err := cfg.Descriptor.ValidateRow(pre, partial)
	if err != nil {
		return nil, tagTable(cfg.Name, err)
	}
	return row, nil
}

// tagTable records the table on a validation error.
func tagTable(table string, err error) error {
	var verr *types.ValidationError
	if errors.As(err, &verr) && verr.Table == "" {
		verr.Table = table
	}
	return err
}

// storeConditions converts condition values to their stored form.
func (e *Engine) storeConditions(cfg *TableConfig, conds []types.Condition) ([]types.Condition, error) {
	out := make([]types.Condition, len(conds))
	for i, c := range conds {
		sc, err := e.storeCondition(cfg, c)
		if err != nil {
			return nil, err
		}
		out[i] = sc
	}
	return out, nil
}

func (e *Engine) storeCondition(cfg *TableConfig, c types.Condition) (types.Condition, error) {
	d := cfg.Descriptor.Desc.Field(c.Field)
	store := func(v any) (any, error) {
		sv, err := coerce.TransformValue(d, coerce.PreprocessValue(d, v))
		if err != nil {
			return nil, fmt.Errorf("condition on %s: %w", c.Field, err)
		}
		return sv, nil
	}

	values, isList := schema.AsSlice(c.Value)
	if isList && strings.EqualFold(strings.TrimSpace(c.Op), types.OpIn) {
		stored := make([]any, len(values))
		for i, v := range values {
			sv, err := store(v)
			if err != nil {
				return c, err
			}
			stored[i] = sv
		}
		c.Value = stored
		return c, nil
	}
	sv, err := store(c.Value)
	if err != nil {
		return c, err
	}
	c.Value = sv
	return c, nil
}
