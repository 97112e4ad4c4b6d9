package engine

import (
	"context"
	"fmt"

	"github.com/mesh-intelligence/shelf/pkg/types"
)

// BatchKind is the kind of one multi-table batch entry.
type BatchKind string

// Batch entry kinds.
const (
	BatchInsert BatchKind = "insert"
	BatchUpdate BatchKind = "update"
	BatchUpsert BatchKind = "upsert"
	BatchDelete BatchKind = "delete"
	BatchSQL    BatchKind = "sql"
)

// BatchOp is one entry of a multi-table transaction. Which fields are
// required depends on Kind; a sql entry carries prebuilt statements in Ops
// and ignores the rest.
type BatchOp struct {
	Table         string           `json:"table,omitempty" yaml:"table,omitempty"`
	Kind          BatchKind        `json:"kind" yaml:"kind"`
	Data          types.Row        `json:"data,omitempty" yaml:"data,omitempty"`
	ID            int64            `json:"id,omitempty" yaml:"id,omitempty"`
	ConflictField string           `json:"conflictField,omitempty" yaml:"conflictField,omitempty"`
	Where         *types.Condition `json:"where,omitempty" yaml:"where,omitempty"`
	Ops           []types.Op       `json:"ops,omitempty" yaml:"ops,omitempty"`
}

// BatchEntry is the outcome of one batch entry.
type BatchEntry struct {
	Index int       `json:"index"`
	Table string    `json:"table,omitempty"`
	Kind  BatchKind `json:"kind"`
	// Row is the logical row written by insert, update and upsert entries.
	Row types.Row `json:"row,omitempty"`
	// Affected counts rows changed by delete and sql entries.
	Affected int64 `json:"affected"`
}

// BatchResult reports a committed multi-table transaction.
type BatchResult struct {
	BatchID string       `json:"batchId"`
	Entries []BatchEntry `json:"entries"`
}

// MultiTableTransaction builds every entry and executes all resulting
// statements as one atomic unit across the tables involved: either every
// entry lands or none does. Required fields of every entry are checked
// before anything is built.
func (e *Engine) MultiTableTransaction(ctx context.Context, batch []BatchOp) (*BatchResult, error) {
	if len(batch) == 0 {
		return nil, fmt.Errorf("%w: empty batch", types.ErrInvalidOperation)
	}
	for i, b := range batch {
		if err := checkRequired(i, b); err != nil {
			return nil, err
		}
	}

	var ops []types.Op
	entries := make([]BatchEntry, len(batch))
	spans := make([][2]int, len(batch)) // ops[start:end] per entry
	for i, b := range batch {
		start := len(ops)
		entry := BatchEntry{Index: i, Table: b.Table, Kind: b.Kind}

		if b.Kind == BatchSQL {
			ops = append(ops, b.Ops...)
		} else {
			cfg, err := e.lookup(b.Table)
			if err != nil {
				return nil, fmt.Errorf("batch entry %d: %w", i, err)
			}
			op, row, err := e.buildEntry(ctx, cfg, b)
			if err != nil {
				return nil, fmt.Errorf("batch entry %d (%s %s): %w", i, b.Kind, b.Table, err)
			}
			entry.Row = row
			ops = append(ops, op)
		}
		entries[i] = entry
		spans[i] = [2]int{start, len(ops)}
	}

	cursors, err := e.ExecTransaction(ctx, ops)
	if err != nil {
		return nil, fmt.Errorf("multi-table transaction: %w", err)
	}
	for i := range entries {
		for _, cur := range cursors[spans[i][0]:spans[i][1]] {
			entries[i].Affected += cur.RowsAffected()
		}
	}

	res := &BatchResult{BatchID: e.newID(), Entries: entries}
	e.log.Debug("batch committed", "batch", res.BatchID, "entries", len(entries), "ops", len(ops))
	e.emit(EventBatchCommitted, res)
	return res, nil
}

func (e *Engine) buildEntry(ctx context.Context, cfg *TableConfig, b BatchOp) (types.Op, types.Row, error) {
	switch b.Kind {
	case BatchInsert:
		row, op, err := e.buildInsert(ctx, cfg, b.Data)
		return op, row, err
	case BatchUpdate:
		row, op, err := e.buildUpdate(cfg, b.ID, b.Data)
		return op, row, err
	case BatchUpsert:
		row, op, _, err := e.buildUpsert(ctx, cfg, b.Data, b.ConflictField)
		return op, row, err
	case BatchDelete:
		op, err := e.buildDelete(cfg, b.ID, b.Where)
		return op, nil, err
	}
	return types.Op{}, nil, fmt.Errorf("%w: batch kind %q", types.ErrInvalidOperation, b.Kind)
}

// checkRequired validates the fields an entry's kind needs.
func checkRequired(i int, b BatchOp) error {
	missing := func(field string) error {
		return &types.MissingRequiredFieldError{Index: i, Kind: string(b.Kind), Field: field}
	}
	switch b.Kind {
	case BatchInsert, BatchUpsert:
		if b.Table == "" {
			return missing("table")
		}
		if b.Data == nil {
			return missing("data")
		}
	case BatchUpdate:
		if b.Table == "" {
			return missing("table")
		}
		if b.ID <= 0 {
			return missing("id")
		}
		if b.Data == nil {
			return missing("data")
		}
	case BatchDelete:
		if b.Table == "" {
			return missing("table")
		}
		if b.ID <= 0 && (b.Where == nil || b.Where.Field == "") {
			return missing("id or where")
		}
	case BatchSQL:
		if len(b.Ops) == 0 {
			return missing("ops")
		}
	default:
		return fmt.Errorf("batch entry %d: %w: unknown kind %q", i, types.ErrInvalidOperation, b.Kind)
	}
	return nil
}
