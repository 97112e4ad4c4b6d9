package engine

import (
	"context"
	"fmt"
	"slices"

	"github.com/mesh-intelligence/shelf/internal/schema"
	"github.com/mesh-intelligence/shelf/pkg/types"
)

// Query is a fluent, scoped select over one table. Every method returns a
// new Query, so a partially built query can be reused as a base.
//
//	q := orders.Query().Where("status", "=", "paid")
//	recent, err := q.OrderBy("created_at", types.Desc).Limit(10).Get(ctx)
//	n, err := q.Count(ctx)
type Query struct {
	t *Table
	q types.Query
}

// Query starts a query over the table.
func (t *Table) Query() Query {
	return Query{t: t}
}

// Where ANDs one condition. An empty op means equality.
func (q Query) Where(field, op string, value any) Query {
	q.q.Where = append(slices.Clip(q.q.Where), types.Condition{Field: field, Op: op, Value: value})
	return q
}

// OrderBy sorts by field. An empty direction means ascending.
func (q Query) OrderBy(field string, dir types.Direction) Query {
	q.q.OrderBy = field
	q.q.Dir = dir
	return q
}

// Limit caps the number of rows.
func (q Query) Limit(n int) Query {
	q.q.Limit = intPtr(n)
	return q
}

// Offset skips rows. It is ignored without a limit.
func (q Query) Offset(n int) Query {
	q.q.Offset = intPtr(n)
	return q
}

// Spec returns the query as built so far, without the ownership filter.
func (q Query) Spec() types.Query {
	out := q.q
	out.Where = slices.Clone(q.q.Where)
	return out
}

// Get runs the query restricted to rows owned by the engine's user, and by
// the active organization when one is set.
func (q Query) Get(ctx context.Context) ([]types.Row, error) {
	scoped := q.Spec()
	scoped.Where = append(scoped.Where, q.t.e.ownerFilter(q.t.cfg)...)
	return q.t.e.selectRows(ctx, q.t.cfg, scoped)
}

// First runs the query with a limit of one and returns the row, or nil.
func (q Query) First(ctx context.Context) (types.Row, error) {
	rows, err := q.Limit(1).Get(ctx)
	if err != nil || len(rows) == 0 {
		return nil, err
	}
	return rows[0], nil
}

// Count returns the number of rows matching the conditions, 0 when none do.
// Ordering, limit and offset are ignored and no ownership filter is applied.
func (q Query) Count(ctx context.Context) (int64, error) {
	e, cfg := q.t.e, q.t.cfg
	where, err := e.storeConditions(cfg, q.q.Where)
	if err != nil {
		return 0, err
	}
	op, err := cfg.build.Count(where)
	if err != nil {
		return 0, err
	}
	rows, err := e.query(ctx, op)
	if err != nil {
		return 0, fmt.Errorf("count %s: %w", cfg.Name, err)
	}
	if len(rows) == 0 {
		return 0, nil
	}
	n, _ := schema.AsInt(rows[0]["count"])
	return n, nil
}

// ownerFilter returns the conditions that restrict a read to the current
// owner. Tables without owner columns are not filtered.
func (e *Engine) ownerFilter(cfg *TableConfig) []types.Condition {
	var conds []types.Condition
	if cfg.Options.HasUserColumn() {
		conds = append(conds, types.Eq(types.ColUserID, e.user))
	}
	if org := e.Organization(); org != "" && cfg.Options.HasOrganizationColumn() {
		conds = append(conds, types.Eq(types.ColOrganizationID, org))
	}
	return conds
}
