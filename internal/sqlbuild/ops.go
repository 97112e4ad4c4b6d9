// Package sqlbuild turns logical row operations into parameterized SQLite
// statements and derives table DDL from a compiled schema.
//
// Identifiers are double-quoted and only ever come from registered table
// configuration: every field a statement names is checked against the
// table's known columns. Values are always bound as parameters.
package sqlbuild

import (
	"fmt"
	"sort"
	"strings"

	"github.com/mesh-intelligence/shelf/internal/schema"
	"github.com/mesh-intelligence/shelf/pkg/types"
)

// Table is the identifier surface of one registered table.
type Table struct {
	Name    string
	Columns []string // auto columns first, then schema columns

	known map[string]bool
}

// NewTable returns a builder for name with the given column order.
func NewTable(name string, columns []string) *Table {
	known := make(map[string]bool, len(columns))
	for _, c := range columns {
		known[c] = true
	}
	return &Table{Name: name, Columns: columns, known: known}
}

// Has reports whether column is known to the table.
func (t *Table) Has(column string) bool {
	return t.known[column]
}

// Quote double-quotes an identifier.
func Quote(ident string) string {
	return `"` + strings.ReplaceAll(ident, `"`, `""`) + `"`
}

// keys returns the row's columns in table order. A key the table does not
// know fails with ErrUnknownColumn.
func (t *Table) keys(row types.Row) ([]string, error) {
	out := make([]string, 0, len(row))
	for _, c := range t.Columns {
		if _, ok := row[c]; ok {
			out = append(out, c)
		}
	}
	if len(out) == len(row) {
		return out, nil
	}
	var unknown []string
	for k := range row {
		if !t.known[k] {
			unknown = append(unknown, k)
		}
	}
	sort.Strings(unknown)
	return nil, fmt.Errorf("%w: %s.%s", types.ErrUnknownColumn, t.Name, strings.Join(unknown, ","))
}

// Insert builds INSERT INTO t (cols) VALUES (...).
func (t *Table) Insert(row types.Row) (types.Op, error) {
	cols, err := t.keys(row)
	if err != nil {
		return types.Op{}, err
	}
	if len(cols) == 0 {
		return types.Op{SQL: fmt.Sprintf("INSERT INTO %s DEFAULT VALUES", Quote(t.Name))}, nil
	}
	names := make([]string, len(cols))
	params := make([]any, len(cols))
	for i, c := range cols {
		names[i] = Quote(c)
		params[i] = row[c]
	}
	return types.Op{
		SQL: fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
			Quote(t.Name), strings.Join(names, ", "), placeholders(len(cols))),
		Params: params,
	}, nil
}

// Update builds UPDATE t SET ... WHERE id = ? with the id bound last.
func (t *Table) Update(id int64, row types.Row) (types.Op, error) {
	if id <= 0 {
		return types.Op{}, types.ErrMissingID
	}
	set, params, err := t.assignments(row, "")
	if err != nil {
		return types.Op{}, err
	}
	if len(params) == 0 {
		return types.Op{}, fmt.Errorf("%w: update of %s sets no columns", types.ErrInvalidOperation, t.Name)
	}
	return types.Op{
		SQL:    fmt.Sprintf("UPDATE %s SET %s WHERE %s = ?", Quote(t.Name), set, Quote(types.ColID)),
		Params: append(params, id),
	}, nil
}

// Upsert inserts create and, when a row with the same conflict value exists,
// applies update to it instead. The conflict field is never updated.
func (t *Table) Upsert(create, update types.Row, conflictField string) (types.Op, error) {
	if conflictField == "" {
		return types.Op{}, fmt.Errorf("%w: table %s", types.ErrMissingConflictField, t.Name)
	}
	if !t.known[conflictField] {
		return types.Op{}, fmt.Errorf("%w: %s.%s", types.ErrUnknownColumn, t.Name, conflictField)
	}
	insert, err := t.Insert(create)
	if err != nil {
		return types.Op{}, err
	}
	set, params, err := t.assignments(update, conflictField)
	if err != nil {
		return types.Op{}, err
	}
	action := "DO NOTHING"
	if len(params) > 0 {
		action = "DO UPDATE SET " + set
	}
	return types.Op{
		SQL:    fmt.Sprintf("%s ON CONFLICT(%s) %s", insert.SQL, Quote(conflictField), action),
		Params: append(insert.Params, params...),
	}, nil
}

// assignments renders "a" = ?, "b" = ? over row, skipping skip.
func (t *Table) assignments(row types.Row, skip string) (string, []any, error) {
	cols, err := t.keys(row)
	if err != nil {
		return "", nil, err
	}
	parts := make([]string, 0, len(cols))
	params := make([]any, 0, len(cols))
	for _, c := range cols {
		if c == skip {
			continue
		}
		parts = append(parts, Quote(c)+" = ?")
		params = append(params, row[c])
	}
	return strings.Join(parts, ", "), params, nil
}

// Select builds SELECT * FROM t with ANDed conditions, an optional single
// ordering and optional limit/offset. Offset is only bound with a limit.
func (t *Table) Select(q types.Query) (types.Op, error) {
	where, params, err := t.where(q.Where)
	if err != nil {
		return types.Op{}, err
	}
	var b strings.Builder
	fmt.Fprintf(&b, "SELECT * FROM %s%s", Quote(t.Name), where)

	if q.OrderBy != "" {
		if !t.known[q.OrderBy] {
			return types.Op{}, fmt.Errorf("%w: order by %s.%s", types.ErrUnknownColumn, t.Name, q.OrderBy)
		}
		dir, err := direction(q.Dir)
		if err != nil {
			return types.Op{}, err
		}
		fmt.Fprintf(&b, " ORDER BY %s %s", Quote(q.OrderBy), dir)
	}
	if q.Limit != nil {
		b.WriteString(" LIMIT ?")
		params = append(params, *q.Limit)
		if q.Offset != nil {
			b.WriteString(" OFFSET ?")
			params = append(params, *q.Offset)
		}
	}
	return types.Op{SQL: b.String(), Params: params}, nil
}

// Count builds SELECT COUNT(*) over the ANDed conditions.
func (t *Table) Count(conds []types.Condition) (types.Op, error) {
	where, params, err := t.where(conds)
	if err != nil {
		return types.Op{}, err
	}
	return types.Op{
		SQL:    fmt.Sprintf(`SELECT COUNT(*) AS "count" FROM %s%s`, Quote(t.Name), where),
		Params: params,
	}, nil
}

// DeleteByID builds DELETE FROM t WHERE id = ?.
func (t *Table) DeleteByID(id int64) (types.Op, error) {
	if id <= 0 {
		return types.Op{}, types.ErrMissingID
	}
	return types.Op{
		SQL:    fmt.Sprintf("DELETE FROM %s WHERE %s = ?", Quote(t.Name), Quote(types.ColID)),
		Params: []any{id},
	}, nil
}

// DeleteWhere builds DELETE FROM t WHERE <cond>.
func (t *Table) DeleteWhere(cond types.Condition) (types.Op, error) {
	if cond.Field == "" {
		return types.Op{}, fmt.Errorf("%w: table %s", types.ErrMissingWhereClause, t.Name)
	}
	clause, params, err := t.condition(cond)
	if err != nil {
		return types.Op{}, err
	}
	return types.Op{
		SQL:    fmt.Sprintf("DELETE FROM %s WHERE %s", Quote(t.Name), clause),
		Params: params,
	}, nil
}

func (t *Table) where(conds []types.Condition) (string, []any, error) {
	if len(conds) == 0 {
		return "", nil, nil
	}
	clauses := make([]string, 0, len(conds))
	var params []any
	for _, c := range conds {
		clause, p, err := t.condition(c)
		if err != nil {
			return "", nil, err
		}
		clauses = append(clauses, clause)
		params = append(params, p...)
	}
	return " WHERE " + strings.Join(clauses, " AND "), params, nil
}

func (t *Table) condition(c types.Condition) (string, []any, error) {
	if !t.known[c.Field] {
		return "", nil, fmt.Errorf("%w: %s.%s", types.ErrUnknownColumn, t.Name, c.Field)
	}
	op, err := NormalizeOp(c.Op)
	if err != nil {
		return "", nil, err
	}
	if op == types.OpIn {
		values, ok := schema.AsSlice(c.Value)
		if !ok {
			values = []any{c.Value}
		}
		return fmt.Sprintf("%s IN (%s)", Quote(c.Field), placeholders(len(values))), values, nil
	}
	return fmt.Sprintf("%s %s ?", Quote(c.Field), op), []any{c.Value}, nil
}

var operators = map[string]bool{
	types.OpEq: true, types.OpNe: true, "<>": true,
	types.OpLt: true, types.OpLte: true, types.OpGt: true, types.OpGte: true,
	types.OpLike: true, types.OpNotLike: true,
	types.OpIs: true, types.OpIsNot: true,
	types.OpIn: true,
}

// NormalizeOp upper-cases op and collapses inner whitespace. An empty
// operator means equality.
func NormalizeOp(op string) (string, error) {
	norm := strings.ToUpper(strings.Join(strings.Fields(op), " "))
	if norm == "" {
		return types.OpEq, nil
	}
	if !operators[norm] {
		return "", fmt.Errorf("%w: %w %q", types.ErrInvalidOperation, types.ErrUnknownOperator, op)
	}
	return norm, nil
}

func direction(d types.Direction) (string, error) {
	switch strings.ToUpper(string(d)) {
	case "", string(types.Asc):
		return string(types.Asc), nil
	case string(types.Desc):
		return string(types.Desc), nil
	}
	return "", fmt.Errorf("%w: order direction %q", types.ErrInvalidOperation, d)
}

func placeholders(n int) string {
	if n == 0 {
		return ""
	}
	return strings.Repeat("?, ", n-1) + "?"
}
