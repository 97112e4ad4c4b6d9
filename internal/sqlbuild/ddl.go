package sqlbuild

import (
	"fmt"
	"strings"

	"github.com/mesh-intelligence/shelf/internal/schema"
	"github.com/mesh-intelligence/shelf/pkg/types"
)

// ColumnDef is one column of a CREATE TABLE statement.
type ColumnDef struct {
	Name       string
	Type       string
	Constraint string
}

func (c ColumnDef) String() string {
	if c.Constraint == "" {
		return Quote(c.Name) + " " + c.Type
	}
	return Quote(c.Name) + " " + c.Type + " " + c.Constraint
}

// autoDefs are the auto-field column definitions.
var autoDefs = map[string]ColumnDef{
	types.ColID:             {Name: types.ColID, Type: "INTEGER", Constraint: "PRIMARY KEY AUTOINCREMENT"},
	types.ColCreatedAt:      {Name: types.ColCreatedAt, Type: "INTEGER", Constraint: "NOT NULL"},
	types.ColUpdatedAt:      {Name: types.ColUpdatedAt, Type: "INTEGER", Constraint: "NOT NULL"},
	types.ColUserID:         {Name: types.ColUserID, Type: "TEXT"},
	types.ColOrganizationID: {Name: types.ColOrganizationID, Type: "TEXT"},
	types.ColQueueID:        {Name: types.ColQueueID, Type: "TEXT"},
	types.ColQueueStatus:    {Name: types.ColQueueStatus, Type: "TEXT"},
}

// SQLType maps a logical kind to its SQLite column type. Unknown kinds are
// stored as text.
func SQLType(k schema.Kind) string {
	switch k {
	case schema.KindInteger, schema.KindBoolean, schema.KindDate:
		return "INTEGER"
	case schema.KindReal:
		return "REAL"
	}
	return "TEXT"
}

// ColumnDefs derives the table's columns: auto-fields in their fixed order,
// then schema columns in declaration order. A schema field that shares a
// name with an enabled auto-field is folded into the auto column.
func ColumnDefs(d *schema.Descriptor, opts types.TableOptions) []ColumnDef {
	auto := opts.AutoColumns()
	defs := make([]ColumnDef, 0, len(auto)+len(d.Columns))
	seen := make(map[string]bool, len(auto))
	for _, name := range auto {
		defs = append(defs, autoDefs[name])
		seen[name] = true
	}
	for _, c := range d.Columns {
		if seen[c.Name] {
			continue
		}
		defs = append(defs, ColumnDef{Name: c.Name, Type: SQLType(c.Kind)})
	}
	return defs
}

// ColumnNames returns the names of ColumnDefs in order.
func ColumnNames(d *schema.Descriptor, opts types.TableOptions) []string {
	defs := ColumnDefs(d, opts)
	names := make([]string, len(defs))
	for i, c := range defs {
		names[i] = c.Name
	}
	return names
}

// CreateTable renders CREATE TABLE IF NOT EXISTS for the table, ending with
// a UNIQUE constraint on the conflict field when one is configured.
func CreateTable(name string, d *schema.Descriptor, opts types.TableOptions) (string, error) {
	if err := schema.CheckIdentifier(name); err != nil {
		return "", err
	}
	defs := ColumnDefs(d, opts)
	lines := make([]string, 0, len(defs)+1)
	known := make(map[string]bool, len(defs))
	for _, c := range defs {
		lines = append(lines, "    "+c.String())
		known[c.Name] = true
	}
	if opts.ConflictField != "" {
		if !known[opts.ConflictField] {
			return "", fmt.Errorf("%w: conflict field %s.%s", types.ErrUnknownColumn, name, opts.ConflictField)
		}
		lines = append(lines, fmt.Sprintf("    UNIQUE(%s)", Quote(opts.ConflictField)))
	}
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (\n%s\n);", Quote(name), strings.Join(lines, ",\n")), nil
}

// IndexStatements renders one index per declared index, one unique index
// per declared unique index, and a composite unique owner index when the
// table is both user and organization scoped.
func IndexStatements(name string, d *schema.Descriptor, opts types.TableOptions) ([]string, error) {
	known := make(map[string]bool)
	for _, c := range ColumnNames(d, opts) {
		known[c] = true
	}
	var stmts []string
	add := func(unique bool, fields []string) error {
		for _, f := range fields {
			if !known[f] {
				return fmt.Errorf("%w: index on %s.%s", types.ErrUnknownColumn, name, f)
			}
			stmts = append(stmts, createIndex(unique, "idx_"+name+"_"+f, name, f))
		}
		return nil
	}
	if err := add(false, opts.Indexes); err != nil {
		return nil, err
	}
	if err := add(true, opts.UniqueIndexes); err != nil {
		return nil, err
	}
	if opts.UserScoped && opts.OrganizationScoped {
		stmts = append(stmts, createIndex(true, "idx_"+name+"_owner", name, types.ColUserID, types.ColOrganizationID))
	}
	return stmts, nil
}

func createIndex(unique bool, index, table string, cols ...string) string {
	kw := "INDEX"
	if unique {
		kw = "UNIQUE INDEX"
	}
	quoted := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = Quote(c)
	}
	return fmt.Sprintf("CREATE %s IF NOT EXISTS %s ON %s(%s);", kw, Quote(index), Quote(table), strings.Join(quoted, ", "))
}
