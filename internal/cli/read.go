package cli

import (
	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/shelf/pkg/shelf"
)

type queryFlags struct {
	where  []string
	order  string
	limit  int
	offset int
}

func (f *queryFlags) build(t *shelf.Table) (shelf.Query, error) {
	q := t.Query()
	conds, err := parseWheres(f.where)
	if err != nil {
		return q, err
	}
	for _, c := range conds {
		q = q.Where(c.Field, c.Op, c.Value)
	}
	if f.order != "" {
		q = q.OrderBy(parseOrder(f.order))
	}
	if f.limit > 0 {
		q = q.Limit(f.limit)
		if f.offset > 0 {
			q = q.Offset(f.offset)
		}
	}
	return q, nil
}

func newGetCmd() *cobra.Command {
	var f queryFlags
	cmd := &cobra.Command{
		Use:   "get <table>",
		Short: "Query rows owned by the current user",
		Example: `  shelf get users --where 'age:>=:30' --order name:desc --limit 10
  shelf get users --where email=ada@example.com`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withTable(cmd, args[0], func(t *shelf.Table) error {
				q, err := f.build(t)
				if err != nil {
					return err
				}
				rows, err := q.Get(cmd.Context())
				if err != nil {
					return err
				}
				return render(cmd.OutOrStdout(), rows)
			})
		},
	}
	fl := cmd.Flags()
	fl.StringArrayVarP(&f.where, "where", "w", nil, "condition, repeatable: field=value or field:op:value")
	fl.StringVar(&f.order, "order", "", "sort field, optionally field:desc")
	fl.IntVar(&f.limit, "limit", 0, "maximum rows")
	fl.IntVar(&f.offset, "offset", 0, "rows to skip (with --limit)")
	return cmd
}

func newCountCmd() *cobra.Command {
	var f queryFlags
	cmd := &cobra.Command{
		Use:   "count <table>",
		Short: "Count rows matching the conditions",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withTable(cmd, args[0], func(t *shelf.Table) error {
				q, err := f.build(t)
				if err != nil {
					return err
				}
				n, err := q.Count(cmd.Context())
				if err != nil {
					return err
				}
				return render(cmd.OutOrStdout(), map[string]int64{"count": n})
			})
		},
	}
	cmd.Flags().StringArrayVarP(&f.where, "where", "w", nil, "condition, repeatable: field=value or field:op:value")
	return cmd
}

func newSelectCmd() *cobra.Command {
	var table string
	cmd := &cobra.Command{
		Use:   "select <sql> [param...]",
		Short: "Run a read-only SELECT statement",
		Long: `Select runs a raw SELECT. With --table each row is parsed and validated
against that table's schema; otherwise rows are printed as stored.`,
		Example: `  shelf select 'SELECT name, COUNT(*) AS n FROM users GROUP BY name'
  shelf select 'SELECT * FROM users WHERE id > ?' 10 --table users`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			params := make([]any, 0, len(args)-1)
			for _, p := range args[1:] {
				params = append(params, p)
			}
			return withShelf(cmd.Context(), func(s *shelf.Shelf) error {
				rows, err := s.ExecSelect(cmd.Context(), args[0], params, table)
				if err != nil {
					return err
				}
				return render(cmd.OutOrStdout(), rows)
			})
		},
	}
	cmd.Flags().StringVar(&table, "table", "", "parse rows against this table's schema")
	return cmd
}
