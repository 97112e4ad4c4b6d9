package cli

import (
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/mesh-intelligence/shelf/pkg/shelf"
	"github.com/mesh-intelligence/shelf/pkg/types"
)

func newInsertCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "insert <table> <json|->",
		Short: "Insert a row, or an array of rows in one transaction",
		Example: `  shelf insert users '{"email":"ada@example.com","name":"Ada"}'
  shelf insert users - < users.json`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := readPayload(args[1])
			if err != nil {
				return err
			}
			rows, many, err := parseRows(data)
			if err != nil {
				return err
			}
			return withTable(cmd, args[0], func(t *shelf.Table) error {
				if many {
					stored, err := t.BatchInsert(cmd.Context(), rows)
					if err != nil {
						return err
					}
					return render(cmd.OutOrStdout(), stored)
				}
				stored, err := t.Insert(cmd.Context(), rows[0])
				if err != nil {
					return err
				}
				return render(cmd.OutOrStdout(), stored)
			})
		},
	}
}

func newUpsertCmd() *cobra.Command {
	var conflict string
	cmd := &cobra.Command{
		Use:   "upsert <table> <json|->",
		Short: "Insert a row or update the one with the same conflict value",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := readPayload(args[1])
			if err != nil {
				return err
			}
			row, err := parseRow(data)
			if err != nil {
				return err
			}
			return withTable(cmd, args[0], func(t *shelf.Table) error {
				stored, err := t.Upsert(cmd.Context(), row, conflict)
				if err != nil {
					return err
				}
				return render(cmd.OutOrStdout(), stored)
			})
		},
	}
	cmd.Flags().StringVar(&conflict, "conflict", "", "conflict field (default: the table's)")
	return cmd
}

func newUpdateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "update <table> <id> <json|->",
		Short: "Update the given fields of a row",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[1])
			if err != nil {
				return err
			}
			data, err := readPayload(args[2])
			if err != nil {
				return err
			}
			row, err := parseRow(data)
			if err != nil {
				return err
			}
			return withTable(cmd, args[0], func(t *shelf.Table) error {
				stored, err := t.Update(cmd.Context(), id, row)
				if err != nil {
					return err
				}
				return render(cmd.OutOrStdout(), stored)
			})
		},
	}
}

func newDeleteCmd() *cobra.Command {
	var where string
	cmd := &cobra.Command{
		Use:   "delete <table> [id]",
		Short: "Delete a row by id, or the rows matching --where",
		Example: `  shelf delete users 7
  shelf delete users --where 'email:like:%@old.example.com'`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var id int64
			if len(args) == 2 {
				var err error
				if id, err = parseID(args[1]); err != nil {
					return err
				}
			}
			var cond *types.Condition
			if where != "" {
				c, err := parseWhere(where)
				if err != nil {
					return err
				}
				cond = &c
			}
			return withShelf(cmd.Context(), func(s *shelf.Shelf) error {
				n, err := s.Delete(cmd.Context(), args[0], id, cond)
				if err != nil {
					return err
				}
				return render(cmd.OutOrStdout(), map[string]int64{"deleted": n})
			})
		},
	}
	cmd.Flags().StringVar(&where, "where", "", "condition: field=value or field:op:value")
	return cmd
}

func newBatchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "batch <file|->",
		Short: "Run a multi-table batch atomically",
		Long: `Batch reads a YAML (or JSON) list of entries and runs them as one
atomic unit. Each entry has a kind (insert, update, upsert, delete, sql)
and the fields that kind needs:

  - {kind: insert, table: users, data: {email: a@example.com, name: A}}
  - {kind: update, table: users, id: 3, data: {name: B}}
  - {kind: delete, table: notes, where: {field: title, op: "=", value: old}}
  - {kind: sql, ops: [{sql: "UPDATE notes SET body = ?", params: [x]}]}`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var data []byte
			var err error
			if args[0] == "-" {
				data, err = readPayload("-")
			} else {
				data, err = os.ReadFile(args[0])
			}
			if err != nil {
				return fmt.Errorf("read batch: %w", err)
			}
			var batch []shelf.BatchOp
			if err := yaml.Unmarshal(data, &batch); err != nil {
				return usageErrorf("batch is not a YAML list of entries: %v", err)
			}
			return withShelf(cmd.Context(), func(s *shelf.Shelf) error {
				res, err := s.MultiTableTransaction(cmd.Context(), batch)
				if err != nil {
					return err
				}
				return render(cmd.OutOrStdout(), res)
			})
		},
	}
}

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, usageErrorf("id must be a positive integer, got %q", s)
	}
	return id, nil
}

// withTable opens the partition and looks up a registered table.
func withTable(cmd *cobra.Command, name string, fn func(*shelf.Table) error) error {
	return withShelf(cmd.Context(), func(s *shelf.Shelf) error {
		t, err := s.Table(name)
		if err != nil {
			return err
		}
		return fn(t)
	})
}

func newExportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "export <table> <file.jsonl>",
		Short: "Write the table's rows to a JSONL file",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withShelf(cmd.Context(), func(s *shelf.Shelf) error {
				n, err := s.ExportJSONL(cmd.Context(), args[0], args[1])
				if err != nil {
					return err
				}
				return render(cmd.OutOrStdout(), map[string]int{"exported": n})
			})
		},
	}
}

func newImportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import <table> <file.jsonl>",
		Short: "Insert every record of a JSONL file in one transaction",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withShelf(cmd.Context(), func(s *shelf.Shelf) error {
				n, err := s.ImportJSONL(cmd.Context(), args[0], args[1])
				if err != nil {
					return err
				}
				return render(cmd.OutOrStdout(), map[string]int{"imported": n})
			})
		},
	}
}
