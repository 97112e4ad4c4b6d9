package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/shelf/pkg/shelf"
	"github.com/mesh-intelligence/shelf/pkg/types"
)

type registerFlags struct {
	schemaFile string
	def        string
	userScoped bool
	orgScoped  bool
	indexes    []string
	unique     []string
	auto       []string
	conflict   string
}

func newRegisterCmd() *cobra.Command {
	var f registerFlags
	cmd := &cobra.Command{
		Use:   "register <table>",
		Short: "Register a table from a CUE definition",
		Long: `Register creates the table from a CUE definition and remembers the
registration in the partition. Registering an existing table is a no-op.

Example:
  shelf register users --schema users.cue --def '#User' \
      --auto id,timestamps --user-scoped --unique email --conflict email`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRegister(cmd, args[0], f)
		},
	}
	fl := cmd.Flags()
	fl.StringVar(&f.schemaFile, "schema", "", "CUE file holding the schema (required)")
	fl.StringVar(&f.def, "def", "", "CUE path of the schema value, e.g. '#User' (default: file root)")
	fl.BoolVar(&f.userScoped, "user-scoped", false, "add user_id and filter queries by it")
	fl.BoolVar(&f.orgScoped, "org-scoped", false, "add organization_id and filter queries by it")
	fl.StringSliceVar(&f.indexes, "index", nil, "fields to index")
	fl.StringSliceVar(&f.unique, "unique", nil, "fields to index uniquely")
	fl.StringSliceVar(&f.auto, "auto", nil, "auto fields: id, timestamps, user, organization, queue")
	fl.StringVar(&f.conflict, "conflict", "", "default upsert conflict field")
	_ = cmd.MarkFlagRequired("schema")
	return cmd
}

func runRegister(cmd *cobra.Command, table string, f registerFlags) error {
	src, err := os.ReadFile(f.schemaFile)
	if err != nil {
		return fmt.Errorf("read schema: %w", err)
	}
	auto, err := parseAutoFields(f.auto)
	if err != nil {
		return err
	}
	reg := registration{
		Table:  table,
		Def:    f.def,
		File:   filepath.Base(f.schemaFile),
		Source: string(src),
		Options: types.TableOptions{
			UserScoped:         f.userScoped,
			OrganizationScoped: f.orgScoped,
			Indexes:            f.indexes,
			UniqueIndexes:      f.unique,
			AutoFields:         auto,
			ConflictField:      f.conflict,
		},
	}

	return withShelf(cmd.Context(), func(s *shelf.Shelf) error {
		ctx := cmd.Context()
		regs, err := loadRegistrations(ctx, s.KV())
		if err != nil {
			return err
		}
		for _, r := range regs {
			if r.Table == table {
				fmt.Fprintf(cmd.OutOrStdout(), "table %s is already registered\n", table)
				return nil
			}
		}

		t, err := reg.apply(ctx, s)
		if err != nil {
			return err
		}
		if err := saveRegistrations(ctx, s.KV(), append(regs, reg)); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "registered %s (%s)\n", table, strings.Join(t.Config().Columns(), ", "))
		return nil
	})
}

func parseAutoFields(names []string) (types.AutoFields, error) {
	var a types.AutoFields
	for _, n := range names {
		switch strings.ToLower(strings.TrimSpace(n)) {
		case "id":
			a.ID = true
		case "timestamps":
			a.Timestamps = true
		case "user":
			a.User = true
		case "organization", "org":
			a.Organization = true
		case "queue":
			a.Queue = true
		default:
			return a, usageErrorf("unknown auto field %q", n)
		}
	}
	return a, nil
}

func newTablesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "tables",
		Short: "List registered tables and their columns",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withShelf(cmd.Context(), func(s *shelf.Shelf) error {
				out := make(map[string][]string)
				for _, name := range s.Tables() {
					t, err := s.Table(name)
					if err != nil {
						return err
					}
					out[name] = t.Config().Columns()
				}
				return render(cmd.OutOrStdout(), out)
			})
		},
	}
}
