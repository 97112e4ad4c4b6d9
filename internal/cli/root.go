// Package cli implements the shelf command-line interface: register tables
// from CUE definitions, then write and query rows in a partition.
package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/shelf/pkg/types"
)

// Exit codes.
const (
	exitSuccess   = 0
	exitUserError = 1
	exitSysError  = 2
)

// rootFlags holds global flag values accessible to all subcommands.
type rootFlags struct {
	configDir string
	dataDir   string
	partition string
	user      string
	logLevel  string
	output    string
}

var flags rootFlags

// NewRootCmd creates the top-level "shelf" command with global flags and
// all subcommands registered.
func NewRootCmd() *cobra.Command {
	flags = rootFlags{}
	root := &cobra.Command{
		Use:   "shelf",
		Short: "Schema-driven tables on SQLite partitions",
		Long: "shelf registers tables from CUE schemas and stores validated rows in\n" +
			"per-partition SQLite files. Table registrations are remembered by the\n" +
			"partition, so later invocations only name the table.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := root.PersistentFlags()
	pf.StringVar(&flags.configDir, "config-dir", "", "configuration directory (default: platform config dir)")
	pf.StringVar(&flags.dataDir, "data-dir", "", "data directory (default: $(CWD)/.shelf-db)")
	pf.StringVarP(&flags.partition, "partition", "p", "", "partition name (default: config or \"default\")")
	pf.StringVar(&flags.user, "user", "", "user id rows are owned by")
	pf.StringVar(&flags.logLevel, "log-level", "", "debug, info, warn or error")
	pf.StringVarP(&flags.output, "output", "o", outputJSON, "output format: json or yaml")

	root.AddCommand(newVersionCmd())
	root.AddCommand(newInitCmd())
	root.AddCommand(newRegisterCmd())
	root.AddCommand(newTablesCmd())
	root.AddCommand(newInsertCmd())
	root.AddCommand(newUpsertCmd())
	root.AddCommand(newUpdateCmd())
	root.AddCommand(newDeleteCmd())
	root.AddCommand(newGetCmd())
	root.AddCommand(newCountCmd())
	root.AddCommand(newSelectCmd())
	root.AddCommand(newBatchCmd())
	root.AddCommand(newExportCmd())
	root.AddCommand(newImportCmd())

	return root
}

// Execute runs the root command and exits with the appropriate code.
func Execute() {
	root := NewRootCmd()
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "shelf:", err)
		os.Exit(exitCode(err))
	}
	os.Exit(exitSuccess)
}

// exitCode separates caller mistakes from storage and system failures.
func exitCode(err error) int {
	for _, target := range []error{
		types.ErrValidation,
		types.ErrUnregisteredTable,
		types.ErrInvalidOperation,
		types.ErrInvalidSchema,
		types.ErrMissingConflictField,
		types.ErrMissingWhereClause,
		types.ErrMissingRequiredField,
		types.ErrMissingID,
		types.ErrUnknownColumn,
		errUsage,
	} {
		if errors.Is(err, target) {
			return exitUserError
		}
	}
	return exitSysError
}

// errUsage marks malformed command-line input.
var errUsage = errors.New("usage")

func usageErrorf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", errUsage, fmt.Sprintf(format, args...))
}
