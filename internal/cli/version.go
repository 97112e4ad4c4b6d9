package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/shelf/internal/sqlite"
	"github.com/mesh-intelligence/shelf/pkg/shelf"
)

const modulePath = "github.com/mesh-intelligence/shelf"

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the shelf version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			fmt.Fprintf(cmd.OutOrStdout(), "shelf %s\nmodule: %s\nsqlite driver: %s (%s)\n",
				shelf.Version, modulePath, sqlite.DriverName(), sqlite.DriverType())
			return nil
		},
	}
}
