package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/shelf/internal/paths"
)

func newInitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Initialize configuration and the partition database",
		Long:  "Create the configuration directory with a default config.yaml, then create the partition database.",
		Args:  cobra.NoArgs,
		RunE:  runInit,
	}
}

func runInit(cmd *cobra.Command, _ []string) error {
	configDir, err := paths.ResolveConfigDir(flags.configDir)
	if err != nil {
		return fmt.Errorf("resolve config dir: %w", err)
	}
	cfg, err := resolveConfig()
	if err != nil {
		return err
	}
	configPath, err := writeConfigIfMissing(configDir, flags.dataDir)
	if err != nil {
		return err
	}

	s, err := openShelf(cmd.Context())
	if err != nil {
		return err
	}
	dbPath := s.Path()
	if err := s.Close(); err != nil {
		return fmt.Errorf("close partition: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, "shelf initialized")
	fmt.Fprintln(out, "  config:   ", configPath)
	fmt.Fprintln(out, "  partition:", cfg.PartitionName())
	fmt.Fprintln(out, "  database: ", dbPath)
	return nil
}
