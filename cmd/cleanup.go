package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"gitscribe/internal/cleanup"
	"gitscribe/internal/config"
	"gitscribe/internal/workspace"
	"gitscribe/pkg/logging"
)

// cleanupAll wipes every session instead of only expired and invalid ones.
var cleanupAll bool

// newCleanupCmd creates the on-demand maintenance command. It runs the
// same sweeps the in-server scheduler runs, against the configured
// workspace root.
func newCleanupCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Sweep expired and invalid sessions",
		Args:  cobra.NoArgs,
		RunE:  runCleanup,
	}
	cmd.Flags().BoolVar(&cleanupAll, "all", false, "delete every session")
	return cmd
}

func runCleanup(cmd *cobra.Command, args []string) error {
	logging.Init(logLevel(), cmd.ErrOrStderr())

	cfg, err := config.Load(rootConfigPath)
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}
	registry, err := workspace.NewRegistry(cfg.Workspace.Root)
	if err != nil {
		return fmt.Errorf("opening workspace registry: %w", err)
	}

	if cleanupAll {
		removed := registry.CleanupAll()
		fmt.Fprintf(cmd.OutOrStdout(), "removed %d sessions\n", removed)
		return nil
	}

	scheduler := cleanup.NewScheduler(registry, nil, nil, cfg.Cleanup)
	status := scheduler.Sweep(cmd.Context())
	fmt.Fprintf(cmd.OutOrStdout(),
		"removed %d expired, %d invalid, %d evicted sessions (disk: %d of %d bytes)\n",
		status.ExpiredSessions, status.InvalidSessions, status.EvictedSessions,
		status.DiskUsageBytes, status.DiskBudgetBytes)
	return nil
}
