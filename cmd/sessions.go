package cmd

import (
	"fmt"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"gitscribe/internal/config"
	"gitscribe/internal/gitsync"
	"gitscribe/internal/workspace"
	"gitscribe/pkg/logging"
)

// newSessionsCmd creates the admin command listing the persisted session
// registry.
func newSessionsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sessions",
		Short: "List the persisted workspace sessions",
		Args:  cobra.NoArgs,
		RunE:  runSessions,
	}
}

func runSessions(cmd *cobra.Command, args []string) error {
	logging.Init(logLevel(), cmd.ErrOrStderr())

	cfg, err := config.Load(rootConfigPath)
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}
	registry, err := workspace.NewRegistry(cfg.Workspace.Root)
	if err != nil {
		return fmt.Errorf("opening workspace registry: %w", err)
	}

	sessions := registry.All()
	if len(sessions) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "no sessions")
		return nil
	}

	t := table.NewWriter()
	t.SetOutputMirror(cmd.OutOrStdout())
	t.AppendHeader(table.Row{"Session", "User", "Remote", "Created", "Last Access"})
	for id, sess := range sessions {
		t.AppendRow(table.Row{
			logging.TruncateID(id),
			sess.UserKey,
			gitsync.SanitizeURL(sess.RemoteURL),
			sess.CreatedAt.Format(time.RFC3339),
			sess.LastAccess.Format(time.RFC3339),
		})
	}
	t.Render()

	fmt.Fprintf(cmd.OutOrStdout(), "\n%d sessions, %d bytes on disk\n",
		registry.Count(), registry.TotalDiskUsage())
	return nil
}
