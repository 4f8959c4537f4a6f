package cmd

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"gitscribe/internal/app"
)

// serveWatchConfig enables hot reload of config.yaml while serving.
var serveWatchConfig bool

// newServeCmd creates the command that runs the backend until interrupted.
func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the editor backend",
		Long: `Starts the HTTP API, the cleanup scheduler, and (optionally) the
configuration watcher. The process runs until it receives SIGINT or
SIGTERM, then shuts down gracefully.`,
		Args: cobra.NoArgs,
		RunE: runServe,
	}
	cmd.Flags().BoolVar(&serveWatchConfig, "watch-config", false,
		"reload tunable settings when config.yaml changes")
	return cmd
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	services, err := app.Bootstrap(ctx, app.Options{
		ConfigPath:  rootConfigPath,
		LogLevel:    logLevel(),
		WatchConfig: serveWatchConfig,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize application: %w", err)
	}

	return services.Run(ctx)
}
