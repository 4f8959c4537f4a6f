package cmd

import (
	"os"

	"github.com/spf13/cobra"

	"gitscribe/pkg/logging"
)

// Exit codes for CLI commands.
const (
	ExitCodeSuccess = 0
	ExitCodeError   = 1
)

// rootConfigPath specifies the configuration directory. When empty, the
// current directory is used.
var rootConfigPath string

// rootDebug enables verbose logging across the application.
var rootDebug bool

// rootCmd represents the base command for the gitscribe application.
// It is the entry point when the application is called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "gitscribe",
	Short: "Git-backed backend for the browser markdown editor",
	Long: `gitscribe serves the HTTP API behind the browser markdown editor:
per-user workspace sessions, git synchronization against a hosting
provider, and GitHub device-flow authentication.`,
	// SilenceUsage prevents Cobra from printing the usage message on errors
	// that are handled by the application.
	SilenceUsage: true,
}

// SetVersion sets the version for the root command. Called from the main
// package to inject the build version.
func SetVersion(v string) {
	rootCmd.Version = v
}

// logLevel maps the debug flag onto the logging level.
func logLevel() logging.LogLevel {
	if rootDebug {
		return logging.LevelDebug
	}
	return logging.LevelInfo
}

// Execute is the main entry point for the CLI application.
func Execute() {
	rootCmd.SetVersionTemplate(`{{printf "gitscribe version %s\n" .Version}}`)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(ExitCodeError)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&rootConfigPath, "config-path", "",
		"directory containing config.yaml (default: current directory)")
	rootCmd.PersistentFlags().BoolVar(&rootDebug, "debug", false,
		"enable debug logging")

	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newSessionsCmd())
	rootCmd.AddCommand(newLoginCmd())
	rootCmd.AddCommand(newCleanupCmd())
}
