// Package cmd holds the sidekickd command tree.
package cmd

import (
	"fmt"
	"os"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"
)

var (
	debug   bool
	dataDir string
)

var rootCmd = &cobra.Command{
	Use:   "sidekickd",
	Short: "Local companion daemon for the Sidekick browser assistant",
	Long: `sidekickd hosts the chat, speech and transcript engines behind a
localhost API. Browser clients create a session per tab, stream responses
over a WebSocket and let the daemon auto-save conversations on close.`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")
	rootCmd.PersistentFlags().StringVar(&dataDir, "data-dir", "", "data directory (default ~/.sidekick)")
}

// newLogger builds the process logger honoring --debug.
func newLogger() *log.Logger {
	logger := log.NewWithOptions(os.Stderr, log.Options{
		ReportTimestamp: true,
	})
	if debug {
		logger.SetLevel(log.DebugLevel)
	}
	return logger
}
