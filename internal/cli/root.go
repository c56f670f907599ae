// Package cli implements the mudd command line client. Every command talks
// to a running driver through its REST API.
package cli

import (
	"log/slog"
	"os"

	"github.com/me/mudd/internal/logging"
	"github.com/spf13/cobra"
)

var (
	flagServer    string
	flagDebug     bool
	flagLogLevel  string
	flagLogFormat string

	logger *slog.Logger
	client *Client
)

// defaultServer returns the default server URL, checking MUDD_SERVER env var first.
func defaultServer() string {
	if s := os.Getenv("MUDD_SERVER"); s != "" {
		return s
	}
	return "http://localhost:8668"
}

// NewRootCmd creates the root cobra command for the mudd CLI.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "mudd",
		Short: "mudd — persistent-object driver client",
		Long:  "mudd inspects and controls a running mudd driver: scripted objects, callouts, snapshots.",
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if flagDebug {
				flagLogLevel = "debug"
			}
			logger = logging.NewLogger(logging.ParseLevel(flagLogLevel), flagLogFormat)
			client = NewClient(flagServer, logger)
		},
		SilenceUsage: true,
	}

	root.PersistentFlags().StringVar(&flagServer, "server", defaultServer(), "driver URL (or MUDD_SERVER env)")
	root.PersistentFlags().BoolVar(&flagDebug, "debug", false, "Enable debug logging")
	root.PersistentFlags().StringVar(&flagLogLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	root.PersistentFlags().StringVar(&flagLogFormat, "log-format", "text", "Log format (text, json)")

	root.AddCommand(
		newStatusCmd(),
		newCalloutsCmd(),
		newScheduleCmd(),
		newCancelCmd(),
		newObjectsCmd(),
		newSnapshotCmd(),
	)

	return root
}
