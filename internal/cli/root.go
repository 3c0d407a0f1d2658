// Package cli implements the coauthor command line.
package cli

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"coauthor/internal/config"
)

var Version = "dev"

// globals are the persistent flags shared by every subcommand.
type globals struct {
	cfg config.Server
}

func NewRootCmd() *cobra.Command {
	g := &globals{cfg: config.FromEnv()}

	root := &cobra.Command{
		Use:   "coauthor",
		Short: "Instrumented human/AI writing sessions",
		Long:  "Coauthor records every interaction of a writing session with an AI suggestion engine, stores the logs, and replays them deterministically.",
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			setupLogger(cmd, g.cfg.Verbose)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
		SilenceUsage: true,
	}

	pf := root.PersistentFlags()
	pf.StringVar(&g.cfg.DB, "db", g.cfg.DB, "SQLite path or postgres:// URL (env COAUTHOR_DB)")
	pf.StringVar(&g.cfg.URL, "url", g.cfg.URL, "read logs from a running server instead of the database (env COAUTHOR_URL)")
	pf.BoolVarP(&g.cfg.Verbose, "verbose", "v", false, "debug logging")

	root.AddCommand(
		newServeCmd(g),
		newReplayCmd(g),
		newFinalCmd(g),
		newLogCmd(g),
		newStatsCmd(g),
		newSessionsCmd(g),
		newSearchCmd(g),
	)

	root.Version = Version
	root.SetVersionTemplate(fmt.Sprintf("coauthor %s\n", Version))

	return root
}

func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

// setupLogger installs the default slog logger: text on stderr, WARN unless
// verbose.
func setupLogger(cmd *cobra.Command, verbose bool) {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	h := slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level})
	slog.SetDefault(slog.New(h))
}
