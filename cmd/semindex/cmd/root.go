// Package cmd provides the CLI commands for semindex.
package cmd

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/aman-cerp/semindex/internal/logging"
	"github.com/aman-cerp/semindex/pkg/version"
)

var (
	debugMode      bool
	loggingCleanup func()
)

// NewRootCmd builds the root command: a thin dispatcher over index,
// query, config, doctor, sources, and mcp. It does not index or serve
// anything itself, unlike a zero-config assistant CLI — every operation
// here is explicit.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "semindex",
		Short: "Per-repository semantic code index and retrieval engine",
		Long: `semindex builds a per-repository semantic index of source code and
queries it by embedding similarity.

Each repository is indexed in isolation under a per-user base directory,
keyed by the hash of its root path. Indexing chunks and embeds changed
files only; querying embeds the search text once and scans the stored
vectors for the nearest chunks.`,
		Version:       version.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetVersionTemplate("semindex version {{.Version}}\n")

	root.PersistentFlags().BoolVar(&debugMode, "debug", false, "Enable debug logging to ~/.semindex/logs/")
	root.PersistentPreRunE = startLogging
	root.PersistentPostRunE = stopLogging

	root.AddCommand(newIndexCmd())
	root.AddCommand(newQueryCmd())
	root.AddCommand(newConfigCmd())
	root.AddCommand(newDoctorCmd())
	root.AddCommand(newSourcesCmd())
	root.AddCommand(newMCPCmd())
	root.AddCommand(newVersionCmd())

	return root
}

func startLogging(_ *cobra.Command, _ []string) error {
	if !debugMode {
		return nil
	}
	logger, cleanup, err := logging.Setup(logging.DebugConfig())
	if err != nil {
		return fmt.Errorf("failed to set up debug logging: %w", err)
	}
	loggingCleanup = cleanup
	slog.SetDefault(logger)
	slog.Info("debug logging enabled", slog.String("log_file", logging.DefaultLogPath()))
	return nil
}

func stopLogging(_ *cobra.Command, _ []string) error {
	if loggingCleanup != nil {
		loggingCleanup()
		loggingCleanup = nil
	}
	return nil
}

// Execute runs the root command and returns its error, for main to map to
// an exit code.
func Execute() error {
	return NewRootCmd().Execute()
}
