package main

import (
	"github.com/spf13/cobra"

	locuserrors "locus/internal/errors"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show snapshot and index state",
	Long: `Report the repository's index state: detected project, stored snapshot,
freshness against the current configuration, and query cache counters.
A repository that was never indexed reports that, not an error.

Examples:
  locus status
  locus status --format=human`,
	Args: cobra.NoArgs,
	Run:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) {
	logger := newLogger()
	root := mustRepoRoot()
	engine := mustEngine(root, logger)

	// Load if a snapshot exists so the report reflects a usable engine;
	// a missing snapshot is part of the status, not a failure.
	if err := engine.Load(); err != nil && !locuserrors.Is(err, locuserrors.SnapshotMissing) {
		fail(err)
	}

	status, err := engine.Status(newContext())
	if err != nil {
		fail(err)
	}
	printResponse(status)
}
