package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var indexForce bool

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Build the knowledge graph and search indices",
	Long: `Scan the repository, parse every supported file, build the knowledge
graph with its text index, and persist the snapshot under .locus.

A fresh snapshot (same configuration, recent build) is left alone unless
--force is given.

Examples:
  locus index
  locus index --force`,
	Args: cobra.NoArgs,
	Run:  runIndex,
}

func init() {
	indexCmd.Flags().BoolVar(&indexForce, "force", false, "Rebuild even if the snapshot is fresh")
	rootCmd.AddCommand(indexCmd)
}

func runIndex(cmd *cobra.Command, args []string) {
	logger := newLogger()
	root := mustRepoRoot()
	engine := mustEngine(root, logger)
	ctx := newContext()

	if !indexForce {
		if status, err := engine.Status(ctx); err == nil && status.Fresh {
			fmt.Println("Index is current. Use --force to rebuild.")
			return
		}
	}

	report, err := engine.Rebuild(ctx)
	if err != nil {
		fail(err)
	}
	printResponse(report)
}
