package main

import (
	"github.com/spf13/cobra"
)

var entityCmd = &cobra.Command{
	Use:   "entity <id>",
	Short: "Show one entity and its neighborhood",
	Long: `Look up one entity by id and show its location, docstring, container,
contained entities, and its dependencies and dependents grouped by
relationship kind.

Entity ids have the form kind:path:name:startLine, as returned by search.

Examples:
  locus entity "function:src/auth.py:login:42"
  locus entity "file:docs/guide.md:guide.md:1" --format=human`,
	Args: cobra.ExactArgs(1),
	Run:  runEntity,
}

func init() {
	rootCmd.AddCommand(entityCmd)
}

func runEntity(cmd *cobra.Command, args []string) {
	logger := newLogger()
	root := mustRepoRoot()
	engine := mustLoadedEngine(root, logger)

	details, err := engine.EntityDetails(newContext(), args[0])
	if err != nil {
		fail(err)
	}
	printResponse(details)
}
