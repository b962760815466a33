package main

import (
	"github.com/spf13/cobra"
)

var fileCmd = &cobra.Command{
	Use:   "file <path>",
	Short: "List the entities in one file",
	Long: `List every indexed entity located in a file, ordered by start line.
The path may be absolute or repo-relative.

Examples:
  locus file src/auth.py
  locus file docs/guide.md --format=human`,
	Args: cobra.ExactArgs(1),
	Run:  runFile,
}

func init() {
	rootCmd.AddCommand(fileCmd)
}

func runFile(cmd *cobra.Command, args []string) {
	logger := newLogger()
	root := mustRepoRoot()
	engine := mustLoadedEngine(root, logger)

	resp, err := engine.EntitiesInFile(newContext(), args[0])
	if err != nil {
		fail(err)
	}
	printResponse(resp)
}
