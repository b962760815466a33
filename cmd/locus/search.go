package main

import (
	"strings"

	"github.com/spf13/cobra"

	"locus/internal/query"
)

var (
	searchMode  string
	searchTopK  int
	searchKinds string
)

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search the knowledge graph",
	Long: `Search indexed entities.

Modes:
  text       BM25 over names, docstrings and file content
  graph      neighborhood expansion from fuzzy name anchors
  structure  path and name matching
  hybrid     weighted fusion of text and graph scores (default)

Examples:
  locus search "token refresh"
  locus search auth --mode=text --top-k=5
  locus search handler --kinds=function,method
  locus search billing --format=human`,
	Args: cobra.ExactArgs(1),
	Run:  runSearch,
}

func init() {
	searchCmd.Flags().StringVar(&searchMode, "mode", "hybrid",
		"Search mode (text, graph, structure, hybrid)")
	searchCmd.Flags().IntVar(&searchTopK, "top-k", 0,
		"Maximum results (0 uses the configured default)")
	searchCmd.Flags().StringVar(&searchKinds, "kinds", "",
		"Filter by entity kinds (comma-separated: file,class,function,...)")
	rootCmd.AddCommand(searchCmd)
}

func runSearch(cmd *cobra.Command, args []string) {
	logger := newLogger()
	root := mustRepoRoot()
	engine := mustLoadedEngine(root, logger)

	var kinds []string
	if searchKinds != "" {
		kinds = strings.Split(searchKinds, ",")
	}

	resp, err := engine.Search(newContext(), query.SearchOptions{
		Query: args[0],
		Mode:  searchMode,
		TopK:  searchTopK,
		Kinds: kinds,
	})
	if err != nil {
		fail(err)
	}
	printResponse(resp)
}
