package main

import (
	"github.com/spf13/cobra"

	"locus/internal/kg"
)

var (
	statsCircular bool
	statsTop      int
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show graph statistics",
	Long: `Summarize the knowledge graph: entity and relationship counts by kind,
file count, and the most connected entities. With --circular, also detect
dependency cycles among files and modules.

Examples:
  locus stats
  locus stats --circular
  locus stats --top=20 --format=human`,
	Args: cobra.NoArgs,
	Run:  runStats,
}

func init() {
	statsCmd.Flags().BoolVar(&statsCircular, "circular", false,
		"Detect circular dependencies")
	statsCmd.Flags().IntVar(&statsTop, "top", 10,
		"Size of the most-connected list (0 disables it)")
	rootCmd.AddCommand(statsCmd)
}

// StatsResponse pairs the graph summary with optional cycle detection.
// Circular is null unless --circular ran, and empty when the graph is clean.
type StatsResponse struct {
	Stats    kg.Stats   `json:"stats"`
	Circular [][]string `json:"circular"`
}

func runStats(cmd *cobra.Command, args []string) {
	logger := newLogger()
	root := mustRepoRoot()
	engine := mustLoadedEngine(root, logger)

	snap, err := engine.Snapshot()
	if err != nil {
		fail(err)
	}

	resp := &StatsResponse{Stats: snap.Graph.ComputeStats(statsTop)}
	if statsCircular {
		cycles := snap.Graph.CircularDependencies()
		if cycles == nil {
			cycles = [][]string{}
		}
		resp.Circular = cycles
	}
	printResponse(resp)
}
