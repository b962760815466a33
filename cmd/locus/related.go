package main

import (
	"github.com/spf13/cobra"
)

var (
	relatedRelation string
	relatedMax      int
)

var relatedCmd = &cobra.Command{
	Use:   "related <id>",
	Short: "List entities related to one entity",
	Long: `List the entities connected to one entity, filtered to a relation slice.

Relations:
  all           every connected entity (default)
  dependencies  outgoing non-containment edges
  dependents    incoming non-containment edges
  contained     entities this one contains
  container     the entity containing this one

Examples:
  locus related "file:docs/api.md:api.md:1"
  locus related "class:src/models.py:User:10" --relation=dependents --max=5`,
	Args: cobra.ExactArgs(1),
	Run:  runRelated,
}

func init() {
	relatedCmd.Flags().StringVar(&relatedRelation, "relation", "all",
		"Relation slice (all, dependencies, dependents, contained, container)")
	relatedCmd.Flags().IntVar(&relatedMax, "max", 0,
		"Maximum results (0 uses the configured default)")
	rootCmd.AddCommand(relatedCmd)
}

func runRelated(cmd *cobra.Command, args []string) {
	logger := newLogger()
	root := mustRepoRoot()
	engine := mustLoadedEngine(root, logger)

	resp, err := engine.RelatedEntities(newContext(), args[0], relatedRelation, relatedMax)
	if err != nil {
		fail(err)
	}
	printResponse(resp)
}
