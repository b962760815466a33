package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"locus/internal/watcher"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Watch the repository and keep the snapshot current",
	Long: `Watch the working tree and apply incremental updates to the snapshot as
files change. Builds the initial index first if the repository was never
indexed. Runs until interrupted.

Changed files are debounced and applied in batches; searches against the
repository always see a complete snapshot, never a half-applied update.

Examples:
  locus watch
  locus watch --log-level=debug`,
	Args: cobra.NoArgs,
	Run:  runWatch,
}

func init() {
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) {
	logger := newLogger()
	root := mustRepoRoot()
	engine := mustEngine(root, logger)

	if err := loadOrBuild(engine, logger); err != nil {
		fail(err)
	}

	cfg := mustLoadConfig(root)
	w, err := watcher.New(root, cfg, engine, logger)
	if err != nil {
		fail(err)
	}

	ctx, stop := signal.NotifyContext(newContext(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	fmt.Println("Watching for changes... (Ctrl+C to stop)")
	if err := w.Run(ctx); err != nil {
		fail(err)
	}
	fmt.Println("\nWatch stopped.")
}
