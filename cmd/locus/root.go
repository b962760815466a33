package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	locuserrors "locus/internal/errors"
	"locus/internal/logging"
	"locus/internal/version"
)

var (
	repoFlag     string
	formatFlag   string
	logLevelFlag string
)

var rootCmd = &cobra.Command{
	Use:   "locus",
	Short: "locus - local code knowledge graph",
	Long: `locus indexes a repository into a knowledge graph of files, code entities
and their relationships, and answers search and navigation queries over it.
Everything runs locally: one SQLite snapshot under .locus, no network calls.`,
	Version: version.Version,
}

func init() {
	rootCmd.SetVersionTemplate("locus version {{.Version}}\n")
	rootCmd.PersistentFlags().StringVar(&repoFlag, "repo", "",
		"Repository root (default: current directory)")
	rootCmd.PersistentFlags().StringVar(&formatFlag, "format", "json",
		"Output format (json, human)")
	rootCmd.PersistentFlags().StringVar(&logLevelFlag, "log-level", "info",
		"Log level (debug, info, warn, error)")
}

// repoRoot resolves the repository root from --repo or the working directory.
func repoRoot() (string, error) {
	if repoFlag != "" {
		return filepath.Abs(repoFlag)
	}
	return os.Getwd()
}

// mustRepoRoot returns the repository root or exits.
func mustRepoRoot() string {
	root, err := repoRoot()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	return root
}

// newLogger builds the command logger. Logs go to stderr in the format
// matching --format, so JSON consumers get JSON logs too.
func newLogger() *logging.Logger {
	format := logging.HumanFormat
	if formatFlag == "json" {
		format = logging.JSONFormat
	}
	return logging.NewLogger(logging.Config{
		Format: format,
		Level:  logging.ParseLevel(logLevelFlag),
	})
}

// newContext creates the context for one command execution.
func newContext() context.Context {
	return context.Background()
}

// fail prints an error with its remediation hint, if any, and exits.
func fail(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	if hint := locuserrors.RemediationFor(locuserrors.CodeOf(err)); hint != "" {
		fmt.Fprintf(os.Stderr, "  %s\n", hint)
	}
	os.Exit(1)
}

// printResponse renders a response in the selected output format.
func printResponse(resp interface{}) {
	output, err := FormatResponse(resp, OutputFormat(formatFlag))
	if err != nil {
		fail(err)
	}
	fmt.Println(output)
}
