package main

import (
	"os"

	"locus/internal/logging"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		logger := logging.NewLogger(logging.Config{
			Format: logging.HumanFormat,
			Level:  logging.InfoLevel,
		})
		logger.Error("command failed", map[string]interface{}{
			"error": err.Error(),
		})
		os.Exit(1)
	}
}
