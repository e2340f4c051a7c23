// Package cmd provides the investron CLI.
//
// Commands:
//   - serve: HTTP API server (indexing + research chat over SSE)
//   - index: one-shot indexing of a ticker from the command line
//   - status: show a ticker's index status
//   - version: version information
package cmd

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/investron/investron/internal/log"
)

var rootCmd = &cobra.Command{
	Use:   "investron",
	Short: "SEC filing indexing and research service",
	Long: `Investron indexes SEC filings (10-K, 10-Q, 8-K) into a vector store
and answers research questions about them with retrieval-grounded
model responses.`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// newLogger builds the process logger. DEBUG in the environment lowers
// the level; INVESTRON_LOG_JSON switches to JSON output.
func newLogger() log.Logger {
	cfg := log.Config{Level: slog.LevelInfo}
	if os.Getenv("DEBUG") != "" {
		cfg.Level = slog.LevelDebug
	}
	if os.Getenv("INVESTRON_LOG_JSON") != "" {
		cfg.JSON = true
	}
	logger := log.New(cfg)
	slog.SetDefault(logger)
	return logger
}
