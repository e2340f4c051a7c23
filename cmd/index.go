package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/investron/investron/internal/app"
	"github.com/investron/investron/internal/config"
	"github.com/investron/investron/internal/indexer"
)

var indexCmd = &cobra.Command{
	Use:   "index TICKER",
	Short: "Index a company's recent SEC filings",
	Long: `Fetches the company's recent 10-K, 10-Q and 8-K filings from EDGAR,
parses and chunks them, generates embeddings, and stores the result.
Blocks until the run completes.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runIndex(args[0])
	},
}

func init() {
	rootCmd.AddCommand(indexCmd)
}

func runIndex(ticker string) error {
	logger := newLogger()
	ticker = strings.ToUpper(ticker)

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.Setup(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("initializing application: %w", err)
	}
	defer a.Close()

	if err := a.Indexer.Start(ctx, ticker); err != nil {
		return fmt.Errorf("starting indexing: %w", err)
	}
	a.Indexer.Wait()

	report, err := a.Indexer.Status(ctx, ticker)
	if err != nil {
		return fmt.Errorf("reading final status: %w", err)
	}
	if report.State == indexer.StateError {
		return fmt.Errorf("indexing %s failed: %s", ticker, report.Error)
	}

	fmt.Printf("Indexed %s\n", ticker)
	for ft, n := range report.Filings {
		fmt.Printf("  %s: %d filings\n", ft, n)
	}
	return nil
}
