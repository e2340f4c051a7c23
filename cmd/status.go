package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/investron/investron/internal/app"
	"github.com/investron/investron/internal/config"
)

var statusCmd = &cobra.Command{
	Use:   "status TICKER",
	Short: "Show a ticker's index status",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runStatus(args[0])
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(ticker string) error {
	logger := newLogger()
	ticker = strings.ToUpper(ticker)

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	ctx := context.Background()
	a, err := app.Setup(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("initializing application: %w", err)
	}
	defer a.Close()

	report, err := a.Indexer.Status(ctx, ticker)
	if err != nil {
		return fmt.Errorf("reading status: %w", err)
	}

	fmt.Printf("%s: %s\n", report.Ticker, report.State)
	if report.Error != "" {
		fmt.Printf("  error: %s\n", report.Error)
	}
	if report.Progress != "" {
		fmt.Printf("  progress: %s\n", report.Progress)
	}
	if report.FilingsIndexed > 0 {
		fmt.Printf("  indexed: %d filings, %d chunks\n", report.FilingsIndexed, report.ChunksTotal)
	}
	if !report.LastFilingDate.IsZero() {
		fmt.Printf("  latest filing: %s\n", report.LastFilingDate.Format("2006-01-02"))
	}
	if !report.LastIndexedAt.IsZero() {
		fmt.Printf("  last indexed: %s\n", report.LastIndexedAt.Format("2006-01-02 15:04:05"))
	}
	for ft, n := range report.Filings {
		fmt.Printf("  %s: %d filings\n", ft, n)
	}
	return nil
}
