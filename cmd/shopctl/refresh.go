package main

import (
	"context"
	"time"

	"github.com/spf13/cobra"
)

var (
	refreshQueries []string
	refreshTimeout time.Duration
)

var refreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "Scrape a batch of queries and index everything found",
	Long: `refresh scrapes each query against every source, deduplicates the
results and hands them to the indexer. It waits for indexing to drain before
exiting. Without --query the configured default queries are used.`,
	Args: cobra.NoArgs,
	RunE: runRefresh,
}

func init() {
	refreshCmd.Flags().StringSliceVarP(&refreshQueries, "query", "q", nil, "query to scrape (repeatable)")
	refreshCmd.Flags().DurationVar(&refreshTimeout, "timeout", 10*time.Minute, "overall time limit")
}

func runRefresh(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), refreshTimeout)
	defer cancel()

	pipeline, err := buildPipeline(ctx)
	if err != nil {
		return err
	}

	summary, err := pipeline.Discovery.Refresh(ctx, refreshQueries)
	// Close drains the indexer so the summary reflects persisted listings
	pipeline.Close()
	if err != nil {
		return err
	}

	stats := pipeline.Indexer.Stats()
	return newPrinter(cmd.OutOrStdout(), jsonOutput).Refresh(summary, stats.Indexed)
}
