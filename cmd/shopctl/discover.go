package main

import (
	"context"
	"strings"
	"time"

	"github.com/shoplens/backend/internal/domain"
	"github.com/spf13/cobra"
)

var (
	discoverMax     int
	discoverOffset  int
	discoverTimeout time.Duration
)

var discoverCmd = &cobra.Command{
	Use:   "discover <query>",
	Short: "Find and rank listings for a free-text query",
	Example: `  shopctl discover "men's slim jeans under $50"
  shopctl discover -n 10 --json wireless earbuds`,
	Args: cobra.MinimumNArgs(1),
	RunE: runDiscover,
}

func init() {
	discoverCmd.Flags().IntVarP(&discoverMax, "max", "n", 0, "maximum number of listings (default from config)")
	discoverCmd.Flags().IntVar(&discoverOffset, "offset", 0, "number of ranked listings to skip")
	discoverCmd.Flags().DurationVar(&discoverTimeout, "timeout", 2*time.Minute, "overall time limit")
}

func runDiscover(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), discoverTimeout)
	defer cancel()

	pipeline, err := buildPipeline(ctx)
	if err != nil {
		return err
	}
	defer pipeline.Close()

	result, err := pipeline.Discovery.Discover(ctx, domain.DiscoverRequest{
		Query:      strings.Join(args, " "),
		MaxResults: discoverMax,
		Offset:     discoverOffset,
	})
	if err != nil {
		return err
	}

	return newPrinter(cmd.OutOrStdout(), jsonOutput).Result(result)
}
