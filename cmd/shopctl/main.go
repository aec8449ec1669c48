// Command shopctl runs the discovery pipeline from the terminal.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/rs/zerolog"
	"github.com/shoplens/backend/config"
	"github.com/shoplens/backend/internal/app"
	"github.com/shoplens/backend/internal/logging"
	"github.com/spf13/cobra"
)

var (
	jsonOutput bool
	noColor    bool
	logLevel   string
)

var rootCmd = &cobra.Command{
	Use:   "shopctl",
	Short: "ShopLens discovery from the command line",
	Long: `shopctl runs the ShopLens discovery pipeline locally: it scrapes the
registered retail sources, ranks the listings it finds and can refresh the
similarity index with a batch of queries.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if noColor {
			color.NoColor = true
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "print raw JSON instead of formatted output")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "log level written to stderr")
	rootCmd.AddCommand(discoverCmd, sourcesCmd, refreshCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newLogger() zerolog.Logger {
	return logging.New(logging.Config{
		Level:  logLevel,
		Format: "console",
		Output: os.Stderr,
	})
}

// buildPipeline loads configuration and wires the full pipeline
func buildPipeline(ctx context.Context) (*app.App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	pipeline, err := app.Build(ctx, cfg, newLogger())
	if err != nil {
		return nil, fmt.Errorf("build pipeline: %w", err)
	}
	return pipeline, nil
}
