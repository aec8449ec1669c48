package main

import (
	"github.com/shoplens/backend/config"
	"github.com/shoplens/backend/internal/app"
	"github.com/spf13/cobra"
)

var sourcesCmd = &cobra.Command{
	Use:   "sources",
	Short: "List the registered retail sources",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		registry, err := app.LoadRegistry(cfg.Sources.File)
		if err != nil {
			return err
		}
		return newPrinter(cmd.OutOrStdout(), jsonOutput).Sources(registry.List())
	},
}
