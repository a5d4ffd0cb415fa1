package main

import (
	"os"

	"github.com/aretw0/callflow/internal/cli"
	"github.com/spf13/cobra"
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Write a demo lead and rebuild the index",
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := loadApp(cmd.Context(), cmd)
		if err != nil {
			return err
		}
		defer app.Close()
		return cli.RunSeed(cmd.Context(), app, os.Stdout)
	},
}

var reindexCmd = &cobra.Command{
	Use:   "reindex",
	Short: "Rebuild the lead index from the lead documents",
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := loadApp(cmd.Context(), cmd)
		if err != nil {
			return err
		}
		defer app.Close()
		return cli.RunReindex(cmd.Context(), app, os.Stdout)
	},
}

func init() {
	rootCmd.AddCommand(seedCmd, reindexCmd)
}
