package main

import (
	"os"
	"strings"

	"github.com/aretw0/callflow/internal/cli"
	"github.com/spf13/cobra"
)

var listCmd = &cobra.Command{
	Use:   "list [query]",
	Short: "List leads, grouped by company",
	Long:  `Lists the lead index. A query filters by name, company or location, ignoring case.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := loadApp(cmd.Context(), cmd)
		if err != nil {
			return err
		}
		defer app.Close()
		return cli.RunList(cmd.Context(), app, strings.Join(args, " "), os.Stdout)
	},
}

func init() {
	rootCmd.AddCommand(listCmd)
}
