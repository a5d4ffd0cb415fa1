package main

import (
	"os"

	"github.com/aretw0/callflow/internal/cli"
	"github.com/spf13/cobra"
)

// graphCmd represents the graph command
var graphCmd = &cobra.Command{
	Use:   "graph <lead[/node]>",
	Short: "Export a lead's call flow as a Mermaid diagram",
	Long:  `Outputs a Mermaid diagram (graph TD) of the flow. A node in the argument is highlighted.`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := loadApp(cmd.Context(), cmd)
		if err != nil {
			return err
		}
		defer app.Close()
		return cli.RunGraph(cmd.Context(), app, args[0], os.Stdout)
	},
}

func init() {
	rootCmd.AddCommand(graphCmd)
}
