package main

import (
	"context"
	"os"

	"github.com/aretw0/callflow/internal/cli"
	"github.com/spf13/cobra"
)

var openCmd = &cobra.Command{
	Use:   "open [lead[/node]]",
	Short: "Open a lead's call flow interactively",
	Long: `Opens the call flow of a lead and drives it from the keyboard.
Without an argument the lead index is listed and a lead is asked for.
Type "help" inside the session for the commands.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		sigCtx := cli.NewSignalContext(context.Background())
		defer sigCtx.Cancel()

		app, err := loadApp(sigCtx, cmd)
		if err != nil {
			return err
		}
		defer app.Close()

		plain, _ := cmd.Flags().GetBool("plain")
		wrap, _ := cmd.Flags().GetInt("wrap")
		opts := cli.OpenOptions{Plain: plain, WordWrap: wrap}
		if len(args) > 0 {
			opts.Location = args[0]
		}
		return cli.RunOpen(sigCtx, app, opts, os.Stdin, os.Stdout)
	},
}

func init() {
	rootCmd.AddCommand(openCmd)
	openCmd.Flags().Bool("plain", false, "Disable styled output")
	openCmd.Flags().Int("wrap", 80, "Word wrap width for styled output")
}
