package main

import (
	"context"
	"fmt"
	"os"

	"github.com/aretw0/callflow/internal/cli"
	"github.com/aretw0/callflow/internal/config"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "callflow",
	Short: "callflow navigates and edits sales call scripts",
	Long: `callflow opens branching call scripts (one per lead), walks them node by node
with a breadcrumb trail, edits them in place and saves them back with
optimistic concurrency.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "Config file (default callflow.yaml if present)")
	rootCmd.PersistentFlags().Bool("debug", false, "Enable debug logging to stderr")
	rootCmd.PersistentFlags().String("collection", "", "Collection the leads live under")
	rootCmd.PersistentFlags().String("backend", "", "Store backend: memory, file, loam, redis, postgres, sqlite, s3, remote")
	rootCmd.PersistentFlags().String("dir", "", "Data directory for the file and loam backends")
	rootCmd.PersistentFlags().String("remote", "", "Base URL of a callflow server (remote backend)")
}

// loadConfig reads the config file and applies the persistent flags over it.
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return cfg, err
	}
	if v, _ := cmd.Flags().GetString("collection"); v != "" {
		cfg.Collection = v
	}
	if v, _ := cmd.Flags().GetString("backend"); v != "" {
		cfg.Store.Backend = v
	}
	if v, _ := cmd.Flags().GetString("dir"); v != "" {
		cfg.Store.Dir = v
	}
	if v, _ := cmd.Flags().GetString("remote"); v != "" {
		cfg.Store.Backend = config.BackendRemote
		cfg.Store.RemoteURL = v
	}
	return cfg, cfg.Validate()
}

// loadApp builds the App for a command. The caller closes it.
func loadApp(ctx context.Context, cmd *cobra.Command, opts ...cli.BackendOption) (*cli.App, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	debug, _ := cmd.Flags().GetBool("debug")
	logger, err := cli.NewLogger(cfg, debug)
	if err != nil {
		return nil, err
	}
	return cli.NewApp(ctx, cfg, logger, opts...)
}
