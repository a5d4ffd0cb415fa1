package main

import (
	"fmt"
	"os"

	"github.com/aretw0/callflow/internal/cli"
	"github.com/aretw0/callflow/internal/gate"
	"github.com/spf13/cobra"
)

var unlockCmd = &cobra.Command{
	Use:   "unlock",
	Short: "Pass the PIN gate and optionally store the write credential",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		creds := cli.Credentials(cfg)

		p := cli.NewPrompter(os.Stdin, os.Stdout)
		if err := cli.EnsureUnlocked(gate.New(cfg.GateHash, creds), p); err != nil {
			return err
		}
		fmt.Println("Unlocked.")

		if store, _ := cmd.Flags().GetBool("credential"); store {
			token, err := p.ReadSecret("Write credential: ")
			if err != nil {
				return err
			}
			if err := creds.SetCredential(token); err != nil {
				return err
			}
			fmt.Println("Credential stored.")
		}
		return nil
	},
}

var lockCmd = &cobra.Command{
	Use:   "lock",
	Short: "Forget the gate flag and the stored write credential",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		creds := cli.Credentials(cfg)
		if err := gate.New(cfg.GateHash, creds).Lock(); err != nil {
			return err
		}
		if err := creds.ClearCredential(); err != nil {
			return err
		}
		fmt.Println("Locked.")
		return nil
	},
}

var hashCmd = &cobra.Command{
	Use:   "hash",
	Short: "Print a bcrypt hash of a secret for gate_hash or write_token_hashes",
	RunE: func(cmd *cobra.Command, args []string) error {
		p := cli.NewPrompter(os.Stdin, os.Stderr)
		secret, err := p.ReadSecret("Secret: ")
		if err != nil {
			return err
		}
		h, err := gate.HashBcrypt(secret)
		if err != nil {
			return err
		}
		fmt.Println(h)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(unlockCmd, lockCmd, hashCmd)
	unlockCmd.Flags().Bool("credential", false, "Also ask for and store the write credential")
}
