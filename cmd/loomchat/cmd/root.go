// Package cmd provides the CLI commands for the Loomchat server.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/loomchat/loomchat/internal/config"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "loomchat",
	Short: "Loomchat - LLM chat backend",
	Long: `Loomchat is a multi-model LLM chat backend.

It serves conversations against OpenRouter-compatible completion APIs
with account management, tiered rate limiting, image attachments and
per-model cost accounting.

Quick start:
  1. Create a config file: loomchat.yaml
  2. Run: loomchat start

Configuration:
  Config is loaded from loomchat.yaml in the current directory,
  $HOME/.loomchat/, or /etc/loomchat/.

  Environment variables can override config values with the LOOMCHAT_ prefix.
  Example: LOOMCHAT_PROVIDER_API_KEY=sk-or-...

Commands:
  start       Start the chat server
  migrate     Apply database migrations and exit
  gen-secret  Generate a signing key for auth.jwt_secret
  version     Print version information`,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./loomchat.yaml)")
}

func initConfig() {
	config.InitViper(cfgFile)
}
