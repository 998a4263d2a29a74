package main

import (
	"github.com/spf13/cobra"
)

// Global flags available to all subcommands.
var configFile string

// NewRootCmd creates the root command for the Duskhollow CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "duskhollow",
		Short: "Duskhollow - secure login gate for the game server",
		Long: `Duskhollow authenticates player connections: it performs the
key-exchange handshake, then handles login, registration, email
confirmation, and password reset over the encrypted channel.`,
	}

	cmd.PersistentFlags().StringVar(&configFile, "config", "", "config file path")

	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newMigrateCmd())

	return cmd
}
