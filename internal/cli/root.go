// Package cli implements the kromer command line.
package cli

import (
	"github.com/spf13/cobra"

	"github.com/kromer-network/kromer/internal/daemon"
)

// Version is set at build time with -ldflags "-X".
var Version = "dev"

var configPath string

var rootCmd = &cobra.Command{
	Use:   "kromer",
	Short: "Kromer currency server",
	Long: `Kromer is a Krist-compatible currency server: a ledger of wallets,
transactions and names served over a REST API and a websocket gateway.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "",
		"path to config.toml (default $KROMER_HOME/config.toml)")
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func loadConfig() (daemon.Config, error) {
	return daemon.LoadConfig(configPath)
}
