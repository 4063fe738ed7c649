package cli

import (
	"fmt"

	"github.com/BurntSushi/toml"
	"github.com/spf13/cobra"

	"github.com/kromer-network/kromer/internal/domain"
)

func init() {
	rootCmd.AddCommand(addressCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(versionCmd)

	addressCmd.Flags().String("prefix", "", "address prefix (default from config)")
}

// ─── address ────────────────────────────────────────────────────────────────

var addressCmd = &cobra.Command{
	Use:   "address PRIVATE_KEY",
	Short: "Print the v2 address of a private key",
	Args:  cobra.ExactArgs(1),
	RunE:  runAddress,
}

func runAddress(cmd *cobra.Command, args []string) error {
	prefix, _ := cmd.Flags().GetString("prefix")
	if prefix == "" {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		prefix = cfg.Ledger.AddressPrefix
	}
	fmt.Fprintln(cmd.OutOrStdout(), domain.DeriveAddress(args[0], prefix))
	return nil
}

// ─── config ─────────────────────────────────────────────────────────────────

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Print the effective configuration as TOML",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		return toml.NewEncoder(cmd.OutOrStdout()).Encode(cfg)
	},
}

// ─── version ────────────────────────────────────────────────────────────────

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "kromer %s\n", Version)
	},
}
