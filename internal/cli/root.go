package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	configPath string
	logLevel   string
)

// NewRootCommand creates the root command for the CLI
func NewRootCommand(version string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "eve-arbitrage",
		Short: "EVE Online inter-region market arbitrage scanner",
		Long: `eve-arbitrage keeps a cache of the best buy and sell prices in a set of
market regions and ranks items that can be bought in one region and sold
in another for a profit after broker fees, sales tax and hauling.

Examples:
  eve-arbitrage scan
  eve-arbitrage serve --interval 10m
  eve-arbitrage top --source "The Forge" --min-margin 15 --limit 20
  eve-arbitrage price Tritanium
  eve-arbitrage history --limit 10`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
	}

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "",
		"Path to config file (default: ./config.yaml if present)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "",
		"Override logging.level (debug, info, warn, error)")

	rootCmd.AddCommand(newScanCommand())
	rootCmd.AddCommand(newServeCommand(version))
	rootCmd.AddCommand(newTopCommand())
	rootCmd.AddCommand(newStatusCommand())
	rootCmd.AddCommand(newPriceCommand())
	rootCmd.AddCommand(newHistoryCommand())

	return rootCmd
}

// Execute runs the root command
func Execute(version string) {
	rootCmd := NewRootCommand(version)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
