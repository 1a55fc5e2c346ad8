package cmd

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var configFile string

var rootCmd = &cobra.Command{
	Use:   "dust-swap",
	Short: "A CLI to consolidate dust tokens and bridge them through ZetaChain",
	Long: `dust-swap swaps up to five small ERC-20 balances through Uniswap V3 in one
transaction, authorized by a single Permit2 signature, and bridges the proceeds
to another chain through a ZetaChain Universal App.

Examples:
  dust-swap tokens
  dust-swap approve LINK UNI
  dust-swap quote 10 LINK 5 UNI to USDC --to-chain base --recipient 0x123...
  dust-swap swap 10 LINK max UNI to USDC --to-chain base --recipient 0x123...
  dust-swap status <tx-hash> --watch
  dust-swap history`,
	Version:       "0.1.0",
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Add global flags
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "Config file (default is $HOME/.dust-swap.yaml or ./.dust-swap.yaml)")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().BoolP("json", "j", false, "Output in JSON format")
}

func printError(err error) {
	fmt.Fprintf(os.Stderr, "\n%s %v\n\n", color.RedString("Error:"), err)
}

func printSuccess(message string) {
	fmt.Printf("\n%s\n\n", color.GreenString(message))
}
