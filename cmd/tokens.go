package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"dust-swap/pkg/types"
	"dust-swap/pkg/units"
)

var (
	showAll      bool
	filterSymbol string
)

var tokensCmd = &cobra.Command{
	Use:     "tokens",
	Aliases: []string{"list-tokens", "ls"},
	Short:   "List tokens of the source chain with your balances",
	Long: `List the tokens of the configured source chain from the token list, with the
balance of your account. Tokens with a zero balance are hidden unless --all is set.

Examples:
  dust-swap tokens
  dust-swap tokens --all
  dust-swap tokens --symbol USD`,
	Run: runListTokens,
}

func init() {
	rootCmd.AddCommand(tokensCmd)

	tokensCmd.Flags().BoolVar(&showAll, "all", false, "Include tokens with a zero balance")
	tokensCmd.Flags().StringVar(&filterSymbol, "symbol", "", "Filter by token symbol")
}

func runListTokens(cmd *cobra.Command, args []string) {
	ctx, cancel := commandContext()
	defer cancel()

	env, err := loadEnv(cmd)
	if err != nil {
		printError(err)
		os.Exit(1)
	}

	client, err := env.dial(ctx)
	if err != nil {
		printError(err)
		os.Exit(1)
	}
	defer client.Close()

	owner := common.Address{}
	if env.cfg.PrivateKey != "" || !env.jsonOutput {
		wallet, err := env.wallet()
		if err != nil {
			printError(err)
			os.Exit(1)
		}
		owner = wallet.Address()
	}

	catalog, err := env.catalog(client, owner)
	if err != nil {
		printError(err)
		os.Exit(1)
	}

	s := newSpinner(env, " Fetching token balances...")
	all, err := catalog.All(ctx)
	s.Stop()
	if err != nil {
		printError(err)
		os.Exit(1)
	}

	// Apply filters
	filtered := make([]types.Token, 0, len(all))
	for _, token := range all {
		if filterSymbol != "" && !strings.Contains(strings.ToUpper(token.Symbol), strings.ToUpper(filterSymbol)) {
			continue
		}
		if !showAll && token.Balance != nil && token.Balance.Sign() == 0 {
			continue
		}
		filtered = append(filtered, token)
	}

	// Output
	if env.jsonOutput {
		printJSON(filtered)
	} else {
		displayTokens(env.cfg.Chain, filtered)
	}
}

func displayTokens(chainName string, tokens []types.Token) {
	if len(tokens) == 0 {
		fmt.Println("\nNo tokens found matching the criteria.")
		return
	}

	fmt.Println("\n" + strings.Repeat("=", 90))
	color.Green("                            %s TOKENS", strings.ToUpper(chainName))
	fmt.Println(strings.Repeat("=", 90))
	fmt.Println()

	for _, token := range tokens {
		balance := "-"
		if token.Balance != nil {
			balance = units.FromBaseUnits(token.Balance, token.Decimals)
		}

		fmt.Printf("  %-10s  %24s  %2d decimals  %s\n",
			color.YellowString(token.Symbol),
			balance,
			token.Decimals,
			color.HiBlackString(token.Address.Hex()))
	}

	fmt.Println("\n" + strings.Repeat("=", 90))
	fmt.Printf("\nTotal: %d tokens\n\n", len(tokens))
}
