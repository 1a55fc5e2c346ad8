package cmd

import (
	"fmt"
	"math/big"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"dust-swap/pkg/allowance"
	"dust-swap/pkg/erc20"
)

var approveYes bool

var approveCmd = &cobra.Command{
	Use:   "approve <token> [<token> ...]",
	Short: "Enable tokens for Permit2",
	Long: `Send the one-time approve(Permit2, max) transaction for each token that does
not have an unlimited Permit2 allowance yet.

Examples:
  dust-swap approve LINK UNI
  dust-swap approve 0x514910771AF9Ca656af840dff83E8264EcF986CA --yes`,
	Args: cobra.MinimumNArgs(1),
	Run:  runApprove,
}

func init() {
	rootCmd.AddCommand(approveCmd)

	approveCmd.Flags().BoolVarP(&approveYes, "yes", "y", false, "Skip confirmation prompts")
}

func runApprove(cmd *cobra.Command, args []string) {
	ctx, cancel := commandContext()
	defer cancel()

	env, err := loadEnv(cmd)
	if err != nil {
		printError(err)
		os.Exit(1)
	}

	addrs, err := env.addresses()
	if err != nil {
		printError(err)
		os.Exit(1)
	}
	permit2 := addrs.Permit2(env.cfg.Chain)

	client, err := env.dial(ctx)
	if err != nil {
		printError(err)
		os.Exit(1)
	}
	defer client.Close()

	wallet, err := env.wallet()
	if err != nil {
		printError(err)
		os.Exit(1)
	}

	catalog, err := env.catalog(client, wallet.Address())
	if err != nil {
		printError(err)
		os.Exit(1)
	}

	checker := allowance.NewChecker(client, permit2)
	approver := allowance.NewApprover(env.transactor(client, wallet), permit2, env.logger)
	skipConfirm := env.skipConfirm(approveYes)

	// Half of the maximum still counts as unlimited, approvals decrease as Permit2 spends
	unlimited := new(big.Int).Rsh(erc20.MaxUint256, 1)

	results := make(map[string]string)
	for _, arg := range args {
		token, err := catalog.Resolve(ctx, arg)
		if err != nil {
			printError(err)
			os.Exit(1)
		}

		enabled, err := checker.HasPermit2Allowance(ctx, wallet.Address(), token.Address, unlimited)
		if err != nil {
			printError(err)
			os.Exit(1)
		}
		if enabled {
			results[token.Symbol] = "already_enabled"
			if !env.jsonOutput {
				color.Green("✓ %s is already enabled for Permit2", token.Symbol)
			}
			continue
		}

		if !skipConfirm && !confirm(fmt.Sprintf("Approve Permit2 to spend your %s?", token.Symbol)) {
			results[token.Symbol] = "skipped"
			continue
		}

		s := newSpinner(env, fmt.Sprintf(" Approving %s...", token.Symbol))
		receipt, err := approver.Approve(ctx, token.Address)
		s.Stop()
		if err != nil {
			printError(err)
			os.Exit(1)
		}

		results[token.Symbol] = receipt.TxHash.Hex()
		if !env.jsonOutput {
			color.Green("✓ %s enabled (tx %s)", token.Symbol, receipt.TxHash.Hex())
		}
	}

	if env.jsonOutput {
		printJSON(results)
	}
}
