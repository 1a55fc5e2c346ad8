package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"dust-swap/pkg/history"
)

var historyLimit int

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List submitted swaps",
	Long: `List the swaps submitted from this machine, newest first.

Examples:
  dust-swap history
  dust-swap history --limit 5`,
	Args: cobra.NoArgs,
	Run:  runHistory,
}

func init() {
	rootCmd.AddCommand(historyCmd)

	historyCmd.Flags().IntVar(&historyLimit, "limit", 20, "Maximum number of swaps to show (0 for all)")
}

func runHistory(cmd *cobra.Command, args []string) {
	env, err := loadEnv(cmd)
	if err != nil {
		printError(err)
		os.Exit(1)
	}

	store, err := env.history()
	if err != nil {
		printError(err)
		os.Exit(1)
	}
	defer store.Close()

	records, err := store.List(historyLimit)
	if err != nil {
		printError(err)
		os.Exit(1)
	}

	if env.jsonOutput {
		if records == nil {
			records = []*history.Record{}
		}
		printJSON(records)
		return
	}
	displayHistory(records)
}

func displayHistory(records []*history.Record) {
	if len(records) == 0 {
		fmt.Println("\nNo swaps found.")
		return
	}

	fmt.Println("\n" + strings.Repeat("=", 90))
	color.Green("                                SWAP HISTORY")
	fmt.Println(strings.Repeat("=", 90))

	for _, r := range records {
		symbols := make([]string, 0, len(r.Tokens))
		for _, t := range r.Tokens {
			symbols = append(symbols, t.Symbol)
		}

		fmt.Printf("\n  %s  %s\n", r.CreatedAt.Local().Format("2006-01-02 15:04"), getColoredStatus(string(r.Status)))
		fmt.Printf("    %s -> %s on %s\n", color.YellowString(strings.Join(symbols, ", ")), color.YellowString(r.OutputToken), r.DestChain)
		if r.EstimatedOutput != "" {
			fmt.Printf("    Estimated: %s\n", r.EstimatedOutput)
		}
		fmt.Printf("    Tx:        %s\n", color.HiBlackString(r.TxHash))
		if r.Error != "" {
			fmt.Printf("    Error:     %s\n", color.RedString(r.Error))
		}
	}

	fmt.Println("\n" + strings.Repeat("=", 90))
	fmt.Printf("\nTotal: %d swaps\n\n", len(records))
}
