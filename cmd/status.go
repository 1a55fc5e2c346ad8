package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"dust-swap/pkg/chain"
	"dust-swap/pkg/history"
)

var (
	watchStatus   bool
	watchInterval int
)

var statusCmd = &cobra.Command{
	Use:   "status <tx-hash|record-id>",
	Short: "Check the status of a swap",
	Long: `Check the status of a submitted swap by transaction hash or history record id.
The swap history is updated with the result.

Examples:
  dust-swap status 0x1234...abcd
  dust-swap status 0x1234...abcd --watch
  dust-swap status 0x1234...abcd --watch --interval 10`,
	Args: cobra.ExactArgs(1),
	Run:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)

	statusCmd.Flags().BoolVarP(&watchStatus, "watch", "w", false, "Watch status updates until the transaction is mined")
	statusCmd.Flags().IntVar(&watchInterval, "interval", 5, "Polling interval in seconds (when watching)")
}

func runStatus(cmd *cobra.Command, args []string) {
	ctx, cancel := commandContext()
	defer cancel()

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

	// Accept a record id as well as a hash
	record, err := store.Get(args[0])
	if err != nil && !errors.Is(err, history.ErrNotFound) {
		printError(err)
		os.Exit(1)
	}

	hashHex := args[0]
	if record != nil {
		hashHex = record.TxHash
	}
	if !isTxHash(hashHex) {
		printError(fmt.Errorf("invalid transaction hash: %s", hashHex))
		os.Exit(1)
	}
	hash := common.HexToHash(hashHex)

	client, err := env.dial(ctx)
	if err != nil {
		printError(err)
		os.Exit(1)
	}
	defer client.Close()

	if watchStatus {
		if env.jsonOutput {
			fmt.Println(`{"error": "watch mode not supported with JSON output"}`)
			os.Exit(1)
		}
		watchSwapStatus(ctx, env, client, store, record, hash)
		return
	}

	s := newSpinner(env, " Checking swap status...")
	status, err := chain.GetTxStatus(ctx, client, hash)
	s.Stop()
	if err != nil {
		printError(err)
		os.Exit(1)
	}
	syncRecord(env, store, record, status)

	if env.jsonOutput {
		printJSON(statusJSON(status, record))
	} else {
		displayStatus(status, record)
	}
}

func watchSwapStatus(ctx context.Context, env *environment, backend chain.Backend, store history.Store, record *history.Record, hash common.Hash) {
	fmt.Printf("\nWatching swap status (Transaction: %s)\n", color.CyanString(hash.Hex()))
	fmt.Printf("Checking every %d seconds. Press Ctrl+C to stop.\n\n", watchInterval)

	ticker := time.NewTicker(time.Duration(watchInterval) * time.Second)
	defer ticker.Stop()

	for {
		status, err := chain.GetTxStatus(ctx, backend, hash)
		if err != nil {
			color.Red("Error: %v", err)
		} else {
			syncRecord(env, store, record, status)
			displayStatus(status, record)
			if status.Found && !status.Pending {
				return
			}
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// syncRecord stores a mined result on the matching history record
func syncRecord(env *environment, store history.Store, record *history.Record, status *chain.TxStatus) {
	if record == nil || !status.Found || status.Pending {
		return
	}

	newStatus := history.StatusFailed
	if status.Success {
		newStatus = history.StatusSuccess
	}
	if record.Status == newStatus {
		return
	}

	record.Status = newStatus
	if newStatus == history.StatusFailed {
		record.Error = "transaction reverted"
	}
	if err := store.Update(record); err != nil {
		env.logger.WithError(err).Warn("failed to update swap record")
	}
}

func isTxHash(s string) bool {
	s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	if len(s) != 2*common.HashLength {
		return false
	}
	for _, c := range s {
		if !strings.ContainsRune("0123456789abcdefABCDEF", c) {
			return false
		}
	}
	return true
}

func statusLabel(status *chain.TxStatus) string {
	switch {
	case !status.Found:
		return "NOT_FOUND"
	case status.Pending:
		return "PENDING"
	case status.Success:
		return "SUCCESS"
	default:
		return "FAILED"
	}
}

func statusJSON(status *chain.TxStatus, record *history.Record) map[string]interface{} {
	output := map[string]interface{}{
		"tx_hash":    status.Hash.Hex(),
		"status":     statusLabel(status),
		"checked_at": status.CheckedAt,
	}
	if status.Found && !status.Pending {
		output["block_number"] = status.BlockNumber
		output["gas_used"] = status.GasUsed
	}
	if record != nil {
		output["id"] = record.ID
		output["dest_chain"] = record.DestChain
		output["output_token"] = record.OutputToken
		output["recipient"] = record.Recipient
	}
	return output
}

func displayStatus(status *chain.TxStatus, record *history.Record) {
	fmt.Println("\n" + strings.Repeat("=", 70))
	color.Green("                        SWAP STATUS")
	fmt.Println(strings.Repeat("=", 70))

	fmt.Printf("\n  Transaction:     %s\n", color.CyanString(status.Hash.Hex()))
	fmt.Printf("  Status:          %s\n", getColoredStatus(statusLabel(status)))
	fmt.Printf("  Last Checked:    %s\n", status.CheckedAt.Format("2006-01-02 15:04:05"))

	if status.Found && !status.Pending {
		fmt.Printf("  Block:           %d\n", status.BlockNumber)
		fmt.Printf("  Gas Used:        %d\n", status.GasUsed)
	}

	if record != nil {
		for _, token := range record.Tokens {
			fmt.Printf("  Input:           %s %s\n", token.Amount, color.YellowString(token.Symbol))
		}
		fmt.Printf("  Output:          %s on %s\n", color.YellowString(record.OutputToken), record.DestChain)
		if record.EstimatedOutput != "" {
			fmt.Printf("  Estimated:       %s\n", record.EstimatedOutput)
		}
		fmt.Printf("  Recipient:       %s\n", record.Recipient)
	}

	fmt.Println("\n" + strings.Repeat("=", 70) + "\n")
}

func getColoredStatus(status string) string {
	status = strings.ToUpper(status)

	switch status {
	case "SUCCESS":
		return color.GreenString(status)
	case "PENDING":
		return color.YellowString(status)
	case "FAILED":
		return color.RedString(status)
	case "NOT_FOUND":
		return color.MagentaString(status)
	default:
		return status
	}
}
