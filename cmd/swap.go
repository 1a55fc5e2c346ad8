package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/briandowns/spinner"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"dust-swap/config"
	"dust-swap/pkg/allowance"
	"dust-swap/pkg/bridge"
	"dust-swap/pkg/chain"
	"dust-swap/pkg/history"
	"dust-swap/pkg/parser"
	"dust-swap/pkg/permit"
	"dust-swap/pkg/quote"
	"dust-swap/pkg/selection"
	"dust-swap/pkg/swap"
	"dust-swap/pkg/tokens"
	"dust-swap/pkg/types"
	"dust-swap/pkg/units"
)

var (
	toChain       string
	recipientAddr string
	noConfirm     bool
	noWait        bool
)

var swapCmd = &cobra.Command{
	Use:   "swap <amount|max> <token> [<amount|max> <token> ...] to <token>",
	Short: "Swap dust tokens and bridge the proceeds to another chain",
	Long: `Swap up to five tokens on the configured source chain into one output token
on the destination chain, in a single transaction.

IMPORTANT:
  - You MUST specify --to-chain and --recipient
  - Every input token needs a one-time Permit2 approval (see 'dust-swap approve')

Examples:
  dust-swap swap 10 LINK 5 UNI to USDC --to-chain base --recipient 0x123...
  dust-swap swap max DAI 0.5 0x5149...86CA to USDC --to-chain base --recipient 0x123...

  # Skip all confirmations
  dust-swap swap 10 LINK to USDC --to-chain base --recipient 0x123... --yes`,
	Args: cobra.MinimumNArgs(4),
	Run:  runSwap,
}

var quoteCmd = &cobra.Command{
	Use:   "quote <amount|max> <token> [<amount|max> <token> ...] to <token>",
	Short: "Preview a swap without submitting it",
	Long: `Quote a dust swap and show which tokens still need a Permit2 approval.

Examples:
  dust-swap quote 10 LINK 5 UNI to USDC --to-chain base --recipient 0x123...`,
	Args: cobra.MinimumNArgs(4),
	Run:  runQuote,
}

func init() {
	rootCmd.AddCommand(swapCmd)
	rootCmd.AddCommand(quoteCmd)

	for _, c := range []*cobra.Command{swapCmd, quoteCmd} {
		c.Flags().StringVar(&toChain, "to-chain", "", "Destination chain (REQUIRED)")
		c.Flags().StringVar(&recipientAddr, "recipient", "", "Recipient address on the destination chain (REQUIRED)")
	}
	swapCmd.Flags().BoolVarP(&noConfirm, "yes", "y", false, "Skip confirmation prompts")
	swapCmd.Flags().BoolVar(&noWait, "no-wait", false, "Do not wait for the transaction to be mined")
}

// swapSetup is everything a swap or quote needs once resolved
type swapSetup struct {
	env        *environment
	req        *types.SwapRequest
	client     *ethclient.Client
	transactor *chain.Transactor
	selection  *selection.Selection
	session    *swap.Session

	outputSymbol   string
	outputDecimals uint8
	symbols        map[common.Address]string
}

func commandContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt)
}

func prepareSwap(ctx context.Context, cmd *cobra.Command, args []string, yes bool) (*swapSetup, error) {
	env, err := loadEnv(cmd)
	if err != nil {
		return nil, err
	}

	req, err := parser.ParseSwapCommand(strings.Join(args, " "))
	if err != nil {
		return nil, err
	}
	req.SourceChain = env.cfg.Chain
	req.DestChain = strings.ToLower(toChain)
	req.Recipient = recipientAddr

	if err := parser.ValidateSwapRequest(req); err != nil {
		return nil, err
	}
	if !common.IsHexAddress(req.Recipient) {
		return nil, fmt.Errorf("invalid recipient address: %s", req.Recipient)
	}
	recipient := common.HexToAddress(req.Recipient)

	route, err := resolveRoute(env, req)
	if err != nil {
		return nil, err
	}

	client, err := env.dial(ctx)
	if err != nil {
		return nil, err
	}

	wallet, err := env.wallet()
	if err != nil {
		return nil, err
	}
	transactor := env.transactor(client, wallet)

	chainID, err := transactor.ChainID(ctx)
	if err != nil {
		return nil, err
	}

	catalog, err := env.catalog(client, wallet.Address())
	if err != nil {
		return nil, err
	}

	sel, symbols, err := buildSelection(ctx, catalog, req)
	if err != nil {
		return nil, err
	}

	// Quote into the output token when it trades on the source chain, otherwise stop at the via token
	quoteOutput, outputSymbol, outputDecimals := route.weth, "WETH", uint8(18)
	if _, ok := catalog.Lookup(req.DestToken); ok || common.IsHexAddress(req.DestToken) {
		if token, err := catalog.Resolve(ctx, req.DestToken); err == nil {
			quoteOutput, outputSymbol, outputDecimals = token.Address, token.Symbol, token.Decimals
		} else {
			env.logger.WithError(err).Debug("output token not readable on source chain, quoting in WETH")
		}
	}

	list, err := env.tokenList()
	if err != nil {
		return nil, err
	}
	destOutput, err := resolveDestToken(list[req.DestChain], req.DestToken, req.DestChain)
	if err != nil {
		return nil, err
	}

	uniswap := quote.NewUniswapQuoter(client, route.quoter)
	deps := swap.Deps{
		Estimator: quote.NewAggregator(uniswap, env.cfg.FeeTier, env.logger),
		Allowance: allowance.NewChecker(client, route.permit2),
		Approver:  allowance.NewApprover(transactor, route.permit2, env.logger),
		Permits:   permit.NewBuilder(route.permit2),
		Signer:    &promptSigner{wallet: wallet, autoConfirm: env.skipConfirm(yes), symbols: symbols},
		Bridge:    bridge.NewContract(route.dustTokens, transactor, env.logger),
	}
	params := swap.Params{
		ChainID:             chainID,
		ViaToken:            route.weth,
		QuoteOutputToken:    quoteOutput,
		SlippageBps:         env.cfg.SlippageBps,
		UniversalApp:        route.universalApp,
		TargetZRC20:         route.zrc20,
		Counterparty:        route.counterparty,
		DestOutputToken:     destOutput,
		Recipient:           recipient,
		EnforceMinAmountOut: env.cfg.EnforceMinAmountOut,
	}

	session, err := swap.NewSession(deps, params, sel, env.logger)
	if err != nil {
		return nil, err
	}

	return &swapSetup{
		env:            env,
		req:            req,
		client:         client,
		transactor:     transactor,
		selection:      sel,
		session:        session,
		outputSymbol:   outputSymbol,
		outputDecimals: outputDecimals,
		symbols:        symbols,
	}, nil
}

// route holds the deployed addresses of one source/destination pair
type route struct {
	dustTokens   common.Address
	weth         common.Address
	quoter       common.Address
	permit2      common.Address
	universalApp common.Address
	zrc20        common.Address
	counterparty common.Address
}

func resolveRoute(env *environment, req *types.SwapRequest) (*route, error) {
	addrs, err := env.addresses()
	if err != nil {
		return nil, err
	}

	r := &route{permit2: addrs.Permit2(req.SourceChain)}
	lookups := []struct {
		dst   *common.Address
		chain string
		typ   string
	}{
		{&r.dustTokens, req.SourceChain, config.TypeDustTokens},
		{&r.weth, req.SourceChain, config.TypeWETH},
		{&r.quoter, req.SourceChain, config.TypeQuoter},
		{&r.universalApp, config.ZetaChain, config.TypeUniversalApp},
		{&r.zrc20, req.DestChain, config.TypeZRC20},
		{&r.counterparty, req.DestChain, config.TypeDustTokens},
	}
	for _, l := range lookups {
		addr, err := addrs.Get(l.chain, l.typ)
		if err != nil {
			return nil, err
		}
		*l.dst = addr
	}
	return r, nil
}

func buildSelection(ctx context.Context, catalog *tokens.Catalog, req *types.SwapRequest) (*selection.Selection, map[common.Address]string, error) {
	sel := selection.New()
	symbols := make(map[common.Address]string)

	for _, leg := range req.Legs {
		token, err := catalog.Resolve(ctx, leg.Token)
		if err != nil {
			return nil, nil, err
		}
		if err := sel.Add(token); err != nil {
			return nil, nil, err
		}
		symbols[token.Address] = token.Symbol

		if leg.IsMax {
			if token.Balance == nil || token.Balance.Sign() == 0 {
				return nil, nil, fmt.Errorf("no %s balance to swap", token.Symbol)
			}
			if err := sel.ToggleMax(token.Address); err != nil {
				return nil, nil, err
			}
			continue
		}
		if err := sel.SetAmount(token.Address, leg.Amount); err != nil {
			return nil, nil, err
		}
	}

	swaps, err := sel.TokenSwaps()
	if err != nil {
		return nil, nil, err
	}
	for i, token := range sel.Tokens() {
		if token.Balance != nil && swaps[i].Amount.Cmp(token.Balance) > 0 {
			return nil, nil, fmt.Errorf("insufficient %s balance: have %s, want %s",
				token.Symbol, units.FromBaseUnits(token.Balance, token.Decimals), token.Amount)
		}
	}

	return sel, symbols, nil
}

// resolveDestToken finds the output token on the destination chain, by address or listed symbol
func resolveDestToken(entries []tokens.Entry, symbolOrAddress, destChain string) (common.Address, error) {
	if common.IsHexAddress(symbolOrAddress) {
		return common.HexToAddress(symbolOrAddress), nil
	}
	for _, e := range entries {
		if strings.EqualFold(e.Symbol, symbolOrAddress) {
			return common.HexToAddress(e.Address), nil
		}
	}
	return common.Address{}, fmt.Errorf("%w: %s on %s (pass the token address instead)", tokens.ErrUnknownToken, symbolOrAddress, destChain)
}

func runQuote(cmd *cobra.Command, args []string) {
	ctx, cancel := commandContext()
	defer cancel()

	setup, err := prepareSwap(ctx, cmd, args, false)
	if err != nil {
		printError(err)
		os.Exit(1)
	}
	defer setup.client.Close()

	preview, err := fetchPreview(ctx, setup)
	if err != nil {
		printError(err)
		os.Exit(1)
	}

	if setup.env.jsonOutput {
		printJSON(previewJSON(setup, preview))
		return
	}
	displayPreview(setup, preview)
}

func runSwap(cmd *cobra.Command, args []string) {
	ctx, cancel := commandContext()
	defer cancel()

	setup, err := prepareSwap(ctx, cmd, args, noConfirm)
	if err != nil {
		printError(err)
		os.Exit(1)
	}
	defer setup.client.Close()

	env := setup.env
	skipConfirm := env.skipConfirm(noConfirm)

	preview, err := fetchPreview(ctx, setup)
	if err != nil {
		printError(err)
		os.Exit(1)
	}
	if !env.jsonOutput {
		displayPreview(setup, preview)
	}

	missing, err := pendingApprovals(preview)
	if err != nil {
		printError(err)
		os.Exit(1)
	}

	// One-time Permit2 approvals
	for _, token := range missing {
		symbol := setup.symbols[token]
		if !skipConfirm && !confirm(fmt.Sprintf("%s is not enabled for Permit2. Send approval transaction?", symbol)) {
			fmt.Println("\nSwap cancelled.")
			os.Exit(0)
		}

		s := newSpinner(env, fmt.Sprintf(" Approving %s...", symbol))
		err := setup.session.Enable(ctx, token)
		s.Stop()
		if err != nil {
			printError(err)
			os.Exit(1)
		}
		if !env.jsonOutput {
			color.Green("✓ %s enabled", symbol)
		}
	}

	if !setup.session.CanConfirm() {
		printError(swap.ErrNotReady)
		os.Exit(1)
	}

	if !skipConfirm && !confirm("Proceed with swap?") {
		fmt.Println("\nSwap cancelled.")
		os.Exit(0)
	}

	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond)
	s.Suffix = " Submitting swap..."
	setup.session.OnStateChange = func(state swap.State) {
		if state == swap.StateSubmitting && !env.jsonOutput {
			s.Start()
		}
	}

	result, err := setup.session.Confirm(ctx)
	s.Stop()
	if err != nil {
		if errors.Is(err, swap.ErrRejected) {
			color.Red("\nSignature request rejected\n")
		} else {
			color.Red("\nSomething went wrong\n")
		}
		if env.verbose {
			printError(err)
		}
		os.Exit(1)
	}

	record := recordSwap(setup, result)

	if env.jsonOutput && noWait {
		printJSON(swapJSON(setup, result, record, nil))
		return
	}
	if !env.jsonOutput {
		color.Green("\n✓ Swap submitted!")
		fmt.Printf("  Transaction: %s\n", color.CyanString(result.Tx.Hash().Hex()))
	}

	if noWait {
		fmt.Println("\nYou can monitor the swap status using:")
		color.Cyan("  dust-swap status %s\n", result.Tx.Hash().Hex())
		return
	}

	s = newSpinner(env, " Waiting for confirmation...")
	receipt, waitErr := setup.transactor.Wait(ctx, result.Tx)
	s.Stop()

	if record != nil {
		updateRecord(env, record, waitErr)
	}

	if env.jsonOutput {
		printJSON(swapJSON(setup, result, record, waitErr))
		if waitErr != nil {
			os.Exit(1)
		}
		return
	}

	if waitErr != nil {
		color.Red("\nSomething went wrong\n")
		if env.verbose {
			printError(waitErr)
		}
		os.Exit(1)
	}

	printSuccess(fmt.Sprintf("✓ Swap confirmed in block %d. Funds are on their way to %s on %s.",
		receipt.BlockNumber.Uint64(), setup.req.Recipient, setup.req.DestChain))
}

// pendingApprovals lists the tokens still needing an approval, refusing when there is no quote to swap against
func pendingApprovals(preview *swap.Preview) ([]common.Address, error) {
	if preview.AmountOut() == nil {
		return nil, fmt.Errorf("amount out unavailable, the quote could not be computed. Try other tokens or amounts")
	}
	return preview.Missing, nil
}

func fetchPreview(ctx context.Context, setup *swapSetup) (*swap.Preview, error) {
	s := newSpinner(setup.env, " Fetching quote...")
	defer s.Stop()
	return setup.session.Preview(ctx)
}

// newSpinner starts a spinner unless the output is JSON
func newSpinner(env *environment, suffix string) *spinner.Spinner {
	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond)
	s.Suffix = suffix
	if !env.jsonOutput {
		s.Start()
	}
	return s
}

func recordSwap(setup *swapSetup, result *swap.Result) *history.Record {
	store, err := setup.env.history()
	if err != nil {
		setup.env.logger.WithError(err).Warn("failed to open history")
		return nil
	}
	defer store.Close()

	record := history.NewRecord(result.Tx.Hash().Hex(), setup.req.SourceChain, setup.req.DestChain)
	for i, ts := range result.Swaps {
		record.Tokens = append(record.Tokens, history.TokenAmount{
			Token:  ts.Token.Hex(),
			Symbol: result.SelectedFrom[i].Symbol,
			Amount: ts.Amount.String(),
		})
	}
	record.OutputToken = setup.req.DestToken
	record.Recipient = setup.req.Recipient
	if result.AmountOut != nil {
		record.EstimatedOutput = fmt.Sprintf("%s %s", units.FromBaseUnits(result.AmountOut, setup.outputDecimals), setup.outputSymbol)
	}

	if err := store.Create(record); err != nil {
		setup.env.logger.WithError(err).Warn("failed to record swap")
		return nil
	}
	return record
}

func updateRecord(env *environment, record *history.Record, waitErr error) {
	store, err := env.history()
	if err != nil {
		env.logger.WithError(err).Warn("failed to open history")
		return
	}
	defer store.Close()

	record.Status = history.StatusSuccess
	if waitErr != nil {
		record.Status = history.StatusFailed
		record.Error = waitErr.Error()
	}
	if err := store.Update(record); err != nil {
		env.logger.WithError(err).Warn("failed to update swap record")
	}
}

func displayPreview(setup *swapSetup, preview *swap.Preview) {
	fmt.Println("\n" + strings.Repeat("=", 60))
	color.Green("                     SWAP PREVIEW")
	fmt.Println(strings.Repeat("=", 60))

	fmt.Println()
	for _, token := range setup.selection.Tokens() {
		status := color.GreenString("enabled")
		if !preview.Enabled[token.Address] {
			status = color.YellowString("needs approval")
		}
		amount := token.Amount
		if token.IsMax {
			amount += " (max)"
		}
		fmt.Printf("  %-24s %-10s %s\n", amount, color.YellowString(token.Symbol), status)
	}

	fmt.Println()
	if amountOut := preview.AmountOut(); amountOut != nil {
		fmt.Printf("  You receive at least: %s %s\n",
			color.CyanString(units.FromBaseUnits(amountOut, setup.outputDecimals)), setup.outputSymbol)
	} else {
		fmt.Printf("  You receive at least: %s\n", color.HiBlackString("calculating..."))
		if setup.env.verbose && preview.QuoteErr != nil {
			fmt.Printf("  Quote error:          %v\n", preview.QuoteErr)
		}
	}
	fmt.Printf("  Slippage:             %.2f%%\n", float64(setup.env.cfg.SlippageBps)/100)
	fmt.Printf("  Source Chain:         %s\n", setup.req.SourceChain)
	fmt.Printf("  Destination Chain:    %s\n", setup.req.DestChain)
	fmt.Printf("  Output Token:         %s\n", setup.req.DestToken)
	fmt.Printf("  Recipient:            %s\n", setup.req.Recipient)

	fmt.Println("\n" + strings.Repeat("=", 60) + "\n")
}

func previewJSON(setup *swapSetup, preview *swap.Preview) map[string]interface{} {
	inputs := make([]map[string]interface{}, 0, setup.selection.Len())
	for _, token := range setup.selection.Tokens() {
		inputs = append(inputs, map[string]interface{}{
			"token":   token.Address.Hex(),
			"symbol":  token.Symbol,
			"amount":  token.Amount,
			"is_max":  token.IsMax,
			"enabled": preview.Enabled[token.Address],
		})
	}

	output := map[string]interface{}{
		"inputs":       inputs,
		"source_chain": setup.req.SourceChain,
		"dest_chain":   setup.req.DestChain,
		"dest_token":   setup.req.DestToken,
		"recipient":    setup.req.Recipient,
		"slippage_bps": setup.env.cfg.SlippageBps,
		"status":       "calculating",
	}
	if amountOut := preview.AmountOut(); amountOut != nil {
		output["min_amount_out"] = units.FromBaseUnits(amountOut, setup.outputDecimals)
		output["quote_token"] = setup.outputSymbol
		output["status"] = "quote_generated"
	}
	return output
}

func swapJSON(setup *swapSetup, result *swap.Result, record *history.Record, waitErr error) map[string]interface{} {
	output := map[string]interface{}{
		"tx_hash":      result.Tx.Hash().Hex(),
		"source_chain": setup.req.SourceChain,
		"dest_chain":   setup.req.DestChain,
		"dest_token":   setup.req.DestToken,
		"recipient":    setup.req.Recipient,
		"nonce":        result.Permit.Nonce.String(),
		"deadline":     result.Permit.Deadline.Int64(),
		"status":       string(history.StatusPending),
	}
	if record != nil {
		output["id"] = record.ID
		output["status"] = string(record.Status)
	}
	if waitErr != nil {
		output["error"] = waitErr.Error()
	}
	return output
}

func printJSON(v interface{}) {
	jsonData, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(jsonData))
}
