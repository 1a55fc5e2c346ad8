package quote

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

const bipsTotal = 10000

// ErrInvalidSlippage is returned for slippage outside [0, 10000)
var ErrInvalidSlippage = errors.New("slippage must be in [0, 10000) bps")

// Quoter simulates a single-pool exact-input swap
type Quoter interface {
	QuoteExactInputSingle(ctx context.Context, tokenIn, tokenOut common.Address, fee uint32, amountIn *big.Int) (*big.Int, error)
}

// Input is one token amount to be quoted, in smallest units
type Input struct {
	Token  common.Address
	Amount *big.Int
}

// Estimate is the result of aggregating all input quotes
type Estimate struct {
	PerToken  []*big.Int // Intermediate amount per input, in input order
	TotalVia  *big.Int
	RawOutput *big.Int
	MinOutput *big.Int // RawOutput minus slippage
}

// Aggregator sums per-token quotes through an intermediate asset
type Aggregator struct {
	quoter  Quoter
	feeTier uint32
	logger  *logrus.Logger
}

// NewAggregator creates an aggregator quoting every hop at feeTier
func NewAggregator(quoter Quoter, feeTier uint32, logger *logrus.Logger) *Aggregator {
	return &Aggregator{
		quoter:  quoter,
		feeTier: feeTier,
		logger:  logger,
	}
}

// EstimateOutput quotes each input into viaToken in parallel, sums the results
// and quotes the sum into outputToken. Any failed quote fails the estimate.
func (a *Aggregator) EstimateOutput(
	ctx context.Context,
	inputs []Input,
	viaToken, outputToken common.Address,
	slippageBps uint64,
) (*Estimate, error) {
	if slippageBps >= bipsTotal {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidSlippage, slippageBps)
	}
	if len(inputs) == 0 {
		return nil, fmt.Errorf("no tokens to quote")
	}

	perToken := make([]*big.Int, len(inputs))

	g, gctx := errgroup.WithContext(ctx)
	for i, input := range inputs {
		g.Go(func() error {
			if input.Token == viaToken {
				perToken[i] = new(big.Int).Set(input.Amount)
				return nil
			}

			amountOut, err := a.quoter.QuoteExactInputSingle(gctx, input.Token, viaToken, a.feeTier, input.Amount)
			if err != nil {
				return fmt.Errorf("failed to quote %s: %w", input.Token.Hex(), err)
			}
			perToken[i] = amountOut
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	total := new(big.Int)
	for _, amount := range perToken {
		total.Add(total, amount)
	}

	rawOutput := total
	if outputToken != viaToken {
		var err error
		rawOutput, err = a.quoter.QuoteExactInputSingle(ctx, viaToken, outputToken, a.feeTier, total)
		if err != nil {
			return nil, fmt.Errorf("failed to quote %s to %s: %w", viaToken.Hex(), outputToken.Hex(), err)
		}
	}

	estimate := &Estimate{
		PerToken:  perToken,
		TotalVia:  total,
		RawOutput: rawOutput,
		MinOutput: ApplySlippage(rawOutput, slippageBps),
	}

	if a.logger != nil {
		a.logger.WithFields(logrus.Fields{
			"inputs":    len(inputs),
			"totalVia":  total.String(),
			"rawOutput": rawOutput.String(),
			"minOutput": estimate.MinOutput.String(),
		}).Debug("quote: estimate ready")
	}

	return estimate, nil
}

// ApplySlippage returns floor(amount * (10000 - slippageBps) / 10000)
func ApplySlippage(amount *big.Int, slippageBps uint64) *big.Int {
	if amount == nil || amount.Sign() <= 0 {
		return big.NewInt(0)
	}
	if slippageBps >= bipsTotal {
		return big.NewInt(0)
	}

	multiplier := new(big.Int).SetUint64(bipsTotal - slippageBps)
	result := new(big.Int).Mul(amount, multiplier)
	return result.Div(result, big.NewInt(bipsTotal))
}
