package quote

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

// Uniswap V3 Quoter quoteExactInputSingle ABI
const quoterABI = `[{"inputs":[{"internalType":"address","name":"tokenIn","type":"address"},{"internalType":"address","name":"tokenOut","type":"address"},{"internalType":"uint24","name":"fee","type":"uint24"},{"internalType":"uint256","name":"amountIn","type":"uint256"},{"internalType":"uint160","name":"sqrtPriceLimitX96","type":"uint160"}],"name":"quoteExactInputSingle","outputs":[{"internalType":"uint256","name":"amountOut","type":"uint256"}],"stateMutability":"nonpayable","type":"function"}]`

// QuoterABI is the parsed Uniswap V3 Quoter ABI
var QuoterABI = mustParseABI(quoterABI)

// ContractCaller executes read-only contract calls
type ContractCaller interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// UniswapQuoter queries a Uniswap V3 Quoter deployment with eth_call
type UniswapQuoter struct {
	caller  ContractCaller
	address common.Address
}

// NewUniswapQuoter creates a quoter bound to the Quoter contract at address
func NewUniswapQuoter(caller ContractCaller, address common.Address) *UniswapQuoter {
	return &UniswapQuoter{
		caller:  caller,
		address: address,
	}
}

// QuoteExactInputSingle simulates swapping amountIn of tokenIn for tokenOut
// with no price limit. A missing pool surfaces as a reverted call.
func (q *UniswapQuoter) QuoteExactInputSingle(
	ctx context.Context,
	tokenIn, tokenOut common.Address,
	fee uint32,
	amountIn *big.Int,
) (*big.Int, error) {
	data, err := QuoterABI.Pack(
		"quoteExactInputSingle",
		tokenIn,
		tokenOut,
		new(big.Int).SetUint64(uint64(fee)),
		amountIn,
		big.NewInt(0),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to pack quoteExactInputSingle: %w", err)
	}

	result, err := q.caller.CallContract(ctx, ethereum.CallMsg{
		To:   &q.address,
		Data: data,
	}, nil)
	if err != nil {
		return nil, fmt.Errorf("quoter call reverted: %w", err)
	}

	values, err := QuoterABI.Unpack("quoteExactInputSingle", result)
	if err != nil {
		return nil, fmt.Errorf("failed to unpack quote: %w", err)
	}
	if len(values) == 0 {
		return nil, fmt.Errorf("empty quote response")
	}

	amountOut, ok := values[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("unexpected quote type %T", values[0])
	}

	return amountOut, nil
}

func mustParseABI(raw string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(raw))
	if err != nil {
		panic(fmt.Sprintf("invalid ABI: %v", err))
	}
	return parsed
}
