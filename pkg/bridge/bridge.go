package bridge

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/sirupsen/logrus"

	dtypes "dust-swap/pkg/types"
)

const evmDustTokensABI = `[{"inputs":[
{"components":[{"internalType":"address","name":"token","type":"address"},{"internalType":"uint256","name":"amount","type":"uint256"},{"internalType":"uint256","name":"minAmountOut","type":"uint256"}],"internalType":"struct EvmDustTokens.SwapInput[]","name":"swaps","type":"tuple[]"},
{"internalType":"address","name":"universalApp","type":"address"},
{"internalType":"bytes","name":"payload","type":"bytes"},
{"internalType":"uint256","name":"nonce","type":"uint256"},
{"internalType":"uint256","name":"deadline","type":"uint256"},
{"internalType":"bytes","name":"signature","type":"bytes"}
],"name":"SwapAndBridgeTokens","outputs":[],"stateMutability":"nonpayable","type":"function"}]`

// MethodName is the EvmDustTokens entry point
const MethodName = "SwapAndBridgeTokens"

// ABI is the parsed EvmDustTokens ABI
var ABI abi.ABI

func init() {
	parsed, err := abi.JSON(strings.NewReader(evmDustTokensABI))
	if err != nil {
		panic(fmt.Sprintf("failed to parse EvmDustTokens ABI: %v", err))
	}
	ABI = parsed
}

// SwapInput mirrors the on-chain struct, field names must match the ABI components
type SwapInput struct {
	Token        common.Address
	Amount       *big.Int
	MinAmountOut *big.Int
}

// Call is a fully assembled SwapAndBridgeTokens invocation
type Call struct {
	Swaps        []dtypes.TokenSwap
	UniversalApp common.Address
	Payload      []byte
	Nonce        *big.Int
	Deadline     *big.Int
	Signature    []byte
}

// Pack returns the calldata for the call
func (c Call) Pack() ([]byte, error) {
	if len(c.Swaps) == 0 {
		return nil, fmt.Errorf("no swaps to bridge")
	}
	if c.Nonce == nil || c.Deadline == nil {
		return nil, fmt.Errorf("nonce and deadline are required")
	}

	swaps := make([]SwapInput, len(c.Swaps))
	for i, s := range c.Swaps {
		minOut := s.MinAmountOut
		if minOut == nil {
			minOut = big.NewInt(0)
		}
		swaps[i] = SwapInput{
			Token:        s.Token,
			Amount:       s.Amount,
			MinAmountOut: minOut,
		}
	}

	data, err := ABI.Pack(MethodName, swaps, c.UniversalApp, c.Payload, c.Nonce, c.Deadline, c.Signature)
	if err != nil {
		return nil, fmt.Errorf("failed to pack %s: %w", MethodName, err)
	}
	return data, nil
}

// Sender broadcasts a signed transaction
type Sender interface {
	Send(ctx context.Context, to common.Address, data []byte) (*types.Transaction, error)
}

// Contract is the EvmDustTokens deployment on the source chain
type Contract struct {
	address common.Address
	sender  Sender
	logger  *logrus.Logger
}

// NewContract binds the EvmDustTokens contract at address
func NewContract(address common.Address, sender Sender, logger *logrus.Logger) *Contract {
	return &Contract{
		address: address,
		sender:  sender,
		logger:  logger,
	}
}

// Address returns the contract address, which is also the Permit2 spender
func (c *Contract) Address() common.Address {
	return c.address
}

// SwapAndBridge submits the call and returns the transaction without waiting
func (c *Contract) SwapAndBridge(ctx context.Context, call Call) (*types.Transaction, error) {
	data, err := call.Pack()
	if err != nil {
		return nil, err
	}

	tx, err := c.sender.Send(ctx, c.address, data)
	if err != nil {
		return nil, err
	}

	if c.logger != nil {
		c.logger.WithFields(logrus.Fields{
			"hash":  tx.Hash().Hex(),
			"swaps": len(call.Swaps),
		}).Info("bridge: swap submitted")
	}
	return tx, nil
}
