package erc20

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

// Minimal ERC-20 ABI: metadata, balances, allowances and approve
const erc20ABI = `[
{"constant":true,"inputs":[],"name":"name","outputs":[{"name":"","type":"string"}],"type":"function"},
{"constant":true,"inputs":[],"name":"symbol","outputs":[{"name":"","type":"string"}],"type":"function"},
{"constant":true,"inputs":[],"name":"decimals","outputs":[{"name":"","type":"uint8"}],"type":"function"},
{"constant":true,"inputs":[{"name":"_owner","type":"address"}],"name":"balanceOf","outputs":[{"name":"balance","type":"uint256"}],"type":"function"},
{"constant":true,"inputs":[{"name":"_owner","type":"address"},{"name":"_spender","type":"address"}],"name":"allowance","outputs":[{"name":"","type":"uint256"}],"type":"function"},
{"constant":false,"inputs":[{"name":"_spender","type":"address"},{"name":"_value","type":"uint256"}],"name":"approve","outputs":[{"name":"","type":"bool"}],"type":"function"}
]`

// ABI is the parsed ERC-20 ABI
var ABI abi.ABI

func init() {
	parsed, err := abi.JSON(strings.NewReader(erc20ABI))
	if err != nil {
		panic(fmt.Sprintf("failed to parse ERC20 ABI: %v", err))
	}
	ABI = parsed
}

// MaxUint256 is the unlimited allowance value
var MaxUint256 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))

// Caller executes read-only contract calls
type Caller interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// Token is a read-only view of an ERC-20 contract
type Token struct {
	caller  Caller
	address common.Address
}

// NewToken binds the ERC-20 contract at address
func NewToken(caller Caller, address common.Address) *Token {
	return &Token{
		caller:  caller,
		address: address,
	}
}

// Address returns the token contract address
func (t *Token) Address() common.Address {
	return t.address
}

// Name returns the token name
func (t *Token) Name(ctx context.Context) (string, error) {
	var name string
	if err := t.call(ctx, &name, "name"); err != nil {
		return "", err
	}
	return name, nil
}

// Symbol returns the token symbol
func (t *Token) Symbol(ctx context.Context) (string, error) {
	var symbol string
	if err := t.call(ctx, &symbol, "symbol"); err != nil {
		return "", err
	}
	return symbol, nil
}

// Decimals returns the token decimals
func (t *Token) Decimals(ctx context.Context) (uint8, error) {
	var decimals uint8
	if err := t.call(ctx, &decimals, "decimals"); err != nil {
		return 0, err
	}
	return decimals, nil
}

// BalanceOf returns the balance of account
func (t *Token) BalanceOf(ctx context.Context, account common.Address) (*big.Int, error) {
	var balance *big.Int
	if err := t.call(ctx, &balance, "balanceOf", account); err != nil {
		return nil, err
	}
	return balance, nil
}

// Allowance returns how much spender may transfer on behalf of owner
func (t *Token) Allowance(ctx context.Context, owner, spender common.Address) (*big.Int, error) {
	var allowance *big.Int
	if err := t.call(ctx, &allowance, "allowance", owner, spender); err != nil {
		return nil, err
	}
	return allowance, nil
}

// PackApprove returns the calldata of approve(spender, amount)
func PackApprove(spender common.Address, amount *big.Int) ([]byte, error) {
	data, err := ABI.Pack("approve", spender, amount)
	if err != nil {
		return nil, fmt.Errorf("failed to pack approve data: %w", err)
	}
	return data, nil
}

func (t *Token) call(ctx context.Context, out interface{}, method string, args ...interface{}) error {
	data, err := ABI.Pack(method, args...)
	if err != nil {
		return fmt.Errorf("failed to pack %s data: %w", method, err)
	}

	result, err := t.caller.CallContract(ctx, ethereum.CallMsg{
		To:   &t.address,
		Data: data,
	}, nil)
	if err != nil {
		return fmt.Errorf("failed to call %s on %s: %w", method, t.address.Hex(), err)
	}

	if err := ABI.UnpackIntoInterface(out, method, result); err != nil {
		return fmt.Errorf("failed to unpack %s result: %w", method, err)
	}

	return nil
}
