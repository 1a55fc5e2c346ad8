package selection

import (
	"fmt"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dust-swap/pkg/types"
)

func token(n int, symbol string, decimals uint8) types.Token {
	return types.Token{
		Address:  common.BigToAddress(big.NewInt(int64(n))),
		Symbol:   symbol,
		Name:     symbol + " token",
		Decimals: decimals,
	}
}

func TestSelection_TokenSwapsScenario(t *testing.T) {
	s := New()
	a := token(1, "A", 18)
	b := token(2, "B", 6)

	require.NoError(t, s.Add(a))
	require.NoError(t, s.Add(b))
	require.NoError(t, s.SetAmount(a.Address, "10"))
	require.NoError(t, s.SetAmount(b.Address, "5"))

	swaps, err := s.TokenSwaps()
	require.NoError(t, err)
	require.Len(t, swaps, 2)

	expectedA, _ := new(big.Int).SetString("10000000000000000000", 10)
	assert.Equal(t, a.Address, swaps[0].Token)
	assert.Equal(t, 0, swaps[0].Amount.Cmp(expectedA))
	assert.Equal(t, b.Address, swaps[1].Token)
	assert.Equal(t, int64(5_000_000), swaps[1].Amount.Int64())
	assert.Equal(t, 0, swaps[1].MinAmountOut.Sign())
}

func TestSelection_Duplicate(t *testing.T) {
	s := New()
	require.NoError(t, s.Add(token(1, "A", 18)))

	err := s.Add(token(1, "A", 18))
	assert.ErrorIs(t, err, ErrDuplicateToken)
	assert.Equal(t, 1, s.Len())
}

func TestSelection_Cap(t *testing.T) {
	s := New()
	for i := 1; i <= types.MaxSelectedTokens; i++ {
		require.NoError(t, s.Add(token(i, fmt.Sprintf("T%d", i), 18)))
	}

	err := s.Add(token(99, "X", 18))
	assert.ErrorIs(t, err, ErrSelectionFull)
	assert.Equal(t, types.MaxSelectedTokens, s.Len())

	// removing frees a slot
	require.NoError(t, s.Remove(token(3, "T3", 18).Address))
	require.NoError(t, s.Add(token(99, "X", 18)))

	tokens := s.Tokens()
	assert.Equal(t, "X", tokens[len(tokens)-1].Symbol)
}

func TestSelection_RemoveUnknown(t *testing.T) {
	s := New()
	assert.ErrorIs(t, s.Remove(common.HexToAddress("0x01")), ErrNotSelected)
	assert.ErrorIs(t, s.SetAmount(common.HexToAddress("0x01"), "1"), ErrNotSelected)
	assert.ErrorIs(t, s.ToggleMax(common.HexToAddress("0x01")), ErrNotSelected)
}

func TestSelection_InvalidAmounts(t *testing.T) {
	s := New()
	usdc := token(1, "USDC", 6)
	require.NoError(t, s.Add(usdc))

	assert.ErrorIs(t, s.SetAmount(usdc.Address, "abc"), ErrInvalidAmount)
	assert.ErrorIs(t, s.SetAmount(usdc.Address, "0.0000001"), ErrInvalidAmount)

	// empty amount
	_, err := s.TokenSwaps()
	assert.ErrorIs(t, err, ErrInvalidAmount)

	// zero amount
	require.NoError(t, s.SetAmount(usdc.Address, "0"))
	_, err = s.TokenSwaps()
	assert.ErrorIs(t, err, ErrInvalidAmount)
}

func TestSelection_ToggleMax(t *testing.T) {
	s := New()
	dai := token(1, "DAI", 18)
	dai.Balance, _ = new(big.Int).SetString("1500000000000000000", 10)
	noBalance := token(2, "NOBAL", 18)

	require.NoError(t, s.Add(dai))
	require.NoError(t, s.Add(noBalance))

	require.NoError(t, s.ToggleMax(dai.Address))
	tokens := s.Tokens()
	assert.True(t, tokens[0].IsMax)
	assert.Equal(t, "1.5", tokens[0].Amount)

	// editing the amount clears max
	require.NoError(t, s.SetAmount(dai.Address, "1"))
	assert.False(t, s.Tokens()[0].IsMax)

	require.NoError(t, s.ToggleMax(dai.Address))
	require.NoError(t, s.ToggleMax(dai.Address))
	assert.False(t, s.Tokens()[0].IsMax)
	assert.Equal(t, "", s.Tokens()[0].Amount)

	assert.ErrorIs(t, s.ToggleMax(noBalance.Address), ErrUnknownBalance)
}

func TestSelection_Reset(t *testing.T) {
	s := New()
	require.NoError(t, s.Add(token(1, "A", 18)))
	s.Reset()
	assert.Equal(t, 0, s.Len())

	_, err := s.TokenSwaps()
	assert.Error(t, err)
}
