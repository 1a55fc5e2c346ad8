package selection

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"dust-swap/pkg/types"
	"dust-swap/pkg/units"
)

var (
	ErrDuplicateToken = errors.New("token already selected")
	ErrSelectionFull  = fmt.Errorf("at most %d tokens can be selected", types.MaxSelectedTokens)
	ErrNotSelected    = errors.New("token not selected")
	ErrInvalidAmount  = errors.New("invalid amount")
	ErrUnknownBalance = errors.New("token balance unknown")
)

// Selection is the ordered set of tokens the user wants to swap
type Selection struct {
	tokens []*types.SelectedToken
}

// New creates an empty selection
func New() *Selection {
	return &Selection{}
}

// Add appends token with an empty amount
func (s *Selection) Add(token types.Token) error {
	if s.indexOf(token.Address) >= 0 {
		return fmt.Errorf("%w: %s", ErrDuplicateToken, token.Address.Hex())
	}
	if len(s.tokens) >= types.MaxSelectedTokens {
		return ErrSelectionFull
	}

	s.tokens = append(s.tokens, &types.SelectedToken{Token: token})
	return nil
}

// Remove drops the token at address
func (s *Selection) Remove(address common.Address) error {
	i := s.indexOf(address)
	if i < 0 {
		return fmt.Errorf("%w: %s", ErrNotSelected, address.Hex())
	}

	s.tokens = append(s.tokens[:i], s.tokens[i+1:]...)
	return nil
}

// SetAmount records a user-entered decimal amount and clears the max flag
func (s *Selection) SetAmount(address common.Address, amount string) error {
	i := s.indexOf(address)
	if i < 0 {
		return fmt.Errorf("%w: %s", ErrNotSelected, address.Hex())
	}

	token := s.tokens[i]
	if _, err := units.ToBaseUnits(amount, token.Decimals); err != nil {
		return fmt.Errorf("%w for %s: %v", ErrInvalidAmount, token.Symbol, err)
	}

	token.Amount = amount
	token.IsMax = false
	return nil
}

// ToggleMax switches the token between its full balance and an empty amount
func (s *Selection) ToggleMax(address common.Address) error {
	i := s.indexOf(address)
	if i < 0 {
		return fmt.Errorf("%w: %s", ErrNotSelected, address.Hex())
	}

	token := s.tokens[i]
	if token.IsMax {
		token.IsMax = false
		token.Amount = ""
		return nil
	}

	if token.Balance == nil {
		return fmt.Errorf("%w: %s", ErrUnknownBalance, token.Symbol)
	}

	token.IsMax = true
	token.Amount = units.FromBaseUnits(token.Balance, token.Decimals)
	return nil
}

// Reset clears the selection
func (s *Selection) Reset() {
	s.tokens = nil
}

// Len returns the number of selected tokens
func (s *Selection) Len() int {
	return len(s.tokens)
}

// Tokens returns a copy of the selected tokens in selection order
func (s *Selection) Tokens() []types.SelectedToken {
	out := make([]types.SelectedToken, len(s.tokens))
	for i, token := range s.tokens {
		out[i] = *token
	}
	return out
}

// TokenSwaps projects the selection into swap inputs, in selection order.
// Every amount must parse at the token's decimals and be greater than zero.
func (s *Selection) TokenSwaps() ([]types.TokenSwap, error) {
	if len(s.tokens) == 0 {
		return nil, fmt.Errorf("no tokens selected")
	}

	swaps := make([]types.TokenSwap, len(s.tokens))
	for i, token := range s.tokens {
		amount, err := units.ToBaseUnits(token.Amount, token.Decimals)
		if err != nil {
			return nil, fmt.Errorf("%w for %s: %v", ErrInvalidAmount, token.Symbol, err)
		}
		if amount.Sign() <= 0 {
			return nil, fmt.Errorf("%w for %s: amount must be greater than 0", ErrInvalidAmount, token.Symbol)
		}

		swaps[i] = types.TokenSwap{
			Token:        token.Address,
			Amount:       amount,
			MinAmountOut: big.NewInt(0),
		}
	}

	return swaps, nil
}

func (s *Selection) indexOf(address common.Address) int {
	for i, token := range s.tokens {
		if token.Address == address {
			return i
		}
	}
	return -1
}
