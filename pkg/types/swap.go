package types

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// MaxSelectedTokens caps how many tokens can be swapped in one transaction
const MaxSelectedTokens = 5

// Token describes an ERC-20 token on the source chain
type Token struct {
	Address  common.Address `json:"address"`
	Symbol   string         `json:"symbol"`
	Name     string         `json:"name"`
	Decimals uint8          `json:"decimals"`
	Balance  *big.Int       `json:"balance,omitempty"` // Signer balance in smallest units, nil if unknown
}

// SelectedToken is a token the user picked, with the amount they typed
type SelectedToken struct {
	Token
	Amount string `json:"amount"` // Decimal string as entered
	IsMax  bool   `json:"is_max"`
}

// TokenSwap is the on-chain swap input derived from a SelectedToken
type TokenSwap struct {
	Token        common.Address `json:"token"`
	Amount       *big.Int       `json:"amount"`
	MinAmountOut *big.Int       `json:"min_amount_out"`
}

// SwapRequest represents a user's swap command
type SwapRequest struct {
	Legs        []SwapLeg
	DestToken   string
	SourceChain string
	DestChain   string
	Recipient   string
}

// SwapLeg is one "<amount> <token>" pair of a swap command
type SwapLeg struct {
	Amount string
	Token  string
	IsMax  bool
}
