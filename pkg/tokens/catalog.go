package tokens

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"dust-swap/pkg/erc20"
	"dust-swap/pkg/types"
)

// ErrUnknownToken is returned when a symbol is not in the token list
var ErrUnknownToken = errors.New("unknown token")

// Entry is one token of the token list file
type Entry struct {
	Address  string `json:"address"`
	Symbol   string `json:"symbol"`
	Name     string `json:"name,omitempty"`
	Decimals *uint8 `json:"decimals,omitempty"`
}

// List maps a chain name to its tokens
type List map[string][]Entry

// LoadList reads a token list file of the form {"<chain>": [{address, symbol, name, decimals}]}
func LoadList(path string) (List, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read token list: %w", err)
	}

	var raw List
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse token list: %w", err)
	}

	list := make(List, len(raw))
	for chain, entries := range raw {
		for _, e := range entries {
			if !common.IsHexAddress(e.Address) {
				return nil, fmt.Errorf("token list %s: invalid address %q for %s", chain, e.Address, e.Symbol)
			}
		}
		list[strings.ToLower(chain)] = entries
	}
	return list, nil
}

// Catalog resolves tokens of one chain and reads the owner's balances
type Catalog struct {
	caller  erc20.Caller
	entries []Entry
	owner   common.Address
	logger  *logrus.Logger
}

// NewCatalog creates a catalog over entries. A zero owner skips balance reads.
func NewCatalog(caller erc20.Caller, entries []Entry, owner common.Address, logger *logrus.Logger) *Catalog {
	return &Catalog{
		caller:  caller,
		entries: entries,
		owner:   owner,
		logger:  logger,
	}
}

// Lookup finds a list entry by symbol (case-insensitive) or address
func (c *Catalog) Lookup(symbolOrAddress string) (Entry, bool) {
	isAddr := common.IsHexAddress(symbolOrAddress)
	for _, e := range c.entries {
		if isAddr && common.HexToAddress(e.Address) == common.HexToAddress(symbolOrAddress) {
			return e, true
		}
		if !isAddr && strings.EqualFold(e.Symbol, symbolOrAddress) {
			return e, true
		}
	}
	return Entry{}, false
}

// Resolve returns the token for a symbol or address with its on-chain details.
// Addresses missing from the list are read from the contract.
func (c *Catalog) Resolve(ctx context.Context, symbolOrAddress string) (types.Token, error) {
	entry, ok := c.Lookup(symbolOrAddress)
	if !ok {
		if !common.IsHexAddress(symbolOrAddress) {
			return types.Token{}, fmt.Errorf("%w: %s", ErrUnknownToken, symbolOrAddress)
		}
		entry = Entry{Address: symbolOrAddress}
	}
	return c.fetch(ctx, entry)
}

// All returns every listed token with its balance, in list order
func (c *Catalog) All(ctx context.Context) ([]types.Token, error) {
	out := make([]types.Token, len(c.entries))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(8)
	for i, entry := range c.entries {
		g.Go(func() error {
			token, err := c.fetch(gctx, entry)
			if err != nil {
				return err
			}
			out[i] = token
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// fetch fills whatever the entry lacks from the contract, in parallel
func (c *Catalog) fetch(ctx context.Context, entry Entry) (types.Token, error) {
	address := common.HexToAddress(entry.Address)
	erc := erc20.NewToken(c.caller, address)
	token := types.Token{
		Address: address,
		Symbol:  entry.Symbol,
		Name:    entry.Name,
	}

	g, gctx := errgroup.WithContext(ctx)
	if entry.Decimals != nil {
		token.Decimals = *entry.Decimals
	} else {
		g.Go(func() (err error) {
			token.Decimals, err = erc.Decimals(gctx)
			return err
		})
	}
	if token.Symbol == "" {
		g.Go(func() (err error) {
			token.Symbol, err = erc.Symbol(gctx)
			return err
		})
	}
	if token.Name == "" {
		g.Go(func() error {
			// name() is optional in ERC-20
			name, err := erc.Name(gctx)
			if err == nil {
				token.Name = name
			}
			return nil
		})
	}
	if c.owner != (common.Address{}) {
		g.Go(func() (err error) {
			token.Balance, err = erc.BalanceOf(gctx, c.owner)
			return err
		})
	}

	if err := g.Wait(); err != nil {
		return types.Token{}, fmt.Errorf("failed to load token %s: %w", address.Hex(), err)
	}

	if c.logger != nil {
		c.logger.WithFields(logrus.Fields{
			"token":    token.Symbol,
			"address":  address.Hex(),
			"decimals": token.Decimals,
		}).Debug("tokens: resolved")
	}
	return token, nil
}
