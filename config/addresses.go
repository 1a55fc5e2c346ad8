package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// Deployed contract and token types stored in the addresses file
const (
	TypeDustTokens   = "dustTokens"
	TypeUniversalApp = "universalApp"
	TypeWETH         = "weth"
	TypeQuoter       = "quoter"
	TypePermit2      = "permit2"
	TypeZRC20        = "zrc20"
)

// ZetaChain is the key under which Universal App deployments are recorded
const ZetaChain = "zetachain"

// CanonicalPermit2 is the Permit2 deployment shared by all EVM chains
var CanonicalPermit2 = common.HexToAddress("0x000000000022D473030F116dDEE9F6B43aC78BA3")

// ErrMissingAddress is returned when the addresses file has no entry for a chain/type pair
var ErrMissingAddress = errors.New("deployed address not configured")

// Addresses maps chain -> type -> deployed address
type Addresses map[string]map[string]string

// LoadAddresses reads the addresses JSON file
func LoadAddresses(path string) (Addresses, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read addresses file: %w", err)
	}

	var raw Addresses
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to unmarshal addresses file %s: %w", path, err)
	}

	// Chain and type lookups are case-insensitive on the chain only
	addrs := make(Addresses, len(raw))
	for chain, entries := range raw {
		addrs[strings.ToLower(chain)] = entries
	}

	return addrs, nil
}

// Get returns the deployed address of typ on chain
func (a Addresses) Get(chain, typ string) (common.Address, error) {
	entries, ok := a[strings.ToLower(chain)]
	if !ok {
		return common.Address{}, fmt.Errorf("%w: chain %q", ErrMissingAddress, chain)
	}

	value, ok := entries[typ]
	if !ok || value == "" {
		return common.Address{}, fmt.Errorf("%w: %s on %s", ErrMissingAddress, typ, chain)
	}

	if !common.IsHexAddress(value) {
		return common.Address{}, fmt.Errorf("invalid %s address on %s: %s", typ, chain, value)
	}

	return common.HexToAddress(value), nil
}

// Permit2 returns the configured Permit2 deployment for chain, falling back
// to the canonical address.
func (a Addresses) Permit2(chain string) common.Address {
	addr, err := a.Get(chain, TypePermit2)
	if err != nil {
		return CanonicalPermit2
	}
	return addr
}

// Chains lists the chains present in the file
func (a Addresses) Chains() []string {
	chains := make([]string, 0, len(a))
	for chain := range a {
		chains = append(chains, chain)
	}
	return chains
}
