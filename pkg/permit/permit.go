package permit

import (
	"crypto/rand"
	"fmt"
	"io"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"

	"dust-swap/pkg/types"
)

const (
	// ValidityWindow is how long a permit stays valid after construction
	ValidityWindow = 30 * time.Minute

	DomainName  = "Permit2"
	PrimaryType = "PermitBatchTransferFrom"
)

// NonceUpperBound is the exclusive upper bound of generated nonces (10^15)
var NonceUpperBound = new(big.Int).Exp(big.NewInt(10), big.NewInt(15), nil)

// EIP712Types are the Permit2 SignatureTransfer batch types.
// Permit2 uses name + chainId + verifyingContract (no version field).
var EIP712Types = apitypes.Types{
	"EIP712Domain": {
		{Name: "name", Type: "string"},
		{Name: "chainId", Type: "uint256"},
		{Name: "verifyingContract", Type: "address"},
	},
	"PermitBatchTransferFrom": {
		{Name: "permitted", Type: "TokenPermissions[]"},
		{Name: "spender", Type: "address"},
		{Name: "nonce", Type: "uint256"},
		{Name: "deadline", Type: "uint256"},
	},
	"TokenPermissions": {
		{Name: "token", Type: "address"},
		{Name: "amount", Type: "uint256"},
	},
}

// TokenPermission is one permitted token transfer
type TokenPermission struct {
	Token  common.Address
	Amount *big.Int
}

// Batch is a PermitBatchTransferFrom authorization
type Batch struct {
	Permitted []TokenPermission
	Spender   common.Address
	Nonce     *big.Int
	Deadline  *big.Int
}

// Permit is a batch together with the typed data the wallet signs
type Permit struct {
	Batch
	ChainID   *big.Int
	TypedData apitypes.TypedData
}

// Hash returns the EIP-712 digest of the permit
func (p *Permit) Hash() ([]byte, error) {
	hash, _, err := apitypes.TypedDataAndHash(p.TypedData)
	if err != nil {
		return nil, fmt.Errorf("failed to hash permit: %w", err)
	}
	return hash, nil
}

// Builder constructs Permit2 batch permits
type Builder struct {
	permit2 common.Address
	now     func() time.Time
	random  io.Reader
}

// Option customizes a Builder
type Option func(*Builder)

// WithClock overrides the time source used for deadlines
func WithClock(now func() time.Time) Option {
	return func(b *Builder) { b.now = now }
}

// WithRandom overrides the entropy source used for nonces
func WithRandom(r io.Reader) Option {
	return func(b *Builder) { b.random = r }
}

// NewBuilder creates a builder for the Permit2 deployment at permit2
func NewBuilder(permit2 common.Address, opts ...Option) *Builder {
	b := &Builder{
		permit2: permit2,
		now:     time.Now,
		random:  rand.Reader,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// NewNonce returns a uniformly random nonce in [0, 10^15)
func (b *Builder) NewNonce() (*big.Int, error) {
	nonce, err := rand.Int(b.random, NonceUpperBound)
	if err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}
	return nonce, nil
}

// Build creates the permit covering every swap's (token, amount), bound to spender.
// It does not sign.
func (b *Builder) Build(swaps []types.TokenSwap, spender common.Address, chainID *big.Int) (*Permit, error) {
	if len(swaps) == 0 {
		return nil, fmt.Errorf("permit requires at least one token")
	}
	if chainID == nil || chainID.Sign() <= 0 {
		return nil, fmt.Errorf("invalid chain id: %v", chainID)
	}

	nonce, err := b.NewNonce()
	if err != nil {
		return nil, err
	}
	deadline := big.NewInt(b.now().Add(ValidityWindow).Unix())

	batch := Batch{
		Permitted: make([]TokenPermission, len(swaps)),
		Spender:   spender,
		Nonce:     nonce,
		Deadline:  deadline,
	}
	for i, swap := range swaps {
		if swap.Amount == nil || swap.Amount.Sign() <= 0 {
			return nil, fmt.Errorf("invalid amount for token %s", swap.Token.Hex())
		}
		batch.Permitted[i] = TokenPermission{
			Token:  swap.Token,
			Amount: new(big.Int).Set(swap.Amount),
		}
	}

	return &Permit{
		Batch:     batch,
		ChainID:   new(big.Int).Set(chainID),
		TypedData: b.typedData(batch, chainID),
	}, nil
}

func (b *Builder) typedData(batch Batch, chainID *big.Int) apitypes.TypedData {
	permitted := make([]interface{}, len(batch.Permitted))
	for i, p := range batch.Permitted {
		permitted[i] = map[string]interface{}{
			"token":  p.Token.Hex(),
			"amount": p.Amount,
		}
	}

	return apitypes.TypedData{
		Types:       EIP712Types,
		PrimaryType: PrimaryType,
		Domain: apitypes.TypedDataDomain{
			Name:              DomainName,
			ChainId:           (*math.HexOrDecimal256)(new(big.Int).Set(chainID)),
			VerifyingContract: b.permit2.Hex(),
		},
		Message: apitypes.TypedDataMessage{
			"permitted": permitted,
			"spender":   batch.Spender.Hex(),
			"nonce":     batch.Nonce,
			"deadline":  batch.Deadline,
		},
	}
}
