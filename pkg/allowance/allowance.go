package allowance

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"dust-swap/pkg/erc20"
)

// Sender submits a transaction and waits for it to be mined
type Sender interface {
	Send(ctx context.Context, to common.Address, data []byte) (*types.Transaction, error)
	Wait(ctx context.Context, tx *types.Transaction) (*types.Receipt, error)
}

// Checker reads ERC-20 allowances granted to Permit2
type Checker struct {
	caller  erc20.Caller
	permit2 common.Address
}

// NewChecker creates a checker for the Permit2 deployment at permit2
func NewChecker(caller erc20.Caller, permit2 common.Address) *Checker {
	return &Checker{
		caller:  caller,
		permit2: permit2,
	}
}

// Permit2 returns the spender being checked
func (c *Checker) Permit2() common.Address {
	return c.permit2
}

// HasPermit2Allowance reports whether owner allowed Permit2 to move at least amount of token
func (c *Checker) HasPermit2Allowance(ctx context.Context, owner, token common.Address, amount *big.Int) (bool, error) {
	allowance, err := erc20.NewToken(c.caller, token).Allowance(ctx, owner, c.permit2)
	if err != nil {
		return false, err
	}

	if amount == nil {
		amount = big.NewInt(0)
	}
	return allowance.Cmp(amount) >= 0, nil
}

// Requirement is a token amount that must be covered by a Permit2 allowance
type Requirement struct {
	Token  common.Address
	Amount *big.Int
}

// CheckAll checks every requirement in parallel. The result maps token to enabled.
// Every failed check is reported.
func (c *Checker) CheckAll(ctx context.Context, owner common.Address, reqs []Requirement) (map[common.Address]bool, error) {
	enabled := make([]bool, len(reqs))
	errs := make([]error, len(reqs))

	var g errgroup.Group
	for i, req := range reqs {
		g.Go(func() error {
			ok, err := c.HasPermit2Allowance(ctx, owner, req.Token, req.Amount)
			if err != nil {
				errs[i] = fmt.Errorf("allowance check for %s: %w", req.Token.Hex(), err)
				return nil
			}
			enabled[i] = ok
			return nil
		})
	}
	_ = g.Wait()

	if err := errors.Join(errs...); err != nil {
		return nil, err
	}

	out := make(map[common.Address]bool, len(reqs))
	for i, req := range reqs {
		out[req.Token] = enabled[i]
	}
	return out, nil
}

// Approver grants Permit2 an unlimited allowance
type Approver struct {
	sender  Sender
	permit2 common.Address
	logger  *logrus.Logger
}

// NewApprover creates an approver sending through sender
func NewApprover(sender Sender, permit2 common.Address, logger *logrus.Logger) *Approver {
	return &Approver{
		sender:  sender,
		permit2: permit2,
		logger:  logger,
	}
}

// Approve sends approve(permit2, 2^256-1) on token and waits for the receipt
func (a *Approver) Approve(ctx context.Context, token common.Address) (*types.Receipt, error) {
	data, err := erc20.PackApprove(a.permit2, erc20.MaxUint256)
	if err != nil {
		return nil, err
	}

	tx, err := a.sender.Send(ctx, token, data)
	if err != nil {
		return nil, fmt.Errorf("failed to approve %s: %w", token.Hex(), err)
	}

	if a.logger != nil {
		a.logger.WithFields(logrus.Fields{
			"token": token.Hex(),
			"hash":  tx.Hash().Hex(),
		}).Info("allowance: approval sent")
	}

	receipt, err := a.sender.Wait(ctx, tx)
	if err != nil {
		return nil, fmt.Errorf("approval of %s failed: %w", token.Hex(), err)
	}
	return receipt, nil
}
