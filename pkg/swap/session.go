package swap

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"dust-swap/pkg/allowance"
	"dust-swap/pkg/bridge"
	"dust-swap/pkg/payload"
	"dust-swap/pkg/permit"
	"dust-swap/pkg/quote"
	"dust-swap/pkg/selection"
	"dust-swap/pkg/types"
)

// State of a swap session
type State string

const (
	StateIdle              State = "idle"
	StateQuoting           State = "quoting"
	StateAwaitingSignature State = "awaiting-permit-signature"
	StateSubmitting        State = "submitting"
	StateSuccess           State = "success"
	StateError             State = "error"
)

var (
	ErrNotReady = errors.New("swap is not ready to confirm")
	ErrBusy     = errors.New("a swap is already being confirmed")
	ErrRejected = errors.New("signature request rejected")
	ErrSubmit   = errors.New("swap submission failed")
)

// Estimator quotes the selection into the output token
type Estimator interface {
	EstimateOutput(ctx context.Context, inputs []quote.Input, viaToken, outputToken common.Address, slippageBps uint64) (*quote.Estimate, error)
}

// AllowanceChecker reports which tokens Permit2 may already move
type AllowanceChecker interface {
	CheckAll(ctx context.Context, owner common.Address, reqs []allowance.Requirement) (map[common.Address]bool, error)
}

// Approver sends the one-time Permit2 approval for a token
type Approver interface {
	Approve(ctx context.Context, token common.Address) (*ethtypes.Receipt, error)
}

// PermitBuilder builds the batch permit to be signed
type PermitBuilder interface {
	Build(swaps []types.TokenSwap, spender common.Address, chainID *big.Int) (*permit.Permit, error)
}

// Signer produces EIP-712 signatures for the swapping account
type Signer interface {
	Address() common.Address
	SignTypedData(ctx context.Context, typedData apitypes.TypedData) ([]byte, error)
}

// Bridge submits SwapAndBridgeTokens
type Bridge interface {
	Address() common.Address
	SwapAndBridge(ctx context.Context, call bridge.Call) (*ethtypes.Transaction, error)
}

// Deps are the collaborators of a session
type Deps struct {
	Estimator Estimator
	Allowance AllowanceChecker
	Approver  Approver
	Permits   PermitBuilder
	Signer    Signer
	Bridge    Bridge
}

// Params fix the route of a session
type Params struct {
	ChainID *big.Int

	// Quoting, on the source chain
	ViaToken         common.Address
	QuoteOutputToken common.Address
	SlippageBps      uint64

	// Bridging
	UniversalApp    common.Address // Destination identifier on ZetaChain
	TargetZRC20     common.Address // ZRC-20 of the destination chain asset
	Counterparty    common.Address // Receiving contract on the destination chain
	DestOutputToken common.Address
	Recipient       common.Address

	// EnforceMinAmountOut sets each swap's minimum to its slippage-adjusted quote
	EnforceMinAmountOut bool
}

func (p Params) validate() error {
	if p.ChainID == nil || p.ChainID.Sign() <= 0 {
		return fmt.Errorf("invalid chain id")
	}
	if p.SlippageBps >= 10000 {
		return fmt.Errorf("%w: got %d", quote.ErrInvalidSlippage, p.SlippageBps)
	}
	if p.Recipient == (common.Address{}) {
		return fmt.Errorf("recipient is required")
	}
	if p.UniversalApp == (common.Address{}) {
		return fmt.Errorf("universal app address is required")
	}
	return nil
}

// Preview is the quoting view of the selection
type Preview struct {
	Estimate *quote.Estimate // nil while calculating
	QuoteErr error
	Enabled  map[common.Address]bool
	Missing  []common.Address
}

// AmountOut returns the minimum output, nil while calculating
func (p *Preview) AmountOut() *big.Int {
	if p.Estimate == nil {
		return nil
	}
	return p.Estimate.MinOutput
}

// Result is a submitted swap
type Result struct {
	Tx           *ethtypes.Transaction
	Swaps        []types.TokenSwap
	Permit       *permit.Permit
	Payload      []byte
	AmountOut    *big.Int
	SelectedFrom []types.SelectedToken
}

// Session drives one selection through quoting, signing and submission
type Session struct {
	deps      Deps
	params    Params
	selection *selection.Selection
	logger    *logrus.Logger

	// OnStateChange, when set, observes every transition. It runs with the
	// session lock held and must not call back into the session.
	OnStateChange func(State)

	mu       sync.Mutex
	state    State
	busy     bool
	estimate *quote.Estimate
	quoted   []types.TokenSwap
	enabled  map[common.Address]bool
	lastErr  error
}

// NewSession creates an idle session over sel
func NewSession(deps Deps, params Params, sel *selection.Selection, logger *logrus.Logger) (*Session, error) {
	if err := params.validate(); err != nil {
		return nil, err
	}
	if deps.Estimator == nil || deps.Allowance == nil || deps.Permits == nil || deps.Signer == nil || deps.Bridge == nil {
		return nil, fmt.Errorf("swap session is missing a dependency")
	}
	if logger == nil {
		logger = logrus.New()
	}

	return &Session{
		deps:      deps,
		params:    params,
		selection: sel,
		logger:    logger,
		state:     StateIdle,
		enabled:   make(map[common.Address]bool),
	}, nil
}

// State returns the current state
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// LastError returns the error of the last failed confirm
func (s *Session) LastError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

// Preview enters quoting and runs the estimate and the allowance checks concurrently.
// A failed estimate is not an error: the amount out stays unset.
func (s *Session) Preview(ctx context.Context) (*Preview, error) {
	s.mu.Lock()
	if s.busy {
		s.mu.Unlock()
		return nil, ErrBusy
	}
	s.mu.Unlock()

	swaps, err := s.selection.TokenSwaps()
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.estimate = nil
	s.quoted = nil
	s.enabled = make(map[common.Address]bool)
	s.setStateLocked(StateQuoting)
	s.mu.Unlock()

	inputs := make([]quote.Input, len(swaps))
	reqs := make([]allowance.Requirement, len(swaps))
	for i, swap := range swaps {
		inputs[i] = quote.Input{Token: swap.Token, Amount: swap.Amount}
		reqs[i] = allowance.Requirement{Token: swap.Token, Amount: swap.Amount}
	}

	var (
		g        errgroup.Group
		estimate *quote.Estimate
		quoteErr error
		enabled  map[common.Address]bool
	)
	g.Go(func() error {
		estimate, quoteErr = s.deps.Estimator.EstimateOutput(ctx, inputs, s.params.ViaToken, s.params.QuoteOutputToken, s.params.SlippageBps)
		return nil
	})
	g.Go(func() (err error) {
		enabled, err = s.deps.Allowance.CheckAll(ctx, s.deps.Signer.Address(), reqs)
		return err
	})
	allowErr := g.Wait()

	if quoteErr != nil {
		s.logger.WithError(quoteErr).Warn("swap: quote failed, amount out unavailable")
	}
	if allowErr != nil {
		return nil, fmt.Errorf("failed to check Permit2 allowances: %w", allowErr)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if quoteErr == nil {
		s.estimate = estimate
		s.quoted = swaps
	}
	for token, ok := range enabled {
		s.enabled[token] = ok
	}

	return &Preview{
		Estimate: s.estimate,
		QuoteErr: quoteErr,
		Enabled:  copyEnabled(s.enabled),
		Missing:  s.missingLocked(),
	}, nil
}

// CanConfirm reports whether a quote exists and every token is Permit2-enabled
func (s *Session) CanConfirm() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.canConfirmLocked()
}

func (s *Session) canConfirmLocked() bool {
	return s.state == StateQuoting && !s.busy && s.estimate != nil && len(s.missingLocked()) == 0 && s.quoteCurrentLocked()
}

// quoteCurrentLocked reports whether the selection still matches what was quoted
func (s *Session) quoteCurrentLocked() bool {
	swaps, err := s.selection.TokenSwaps()
	if err != nil || len(swaps) != len(s.quoted) {
		return false
	}
	for i := range swaps {
		if swaps[i].Token != s.quoted[i].Token || swaps[i].Amount.Cmp(s.quoted[i].Amount) != 0 {
			return false
		}
	}
	return true
}

// Missing lists the selected tokens without a Permit2 allowance, in selection order
func (s *Session) Missing() []common.Address {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.missingLocked()
}

func (s *Session) missingLocked() []common.Address {
	var missing []common.Address
	for _, token := range s.selection.Tokens() {
		if !s.enabled[token.Address] {
			missing = append(missing, token.Address)
		}
	}
	return missing
}

// Enable sends the one-time approval for token and marks it enabled once mined
func (s *Session) Enable(ctx context.Context, token common.Address) error {
	if s.deps.Approver == nil {
		return fmt.Errorf("approvals are not available")
	}

	s.mu.Lock()
	if s.state != StateQuoting || s.busy {
		s.mu.Unlock()
		return ErrNotReady
	}
	s.mu.Unlock()

	if _, err := s.deps.Approver.Approve(ctx, token); err != nil {
		return err
	}

	s.mu.Lock()
	s.enabled[token] = true
	s.mu.Unlock()

	s.logger.WithField("token", token.Hex()).Info("swap: token enabled for Permit2")
	return nil
}

// Confirm builds the swaps, payload and permit, obtains the signature and submits.
// Only one confirm may run at a time.
func (s *Session) Confirm(ctx context.Context) (*Result, error) {
	s.mu.Lock()
	if s.busy {
		s.mu.Unlock()
		return nil, ErrBusy
	}
	if !s.canConfirmLocked() {
		s.mu.Unlock()
		return nil, ErrNotReady
	}
	s.busy = true
	estimate := s.estimate
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.busy = false
		s.mu.Unlock()
	}()

	selected := s.selection.Tokens()
	swaps, err := s.selection.TokenSwaps()
	if err != nil {
		return nil, s.fail(err)
	}
	s.mu.Lock()
	current := s.quoteCurrentLocked()
	s.mu.Unlock()
	if !current {
		return nil, ErrNotReady
	}
	s.applyMinAmountOut(swaps, estimate)

	data, err := s.encodePayload()
	if err != nil {
		return nil, s.fail(err)
	}

	p, err := s.deps.Permits.Build(swaps, s.deps.Bridge.Address(), s.params.ChainID)
	if err != nil {
		return nil, s.fail(err)
	}

	s.setState(StateAwaitingSignature)
	signature, err := s.deps.Signer.SignTypedData(ctx, p.TypedData)
	if err != nil {
		return nil, s.fail(fmt.Errorf("%w: %v", ErrRejected, err))
	}

	s.setState(StateSubmitting)
	tx, err := s.deps.Bridge.SwapAndBridge(ctx, bridge.Call{
		Swaps:        swaps,
		UniversalApp: s.params.UniversalApp,
		Payload:      data,
		Nonce:        p.Nonce,
		Deadline:     p.Deadline,
		Signature:    signature,
	})
	if err != nil {
		return nil, s.fail(fmt.Errorf("%w: %w", ErrSubmit, err))
	}

	s.mu.Lock()
	s.setStateLocked(StateSuccess)
	s.estimate = nil
	s.quoted = nil
	s.enabled = make(map[common.Address]bool)
	s.lastErr = nil
	s.mu.Unlock()
	s.selection.Reset()

	s.logger.WithFields(logrus.Fields{
		"hash":  tx.Hash().Hex(),
		"swaps": len(swaps),
	}).Info("swap: submitted")

	return &Result{
		Tx:           tx,
		Swaps:        swaps,
		Permit:       p,
		Payload:      data,
		AmountOut:    estimate.MinOutput,
		SelectedFrom: selected,
	}, nil
}

// applyMinAmountOut fills each swap's minimum from its per-token quote
func (s *Session) applyMinAmountOut(swaps []types.TokenSwap, estimate *quote.Estimate) {
	if !s.params.EnforceMinAmountOut {
		s.logger.Warn("swap: minAmountOut enforcement disabled, swaps accept any output")
		return
	}
	for i := range swaps {
		if i < len(estimate.PerToken) {
			swaps[i].MinAmountOut = quote.ApplySlippage(estimate.PerToken[i], s.params.SlippageBps)
		}
	}
}

func (s *Session) encodePayload() ([]byte, error) {
	dest, err := payload.EncodeDestinationPayload(s.params.Recipient, s.params.DestOutputToken)
	if err != nil {
		return nil, err
	}
	return payload.EncodeZetachainPayload(s.params.TargetZRC20, s.params.Counterparty, s.params.Recipient, dest)
}

// fail records err and returns the session to idle
func (s *Session) fail(err error) error {
	s.logger.WithError(err).Error("swap: confirm failed")

	s.mu.Lock()
	s.lastErr = err
	s.setStateLocked(StateError)
	s.estimate = nil
	s.quoted = nil
	s.setStateLocked(StateIdle)
	s.mu.Unlock()

	return err
}

func (s *Session) setState(state State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.setStateLocked(state)
}

func (s *Session) setStateLocked(state State) {
	if s.state == state {
		return
	}
	s.logger.WithFields(logrus.Fields{"from": s.state, "to": state}).Debug("swap: state change")
	s.state = state
	if s.OnStateChange != nil {
		s.OnStateChange(state)
	}
}

func copyEnabled(in map[common.Address]bool) map[common.Address]bool {
	out := make(map[common.Address]bool, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
