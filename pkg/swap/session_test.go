package swap

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dust-swap/pkg/allowance"
	"dust-swap/pkg/bridge"
	"dust-swap/pkg/chain"
	"dust-swap/pkg/payload"
	"dust-swap/pkg/permit"
	"dust-swap/pkg/quote"
	"dust-swap/pkg/selection"
	"dust-swap/pkg/types"
)

var (
	tokenA       = common.HexToAddress("0x00000000000000000000000000000000000000aa")
	tokenB       = common.HexToAddress("0x00000000000000000000000000000000000000bb")
	weth         = common.HexToAddress("0x00000000000000000000000000000000000000e1")
	usdc         = common.HexToAddress("0x00000000000000000000000000000000000000e2")
	dustTokens   = common.HexToAddress("0x00000000000000000000000000000000000000d1")
	universalApp = common.HexToAddress("0x00000000000000000000000000000000000000d2")
	zrc20        = common.HexToAddress("0x00000000000000000000000000000000000000d3")
	counterparty = common.HexToAddress("0x00000000000000000000000000000000000000d4")
	destUSDC     = common.HexToAddress("0x00000000000000000000000000000000000000d5")
	recipient    = common.HexToAddress("0x00000000000000000000000000000000000000cc")
	permit2Addr  = common.HexToAddress("0x000000000022D473030F116dDEE9F6B43aC78BA3")
)

type fakeEstimator struct {
	err error
}

func (f *fakeEstimator) EstimateOutput(_ context.Context, inputs []quote.Input, _, _ common.Address, slippageBps uint64) (*quote.Estimate, error) {
	if f.err != nil {
		return nil, f.err
	}
	perToken := make([]*big.Int, len(inputs))
	total := new(big.Int)
	for i, in := range inputs {
		// every token is worth half of its amount in the via token
		perToken[i] = new(big.Int).Div(in.Amount, big.NewInt(2))
		total.Add(total, perToken[i])
	}
	return &quote.Estimate{
		PerToken:  perToken,
		TotalVia:  total,
		RawOutput: total,
		MinOutput: quote.ApplySlippage(total, slippageBps),
	}, nil
}

type fakeAllowance struct {
	enabled map[common.Address]bool
	err     error
}

func (f *fakeAllowance) CheckAll(_ context.Context, _ common.Address, reqs []allowance.Requirement) (map[common.Address]bool, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := make(map[common.Address]bool)
	for _, r := range reqs {
		out[r.Token] = f.enabled[r.Token]
	}
	return out, nil
}

type fakeApprover struct {
	approved []common.Address
}

func (f *fakeApprover) Approve(_ context.Context, token common.Address) (*ethtypes.Receipt, error) {
	f.approved = append(f.approved, token)
	return &ethtypes.Receipt{Status: ethtypes.ReceiptStatusSuccessful}, nil
}

type fakeBridge struct {
	calls []bridge.Call
	err   error
}

func (f *fakeBridge) Address() common.Address { return dustTokens }

func (f *fakeBridge) SwapAndBridge(_ context.Context, call bridge.Call) (*ethtypes.Transaction, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.calls = append(f.calls, call)
	data, err := call.Pack()
	if err != nil {
		return nil, err
	}
	return ethtypes.NewTransaction(0, dustTokens, big.NewInt(0), 0, big.NewInt(0), data), nil
}

// rejectingSigner refuses every request
type rejectingSigner struct{}

func (rejectingSigner) Address() common.Address { return recipient }
func (rejectingSigner) SignTypedData(context.Context, apitypes.TypedData) ([]byte, error) {
	return nil, errors.New("user declined")
}

// blockingSigner holds the signature request until released
type blockingSigner struct {
	entered chan struct{}
	release chan struct{}
}

func (b *blockingSigner) Address() common.Address { return recipient }
func (b *blockingSigner) SignTypedData(context.Context, apitypes.TypedData) ([]byte, error) {
	close(b.entered)
	<-b.release
	return make([]byte, 65), nil
}

type fixture struct {
	session   *Session
	selection *selection.Selection
	allowance *fakeAllowance
	approver  *fakeApprover
	bridge    *fakeBridge
	wallet    *chain.Wallet
	states    []State
	mu        sync.Mutex
}

func newFixture(t *testing.T, mutate func(*Deps, *Params)) *fixture {
	t.Helper()

	key, err := crypto.GenerateKey()
	require.NoError(t, err)

	f := &fixture{
		selection: selection.New(),
		allowance: &fakeAllowance{enabled: map[common.Address]bool{tokenA: true, tokenB: true}},
		approver:  &fakeApprover{},
		bridge:    &fakeBridge{},
		wallet:    chain.NewWalletFromKey(key),
	}

	require.NoError(t, f.selection.Add(types.Token{Address: tokenA, Symbol: "A", Decimals: 18}))
	require.NoError(t, f.selection.Add(types.Token{Address: tokenB, Symbol: "B", Decimals: 6}))
	require.NoError(t, f.selection.SetAmount(tokenA, "10"))
	require.NoError(t, f.selection.SetAmount(tokenB, "5"))

	deps := Deps{
		Estimator: &fakeEstimator{},
		Allowance: f.allowance,
		Approver:  f.approver,
		Permits:   permit.NewBuilder(permit2Addr),
		Signer:    f.wallet,
		Bridge:    f.bridge,
	}
	params := Params{
		ChainID:             big.NewInt(8453),
		ViaToken:            weth,
		QuoteOutputToken:    usdc,
		SlippageBps:         100,
		UniversalApp:        universalApp,
		TargetZRC20:         zrc20,
		Counterparty:        counterparty,
		DestOutputToken:     destUSDC,
		Recipient:           recipient,
		EnforceMinAmountOut: true,
	}
	if mutate != nil {
		mutate(&deps, &params)
	}

	f.session, err = NewSession(deps, params, f.selection, nil)
	require.NoError(t, err)
	f.session.OnStateChange = func(s State) {
		f.mu.Lock()
		f.states = append(f.states, s)
		f.mu.Unlock()
	}
	return f
}

func TestSession_ConfirmEnabledOnceQuoted(t *testing.T) {
	f := newFixture(t, nil)
	assert.False(t, f.session.CanConfirm())

	preview, err := f.session.Preview(context.Background())
	require.NoError(t, err)
	require.NotNil(t, preview.AmountOut())
	assert.Empty(t, preview.Missing)
	assert.True(t, f.session.CanConfirm())
	assert.Equal(t, StateQuoting, f.session.State())
}

func TestSession_QuoteFailureStaysCalculating(t *testing.T) {
	f := newFixture(t, func(d *Deps, _ *Params) {
		d.Estimator = &fakeEstimator{err: errors.New("execution reverted")}
	})

	preview, err := f.session.Preview(context.Background())
	require.NoError(t, err)
	assert.Nil(t, preview.AmountOut())
	assert.Error(t, preview.QuoteErr)
	assert.False(t, f.session.CanConfirm())

	_, err = f.session.Confirm(context.Background())
	assert.ErrorIs(t, err, ErrNotReady)
	assert.Equal(t, StateQuoting, f.session.State())
}

func TestSession_MissingAllowanceBlocksUntilEnabled(t *testing.T) {
	f := newFixture(t, nil)
	f.allowance.enabled[tokenB] = false
	ctx := context.Background()

	preview, err := f.session.Preview(ctx)
	require.NoError(t, err)
	assert.Equal(t, []common.Address{tokenB}, preview.Missing)
	assert.False(t, f.session.CanConfirm())

	_, err = f.session.Confirm(ctx)
	assert.ErrorIs(t, err, ErrNotReady)

	require.NoError(t, f.session.Enable(ctx, tokenB))
	assert.Equal(t, []common.Address{tokenB}, f.approver.approved)
	assert.Empty(t, f.session.Missing())
	assert.True(t, f.session.CanConfirm())
}

func TestSession_AllowanceCheckError(t *testing.T) {
	f := newFixture(t, nil)
	f.allowance.err = errors.New("rpc unavailable")

	_, err := f.session.Preview(context.Background())
	assert.Error(t, err)
	assert.False(t, f.session.CanConfirm())
}

func TestSession_ConfirmSuccess(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	_, err := f.session.Preview(ctx)
	require.NoError(t, err)

	result, err := f.session.Confirm(ctx)
	require.NoError(t, err)

	assert.Equal(t, []State{StateQuoting, StateAwaitingSignature, StateSubmitting, StateSuccess}, f.states)
	assert.Equal(t, StateSuccess, f.session.State())
	assert.Equal(t, 0, f.selection.Len())
	assert.Len(t, result.SelectedFrom, 2)

	require.Len(t, f.bridge.calls, 1)
	call := f.bridge.calls[0]
	require.Len(t, call.Swaps, 2)
	assert.Equal(t, tokenA, call.Swaps[0].Token)
	assert.Equal(t, tokenB, call.Swaps[1].Token)
	assert.Equal(t, int64(5_000_000), call.Swaps[1].Amount.Int64())

	// per-token quote is amount/2, minus 1%
	assert.Equal(t, int64(2_475_000), call.Swaps[1].MinAmountOut.Int64())

	assert.Equal(t, universalApp, call.UniversalApp)
	assert.Equal(t, result.Permit.Nonce, call.Nonce)
	assert.Equal(t, result.Permit.Deadline, call.Deadline)
	assert.Equal(t, dustTokens, result.Permit.Spender)

	// signature is from the session's wallet over the permit digest
	hash, err := result.Permit.Hash()
	require.NoError(t, err)
	sig := append([]byte{}, call.Signature...)
	sig[64] -= 27
	pub, err := crypto.SigToPub(hash, sig)
	require.NoError(t, err)
	assert.Equal(t, f.wallet.Address(), crypto.PubkeyToAddress(*pub))

	zeta, err := payload.DecodeZetachainPayload(call.Payload)
	require.NoError(t, err)
	assert.Equal(t, zrc20, zeta.TargetToken)
	assert.Equal(t, counterparty, zeta.Counterparty)
	assert.Equal(t, recipient, zeta.Recipient)

	dest, err := payload.DecodeDestinationPayload(zeta.Payload)
	require.NoError(t, err)
	assert.Equal(t, destUSDC, dest.OutputToken)
	assert.Equal(t, recipient, dest.Recipient)

	// a finished session cannot be confirmed again
	_, err = f.session.Confirm(ctx)
	assert.ErrorIs(t, err, ErrNotReady)
}

func TestSession_MinAmountOutDisabled(t *testing.T) {
	f := newFixture(t, func(_ *Deps, p *Params) {
		p.EnforceMinAmountOut = false
	})
	ctx := context.Background()

	_, err := f.session.Preview(ctx)
	require.NoError(t, err)
	_, err = f.session.Confirm(ctx)
	require.NoError(t, err)

	for _, swap := range f.bridge.calls[0].Swaps {
		assert.Equal(t, 0, swap.MinAmountOut.Sign())
	}
}

func TestSession_SelectionEditedAfterQuote(t *testing.T) {
	ctx := context.Background()

	t.Run("reordered", func(t *testing.T) {
		f := newFixture(t, nil)
		_, err := f.session.Preview(ctx)
		require.NoError(t, err)
		require.True(t, f.session.CanConfirm())

		require.NoError(t, f.selection.Remove(tokenA))
		require.NoError(t, f.selection.Add(types.Token{Address: tokenA, Symbol: "A", Decimals: 18}))
		require.NoError(t, f.selection.SetAmount(tokenA, "10"))

		assert.False(t, f.session.CanConfirm())
		_, err = f.session.Confirm(ctx)
		assert.ErrorIs(t, err, ErrNotReady)
		assert.Empty(t, f.bridge.calls)
	})

	t.Run("amount changed", func(t *testing.T) {
		f := newFixture(t, nil)
		_, err := f.session.Preview(ctx)
		require.NoError(t, err)

		require.NoError(t, f.selection.SetAmount(tokenB, "6"))
		assert.False(t, f.session.CanConfirm())
		_, err = f.session.Confirm(ctx)
		assert.ErrorIs(t, err, ErrNotReady)
		assert.Empty(t, f.bridge.calls)
	})

	t.Run("requoted", func(t *testing.T) {
		f := newFixture(t, nil)
		_, err := f.session.Preview(ctx)
		require.NoError(t, err)

		require.NoError(t, f.selection.Remove(tokenA))
		require.NoError(t, f.selection.Add(types.Token{Address: tokenA, Symbol: "A", Decimals: 18}))
		require.NoError(t, f.selection.SetAmount(tokenA, "10"))

		_, err = f.session.Preview(ctx)
		require.NoError(t, err)
		_, err = f.session.Confirm(ctx)
		require.NoError(t, err)

		call := f.bridge.calls[0]
		require.Len(t, call.Swaps, 2)
		assert.Equal(t, tokenB, call.Swaps[0].Token)
		assert.Equal(t, int64(2_475_000), call.Swaps[0].MinAmountOut.Int64())
		assert.Equal(t, tokenA, call.Swaps[1].Token)
		expectedA, _ := new(big.Int).SetString("4950000000000000000", 10)
		assert.Equal(t, 0, call.Swaps[1].MinAmountOut.Cmp(expectedA))
	})
}

func TestSession_SignatureRejected(t *testing.T) {
	f := newFixture(t, func(d *Deps, _ *Params) {
		d.Signer = rejectingSigner{}
	})
	ctx := context.Background()

	_, err := f.session.Preview(ctx)
	require.NoError(t, err)

	_, err = f.session.Confirm(ctx)
	assert.ErrorIs(t, err, ErrRejected)
	assert.Equal(t, StateIdle, f.session.State())
	assert.ErrorIs(t, f.session.LastError(), ErrRejected)
	assert.Equal(t, []State{StateQuoting, StateAwaitingSignature, StateError, StateIdle}, f.states)

	// selection survives, the user may retry manually
	assert.Equal(t, 2, f.selection.Len())
	assert.Empty(t, f.bridge.calls)
}

func TestSession_SubmissionFailure(t *testing.T) {
	f := newFixture(t, nil)
	f.bridge.err = errors.New("execution reverted")
	ctx := context.Background()

	_, err := f.session.Preview(ctx)
	require.NoError(t, err)

	_, err = f.session.Confirm(ctx)
	assert.ErrorIs(t, err, ErrSubmit)
	assert.NotErrorIs(t, err, ErrRejected)
	assert.Equal(t, StateIdle, f.session.State())
	assert.False(t, f.session.CanConfirm())
}

func TestSession_SingleConfirmInFlight(t *testing.T) {
	signer := &blockingSigner{entered: make(chan struct{}), release: make(chan struct{})}
	f := newFixture(t, func(d *Deps, _ *Params) {
		d.Signer = signer
	})
	ctx := context.Background()

	_, err := f.session.Preview(ctx)
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		_, err := f.session.Confirm(ctx)
		done <- err
	}()

	<-signer.entered
	_, err = f.session.Confirm(ctx)
	assert.ErrorIs(t, err, ErrBusy)
	_, err = f.session.Preview(ctx)
	assert.ErrorIs(t, err, ErrBusy)

	close(signer.release)
	require.NoError(t, <-done)
}

func TestNewSession_Invalid(t *testing.T) {
	_, err := NewSession(Deps{}, Params{}, selection.New(), nil)
	assert.Error(t, err)

	f := newFixture(t, nil)
	params := f.session.params
	params.SlippageBps = 10000
	_, err = NewSession(f.session.deps, params, selection.New(), nil)
	assert.ErrorIs(t, err, quote.ErrInvalidSlippage)
}
