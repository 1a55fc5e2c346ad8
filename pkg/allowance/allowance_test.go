package allowance

import (
	"bytes"
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dust-swap/pkg/erc20"
)

var (
	permit2 = common.HexToAddress("0x000000000022D473030F116dDEE9F6B43aC78BA3")
	owner   = common.HexToAddress("0x00000000000000000000000000000000000000b2")
	tokenA  = common.HexToAddress("0x00000000000000000000000000000000000000aa")
	tokenB  = common.HexToAddress("0x00000000000000000000000000000000000000bb")
	broken  = common.HexToAddress("0x00000000000000000000000000000000000000ee")
)

// allowanceCaller returns a fixed allowance per token
type allowanceCaller struct {
	allowances map[common.Address]*big.Int
}

func (c *allowanceCaller) CallContract(_ context.Context, msg ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	method := erc20.ABI.Methods["allowance"]
	if !bytes.Equal(msg.Data[:4], method.ID) {
		return nil, errors.New("unexpected call")
	}

	args, err := method.Inputs.Unpack(msg.Data[4:])
	if err != nil {
		return nil, err
	}
	if args[1].(common.Address) != permit2 {
		return nil, errors.New("spender is not permit2")
	}

	allowance, ok := c.allowances[*msg.To]
	if !ok {
		return nil, errors.New("execution reverted")
	}
	return method.Outputs.Pack(allowance)
}

func TestHasPermit2Allowance(t *testing.T) {
	caller := &allowanceCaller{allowances: map[common.Address]*big.Int{
		tokenA: big.NewInt(100),
	}}
	checker := NewChecker(caller, permit2)
	ctx := context.Background()

	tests := []struct {
		name   string
		amount int64
		want   bool
	}{
		{"below allowance", 99, true},
		{"equal to allowance", 100, true},
		{"above allowance", 101, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ok, err := checker.HasPermit2Allowance(ctx, owner, tokenA, big.NewInt(tt.amount))
			require.NoError(t, err)
			assert.Equal(t, tt.want, ok)
		})
	}

	_, err := checker.HasPermit2Allowance(ctx, owner, broken, big.NewInt(1))
	assert.Error(t, err)
}

func TestCheckAll(t *testing.T) {
	caller := &allowanceCaller{allowances: map[common.Address]*big.Int{
		tokenA: erc20.MaxUint256,
		tokenB: big.NewInt(0),
	}}
	checker := NewChecker(caller, permit2)

	enabled, err := checker.CheckAll(context.Background(), owner, []Requirement{
		{Token: tokenA, Amount: big.NewInt(10)},
		{Token: tokenB, Amount: big.NewInt(10)},
	})
	require.NoError(t, err)
	assert.True(t, enabled[tokenA])
	assert.False(t, enabled[tokenB])

	_, err = checker.CheckAll(context.Background(), owner, []Requirement{
		{Token: tokenA, Amount: big.NewInt(10)},
		{Token: broken, Amount: big.NewInt(10)},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), broken.Hex())
}

type fakeSender struct {
	to      common.Address
	data    []byte
	waitErr error
}

func (f *fakeSender) Send(_ context.Context, to common.Address, data []byte) (*types.Transaction, error) {
	f.to = to
	f.data = data
	return types.NewTransaction(0, to, big.NewInt(0), 0, big.NewInt(0), data), nil
}

func (f *fakeSender) Wait(context.Context, *types.Transaction) (*types.Receipt, error) {
	if f.waitErr != nil {
		return nil, f.waitErr
	}
	return &types.Receipt{Status: types.ReceiptStatusSuccessful}, nil
}

func TestApprover_Approve(t *testing.T) {
	sender := &fakeSender{}
	approver := NewApprover(sender, permit2, nil)

	_, err := approver.Approve(context.Background(), tokenA)
	require.NoError(t, err)
	assert.Equal(t, tokenA, sender.to)

	method := erc20.ABI.Methods["approve"]
	assert.Equal(t, method.ID, sender.data[:4])
	args, err := method.Inputs.Unpack(sender.data[4:])
	require.NoError(t, err)
	assert.Equal(t, permit2, args[0].(common.Address))
	assert.Equal(t, 0, args[1].(*big.Int).Cmp(erc20.MaxUint256))
}

func TestApprover_ApproveReverted(t *testing.T) {
	sender := &fakeSender{waitErr: errors.New("transaction reverted")}
	approver := NewApprover(sender, permit2, nil)

	_, err := approver.Approve(context.Background(), tokenA)
	assert.Error(t, err)
}
