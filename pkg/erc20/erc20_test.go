package erc20

import (
	"bytes"
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	tokenAddr = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	owner     = common.HexToAddress("0x00000000000000000000000000000000000000b2")
	spender   = common.HexToAddress("0x00000000000000000000000000000000000000c3")
)

// stubCaller answers ERC-20 reads from fixed values
type stubCaller struct {
	lastArgs []interface{}
}

func (s *stubCaller) CallContract(_ context.Context, msg ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	if *msg.To != tokenAddr {
		return nil, errors.New("execution reverted")
	}

	for name, method := range ABI.Methods {
		if !bytes.Equal(msg.Data[:4], method.ID) {
			continue
		}
		args, err := method.Inputs.Unpack(msg.Data[4:])
		if err != nil {
			return nil, err
		}
		s.lastArgs = args

		switch name {
		case "name":
			return method.Outputs.Pack("Chainlink")
		case "symbol":
			return method.Outputs.Pack("LINK")
		case "decimals":
			return method.Outputs.Pack(uint8(18))
		case "balanceOf":
			return method.Outputs.Pack(big.NewInt(1234))
		case "allowance":
			return method.Outputs.Pack(big.NewInt(99))
		}
	}
	return nil, errors.New("unknown selector")
}

func TestToken_Reads(t *testing.T) {
	caller := &stubCaller{}
	token := NewToken(caller, tokenAddr)
	ctx := context.Background()

	name, err := token.Name(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Chainlink", name)

	symbol, err := token.Symbol(ctx)
	require.NoError(t, err)
	assert.Equal(t, "LINK", symbol)

	decimals, err := token.Decimals(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint8(18), decimals)

	balance, err := token.BalanceOf(ctx, owner)
	require.NoError(t, err)
	assert.Equal(t, int64(1234), balance.Int64())
	assert.Equal(t, []interface{}{owner}, caller.lastArgs)

	allowance, err := token.Allowance(ctx, owner, spender)
	require.NoError(t, err)
	assert.Equal(t, int64(99), allowance.Int64())
	assert.Equal(t, []interface{}{owner, spender}, caller.lastArgs)
}

func TestToken_Reverted(t *testing.T) {
	token := NewToken(&stubCaller{}, common.HexToAddress("0xdead"))

	_, err := token.Decimals(context.Background())
	assert.Error(t, err)
}

func TestPackApprove(t *testing.T) {
	data, err := PackApprove(spender, MaxUint256)
	require.NoError(t, err)

	method := ABI.Methods["approve"]
	assert.Equal(t, method.ID, data[:4])

	args, err := method.Inputs.Unpack(data[4:])
	require.NoError(t, err)
	assert.Equal(t, spender, args[0])
	assert.Equal(t, 0, args[1].(*big.Int).Cmp(MaxUint256))
	assert.Equal(t, 256, MaxUint256.BitLen())
}
