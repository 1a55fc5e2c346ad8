package parser

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dust-swap/pkg/types"
)

func TestParseSwapCommand(t *testing.T) {
	tests := []struct {
		name    string
		command string
		want    []types.SwapLeg
		dest    string
	}{
		{
			name:    "single leg",
			command: "swap 10 LINK to USDC",
			want:    []types.SwapLeg{{Amount: "10", Token: "LINK"}},
			dest:    "USDC",
		},
		{
			name:    "multiple legs without swap keyword",
			command: "10 LINK 5.5 uni TO usdc",
			want:    []types.SwapLeg{{Amount: "10", Token: "LINK"}, {Amount: "5.5", Token: "uni"}},
			dest:    "usdc",
		},
		{
			name:    "max and address",
			command: "swap MAX dai .5 0x514910771AF9Ca656af840dff83E8264EcF986CA to WETH",
			want: []types.SwapLeg{
				{Token: "dai", IsMax: true},
				{Amount: ".5", Token: "0x514910771AF9Ca656af840dff83E8264EcF986CA"},
			},
			dest: "WETH",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, err := ParseSwapCommand(tt.command)
			require.NoError(t, err)
			assert.Equal(t, tt.want, req.Legs)
			assert.Equal(t, tt.dest, req.DestToken)
		})
	}
}

func TestParseSwapCommand_Invalid(t *testing.T) {
	tests := []string{
		"",
		"swap",
		"swap 10 LINK",
		"swap 10 LINK USDC",
		"swap LINK 10 to USDC",
		"swap -1 LINK to USDC",
		"swap 10 LINK 5 to USDC",
		"swap 1 LINK 2 link to USDC",
		"swap 1 A 1 B 1 C 1 D 1 E 1 F to USDC",
		"swap 1 LINK to US-DC",
	}

	for _, command := range tests {
		t.Run(command, func(t *testing.T) {
			_, err := ParseSwapCommand(command)
			assert.ErrorIs(t, err, ErrInvalidCommand)
		})
	}
}

func TestValidateSwapRequest(t *testing.T) {
	req, err := ParseSwapCommand("swap 10 LINK to USDC")
	require.NoError(t, err)

	assert.Error(t, ValidateSwapRequest(req))

	req.DestChain = "ethereum"
	assert.Error(t, ValidateSwapRequest(req))

	req.Recipient = "0x00000000000000000000000000000000000000cc"
	assert.NoError(t, ValidateSwapRequest(req))
}
