package parser

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"dust-swap/pkg/types"
)

const usage = "expected: 'swap <amount|max> <token> [<amount|max> <token> ...] to <token>' (e.g., 'swap 10 LINK 5 UNI to USDC')"

var (
	ErrInvalidCommand = errors.New("invalid swap command format")

	amountPattern = regexp.MustCompile(`^(\d+\.?\d*|\.\d+)$`)
	tokenPattern  = regexp.MustCompile(`^([A-Za-z0-9.]+|0[xX][0-9a-fA-F]{40})$`)
)

// ParseSwapCommand parses a swap command with one or more input legs.
// Examples:
//   - "swap 10 LINK 5 UNI to USDC"
//   - "max DAI 0.5 0x514910771AF9Ca656af840dff83E8264EcF986CA to WETH"
func ParseSwapCommand(command string) (*types.SwapRequest, error) {
	fields := strings.Fields(command)
	if len(fields) > 0 && strings.EqualFold(fields[0], "swap") {
		fields = fields[1:]
	}

	// <amount> <token> pairs, then TO <token>
	if len(fields) < 4 || len(fields)%2 != 0 || !strings.EqualFold(fields[len(fields)-2], "to") {
		return nil, fmt.Errorf("%w. %s", ErrInvalidCommand, usage)
	}

	dest := fields[len(fields)-1]
	if !tokenPattern.MatchString(dest) {
		return nil, fmt.Errorf("%w: invalid destination token %q", ErrInvalidCommand, dest)
	}

	req := &types.SwapRequest{DestToken: dest}
	seen := make(map[string]bool)

	legs := fields[:len(fields)-2]
	for i := 0; i < len(legs); i += 2 {
		amount, token := legs[i], legs[i+1]

		leg := types.SwapLeg{Token: token}
		switch {
		case strings.EqualFold(amount, "max"):
			leg.IsMax = true
		case amountPattern.MatchString(amount):
			leg.Amount = amount
		default:
			return nil, fmt.Errorf("%w: invalid amount %q", ErrInvalidCommand, amount)
		}

		if !tokenPattern.MatchString(token) {
			return nil, fmt.Errorf("%w: invalid token %q", ErrInvalidCommand, token)
		}

		key := strings.ToUpper(token)
		if seen[key] {
			return nil, fmt.Errorf("%w: %s listed more than once", ErrInvalidCommand, token)
		}
		seen[key] = true

		req.Legs = append(req.Legs, leg)
	}

	if len(req.Legs) > types.MaxSelectedTokens {
		return nil, fmt.Errorf("%w: at most %d input tokens", ErrInvalidCommand, types.MaxSelectedTokens)
	}

	return req, nil
}

// ValidateSwapRequest validates that a swap request has all required fields
func ValidateSwapRequest(req *types.SwapRequest) error {
	if len(req.Legs) == 0 {
		return fmt.Errorf("at least one input token is required")
	}
	for _, leg := range req.Legs {
		if leg.Token == "" {
			return fmt.Errorf("source token is required")
		}
		if leg.Amount == "" && !leg.IsMax {
			return fmt.Errorf("amount is required for %s", leg.Token)
		}
	}
	if req.DestToken == "" {
		return fmt.Errorf("destination token is required")
	}
	if req.DestChain == "" {
		return fmt.Errorf("destination chain is required (--to-chain)")
	}
	if req.Recipient == "" {
		return fmt.Errorf("recipient is required (--recipient)")
	}
	return nil
}
