package units

import (
	"errors"
	"fmt"
	"math/big"
	"strings"
)

// ErrInvalidAmount is returned for malformed decimal amounts
var ErrInvalidAmount = errors.New("invalid amount")

// ToBaseUnits converts a human-readable amount to base units
// e.g., "10" USDC (6 decimals) -> 10000000
// Amounts with more fractional digits than decimals are rejected instead of truncated.
func ToBaseUnits(amount string, decimals uint8) (*big.Int, error) {
	amount = strings.TrimSpace(amount)
	if amount == "" {
		return nil, fmt.Errorf("%w: amount cannot be empty", ErrInvalidAmount)
	}
	if strings.HasPrefix(amount, "-") {
		return nil, fmt.Errorf("%w: negative amount %s", ErrInvalidAmount, amount)
	}

	parts := strings.Split(amount, ".")
	if len(parts) > 2 {
		return nil, fmt.Errorf("%w: %s", ErrInvalidAmount, amount)
	}

	whole := parts[0]
	frac := ""
	if len(parts) == 2 {
		frac = parts[1]
	}
	if whole == "" && frac == "" {
		return nil, fmt.Errorf("%w: %s", ErrInvalidAmount, amount)
	}
	if !isDigits(whole) || !isDigits(frac) {
		return nil, fmt.Errorf("%w: %s", ErrInvalidAmount, amount)
	}

	frac = strings.TrimRight(frac, "0")
	if len(frac) > int(decimals) {
		return nil, fmt.Errorf("%w: %s has more than %d decimal places", ErrInvalidAmount, amount, decimals)
	}
	frac += strings.Repeat("0", int(decimals)-len(frac))

	combined := strings.TrimLeft(whole+frac, "0")
	if combined == "" {
		return big.NewInt(0), nil
	}

	result, ok := new(big.Int).SetString(combined, 10)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrInvalidAmount, amount)
	}

	return result, nil
}

// FromBaseUnits converts base units to a human-readable amount
// e.g., 10000000 with 6 decimals -> "10"
func FromBaseUnits(amount *big.Int, decimals uint8) string {
	if amount == nil {
		return "0"
	}

	str := amount.String()
	negative := strings.HasPrefix(str, "-")
	str = strings.TrimPrefix(str, "-")

	d := int(decimals)
	if len(str) <= d {
		str = strings.Repeat("0", d-len(str)+1) + str
	}

	insertPos := len(str) - d
	whole := str[:insertPos]
	frac := strings.TrimRight(str[insertPos:], "0")

	result := whole
	if frac != "" {
		result = whole + "." + frac
	}
	if negative {
		result = "-" + result
	}

	return result
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
