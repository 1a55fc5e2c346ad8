package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"math/big"
	"os"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	"github.com/fatih/color"
	"golang.org/x/term"

	"dust-swap/pkg/chain"
)

var errSignDeclined = errors.New("user declined to sign")

var stdin = bufio.NewReader(os.Stdin)

func confirm(question string) bool {
	fmt.Printf("\n%s (y/N): ", question)

	response, err := stdin.ReadString('\n')
	if err != nil {
		return false
	}

	response = strings.TrimSpace(strings.ToLower(response))
	return response == "y" || response == "yes"
}

// readSecret reads a line without echo
func readSecret(prompt string) (string, error) {
	fmt.Fprint(os.Stderr, prompt)
	secret, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("failed to read private key: %w", err)
	}
	return string(secret), nil
}

// promptSigner shows the permit and asks before signing with the wallet
type promptSigner struct {
	wallet      *chain.Wallet
	autoConfirm bool
	symbols     map[common.Address]string
}

func (p *promptSigner) Address() common.Address {
	return p.wallet.Address()
}

func (p *promptSigner) SignTypedData(ctx context.Context, typedData apitypes.TypedData) ([]byte, error) {
	if !p.autoConfirm {
		displayPermit(typedData, p.symbols)
		if !confirm("Sign this Permit2 authorization?") {
			return nil, errSignDeclined
		}
	}
	return p.wallet.SignTypedData(ctx, typedData)
}

func displayPermit(typedData apitypes.TypedData, symbols map[common.Address]string) {
	fmt.Println("\n" + strings.Repeat("=", 60))
	color.Yellow("                  PERMIT2 SIGNATURE REQUEST")
	fmt.Println(strings.Repeat("=", 60))

	fmt.Printf("\n  Contract:  %s\n", color.CyanString(typedData.Domain.VerifyingContract))
	fmt.Printf("  Spender:   %v\n", typedData.Message["spender"])

	if deadline, ok := typedData.Message["deadline"].(*big.Int); ok {
		fmt.Printf("  Expires:   %s\n", time.Unix(deadline.Int64(), 0).Format("2006-01-02 15:04:05"))
	}

	if permitted, ok := typedData.Message["permitted"].([]interface{}); ok {
		fmt.Println("  Tokens:")
		for _, entry := range permitted {
			perm, ok := entry.(map[string]interface{})
			if !ok {
				continue
			}
			token, _ := perm["token"].(string)
			label := token
			if symbol, ok := symbols[common.HexToAddress(token)]; ok {
				label = fmt.Sprintf("%s (%s)", symbol, token)
			}
			fmt.Printf("    %v  %s\n", perm["amount"], color.YellowString(label))
		}
	}

	fmt.Println("\n" + strings.Repeat("=", 60))
}
