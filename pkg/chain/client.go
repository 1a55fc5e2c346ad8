package chain

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/sirupsen/logrus"
)

// Backend is the subset of ethclient.Client used to read state and submit transactions
type Backend interface {
	bind.DeployBackend
	ChainID(ctx context.Context) (*big.Int, error)
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionByHash(ctx context.Context, hash common.Hash) (*types.Transaction, bool, error)
}

// Dial connects to the RPC endpoint
func Dial(ctx context.Context, rpcURL string) (*ethclient.Client, error) {
	if rpcURL == "" {
		return nil, fmt.Errorf("RPC URL not configured")
	}

	client, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RPC endpoint: %w", err)
	}

	return client, nil
}

// TxOptions overrides gas parameters, nil fields are resolved from the network
type TxOptions struct {
	GasLimit *uint64
	GasPrice *int64
}

// Transactor builds, signs and submits transactions from a wallet
type Transactor struct {
	backend Backend
	wallet  *Wallet
	opts    TxOptions
	logger  *logrus.Logger

	chainID *big.Int
}

// NewTransactor creates a transactor for wallet on backend
func NewTransactor(backend Backend, wallet *Wallet, opts TxOptions, logger *logrus.Logger) *Transactor {
	return &Transactor{
		backend: backend,
		wallet:  wallet,
		opts:    opts,
		logger:  logger,
	}
}

// From returns the sending address
func (t *Transactor) From() common.Address {
	return t.wallet.Address()
}

// ChainID returns the chain id of the backend, cached after the first call
func (t *Transactor) ChainID(ctx context.Context) (*big.Int, error) {
	if t.chainID != nil {
		return t.chainID, nil
	}

	chainID, err := t.backend.ChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get chain id: %w", err)
	}
	t.chainID = chainID
	return chainID, nil
}

// Send signs and broadcasts a call to `to` with calldata and no value
func (t *Transactor) Send(ctx context.Context, to common.Address, data []byte) (*types.Transaction, error) {
	from := t.wallet.Address()

	chainID, err := t.ChainID(ctx)
	if err != nil {
		return nil, err
	}

	nonce, err := t.backend.PendingNonceAt(ctx, from)
	if err != nil {
		return nil, fmt.Errorf("failed to get nonce: %w", err)
	}

	gasPrice, err := t.gasPrice(ctx)
	if err != nil {
		return nil, err
	}

	gasLimit, err := t.gasLimit(ctx, from, to, data)
	if err != nil {
		return nil, err
	}

	tx := types.NewTransaction(nonce, to, big.NewInt(0), gasLimit, gasPrice, data)

	signedTx, err := t.wallet.SignTx(tx, chainID)
	if err != nil {
		return nil, err
	}

	if err := t.backend.SendTransaction(ctx, signedTx); err != nil {
		return nil, fmt.Errorf("failed to send transaction: %w", err)
	}

	if t.logger != nil {
		t.logger.WithFields(logrus.Fields{
			"hash":     signedTx.Hash().Hex(),
			"to":       to.Hex(),
			"nonce":    nonce,
			"gasLimit": gasLimit,
			"gasPrice": gasPrice.String(),
		}).Debug("chain: transaction sent")
	}

	return signedTx, nil
}

// Wait blocks until tx is mined and fails if it reverted
func (t *Transactor) Wait(ctx context.Context, tx *types.Transaction) (*types.Receipt, error) {
	receipt, err := bind.WaitMined(ctx, t.backend, tx)
	if err != nil {
		return nil, fmt.Errorf("failed waiting for %s: %w", tx.Hash().Hex(), err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return receipt, fmt.Errorf("transaction %s reverted", tx.Hash().Hex())
	}
	return receipt, nil
}

// gasPrice returns the gas price to use for transactions
func (t *Transactor) gasPrice(ctx context.Context) (*big.Int, error) {
	if t.opts.GasPrice != nil {
		return big.NewInt(*t.opts.GasPrice), nil
	}

	gasPrice, err := t.backend.SuggestGasPrice(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get gas price: %w", err)
	}
	return gasPrice, nil
}

// gasLimit estimates the call and adds a 20% buffer
func (t *Transactor) gasLimit(ctx context.Context, from, to common.Address, data []byte) (uint64, error) {
	if t.opts.GasLimit != nil {
		return *t.opts.GasLimit, nil
	}

	estimated, err := t.backend.EstimateGas(ctx, ethereum.CallMsg{
		From: from,
		To:   &to,
		Data: data,
	})
	if err != nil {
		return 0, fmt.Errorf("failed to estimate gas: %w", err)
	}
	return estimated * 120 / 100, nil
}

// TxStatus describes a transaction as seen by the node
type TxStatus struct {
	Hash        common.Hash
	Pending     bool
	Found       bool
	Success     bool
	BlockNumber uint64
	GasUsed     uint64
	CheckedAt   time.Time
}

// GetTxStatus looks up a transaction and its receipt
func GetTxStatus(ctx context.Context, backend Backend, hash common.Hash) (*TxStatus, error) {
	status := &TxStatus{Hash: hash, CheckedAt: time.Now()}

	_, isPending, err := backend.TransactionByHash(ctx, hash)
	if err != nil {
		if errors.Is(err, ethereum.NotFound) {
			return status, nil
		}
		return nil, fmt.Errorf("failed to get transaction: %w", err)
	}
	status.Found = true
	status.Pending = isPending
	if isPending {
		return status, nil
	}

	receipt, err := backend.TransactionReceipt(ctx, hash)
	if err != nil {
		return nil, fmt.Errorf("failed to get transaction receipt: %w", err)
	}

	status.Success = receipt.Status == types.ReceiptStatusSuccessful
	if receipt.BlockNumber != nil {
		status.BlockNumber = receipt.BlockNumber.Uint64()
	}
	status.GasUsed = receipt.GasUsed
	return status, nil
}
