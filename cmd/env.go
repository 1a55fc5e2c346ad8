package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"dust-swap/config"
	"dust-swap/pkg/chain"
	"dust-swap/pkg/history"
	"dust-swap/pkg/tokens"
)

// environment is the per-invocation state shared by the commands
type environment struct {
	cfg        *config.Config
	logger     *logrus.Logger
	verbose    bool
	jsonOutput bool

	addrs  config.Addresses
	tokens tokens.List
}

// loadEnv reads flags and configuration and builds the logger
func loadEnv(cmd *cobra.Command) (*environment, error) {
	verbose, _ := cmd.Flags().GetBool("verbose")
	jsonOutput, _ := cmd.Flags().GetBool("json")

	cfg, err := config.Load(configFile)
	if err != nil {
		return nil, err
	}

	return &environment{
		cfg:        cfg,
		logger:     newLogger(cfg.LogLevel, verbose),
		verbose:    verbose,
		jsonOutput: jsonOutput,
	}, nil
}

// skipConfirm reports whether prompts are skipped, by flag, JSON output or the auto_confirm setting
func (e *environment) skipConfirm(yes bool) bool {
	return yes || e.jsonOutput || e.cfg.AutoConfirm
}

func newLogger(level string, verbose bool) *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(os.Stderr)

	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		lvl = logrus.InfoLevel
	}
	if verbose {
		lvl = logrus.DebugLevel
	}
	logger.SetLevel(lvl)
	return logger
}

// addresses loads the deployed-address file on first use
func (e *environment) addresses() (config.Addresses, error) {
	if e.addrs != nil {
		return e.addrs, nil
	}

	addrs, err := config.LoadAddresses(e.cfg.AddressesFile)
	if err != nil {
		return nil, err
	}
	e.addrs = addrs
	return addrs, nil
}

// tokenList loads the token list on first use, a missing file is an empty list
func (e *environment) tokenList() (tokens.List, error) {
	if e.tokens != nil {
		return e.tokens, nil
	}

	list, err := tokens.LoadList(e.cfg.TokenList)
	if err != nil {
		if _, statErr := os.Stat(e.cfg.TokenList); os.IsNotExist(statErr) {
			e.logger.WithField("path", e.cfg.TokenList).Warn("token list not found, only addresses can be used")
			e.tokens = tokens.List{}
			return e.tokens, nil
		}
		return nil, err
	}
	e.tokens = list
	return list, nil
}

func (e *environment) dial(ctx context.Context) (*ethclient.Client, error) {
	if err := e.cfg.RequireRPC(); err != nil {
		return nil, err
	}
	return chain.Dial(ctx, e.cfg.RPCURL)
}

// wallet loads the signing key from configuration or prompts for it
func (e *environment) wallet() (*chain.Wallet, error) {
	key := e.cfg.PrivateKey
	if key == "" {
		if e.jsonOutput {
			return nil, fmt.Errorf("private key not found. Please set DUST_SWAP_PRIVATE_KEY")
		}
		var err error
		key, err = readSecret("Private key (hex): ")
		if err != nil {
			return nil, err
		}
	}
	return chain.NewWallet(strings.TrimSpace(key))
}

func (e *environment) transactor(backend chain.Backend, wallet *chain.Wallet) *chain.Transactor {
	return chain.NewTransactor(backend, wallet, chain.TxOptions{
		GasLimit: e.cfg.GasLimit,
		GasPrice: e.cfg.GasPrice,
	}, e.logger)
}

// catalog returns the source chain catalog reading balances of owner
func (e *environment) catalog(client *ethclient.Client, owner common.Address) (*tokens.Catalog, error) {
	list, err := e.tokenList()
	if err != nil {
		return nil, err
	}
	return tokens.NewCatalog(client, list[e.cfg.Chain], owner, e.logger), nil
}

func (e *environment) history() (history.Store, error) {
	return history.Open(e.cfg.HistoryBackend, e.cfg.HistoryPath)
}
