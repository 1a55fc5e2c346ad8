package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

const (
	// DefaultFeeTier is the Uniswap V3 pool fee (0.3%) used for every quote.
	DefaultFeeTier = 3000

	DefaultSlippageBps = 100
)

// Config holds the application configuration
type Config struct {
	RPCURL     string
	PrivateKey string
	Chain      string

	AddressesFile string
	TokenList     string

	SlippageBps         uint64
	FeeTier             uint32
	EnforceMinAmountOut bool

	// Optional overrides for transaction submission
	GasLimit *uint64
	GasPrice *int64

	HistoryBackend string
	HistoryPath    string

	LogLevel    string
	AutoConfirm bool
}

// Load reads configuration from environment variables and config file.
// An explicit configFile takes precedence over the search path.
func Load(configFile string) (*Config, error) {
	v := viper.New()

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName(".dust-swap")
		v.SetConfigType("yaml")
		v.AddConfigPath("$HOME")
		v.AddConfigPath(".")
	}

	v.SetDefault("chain", "ethereum")
	v.SetDefault("addresses_file", "addresses.json")
	v.SetDefault("token_list", "tokens.json")
	v.SetDefault("slippage_bps", DefaultSlippageBps)
	v.SetDefault("fee_tier", DefaultFeeTier)
	v.SetDefault("enforce_min_amount_out", true)
	v.SetDefault("history_backend", "json")
	v.SetDefault("log_level", "info")

	v.SetEnvPrefix("DUST_SWAP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		// A missing config file is fine, everything can come from the environment.
		var notFound viper.ConfigFileNotFoundError
		if configFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	cfg := &Config{
		RPCURL:              v.GetString("rpc_url"),
		PrivateKey:          v.GetString("private_key"),
		Chain:               strings.ToLower(v.GetString("chain")),
		AddressesFile:       v.GetString("addresses_file"),
		TokenList:           v.GetString("token_list"),
		SlippageBps:         v.GetUint64("slippage_bps"),
		FeeTier:             v.GetUint32("fee_tier"),
		EnforceMinAmountOut: v.GetBool("enforce_min_amount_out"),
		HistoryBackend:      strings.ToLower(v.GetString("history_backend")),
		HistoryPath:         v.GetString("history_path"),
		LogLevel:            v.GetString("log_level"),
		AutoConfirm:         v.GetBool("auto_confirm"),
	}

	if v.IsSet("gas_limit") {
		gasLimit := v.GetUint64("gas_limit")
		cfg.GasLimit = &gasLimit
	}
	if v.IsSet("gas_price") {
		gasPrice := v.GetInt64("gas_price")
		cfg.GasPrice = &gasPrice
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// RequireRPC reports whether an RPC endpoint is configured
func (c *Config) RequireRPC() error {
	if c.RPCURL == "" {
		return fmt.Errorf("RPC URL not found. Please set DUST_SWAP_RPC_URL environment variable or add rpc_url to .dust-swap.yaml")
	}
	return nil
}

// Validate checks the fields every command depends on
func (c *Config) Validate() error {
	if c.Chain == "" {
		return fmt.Errorf("source chain is required")
	}
	if c.SlippageBps >= 10000 {
		return fmt.Errorf("slippage_bps must be below 10000, got %d", c.SlippageBps)
	}
	if c.FeeTier == 0 {
		return fmt.Errorf("fee_tier must be greater than 0")
	}
	switch c.HistoryBackend {
	case "json", "sqlite":
	default:
		return fmt.Errorf("unknown history backend %q (expected json or sqlite)", c.HistoryBackend)
	}
	return nil
}
