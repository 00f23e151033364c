// Package config defines the top-level configuration for marginguard and
// provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Config is the root configuration structure. Fields are populated from a
// TOML file and then optionally overridden by MARGINGUARD_* environment
// variables.
type Config struct {
	Wallet   WalletConfig   `toml:"wallet"`
	Chain    ChainConfig    `toml:"chain"`
	Guardian GuardianConfig `toml:"guardian"`
	Monitor  MonitorConfig  `toml:"monitor"`
	Postgres PostgresConfig `toml:"postgres"`
	Redis    RedisConfig    `toml:"redis"`
	S3       S3Config       `toml:"s3"`
	Server   ServerConfig   `toml:"server"`
	Notify   NotifyConfig   `toml:"notify"`
	Mode     string         `toml:"mode"`
	LogLevel string         `toml:"log_level"`
}

// WalletConfig holds the operator wallet credentials used to submit
// corrective transactions.
type WalletConfig struct {
	PrivateKey       string `toml:"private_key"`
	EncryptedKeyPath string `toml:"encrypted_key_path"`
	KeyPassword      string `toml:"key_password"`
}

// ChainConfig holds the RPC endpoint and the deployment-time contract
// constants. These are supplied once and never read from runtime state.
type ChainConfig struct {
	RPCURL        string `toml:"rpc_url"`
	ChainID       int64  `toml:"chain_id"`
	LedgerAddress string `toml:"ledger_address"`
	VenueAddress  string `toml:"venue_address"`
	FeeTier       int    `toml:"fee_tier"`

	InputToken  TokenConfig `toml:"input_token"`
	OutputToken TokenConfig `toml:"output_token"`
}

// TokenConfig describes one of the two assets involved in a rebalance. The
// decimals value drives base-unit scaling and must match the deployed
// contract exactly.
type TokenConfig struct {
	Address  string `toml:"address"`
	Symbol   string `toml:"symbol"`
	Decimals int    `toml:"decimals"`
}

// GuardianConfig holds the safety policy.
type GuardianConfig struct {
	OwnerAddress        string `toml:"owner_address"`
	InitialThresholdBps int64  `toml:"initial_threshold_bps"`
}

// MonitorConfig holds the watched position and refresh behavior.
type MonitorConfig struct {
	AccountOwner    string   `toml:"account_owner"`
	AccountNumber   int64    `toml:"account_number"`
	RefreshInterval duration `toml:"refresh_interval"`
	AutoTrigger     bool     `toml:"auto_trigger"`
	AutoAmountIn    string   `toml:"auto_amount_in"` // human units of the input asset
	AutoMinOut      string   `toml:"auto_min_out"`   // human units of the output asset
}

// PostgresConfig holds audit database connection parameters.
type PostgresConfig struct {
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// S3Config holds the cold-storage parameters for audit archival.
type S3Config struct {
	Enabled        bool   `toml:"enabled"`
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
	RetentionDays  int    `toml:"retention_days"`
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Enabled     bool     `toml:"enabled"`
	Port        int      `toml:"port"`
	CORSOrigins []string `toml:"cors_origins"`
	APIKey      string   `toml:"api_key"`

	// OperatorAddress is the principal policy mutations through the API are
	// attributed to. Holders of the API key act as this address; when unset
	// the policy endpoints are read-only.
	OperatorAddress string `toml:"operator_address"`

	// TriggerRateLimit caps POST /api/rebalance submissions per client IP
	// per minute. The trigger endpoint is the only publicly callable
	// mutation, so it alone is throttled.
	TriggerRateLimit int `toml:"trigger_rate_limit"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// duration wraps time.Duration so TOML can decode strings like "15s".
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns a Config populated with reasonable default values for a
// Polygon deployment swapping USDC into WETH.
func Defaults() Config {
	return Config{
		Chain: ChainConfig{
			ChainID: 137,
			FeeTier: 3000,
			InputToken: TokenConfig{
				Symbol:   "USDC",
				Decimals: 6,
			},
			OutputToken: TokenConfig{
				Symbol:   "WETH",
				Decimals: 18,
			},
		},
		Guardian: GuardianConfig{
			InitialThresholdBps: 1500,
		},
		Monitor: MonitorConfig{
			RefreshInterval: duration{15 * time.Second},
		},
		Postgres: PostgresConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "marginguard",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Addr:       "localhost:6379",
			PoolSize:   20,
			MaxRetries: 3,
		},
		S3: S3Config{
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "marginguard-audit",
			ForcePathStyle: true,
			RetentionDays:  90,
		},
		Server: ServerConfig{
			Enabled:          true,
			Port:             8000,
			CORSOrigins:      []string{"http://localhost:3000"},
			TriggerRateLimit: 10,
		},
		Notify: NotifyConfig{
			Events: []string{"breach_detected", "position_adjusted", "threshold_updated", "error"},
		},
		Mode:     "monitor",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"monitor": true,
	"guard":   true,
	"server":  true,
	"full":    true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// needsWallet reports whether mode submits transactions.
func needsWallet(mode string) bool {
	return mode == "guard" || mode == "full"
}

// Validate checks Config for obviously invalid or missing values and
// returns a combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: monitor, guard, server, full)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Wallet is required for modes that submit transactions.
	if needsWallet(strings.ToLower(c.Mode)) {
		if c.Wallet.PrivateKey == "" && c.Wallet.EncryptedKeyPath == "" {
			errs = append(errs, "wallet: either private_key or encrypted_key_path must be set for mode "+c.Mode)
		}
		if c.Wallet.EncryptedKeyPath != "" && c.Wallet.KeyPassword == "" {
			errs = append(errs, "wallet: key_password is required when encrypted_key_path is set")
		}
	}

	// Chain
	if c.Chain.RPCURL == "" {
		errs = append(errs, "chain: rpc_url must not be empty")
	}
	if c.Chain.ChainID <= 0 {
		errs = append(errs, "chain: chain_id must be positive")
	}
	for name, addr := range map[string]string{
		"ledger_address":       c.Chain.LedgerAddress,
		"venue_address":        c.Chain.VenueAddress,
		"input_token.address":  c.Chain.InputToken.Address,
		"output_token.address": c.Chain.OutputToken.Address,
	} {
		if !common.IsHexAddress(addr) {
			errs = append(errs, fmt.Sprintf("chain: %s %q is not a valid address", name, addr))
		}
	}
	if c.Chain.FeeTier <= 0 {
		errs = append(errs, "chain: fee_tier must be positive")
	}
	for name, tok := range map[string]TokenConfig{
		"input_token":  c.Chain.InputToken,
		"output_token": c.Chain.OutputToken,
	} {
		if tok.Decimals < 0 || tok.Decimals > 36 {
			errs = append(errs, fmt.Sprintf("chain: %s.decimals must be 0-36, got %d", name, tok.Decimals))
		}
		if tok.Symbol == "" {
			errs = append(errs, fmt.Sprintf("chain: %s.symbol must not be empty", name))
		}
	}

	// Guardian policy
	if !common.IsHexAddress(c.Guardian.OwnerAddress) {
		errs = append(errs, fmt.Sprintf("guardian: owner_address %q is not a valid address", c.Guardian.OwnerAddress))
	}
	if c.Guardian.InitialThresholdBps < 0 || c.Guardian.InitialThresholdBps > 10000 {
		errs = append(errs, fmt.Sprintf("guardian: initial_threshold_bps must be 0-10000, got %d", c.Guardian.InitialThresholdBps))
	}

	// Monitor
	if !common.IsHexAddress(c.Monitor.AccountOwner) {
		errs = append(errs, fmt.Sprintf("monitor: account_owner %q is not a valid address", c.Monitor.AccountOwner))
	}
	if c.Monitor.AccountNumber < 0 {
		errs = append(errs, "monitor: account_number must be >= 0")
	}
	if strings.ToLower(c.Mode) == "guard" && !c.Monitor.AutoTrigger {
		errs = append(errs, "monitor: auto_trigger must be enabled in guard mode")
	}
	if c.Monitor.AutoTrigger {
		if c.Monitor.AutoAmountIn == "" {
			errs = append(errs, "monitor: auto_amount_in is required when auto_trigger is enabled")
		}
		if c.Monitor.AutoMinOut == "" {
			errs = append(errs, "monitor: auto_min_out is required when auto_trigger is enabled")
		}
	}

	// Postgres
	if strings.TrimSpace(c.Postgres.DSN) == "" {
		if c.Postgres.Host == "" {
			errs = append(errs, "postgres: host must not be empty (or set postgres.dsn)")
		}
		if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
			errs = append(errs, fmt.Sprintf("postgres: port must be 1-65535, got %d", c.Postgres.Port))
		}
		if c.Postgres.Database == "" {
			errs = append(errs, "postgres: database must not be empty")
		}
	}
	if c.Postgres.PoolMaxConns < 1 {
		errs = append(errs, "postgres: pool_max_conns must be >= 1")
	}
	if c.Postgres.PoolMinConns < 0 || c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
		errs = append(errs, "postgres: pool_min_conns must be 0..pool_max_conns")
	}

	// Redis
	if c.Redis.Addr == "" {
		errs = append(errs, "redis: addr must not be empty")
	}
	if c.Redis.PoolSize < 1 {
		errs = append(errs, "redis: pool_size must be >= 1")
	}

	// S3
	if c.S3.Enabled {
		if c.S3.Endpoint == "" {
			errs = append(errs, "s3: endpoint must not be empty")
		}
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty")
		}
		if c.S3.RetentionDays < 1 {
			errs = append(errs, "s3: retention_days must be >= 1")
		}
	}

	// Server
	if c.Server.Enabled {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
		if c.Server.TriggerRateLimit < 0 {
			errs = append(errs, fmt.Sprintf("server: trigger_rate_limit must be >= 0, got %d", c.Server.TriggerRateLimit))
		}
		if c.Server.OperatorAddress != "" && !common.IsHexAddress(c.Server.OperatorAddress) {
			errs = append(errs, fmt.Sprintf("server: operator_address %q is not a valid address", c.Server.OperatorAddress))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
