package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load builds the effective configuration: defaults, then the TOML file at
// path (if non-empty), then environment variable overrides. A .env file in
// the working directory is loaded first when present so container and local
// runs behave the same.
func Load(path string) (Config, error) {
	// Missing .env is fine; only surface real read failures.
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return Config{}, fmt.Errorf("config: load .env: %w", err)
	}

	cfg := Defaults()

	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return Config{}, fmt.Errorf("config: decode %s: %w", path, err)
		}
	}

	applyEnvOverrides(&cfg)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// applyEnvOverrides mutates cfg with any MARGINGUARD_* environment variables
// that are present and non-empty.
func applyEnvOverrides(cfg *Config) {
	setStr(&cfg.Mode, "MARGINGUARD_MODE")
	setStr(&cfg.LogLevel, "MARGINGUARD_LOG_LEVEL")

	setStr(&cfg.Wallet.PrivateKey, "MARGINGUARD_WALLET_PRIVATE_KEY")
	setStr(&cfg.Wallet.EncryptedKeyPath, "MARGINGUARD_WALLET_ENCRYPTED_KEY_PATH")
	setStr(&cfg.Wallet.KeyPassword, "MARGINGUARD_WALLET_KEY_PASSWORD")

	setStr(&cfg.Chain.RPCURL, "MARGINGUARD_CHAIN_RPC_URL")
	setInt64(&cfg.Chain.ChainID, "MARGINGUARD_CHAIN_ID")
	setStr(&cfg.Chain.LedgerAddress, "MARGINGUARD_CHAIN_LEDGER_ADDRESS")
	setStr(&cfg.Chain.VenueAddress, "MARGINGUARD_CHAIN_VENUE_ADDRESS")
	setInt(&cfg.Chain.FeeTier, "MARGINGUARD_CHAIN_FEE_TIER")
	setStr(&cfg.Chain.InputToken.Address, "MARGINGUARD_INPUT_TOKEN_ADDRESS")
	setStr(&cfg.Chain.InputToken.Symbol, "MARGINGUARD_INPUT_TOKEN_SYMBOL")
	setInt(&cfg.Chain.InputToken.Decimals, "MARGINGUARD_INPUT_TOKEN_DECIMALS")
	setStr(&cfg.Chain.OutputToken.Address, "MARGINGUARD_OUTPUT_TOKEN_ADDRESS")
	setStr(&cfg.Chain.OutputToken.Symbol, "MARGINGUARD_OUTPUT_TOKEN_SYMBOL")
	setInt(&cfg.Chain.OutputToken.Decimals, "MARGINGUARD_OUTPUT_TOKEN_DECIMALS")

	setStr(&cfg.Guardian.OwnerAddress, "MARGINGUARD_OWNER_ADDRESS")
	setInt64(&cfg.Guardian.InitialThresholdBps, "MARGINGUARD_THRESHOLD_BPS")

	setStr(&cfg.Monitor.AccountOwner, "MARGINGUARD_ACCOUNT_OWNER")
	setInt64(&cfg.Monitor.AccountNumber, "MARGINGUARD_ACCOUNT_NUMBER")
	setDuration(&cfg.Monitor.RefreshInterval, "MARGINGUARD_REFRESH_INTERVAL")
	setBool(&cfg.Monitor.AutoTrigger, "MARGINGUARD_AUTO_TRIGGER")
	setStr(&cfg.Monitor.AutoAmountIn, "MARGINGUARD_AUTO_AMOUNT_IN")
	setStr(&cfg.Monitor.AutoMinOut, "MARGINGUARD_AUTO_MIN_OUT")

	setStr(&cfg.Postgres.DSN, "MARGINGUARD_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "MARGINGUARD_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "MARGINGUARD_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "MARGINGUARD_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "MARGINGUARD_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "MARGINGUARD_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "MARGINGUARD_POSTGRES_SSL_MODE")
	setBool(&cfg.Postgres.RunMigrations, "MARGINGUARD_POSTGRES_RUN_MIGRATIONS")

	setStr(&cfg.Redis.Addr, "MARGINGUARD_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "MARGINGUARD_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "MARGINGUARD_REDIS_DB")
	setBool(&cfg.Redis.TLSEnabled, "MARGINGUARD_REDIS_TLS_ENABLED")

	setBool(&cfg.S3.Enabled, "MARGINGUARD_S3_ENABLED")
	setStr(&cfg.S3.Endpoint, "MARGINGUARD_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "MARGINGUARD_S3_REGION")
	setStr(&cfg.S3.Bucket, "MARGINGUARD_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "MARGINGUARD_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "MARGINGUARD_S3_SECRET_KEY")
	setInt(&cfg.S3.RetentionDays, "MARGINGUARD_S3_RETENTION_DAYS")

	setBool(&cfg.Server.Enabled, "MARGINGUARD_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "MARGINGUARD_SERVER_PORT")
	setStr(&cfg.Server.APIKey, "MARGINGUARD_SERVER_API_KEY")
	setStr(&cfg.Server.OperatorAddress, "MARGINGUARD_SERVER_OPERATOR_ADDRESS")
	setInt(&cfg.Server.TriggerRateLimit, "MARGINGUARD_SERVER_TRIGGER_RATE_LIMIT")
	setStringSlice(&cfg.Server.CORSOrigins, "MARGINGUARD_SERVER_CORS_ORIGINS")

	setStr(&cfg.Notify.TelegramToken, "MARGINGUARD_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "MARGINGUARD_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "MARGINGUARD_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "MARGINGUARD_NOTIFY_EVENTS")
}

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
		if len(out) > 0 {
			*dst = out
		}
	}
}
