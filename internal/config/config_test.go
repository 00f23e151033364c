package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const owner = "0x1111111111111111111111111111111111111111"

// valid returns a configuration that passes Validate in monitor mode.
func valid() Config {
	cfg := Defaults()
	cfg.Chain.RPCURL = "https://polygon-rpc.example"
	cfg.Chain.LedgerAddress = "0x2222222222222222222222222222222222222222"
	cfg.Chain.VenueAddress = "0x3333333333333333333333333333333333333333"
	cfg.Chain.InputToken.Address = "0x4444444444444444444444444444444444444444"
	cfg.Chain.OutputToken.Address = "0x5555555555555555555555555555555555555555"
	cfg.Guardian.OwnerAddress = owner
	cfg.Monitor.AccountOwner = owner
	return cfg
}

func TestDefaults(t *testing.T) {
	cfg := Defaults()
	assert.Equal(t, "monitor", cfg.Mode)
	assert.Equal(t, int64(137), cfg.Chain.ChainID)
	assert.Equal(t, 6, cfg.Chain.InputToken.Decimals)
	assert.Equal(t, 18, cfg.Chain.OutputToken.Decimals)
	assert.Equal(t, int64(1500), cfg.Guardian.InitialThresholdBps)
	assert.Equal(t, 15*time.Second, cfg.Monitor.RefreshInterval.Duration)
	assert.Equal(t, 10, cfg.Server.TriggerRateLimit)
}

func TestValidateOK(t *testing.T) {
	cfg := valid()
	require.NoError(t, cfg.Validate())
}

func TestValidateCollectsAllProblems(t *testing.T) {
	cfg := valid()
	cfg.Chain.RPCURL = ""
	cfg.Chain.ChainID = 0
	cfg.Guardian.InitialThresholdBps = 10001
	cfg.Mode = "turbo"

	err := cfg.Validate()
	require.Error(t, err)
	msg := err.Error()
	assert.Contains(t, msg, "rpc_url")
	assert.Contains(t, msg, "chain_id")
	assert.Contains(t, msg, "initial_threshold_bps")
	assert.Contains(t, msg, `mode "turbo"`)
}

func TestValidateAddresses(t *testing.T) {
	cfg := valid()
	cfg.Guardian.OwnerAddress = "not-an-address"
	cfg.Monitor.AccountOwner = "0x123"

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "owner_address")
	assert.Contains(t, err.Error(), "account_owner")
}

func TestValidateWalletRequiredForGuardMode(t *testing.T) {
	cfg := valid()
	cfg.Mode = "guard"
	cfg.Monitor.AutoTrigger = true
	cfg.Monitor.AutoAmountIn = "1000"
	cfg.Monitor.AutoMinOut = "0.25"

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "wallet")

	cfg.Wallet.PrivateKey = "deadbeef"
	require.NoError(t, cfg.Validate())
}

func TestValidateGuardModeRequiresAutoTrigger(t *testing.T) {
	cfg := valid()
	cfg.Mode = "guard"
	cfg.Wallet.PrivateKey = "deadbeef"

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "auto_trigger")
}

func TestValidateAutoTriggerAmounts(t *testing.T) {
	cfg := valid()
	cfg.Monitor.AutoTrigger = true

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "auto_amount_in")
	assert.Contains(t, err.Error(), "auto_min_out")

	cfg.Monitor.AutoAmountIn = "1000"
	cfg.Monitor.AutoMinOut = "0.25"
	require.NoError(t, cfg.Validate())
}

func TestLoadTOMLFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	body := strings.Join([]string{
		`mode = "monitor"`,
		``,
		`[chain]`,
		`rpc_url = "https://polygon-rpc.example"`,
		`chain_id = 137`,
		`ledger_address = "0x2222222222222222222222222222222222222222"`,
		`venue_address = "0x3333333333333333333333333333333333333333"`,
		``,
		`[chain.input_token]`,
		`address = "0x4444444444444444444444444444444444444444"`,
		`symbol = "USDC"`,
		`decimals = 6`,
		``,
		`[chain.output_token]`,
		`address = "0x5555555555555555555555555555555555555555"`,
		`symbol = "WETH"`,
		`decimals = 18`,
		``,
		`[guardian]`,
		`owner_address = "` + owner + `"`,
		`initial_threshold_bps = 2000`,
		``,
		`[monitor]`,
		`account_owner = "` + owner + `"`,
		`account_number = 7`,
		`refresh_interval = "30s"`,
	}, "\n")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, int64(2000), cfg.Guardian.InitialThresholdBps)
	assert.Equal(t, int64(7), cfg.Monitor.AccountNumber)
	assert.Equal(t, 30*time.Second, cfg.Monitor.RefreshInterval.Duration)
	// Untouched values fall back to defaults.
	assert.Equal(t, 3000, cfg.Chain.FeeTier)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("MARGINGUARD_THRESHOLD_BPS", "4200")
	t.Setenv("MARGINGUARD_REFRESH_INTERVAL", "5s")
	t.Setenv("MARGINGUARD_AUTO_TRIGGER", "true")
	t.Setenv("MARGINGUARD_SERVER_CORS_ORIGINS", "https://a.example, https://b.example")
	t.Setenv("MARGINGUARD_SERVER_TRIGGER_RATE_LIMIT", "3")
	t.Setenv("MARGINGUARD_SERVER_OPERATOR_ADDRESS", "0x1111111111111111111111111111111111111111")

	cfg := valid()
	applyEnvOverrides(&cfg)

	assert.Equal(t, int64(4200), cfg.Guardian.InitialThresholdBps)
	assert.Equal(t, 5*time.Second, cfg.Monitor.RefreshInterval.Duration)
	assert.True(t, cfg.Monitor.AutoTrigger)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Server.CORSOrigins)
	assert.Equal(t, 3, cfg.Server.TriggerRateLimit)
	assert.Equal(t, "0x1111111111111111111111111111111111111111", cfg.Server.OperatorAddress)
}

func TestValidateRejectsMalformedOperatorAddress(t *testing.T) {
	cfg := valid()
	cfg.Server.Enabled = true
	cfg.Server.OperatorAddress = "not-an-address"

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "operator_address")
}

func TestEnvOverridesIgnoreEmptyAndMalformed(t *testing.T) {
	t.Setenv("MARGINGUARD_THRESHOLD_BPS", "not-a-number")
	t.Setenv("MARGINGUARD_CHAIN_RPC_URL", "")

	cfg := valid()
	before := cfg.Guardian.InitialThresholdBps
	applyEnvOverrides(&cfg)

	assert.Equal(t, before, cfg.Guardian.InitialThresholdBps)
	assert.Equal(t, "https://polygon-rpc.example", cfg.Chain.RPCURL)
}

func TestRedacted(t *testing.T) {
	cfg := valid()
	cfg.Wallet.PrivateKey = "secret"
	cfg.Postgres.Password = "secret"
	cfg.Server.APIKey = "secret"

	red := cfg.Redacted()
	assert.Equal(t, "[REDACTED]", red.Wallet.PrivateKey)
	assert.Equal(t, "[REDACTED]", red.Postgres.Password)
	assert.Equal(t, "[REDACTED]", red.Server.APIKey)
	// original untouched
	assert.Equal(t, "secret", cfg.Wallet.PrivateKey)
}
