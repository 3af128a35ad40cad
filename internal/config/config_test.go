package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testTOML = `
mode = "trade"
log_level = "debug"

[chain]
rpc_url = "https://rpc.example.org"
chain_id = 137
confirm_timeout = "90s"

[wallet]
private_key = "0xabc123"

[scanner]
interval = "5s"
probe_tokens = 10.0

[risk]
min_profit_bps = 75
min_slippage_bps = 20
max_slippage_bps = 150

[[venues]]
name = "quickswap"
model = "constant_product"
factory = "0x5757371414417b8C6CAad45bAeF941aBc7d3Ab32"
router = "0xa5E0829CaCEd8fFDD4De3c43696c57F7D7A678ff"
fee_bps = 30

[[venues]]
name = "sushiswap"
model = "constant_product"
factory = "0xc35DADB65012eC5796536bD9864eD8773aBc74C4"
router = "0x1b02dA8Cb0d097eB8D57A175b88c7D8b47997506"
fee_bps = 30

[[assets]]
address = "0x7ceB23fD6bC0adD59E62ac25578270cFf1b9f619"
symbol = "WETH"
decimals = 18
major = true

[[assets]]
address = "0x2791Bca1f2de4661ED88A30C99A7a9449Aa84174"
symbol = "USDC"
decimals = 6
stablecoin = true
`

func writeTOML(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadMergesFileOverDefaults(t *testing.T) {
	cfg, err := Load(writeTOML(t, testTOML))
	require.NoError(t, err)

	assert.Equal(t, "trade", cfg.Mode)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "https://rpc.example.org", cfg.Chain.RPCURL)
	assert.Equal(t, 90*time.Second, cfg.Chain.ConfirmTimeout.Duration)
	assert.Equal(t, 5*time.Second, cfg.Scanner.Interval.Duration)
	assert.Equal(t, int64(75), cfg.Risk.MinProfitBps)

	// Untouched sections keep their defaults.
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
	assert.Equal(t, int64(300), cfg.Executor.MaxGasPriceGwei)
	assert.Equal(t, int64(5_000), cfg.Executor.MaxDegradationBps)

	require.Len(t, cfg.Venues, 2)
	assert.Equal(t, "quickswap", cfg.Venues[0].Name)
	require.Len(t, cfg.Assets, 2)
	assert.Equal(t, 6, cfg.Assets[1].Decimals)

	require.NoError(t, cfg.Validate())
}

func TestLoadAppliesEnvOverrides(t *testing.T) {
	t.Setenv("DEXARB_CHAIN_RPC_URL", "https://override.example.org")
	t.Setenv("DEXARB_RISK_MIN_PROFIT_BPS", "120")
	t.Setenv("DEXARB_SCANNER_INTERVAL", "3s")
	t.Setenv("DEXARB_EXECUTOR_TRADING_ENABLED", "true")
	t.Setenv("DEXARB_SERVER_CORS_ORIGINS", "https://a.example, https://b.example")
	t.Setenv("DEXARB_RISK_FRESH_FOR", "45s")
	t.Setenv("DEXARB_RISK_STALE_AFTER", "3m")
	t.Setenv("DEXARB_RISK_LOW_LIQUIDITY_TOKENS", "2500")
	t.Setenv("DEXARB_RISK_PROFIT_SAFETY_FLOOR_BPS", "25")
	t.Setenv("DEXARB_RISK_PROFIT_SUSPICION_BPS", "800")
	t.Setenv("DEXARB_EXECUTOR_MAX_DEGRADATION_BPS", "4000")

	cfg, err := Load(writeTOML(t, testTOML))
	require.NoError(t, err)

	assert.Equal(t, "https://override.example.org", cfg.Chain.RPCURL)
	assert.Equal(t, int64(120), cfg.Risk.MinProfitBps)
	assert.Equal(t, 3*time.Second, cfg.Scanner.Interval.Duration)
	assert.True(t, cfg.Executor.TradingEnabled)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Server.CORSOrigins)
	assert.Equal(t, 45*time.Second, cfg.Risk.FreshFor.Duration)
	assert.Equal(t, 3*time.Minute, cfg.Risk.StaleAfter.Duration)
	assert.Equal(t, 2500.0, cfg.Risk.LowLiquidityTokens)
	assert.Equal(t, int64(25), cfg.Risk.ProfitSafetyFloorBps)
	assert.Equal(t, int64(800), cfg.Risk.ProfitSuspicionBps)
	assert.Equal(t, int64(4000), cfg.Executor.MaxDegradationBps)
}

func TestLoadIgnoresMalformedEnvValues(t *testing.T) {
	t.Setenv("DEXARB_RISK_MIN_PROFIT_BPS", "not-a-number")
	t.Setenv("DEXARB_SCANNER_INTERVAL", "soon")

	cfg, err := Load(writeTOML(t, testTOML))
	require.NoError(t, err)

	// File values survive when the override cannot be parsed.
	assert.Equal(t, int64(75), cfg.Risk.MinProfitBps)
	assert.Equal(t, 5*time.Second, cfg.Scanner.Interval.Duration)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.toml"))
	assert.Error(t, err)
}

func TestValidateRejectsBadConfigs(t *testing.T) {
	base := func() *Config {
		cfg, err := Load(writeTOML(t, testTOML))
		require.NoError(t, err)
		return cfg
	}

	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"bad mode", func(c *Config) { c.Mode = "simulate" }, "unsupported mode"},
		{"missing rpc", func(c *Config) { c.Chain.RPCURL = "" }, "rpc_url"},
		{"one venue", func(c *Config) { c.Venues = c.Venues[:1] }, "two venues"},
		{"duplicate venue", func(c *Config) { c.Venues[1].Name = c.Venues[0].Name }, "duplicate venue"},
		{"unknown model", func(c *Config) { c.Venues[0].Model = "curve" }, "unknown model"},
		{"missing quoter", func(c *Config) { c.Venues[0].Model = "concentrated" }, "quoter"},
		{"one asset", func(c *Config) { c.Assets = c.Assets[:1] }, "two assets"},
		{"bad decimals", func(c *Config) { c.Assets[0].Decimals = 0 }, "decimals"},
		{"zero interval", func(c *Config) { c.Scanner.Interval.Duration = 0 }, "interval"},
		{"zero min profit", func(c *Config) { c.Risk.MinProfitBps = 0 }, "min_profit_bps"},
		{"inverted slippage", func(c *Config) { c.Risk.MinSlippageBps = 200 }, "slippage"},
		{"trading without key", func(c *Config) {
			c.Executor.TradingEnabled = true
			c.Wallet = WalletConfig{}
		}, "wallet key"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestDurationUnmarshalText(t *testing.T) {
	var d duration
	require.NoError(t, d.UnmarshalText([]byte("2m30s")))
	assert.Equal(t, 150*time.Second, d.Duration)

	assert.Error(t, d.UnmarshalText([]byte("later")))

	require.NoError(t, d.UnmarshalText([]byte("2m30s")))
	text, err := d.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "2m30s", string(text))
}
