// Package config defines the top-level configuration for the arbitrage
// engine and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Config is the root configuration structure. Fields are populated from a
// TOML file and then optionally overridden by DEXARB_* environment variables.
type Config struct {
	Wallet   WalletConfig   `toml:"wallet"`
	Chain    ChainConfig    `toml:"chain"`
	Venues   []VenueConfig  `toml:"venues"`
	Assets   []AssetConfig  `toml:"assets"`
	Scanner  ScannerConfig  `toml:"scanner"`
	Risk     RiskConfig     `toml:"risk"`
	Executor ExecutorConfig `toml:"executor"`
	Oracle   OracleConfig   `toml:"oracle"`
	AI       AIConfig       `toml:"ai"`
	Postgres PostgresConfig `toml:"postgres"`
	Redis    RedisConfig    `toml:"redis"`
	S3       S3Config       `toml:"s3"`
	Server   ServerConfig   `toml:"server"`
	Notify   NotifyConfig   `toml:"notify"`
	Mode     string         `toml:"mode"`
	LogLevel string         `toml:"log_level"`
}

// WalletConfig holds the trading wallet credentials. Exactly one of
// PrivateKey or EncryptedKeyPath must be provided.
type WalletConfig struct {
	PrivateKey       string `toml:"private_key"`
	EncryptedKeyPath string `toml:"encrypted_key_path"`
	KeyPassword      string `toml:"key_password"`
}

// ChainConfig holds RPC and chain parameters.
type ChainConfig struct {
	RPCURL       string `toml:"rpc_url"`
	ChainID      int64  `toml:"chain_id"`
	NativeSymbol string `toml:"native_symbol"`
	// WrappedNative is the wrapped native token address, used to price gas
	// cost in origin-asset terms.
	WrappedNative string `toml:"wrapped_native"`
	// ConfirmTimeout bounds how long a receipt wait may block.
	ConfirmTimeout duration `toml:"confirm_timeout"`
	// ReceiptPollInterval is the receipt polling cadence.
	ReceiptPollInterval duration `toml:"receipt_poll_interval"`
	// CallTimeout bounds every single RPC read.
	CallTimeout duration `toml:"call_timeout"`
}

// WrappedNativeAddress parses the wrapped native token address. Returns the
// zero address when unset.
func (c ChainConfig) WrappedNativeAddress() common.Address {
	return common.HexToAddress(c.WrappedNative)
}

// VenueConfig describes one liquidity venue adapter to register.
type VenueConfig struct {
	Name string `toml:"name"`
	// Model selects the quoting math: "constant_product" or "concentrated".
	Model   string `toml:"model"`
	Factory string `toml:"factory"`
	Router  string `toml:"router"`
	// Quoter is the QuoterV2 contract for concentrated venues.
	Quoter string `toml:"quoter"`
	// FeeBps is the pool fee for constant-product venues.
	FeeBps int64 `toml:"fee_bps"`
	// FeeTiers lists the fee tiers (in hundredths of a bp, e.g. 500, 3000)
	// probed on concentrated venues.
	FeeTiers []int64 `toml:"fee_tiers"`
	// Established marks venues with a long operating history; unestablished
	// venues carry a risk surcharge.
	Established bool `toml:"established"`
	// RPCRateLimit caps the venue's outbound RPC calls per second.
	RPCRateLimit int `toml:"rpc_rate_limit"`
}

// AssetConfig describes one monitored asset.
type AssetConfig struct {
	Address    string `toml:"address"`
	Symbol     string `toml:"symbol"`
	Decimals   int    `toml:"decimals"`
	Stablecoin bool   `toml:"stablecoin"`
	// Major marks widely held assets (WETH, WBTC) that earn a trust bonus.
	Major bool `toml:"major"`
}

// ScannerConfig holds the scan loop parameters.
type ScannerConfig struct {
	Interval duration `toml:"interval"`
	// ProbeTokens is the probe input size in whole tokens of the origin
	// asset, converted to smallest units per asset at scan time.
	ProbeTokens float64 `toml:"probe_tokens"`
	// MaxConcurrentPairs bounds parallel pair scans within one tick.
	MaxConcurrentPairs int `toml:"max_concurrent_pairs"`
	// ChannelBuffer is the capacity of the opportunity channel between the
	// scanner and the orchestrator.
	ChannelBuffer int `toml:"channel_buffer"`
	// QuoteTimeout bounds each venue quoting call.
	QuoteTimeout duration `toml:"quote_timeout"`
}

// RiskConfig holds the risk gate's tunable limits. These are read at
// assessment time through Limits, so operational changes apply on the next
// cycle without a restart.
type RiskConfig struct {
	MinProfitBps       int64    `toml:"min_profit_bps"`
	MaxSlippageBps     int64    `toml:"max_slippage_bps"`
	MinSlippageBps     int64    `toml:"min_slippage_bps"`
	MaxPositionTokens  float64  `toml:"max_position_tokens"`
	DailyVolumeTokens  float64  `toml:"daily_volume_tokens"`
	DailyTradeCap      int      `toml:"daily_trade_cap"`
	ConcurrentTradeCap int      `toml:"concurrent_trade_cap"`
	Cooldown           duration `toml:"cooldown"`
	// LowLiquidityTokens is the floor below which a pool is considered thin.
	LowLiquidityTokens float64 `toml:"low_liquidity_tokens"`
	// ProfitSafetyFloorBps and ProfitSuspicionBps bound sane profit: below
	// the floor execution risk dominates, above the ceiling the quotes are
	// probably stale or wrong.
	ProfitSafetyFloorBps int64 `toml:"profit_safety_floor_bps"`
	ProfitSuspicionBps   int64 `toml:"profit_suspicion_bps"`
	// FreshFor / StaleAfter are the tiered age thresholds.
	FreshFor   duration `toml:"fresh_for"`
	StaleAfter duration `toml:"stale_after"`
	// AIConfidenceThreshold is the minimum oracle confidence that avoids a
	// low-confidence penalty.
	AIConfidenceThreshold float64 `toml:"ai_confidence_threshold"`
}

// ExecutorConfig holds execution parameters.
type ExecutorConfig struct {
	TradingEnabled  bool     `toml:"trading_enabled"`
	MaxGasPriceGwei int64    `toml:"max_gas_price_gwei"`
	LegDelay        duration `toml:"leg_delay"`
	// MaxDegradationBps is the revalidation bound: reject when current
	// profit degraded by more than this share of the detected profit.
	// Expressed in bps of the original profit (5000 = 50%).
	MaxDegradationBps int64 `toml:"max_degradation_bps"`
}

// OracleConfig holds the spot price oracle endpoints.
type OracleConfig struct {
	BaseURL string `toml:"base_url"`
	// WSURL is the ticker stream endpoint for the websocket feed.
	WSURL string `toml:"ws_url"`
	// Streams maps asset addresses to ticker stream symbols (e.g. "ethusdt").
	Streams map[string]string `toml:"streams"`
	// CacheTTL is how long a cached observation stays fresh.
	CacheTTL duration `toml:"cache_ttl"`
}

// AIConfig holds the confidence oracle parameters.
type AIConfig struct {
	Enabled bool     `toml:"enabled"`
	APIKey  string   `toml:"api_key"`
	BaseURL string   `toml:"base_url"`
	Model   string   `toml:"model"`
	Timeout duration `toml:"timeout"`
}

// PostgresConfig holds PostgreSQL connection parameters.
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

// S3Config holds S3-compatible object storage parameters for the execution
// history archiver.
type S3Config struct {
	Enabled        bool   `toml:"enabled"`
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Enabled     bool     `toml:"enabled"`
	Port        int      `toml:"port"`
	APIKey      string   `toml:"api_key"`
	CORSOrigins []string `toml:"cors_origins"`
	// RateLimit bounds API requests per client IP per RateWindow. Zero
	// disables rate limiting.
	RateLimit  int      `toml:"rate_limit"`
	RateWindow duration `toml:"rate_window"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// duration is a wrapper around time.Duration that supports TOML string
// decoding (e.g. "5m", "30s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "5m" or "30s".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns a Config populated with reasonable default values for
// Polygon mainnet.
func Defaults() Config {
	return Config{
		Chain: ChainConfig{
			RPCURL:              "https://polygon-rpc.com",
			ChainID:             137,
			NativeSymbol:        "MATIC",
			ConfirmTimeout:      duration{2 * time.Minute},
			ReceiptPollInterval: duration{2 * time.Second},
			CallTimeout:         duration{10 * time.Second},
		},
		Scanner: ScannerConfig{
			Interval:           duration{15 * time.Second},
			ProbeTokens:        100,
			MaxConcurrentPairs: 8,
			ChannelBuffer:      64,
			QuoteTimeout:       duration{8 * time.Second},
		},
		Risk: RiskConfig{
			MinProfitBps:          50,
			MaxSlippageBps:        100,
			MinSlippageBps:        10,
			MaxPositionTokens:     1_000,
			DailyVolumeTokens:     10_000,
			DailyTradeCap:         20,
			ConcurrentTradeCap:    1,
			Cooldown:              duration{30 * time.Second},
			LowLiquidityTokens:    5_000,
			ProfitSafetyFloorBps:  20,
			ProfitSuspicionBps:    500,
			FreshFor:              duration{30 * time.Second},
			StaleAfter:            duration{2 * time.Minute},
			AIConfidenceThreshold: 0.6,
		},
		Executor: ExecutorConfig{
			TradingEnabled:    false,
			MaxGasPriceGwei:   300,
			LegDelay:          duration{500 * time.Millisecond},
			MaxDegradationBps: 5_000,
		},
		Oracle: OracleConfig{
			BaseURL:  "https://api.dexscreener.com",
			WSURL:    "wss://stream.binance.com:9443/ws",
			Streams:  map[string]string{},
			CacheTTL: duration{30 * time.Second},
		},
		AI: AIConfig{
			Enabled: false,
			Model:   "gpt-4o-mini",
			Timeout: duration{15 * time.Second},
		},
		Postgres: PostgresConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "dexarb",
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
			Enabled:        false,
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "dexarb-history",
			ForcePathStyle: true,
		},
		Server: ServerConfig{
			Enabled:    true,
			Port:       8080,
			RateLimit:  50,
			RateWindow: duration{time.Second},
		},
		Mode:     "scan",
		LogLevel: "info",
	}
}

// Validate checks the configuration for fatal inconsistencies. It is called
// once at startup, after Load.
func (c *Config) Validate() error {
	switch strings.ToLower(c.Mode) {
	case "scan", "trade", "full":
	default:
		return fmt.Errorf("config: unsupported mode %q", c.Mode)
	}

	if c.Chain.RPCURL == "" {
		return fmt.Errorf("config: chain.rpc_url is required")
	}
	if c.Chain.ChainID == 0 {
		return fmt.Errorf("config: chain.chain_id is required")
	}

	if len(c.Venues) < 2 {
		return fmt.Errorf("config: at least two venues are required, got %d", len(c.Venues))
	}
	seen := make(map[string]bool, len(c.Venues))
	for i, v := range c.Venues {
		if v.Name == "" {
			return fmt.Errorf("config: venues[%d].name is required", i)
		}
		if seen[v.Name] {
			return fmt.Errorf("config: duplicate venue %q", v.Name)
		}
		seen[v.Name] = true
		switch v.Model {
		case "constant_product":
			if v.Factory == "" || v.Router == "" {
				return fmt.Errorf("config: venue %q needs factory and router", v.Name)
			}
		case "concentrated":
			if v.Factory == "" || v.Router == "" || v.Quoter == "" {
				return fmt.Errorf("config: venue %q needs factory, router and quoter", v.Name)
			}
		default:
			return fmt.Errorf("config: venue %q has unknown model %q", v.Name, v.Model)
		}
	}

	if len(c.Assets) < 2 {
		return fmt.Errorf("config: at least two assets are required, got %d", len(c.Assets))
	}
	for i, a := range c.Assets {
		if a.Address == "" {
			return fmt.Errorf("config: assets[%d].address is required", i)
		}
		if a.Decimals <= 0 || a.Decimals > 30 {
			return fmt.Errorf("config: asset %q has invalid decimals %d", a.Symbol, a.Decimals)
		}
	}

	if c.Scanner.Interval.Duration <= 0 {
		return fmt.Errorf("config: scanner.interval must be positive")
	}
	if c.Scanner.ProbeTokens <= 0 {
		return fmt.Errorf("config: scanner.probe_tokens must be positive")
	}
	if c.Risk.MinProfitBps <= 0 {
		return fmt.Errorf("config: risk.min_profit_bps must be positive")
	}
	if c.Risk.MinSlippageBps <= 0 || c.Risk.MinSlippageBps > c.Risk.MaxSlippageBps {
		return fmt.Errorf("config: risk slippage bounds invalid (min %d, max %d)",
			c.Risk.MinSlippageBps, c.Risk.MaxSlippageBps)
	}

	mode := strings.ToLower(c.Mode)
	if (mode == "trade" || mode == "full") && c.Executor.TradingEnabled {
		if c.Wallet.PrivateKey == "" && c.Wallet.EncryptedKeyPath == "" {
			return fmt.Errorf("config: trading enabled but no wallet key configured")
		}
	}

	return nil
}
