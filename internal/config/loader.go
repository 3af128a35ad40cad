package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies DEXARB_* environment variable overrides, and
// returns the final Config. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known DEXARB_* environment variables and
// overwrites the corresponding Config fields when a variable is set. This
// lets operators inject secrets at deploy time without touching the TOML.
func applyEnvOverrides(cfg *Config) {
	// ── Wallet ──
	setStr(&cfg.Wallet.PrivateKey, "DEXARB_WALLET_PRIVATE_KEY")
	setStr(&cfg.Wallet.EncryptedKeyPath, "DEXARB_WALLET_ENCRYPTED_KEY_PATH")
	setStr(&cfg.Wallet.KeyPassword, "DEXARB_WALLET_KEY_PASSWORD")

	// ── Chain ──
	setStr(&cfg.Chain.RPCURL, "DEXARB_CHAIN_RPC_URL")
	setInt64(&cfg.Chain.ChainID, "DEXARB_CHAIN_ID")
	setStr(&cfg.Chain.WrappedNative, "DEXARB_CHAIN_WRAPPED_NATIVE")
	setDuration(&cfg.Chain.ConfirmTimeout, "DEXARB_CHAIN_CONFIRM_TIMEOUT")
	setDuration(&cfg.Chain.CallTimeout, "DEXARB_CHAIN_CALL_TIMEOUT")

	// ── Scanner ──
	setDuration(&cfg.Scanner.Interval, "DEXARB_SCANNER_INTERVAL")
	setFloat64(&cfg.Scanner.ProbeTokens, "DEXARB_SCANNER_PROBE_TOKENS")
	setInt(&cfg.Scanner.MaxConcurrentPairs, "DEXARB_SCANNER_MAX_CONCURRENT_PAIRS")
	setInt(&cfg.Scanner.ChannelBuffer, "DEXARB_SCANNER_CHANNEL_BUFFER")
	setDuration(&cfg.Scanner.QuoteTimeout, "DEXARB_SCANNER_QUOTE_TIMEOUT")

	// ── Risk ──
	setInt64(&cfg.Risk.MinProfitBps, "DEXARB_RISK_MIN_PROFIT_BPS")
	setInt64(&cfg.Risk.MaxSlippageBps, "DEXARB_RISK_MAX_SLIPPAGE_BPS")
	setInt64(&cfg.Risk.MinSlippageBps, "DEXARB_RISK_MIN_SLIPPAGE_BPS")
	setFloat64(&cfg.Risk.MaxPositionTokens, "DEXARB_RISK_MAX_POSITION_TOKENS")
	setFloat64(&cfg.Risk.DailyVolumeTokens, "DEXARB_RISK_DAILY_VOLUME_TOKENS")
	setInt(&cfg.Risk.DailyTradeCap, "DEXARB_RISK_DAILY_TRADE_CAP")
	setInt(&cfg.Risk.ConcurrentTradeCap, "DEXARB_RISK_CONCURRENT_TRADE_CAP")
	setDuration(&cfg.Risk.Cooldown, "DEXARB_RISK_COOLDOWN")
	setFloat64(&cfg.Risk.AIConfidenceThreshold, "DEXARB_RISK_AI_CONFIDENCE_THRESHOLD")
	setDuration(&cfg.Risk.FreshFor, "DEXARB_RISK_FRESH_FOR")
	setDuration(&cfg.Risk.StaleAfter, "DEXARB_RISK_STALE_AFTER")
	setFloat64(&cfg.Risk.LowLiquidityTokens, "DEXARB_RISK_LOW_LIQUIDITY_TOKENS")
	setInt64(&cfg.Risk.ProfitSafetyFloorBps, "DEXARB_RISK_PROFIT_SAFETY_FLOOR_BPS")
	setInt64(&cfg.Risk.ProfitSuspicionBps, "DEXARB_RISK_PROFIT_SUSPICION_BPS")

	// ── Executor ──
	setBool(&cfg.Executor.TradingEnabled, "DEXARB_EXECUTOR_TRADING_ENABLED")
	setInt64(&cfg.Executor.MaxGasPriceGwei, "DEXARB_EXECUTOR_MAX_GAS_PRICE_GWEI")
	setInt64(&cfg.Executor.MaxDegradationBps, "DEXARB_EXECUTOR_MAX_DEGRADATION_BPS")
	setDuration(&cfg.Executor.LegDelay, "DEXARB_EXECUTOR_LEG_DELAY")

	// ── Oracle ──
	setStr(&cfg.Oracle.BaseURL, "DEXARB_ORACLE_BASE_URL")
	setStr(&cfg.Oracle.WSURL, "DEXARB_ORACLE_WS_URL")

	// ── AI ──
	setBool(&cfg.AI.Enabled, "DEXARB_AI_ENABLED")
	setStr(&cfg.AI.APIKey, "DEXARB_AI_API_KEY")
	setStr(&cfg.AI.BaseURL, "DEXARB_AI_BASE_URL")
	setStr(&cfg.AI.Model, "DEXARB_AI_MODEL")

	// ── Postgres ──
	setStr(&cfg.Postgres.DSN, "DEXARB_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "DEXARB_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "DEXARB_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "DEXARB_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "DEXARB_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "DEXARB_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "DEXARB_POSTGRES_SSLMODE")
	setInt(&cfg.Postgres.PoolMaxConns, "DEXARB_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "DEXARB_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "DEXARB_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "DEXARB_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "DEXARB_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "DEXARB_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "DEXARB_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "DEXARB_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "DEXARB_REDIS_TLS_ENABLED")

	// ── S3 ──
	setBool(&cfg.S3.Enabled, "DEXARB_S3_ENABLED")
	setStr(&cfg.S3.Endpoint, "DEXARB_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "DEXARB_S3_REGION")
	setStr(&cfg.S3.Bucket, "DEXARB_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "DEXARB_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "DEXARB_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "DEXARB_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "DEXARB_S3_FORCE_PATH_STYLE")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "DEXARB_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "DEXARB_SERVER_PORT")
	setStr(&cfg.Server.APIKey, "DEXARB_SERVER_API_KEY")
	setStringSlice(&cfg.Server.CORSOrigins, "DEXARB_SERVER_CORS_ORIGINS")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "DEXARB_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "DEXARB_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "DEXARB_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "DEXARB_NOTIFY_EVENTS")

	// ── Top-level ──
	setStr(&cfg.Mode, "DEXARB_MODE")
	setStr(&cfg.LogLevel, "DEXARB_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

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

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
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
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
