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
// built-in defaults, applies AGENTRUNNER_* and the two bare scheduler
// environment variable overrides, and returns the final Config. The
// returned Config has NOT been validated; the caller should invoke
// Config.Validate() after Load.
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

// applyEnvOverrides reads well-known AGENTRUNNER_* environment variables
// (plus the two bare names the core interprets directly) and overwrites
// the corresponding Config fields when set.
func applyEnvOverrides(cfg *Config) {
	setStr(&cfg.Wallet.PrivateKey, "AGENTRUNNER_WALLET_PRIVATE_KEY")
	setStr(&cfg.Wallet.EncryptedKeyPath, "AGENTRUNNER_WALLET_ENCRYPTED_KEY_PATH")
	setStr(&cfg.Wallet.KeyPassword, "AGENTRUNNER_WALLET_KEY_PASSWORD")

	setStr(&cfg.Chain.RPCUrl, "AGENTRUNNER_CHAIN_RPC_URL")
	setInt64(&cfg.Chain.ChainID, "AGENTRUNNER_CHAIN_ID")
	setStr(&cfg.Chain.RouterAddress, "AGENTRUNNER_CHAIN_ROUTER_ADDRESS")
	setStr(&cfg.Chain.WrappedNative, "AGENTRUNNER_CHAIN_WRAPPED_NATIVE")
	setStr(&cfg.Chain.AgentRegistry, "AGENTRUNNER_CHAIN_AGENT_REGISTRY")
	setInt(&cfg.Chain.GasBufferPercent, "AGENTRUNNER_CHAIN_GAS_BUFFER_PERCENT")

	setStr(&cfg.Postgres.DSN, "AGENTRUNNER_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "AGENTRUNNER_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "AGENTRUNNER_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "AGENTRUNNER_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "AGENTRUNNER_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "AGENTRUNNER_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "AGENTRUNNER_POSTGRES_SSL_MODE")
	setInt(&cfg.Postgres.PoolMaxConns, "AGENTRUNNER_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "AGENTRUNNER_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "AGENTRUNNER_POSTGRES_RUN_MIGRATIONS")

	setStr(&cfg.Redis.Addr, "AGENTRUNNER_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "AGENTRUNNER_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "AGENTRUNNER_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "AGENTRUNNER_REDIS_POOL_SIZE")
	setBool(&cfg.Redis.TLSEnabled, "AGENTRUNNER_REDIS_TLS_ENABLED")

	setStr(&cfg.S3.Endpoint, "AGENTRUNNER_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "AGENTRUNNER_S3_REGION")
	setStr(&cfg.S3.Bucket, "AGENTRUNNER_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "AGENTRUNNER_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "AGENTRUNNER_S3_SECRET_KEY")

	setDuration(&cfg.Scheduler.PollInterval, "AGENTRUNNER_SCHEDULER_POLL_INTERVAL")
	setInt64(&cfg.Scheduler.LeaseMs, "AGENTRUNNER_SCHEDULER_LEASE_MS")
	setInt(&cfg.Scheduler.MaxRetries, "AGENTRUNNER_SCHEDULER_MAX_RETRIES")
	setInt(&cfg.Scheduler.MaxRunRecords, "AGENTRUNNER_SCHEDULER_MAX_RUN_RECORDS")
	setBool(&cfg.Scheduler.ShadowMode, "AGENTRUNNER_SCHEDULER_SHADOW_MODE")
	setBool(&cfg.Scheduler.ShadowExecuteTx, "AGENTRUNNER_SCHEDULER_SHADOW_EXECUTE_TX")

	// These two are named exactly as the core's "exhaustive list" (§6),
	// without the AGENTRUNNER_ prefix used everywhere else.
	setInt(&cfg.Scheduler.Concurrency, "SCHEDULER_CONCURRENCY")
	setInt64(&cfg.Scheduler.BaseBackoffMs, "BLOCKED_BACKOFF_MS")

	setStr(&cfg.Brain.Provider, "AGENTRUNNER_BRAIN_PROVIDER")
	setStr(&cfg.Brain.Model, "AGENTRUNNER_BRAIN_MODEL")
	setStr(&cfg.Brain.FallbackModel, "AGENTRUNNER_BRAIN_FALLBACK_MODEL")
	setStr(&cfg.Brain.APIKey, "AGENTRUNNER_BRAIN_API_KEY")
	setInt(&cfg.Brain.MaxToolSteps, "AGENTRUNNER_BRAIN_MAX_TOOL_STEPS")
	setFloat64(&cfg.Brain.MinConfidence, "AGENTRUNNER_BRAIN_MIN_CONFIDENCE")

	setStr(&cfg.Guardrails.MaxValuePerRunWei, "AGENTRUNNER_GUARDRAILS_MAX_VALUE_PER_RUN_WEI")

	setBool(&cfg.Server.Enabled, "AGENTRUNNER_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "AGENTRUNNER_SERVER_PORT")
	setStr(&cfg.Server.APIKey, "AGENTRUNNER_SERVER_API_KEY")
	setStr(&cfg.Server.JWTSecret, "AGENTRUNNER_SERVER_JWT_SECRET")
	setStringSlice(&cfg.Server.CORSOrigins, "AGENTRUNNER_SERVER_CORS_ORIGINS")

	setStr(&cfg.Notify.TelegramToken, "AGENTRUNNER_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "AGENTRUNNER_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "AGENTRUNNER_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "AGENTRUNNER_NOTIFY_EVENTS")

	setStr(&cfg.LogLevel, "AGENTRUNNER_LOG_LEVEL")
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
