// Package config defines the top-level configuration for the agent runner
// and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a
// TOML file and then optionally overridden by AGENTRUNNER_* environment
// variables.
type Config struct {
	Wallet    WalletConfig    `toml:"wallet"`
	Chain     ChainConfig     `toml:"chain"`
	Postgres  PostgresConfig  `toml:"postgres"`
	Redis     RedisConfig     `toml:"redis"`
	S3        S3Config        `toml:"s3"`
	Scheduler SchedulerConfig `toml:"scheduler"`
	Brain     BrainConfig     `toml:"brain"`
	Guardrails GuardrailsConfig `toml:"guardrails"`
	Server    ServerConfig    `toml:"server"`
	Notify    NotifyConfig    `toml:"notify"`
	LogLevel  string          `toml:"log_level"`
}

// WalletConfig holds the Ethereum wallet credentials used to sign and
// submit transactions on behalf of every agent instance.
type WalletConfig struct {
	PrivateKey       string `toml:"private_key"`
	EncryptedKeyPath string `toml:"encrypted_key_path"`
	KeyPassword      string `toml:"key_password"`
}

// ChainConfig holds RPC endpoint and contract addresses the chain client
// needs to observe state and submit actions.
type ChainConfig struct {
	RPCUrl            string `toml:"rpc_url"`
	ChainID           int64  `toml:"chain_id"`
	RouterAddress     string `toml:"router_address"`
	WrappedNative     string `toml:"wrapped_native"`
	Stablecoins       []string `toml:"stablecoins"`
	AgentRegistry     string `toml:"agent_registry"`
	GasBufferPercent  int    `toml:"gas_buffer_percent"`
	TxTimeout         duration `toml:"tx_timeout"`
	// ChainTypeAgentMap maps a chain id to its default agent-type tag,
	// consulted only when ReadAgentType returns "unknown" (cache-cold
	// fallback, see agent-type resolution in the scheduler).
	ChainTypeAgentMap map[int64]string `toml:"chain_type_agent_map"`
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

// S3Config holds the archive bucket used by internal/archive.
type S3Config struct {
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
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

// SchedulerConfig holds every tunable the scheduler's tick loop and
// single-token pipeline interpret. SchedulerConcurrency and
// BlockedBackoffMs are also settable via the bare env vars
// SCHEDULER_CONCURRENCY / BLOCKED_BACKOFF_MS (no prefix), matching how the
// source system names them.
type SchedulerConfig struct {
	PollInterval      duration `toml:"poll_interval"`
	LeaseMs           int64    `toml:"lease_ms"`
	MaxRetries        int      `toml:"max_retries"`
	MaxRunRecords     int      `toml:"max_run_records"`
	Concurrency       int      `toml:"concurrency"`
	BaseBackoffMs     int64    `toml:"base_backoff_ms"`
	MaxBackoffMs      int64    `toml:"max_backoff_ms"`
	MaxBlockedRetries int      `toml:"max_blocked_retries"`
	FastFollowupMinMs int64    `toml:"fast_followup_min_ms"`
	WaitCadenceMinMs  int64    `toml:"wait_cadence_min_ms"`
	LoopFloorMs       int64    `toml:"loop_floor_ms"`
	ShadowMode        bool     `toml:"shadow_mode"`
	ShadowExecuteTx   bool     `toml:"shadow_execute_tx"`
}

// BrainConfig holds defaults for the LLM decision engine.
type BrainConfig struct {
	Provider         string   `toml:"provider"`
	Model            string   `toml:"model"`
	FallbackModel    string   `toml:"fallback_model"`
	APIKey           string   `toml:"api_key"`
	MaxToolSteps     int      `toml:"max_tool_steps"`
	MinConfidence    float64  `toml:"min_confidence"`
	RequestTimeout   duration `toml:"request_timeout"`
	MemoryWindow     int      `toml:"memory_window"`
}

// GuardrailsConfig holds the global safety-policy limits applied on top of
// any per-strategy maxValuePerRun.
type GuardrailsConfig struct {
	MaxValuePerRunWei string   `toml:"max_value_per_run_wei"`
	DefaultAllowedTargets []string `toml:"default_allowed_targets"`
	DefaultAllowedSelectors []string `toml:"default_allowed_selectors"`
}

// ServerConfig holds HTTP control-plane parameters.
type ServerConfig struct {
	Enabled     bool     `toml:"enabled"`
	Port        int      `toml:"port"`
	APIKey      string   `toml:"api_key"`
	JWTSecret   string   `toml:"jwt_secret"`
	CORSOrigins []string `toml:"cors_origins"`
}

// NotifyConfig holds notification channel credentials used by the
// autopause/disable alerting path.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// Defaults returns a Config populated with reasonable default values.
func Defaults() Config {
	return Config{
		Chain: ChainConfig{
			ChainID:          1,
			Stablecoins:      []string{},
			GasBufferPercent: 20,
			TxTimeout:        duration{90 * time.Second},
		},
		Postgres: PostgresConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "agentrunner",
			User:          "agentrunner",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Addr:       "localhost:6379",
			DB:         0,
			PoolSize:   20,
			MaxRetries: 3,
		},
		S3: S3Config{
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "agentrunner-archive",
			UseSSL:         false,
			ForcePathStyle: true,
		},
		Scheduler: SchedulerConfig{
			PollInterval:      duration{5 * time.Second},
			LeaseMs:           30_000,
			MaxRetries:        5,
			MaxRunRecords:     500,
			Concurrency:       3,
			BaseBackoffMs:     65_000,
			MaxBackoffMs:      10 * 60 * 1000,
			MaxBlockedRetries: 5,
			FastFollowupMinMs: 10_000,
			WaitCadenceMinMs:  5_000,
			LoopFloorMs:       1_000,
			ShadowMode:        false,
			ShadowExecuteTx:   false,
		},
		Brain: BrainConfig{
			Provider:       "openai",
			Model:          "gpt-4o-mini",
			MaxToolSteps:   5,
			MinConfidence:  0.35,
			RequestTimeout: duration{45 * time.Second},
			MemoryWindow:   10,
		},
		Guardrails: GuardrailsConfig{},
		Server: ServerConfig{
			Enabled:     true,
			Port:        8080,
			CORSOrigins: []string{"http://localhost:3000"},
		},
		Notify: NotifyConfig{
			Events: []string{"autopause", "disable", "fatal_backoff"},
		},
		LogLevel: "info",
	}
}

var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks Config for obviously invalid or missing values and
// returns a combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	if c.Wallet.PrivateKey == "" && c.Wallet.EncryptedKeyPath == "" {
		errs = append(errs, "wallet: either private_key or encrypted_key_path must be set")
	}
	if c.Wallet.EncryptedKeyPath != "" && c.Wallet.KeyPassword == "" {
		errs = append(errs, "wallet: key_password is required when encrypted_key_path is set")
	}

	if c.Chain.RPCUrl == "" {
		errs = append(errs, "chain: rpc_url must not be empty")
	}
	if c.Chain.ChainID <= 0 {
		errs = append(errs, "chain: chain_id must be positive")
	}

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
	if c.Postgres.PoolMinConns < 0 {
		errs = append(errs, "postgres: pool_min_conns must be >= 0")
	}
	if c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
		errs = append(errs, "postgres: pool_min_conns must not exceed pool_max_conns")
	}

	if c.Redis.Addr == "" {
		errs = append(errs, "redis: addr must not be empty")
	}
	if c.Redis.PoolSize < 1 {
		errs = append(errs, "redis: pool_size must be >= 1")
	}

	if c.Scheduler.Concurrency < 1 {
		errs = append(errs, "scheduler: concurrency must be >= 1")
	}
	if c.Scheduler.MaxRunRecords < 1 {
		errs = append(errs, "scheduler: max_run_records must be >= 1")
	}
	if c.Scheduler.MaxBlockedRetries < 1 {
		errs = append(errs, "scheduler: max_blocked_retries must be >= 1")
	}

	if c.Brain.MinConfidence < 0 || c.Brain.MinConfidence > 1 {
		errs = append(errs, "brain: min_confidence must be within [0,1]")
	}
	if c.Brain.MaxToolSteps < 1 {
		errs = append(errs, "brain: max_tool_steps must be >= 1")
	}

	if c.Server.Enabled {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
		if c.Server.APIKey == "" && c.Server.JWTSecret == "" {
			errs = append(errs, "server: either api_key or jwt_secret must be set when enabled")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
