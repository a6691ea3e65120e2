package app

import (
	"context"
	"fmt"
	"log/slog"

	openai "github.com/sashabaranov/go-openai"

	"github.com/alanyoungcy/agentrunner/internal/action"
	"github.com/alanyoungcy/agentrunner/internal/agent"
	"github.com/alanyoungcy/agentrunner/internal/archive"
	"github.com/alanyoungcy/agentrunner/internal/brain"
	"github.com/alanyoungcy/agentrunner/internal/cache/redis"
	"github.com/alanyoungcy/agentrunner/internal/chain"
	"github.com/alanyoungcy/agentrunner/internal/config"
	agentcrypto "github.com/alanyoungcy/agentrunner/internal/crypto"
	"github.com/alanyoungcy/agentrunner/internal/cycle"
	"github.com/alanyoungcy/agentrunner/internal/domain"
	"github.com/alanyoungcy/agentrunner/internal/guardrails"
	"github.com/alanyoungcy/agentrunner/internal/notify"
	"github.com/alanyoungcy/agentrunner/internal/scheduler"
	"github.com/alanyoungcy/agentrunner/internal/server"
	"github.com/alanyoungcy/agentrunner/internal/store/postgres"
)

// Dependencies bundles everything the application needs once wiring
// completes: the scheduler always runs; Server is nil when the control
// plane is disabled in config.
type Dependencies struct {
	Store     domain.Store
	Chain     domain.ChainClient
	Scheduler *scheduler.Scheduler
	Server    *server.Server
}

// Wire constructs every dependency named in cfg and returns them together
// with a cleanup function that releases resources in reverse acquisition
// order. When Wire returns a non-nil error it has already torn down whatever
// was built before the failure, and the returned cleanup is nil.
func Wire(ctx context.Context, cfg *config.Config, log *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	// --- PostgreSQL ---
	pgClient, err := postgres.New(ctx, postgres.ClientConfig{
		DSN:      cfg.Postgres.DSN,
		Host:     cfg.Postgres.Host,
		Port:     cfg.Postgres.Port,
		Database: cfg.Postgres.Database,
		User:     cfg.Postgres.User,
		Password: cfg.Postgres.Password,
		SSLMode:  cfg.Postgres.SSLMode,
		MaxConns: cfg.Postgres.PoolMaxConns,
		MinConns: cfg.Postgres.PoolMinConns,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: postgres: %w", err)
	}
	closers = append(closers, pgClient.Close)

	if cfg.Postgres.RunMigrations {
		if err := pgClient.RunMigrations(ctx); err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
		}
	}

	store := postgres.NewStore(pgClient.Pool())

	// --- Redis ---
	redisClient, err := redis.New(ctx, redis.ClientConfig{
		Addr:       cfg.Redis.Addr,
		Password:   cfg.Redis.Password,
		DB:         cfg.Redis.DB,
		PoolSize:   cfg.Redis.PoolSize,
		MaxRetries: cfg.Redis.MaxRetries,
		TLSEnabled: cfg.Redis.TLSEnabled,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: redis: %w", err)
	}
	closers = append(closers, func() { _ = redisClient.Close() })

	lockManager := redis.NewLockManager(redisClient)
	rateLimiter := redis.NewRateLimiter(redisClient)
	triggers := redis.NewTriggerBus(redisClient)

	// --- Archive (S3-compatible cold storage for trimmed runs) ---
	if cfg.S3.Bucket != "" {
		archiveClient, err := archive.New(ctx, archive.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: archive: %w", err)
		}
		writer := archive.NewWriter(archiveClient)
		archiver := archive.NewArchiver(writer, store, log)
		store.RunStore.SetTrimHook(func(ctx context.Context, chainId int, tokenId domain.TokenId, trimmed []domain.RunRecord) {
			archiver.ArchiveTrimmedRuns(ctx, chainId, tokenId, trimmed)
		})
	}

	// --- Chain client ---
	privateKey, err := agentcrypto.LoadKey(agentcrypto.KeyConfig{
		RawPrivateKey:    cfg.Wallet.PrivateKey,
		EncryptedKeyPath: cfg.Wallet.EncryptedKeyPath,
		KeyPassword:      cfg.Wallet.KeyPassword,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: wallet key: %w", err)
	}
	signer, err := agentcrypto.NewSigner(privateKey, cfg.Chain.ChainID)
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: signer: %w", err)
	}

	chainClient, err := chain.New(ctx, cfg.Chain, signer)
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: chain client: %w", err)
	}
	closers = append(closers, chainClient.Close)

	// --- Decision engine ---
	actions := action.NewBuiltinRegistry(cfg.Chain.RouterAddress, cfg.Chain.WrappedNative)

	gr := guardrails.New(guardrails.GlobalLimits{
		MaxValuePerRunWei:       cfg.Guardrails.MaxValuePerRunWei,
		DefaultAllowedTargets:   cfg.Guardrails.DefaultAllowedTargets,
		DefaultAllowedSelectors: cfg.Guardrails.DefaultAllowedSelectors,
	})

	chatClient := openai.NewClient(cfg.Brain.APIKey)
	brainBase := brain.Config{
		Model:         cfg.Brain.Model,
		FallbackModel: cfg.Brain.FallbackModel,
		MaxToolSteps:  cfg.Brain.MaxToolSteps,
		MinConfidence: cfg.Brain.MinConfidence,
		Env: brain.Environment{
			ChainID:       cfg.Chain.ChainID,
			RouterAddress: cfg.Chain.RouterAddress,
			WrappedNative: cfg.Chain.WrappedNative,
			Stablecoins:   cfg.Chain.Stablecoins,
		},
	}

	manager := agent.NewManager(store, chainClient, actions, chatClient, brainBase, log)
	orchestrator := cycle.New(store, store, gr, log)

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(cfg.Notify.TelegramToken, cfg.Notify.TelegramChatID))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	notifier := notify.NewNotifier(senders, cfg.Notify.Events, log)

	// --- Scheduler ---
	sched := scheduler.New(store, chainClient, manager, orchestrator, triggers, lockManager, notifier,
		cfg.Scheduler, cfg.Chain.ChainID, cfg.Chain.ChainTypeAgentMap, log)

	// --- HTTP control plane ---
	var srv *server.Server
	if cfg.Server.Enabled {
		srv = server.New(server.Config{
			Port:        cfg.Server.Port,
			CORSOrigins: cfg.Server.CORSOrigins,
			APIKey:      cfg.Server.APIKey,
			JWTSecret:   cfg.Server.JWTSecret,
			RateLimitPerMinute: 120,
		}, server.Dependencies{
			Autopilot:  store,
			Strategy:   store,
			Runs:       store,
			Triggers:   triggers,
			RateLimit:  rateLimiter,
			LastLoopAt: sched.LastLoopAt,
		}, log)
	}

	return &Dependencies{
		Store:     store,
		Chain:     chainClient,
		Scheduler: sched,
		Server:    srv,
	}, cleanup, nil
}
