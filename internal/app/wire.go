package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	s3blob "github.com/resolvd/resolvd/internal/blob/s3"
	"github.com/resolvd/resolvd/internal/cache/redis"
	"github.com/resolvd/resolvd/internal/config"
	"github.com/resolvd/resolvd/internal/domain"
	"github.com/resolvd/resolvd/internal/notify"
	"github.com/resolvd/resolvd/internal/oracle"
	"github.com/resolvd/resolvd/internal/service"
	"github.com/resolvd/resolvd/internal/store/memory"
	"github.com/resolvd/resolvd/internal/store/postgres"
)

// Dependencies bundles every domain-level dependency that the application
// modes need to operate. It is constructed by Wire and torn down by the
// returned cleanup function.
type Dependencies struct {
	// Stores
	PoolStore  domain.PoolStore
	StakeStore domain.StakeStore
	AuditStore domain.AuditStore

	// Redis-backed infrastructure (nil in standalone mode)
	PoolCache   domain.PoolCache
	RateLimiter domain.RateLimiter
	LockManager domain.LockManager
	SignalBus   domain.SignalBus

	// Blob storage (nil unless S3 is enabled)
	BlobWriter domain.BlobWriter
	BlobReader domain.BlobReader
	Archiver   domain.Archiver

	// Oracle (nil unless oracle.base_url is configured)
	Oracle service.OracleResolver

	// Notifications
	Notifier *notify.Notifier
}

// needsPostgres returns true for modes that require a database connection.
func needsPostgres(mode string) bool {
	switch mode {
	case "serve", "archive":
		return true
	default:
		return false
	}
}

// needsRedis returns true for modes that require Redis.
func needsRedis(mode string) bool {
	return mode == "serve"
}

// needsS3 reports whether the mode or configuration requires object storage.
func needsS3(mode string, cfg *config.Config) bool {
	return mode == "archive" || cfg.S3.Enabled
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that should
// be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	mode := strings.ToLower(cfg.Mode)

	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{}

	// --- Persistence ---
	if needsPostgres(mode) {
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

		pool := pgClient.Pool()
		deps.PoolStore = postgres.NewPoolStore(pool)
		deps.StakeStore = postgres.NewStakeStore(pool)
		deps.AuditStore = postgres.NewAuditStore(pool)
	} else {
		pools, stakes, audit := memory.NewStores()
		deps.PoolStore = pools
		deps.StakeStore = stakes
		deps.AuditStore = audit
	}

	// --- Redis ---
	if needsRedis(mode) {
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

		deps.PoolCache = redis.NewPoolCache(redisClient)
		deps.RateLimiter = redis.NewRateLimiter(redisClient)
		deps.LockManager = redis.NewLockManager(redisClient)
		deps.SignalBus = redis.NewSignalBus(redisClient)
	}

	// --- S3 blob storage ---
	if needsS3(mode, cfg) {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
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
			return nil, nil, fmt.Errorf("wire: s3: %w", err)
		}
		closers = append(closers, func() { _ = s3Client.Close() })

		deps.BlobWriter = s3blob.NewWriter(s3Client)
		deps.BlobReader = s3blob.NewReader(s3Client)
		deps.Archiver = s3blob.NewArchiver(
			deps.PoolStore,
			deps.StakeStore,
			deps.AuditStore,
			deps.BlobWriter,
			deps.BlobReader,
			logger,
		)
	}

	// --- Oracle ---
	if cfg.Oracle.BaseURL != "" {
		deps.Oracle = oracle.NewClient(cfg.Oracle.BaseURL, cfg.Oracle.APIKey, cfg.Oracle.Timeout.Duration)
	}

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(
			cfg.Notify.TelegramToken,
			cfg.Notify.TelegramChatID,
		))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, logger)

	return deps, cleanup, nil
}
