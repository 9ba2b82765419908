package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	s3blob "github.com/tradelane/bolindexer/internal/blob/s3"
	"github.com/tradelane/bolindexer/internal/cache/redis"
	"github.com/tradelane/bolindexer/internal/chain"
	"github.com/tradelane/bolindexer/internal/config"
	"github.com/tradelane/bolindexer/internal/domain"
	"github.com/tradelane/bolindexer/internal/store/postgres"
)

// migrationLockTTL bounds how long a crashed replica can block others from
// running migrations.
const migrationLockTTL = 2 * time.Minute

// Dependencies bundles every domain-level dependency that the application
// modes need to operate. It is constructed by Wire and torn down by the
// returned cleanup function.
type Dependencies struct {
	// Persistence
	Store domain.Store

	// Chain access (nil unless the indexer runs in this mode)
	ChainClient chain.Client
	Registry    *chain.Registry
	StateReader chain.TradeStateReader

	// Redis-backed components (nil when Redis is disabled)
	LadingCache domain.LadingCache
	SignalBus   domain.SignalBus
	RateLimiter domain.RateLimiter
	LockManager domain.LockManager

	// Blob storage (nil when S3 is disabled)
	BlobWriter domain.BlobWriter
	BlobReader domain.BlobReader
}

// needsChain returns true for modes that poll the chain.
func needsChain(cfg *config.Config) bool {
	if !cfg.Indexer.Enabled {
		return false
	}
	switch strings.ToLower(cfg.Mode) {
	case "indexer", "full":
		return true
	default:
		return false
	}
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that should
// be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config) (*Dependencies, func(), error) {
	logger := slog.Default()

	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{}

	// --- Redis (optional) ---
	if cfg.Redis.Enabled {
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

		deps.LadingCache = redis.NewLadingCache(redisClient)
		deps.SignalBus = redis.NewSignalBus(redisClient)
		deps.RateLimiter = redis.NewRateLimiter(redisClient)
		deps.LockManager = redis.NewLockManager(redisClient)
	}

	// --- PostgreSQL (all modes need the store) ---
	pgClient, err := postgres.New(ctx, postgres.ClientConfig{
		DSN:      cfg.Database.DSN,
		Host:     cfg.Database.Host,
		Port:     cfg.Database.Port,
		Database: cfg.Database.Database,
		User:     cfg.Database.User,
		Password: cfg.Database.Password,
		SSLMode:  cfg.Database.SSLMode,
		MaxConns: cfg.Database.PoolMaxConns,
		MinConns: cfg.Database.PoolMinConns,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: postgres: %w", err)
	}
	closers = append(closers, pgClient.Close)

	if cfg.Database.RunMigrations {
		if err := runMigrations(ctx, pgClient, deps.LockManager, logger); err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
		}
	}

	deps.Store = postgres.NewStore(pgClient)

	// --- Chain (only when the indexer runs) ---
	if needsChain(cfg) {
		ethClient, err := chain.Dial(ctx, cfg.Chain.RpcURL)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: chain: %w", err)
		}
		closers = append(closers, ethClient.Close)

		deps.ChainClient = ethClient
		deps.Registry = chain.NewRegistry(cfg.Chain.ArtifactsDir)
		deps.StateReader = chain.NewStateReader(ethClient, deps.Registry)
	}

	// --- S3 blob storage (optional) ---
	if cfg.S3.Enabled {
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
	}

	return deps, cleanup, nil
}

// runMigrations applies pending migrations, serialized through the
// distributed lock when one is available so concurrent replicas do not race.
func runMigrations(ctx context.Context, client *postgres.Client, locks domain.LockManager, logger *slog.Logger) error {
	if locks == nil {
		return client.RunMigrations(ctx)
	}

	for {
		unlock, err := locks.Acquire(ctx, "migrations", migrationLockTTL)
		if err == nil {
			defer unlock()
			return client.RunMigrations(ctx)
		}
		if !errors.Is(err, domain.ErrLockHeld) {
			return err
		}

		logger.InfoContext(ctx, "migration lock held by another replica, waiting")
		timer := time.NewTimer(2 * time.Second)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}
