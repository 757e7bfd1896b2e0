// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"context"
	"io"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/samber/oops"

	"github.com/holomush/authcore/internal/auth"
	"github.com/holomush/authcore/internal/auth/memory"
	"github.com/holomush/authcore/internal/auth/postgres"
	"github.com/holomush/authcore/internal/config"
	"github.com/holomush/authcore/internal/notify"
	"github.com/holomush/authcore/internal/ratelimit"
	"github.com/holomush/authcore/internal/store"
)

// openStorage opens the repositories for the configured backend. The
// postgres backend optionally applies pending migrations first.
func openStorage(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Storage, error) {
	switch cfg.Store.Backend {
	case config.StoreMemory:
		logger.Warn("using in-memory storage; data is lost on restart")
		return &Storage{
			Accounts:   memory.NewAccountRepository(),
			Challenges: memory.NewChallengeRepository(),
			Sessions:   memory.NewSessionRepository(),
			Ping:       func(context.Context) error { return nil },
			Close:      func() {},
		}, nil
	case config.StorePostgres:
	default:
		return nil, oops.Code("CONFIG_INVALID").With("store", cfg.Store.Backend).Errorf("unknown store backend")
	}

	if cfg.Store.AutoMigrate {
		if err := migrateUp(cfg.Secrets.DatabaseURL, logger); err != nil {
			return nil, err
		}
	}

	pool, err := store.Open(ctx, cfg.Secrets.DatabaseURL, store.PoolConfig{
		MaxConns:        cfg.Store.MaxConns,
		ConnectAttempts: cfg.Store.ConnectAttempts,
		ConnectBackoff:  cfg.Store.ConnectBackoff,
	}, logger)
	if err != nil {
		return nil, err //nolint:wrapcheck // already coded by store.Open
	}
	logger.Info("connected to database")

	return &Storage{
		Accounts:   postgres.NewAccountRepository(pool),
		Challenges: postgres.NewChallengeRepository(pool),
		Sessions:   postgres.NewSessionRepository(pool),
		Ping:       pool.Ping,
		Close:      pool.Close,
	}, nil
}

func migrateUp(databaseURL string, logger *slog.Logger) error {
	m, err := store.NewMigrator(databaseURL)
	if err != nil {
		return oops.Code("MIGRATION_FAILED").With("operation", "create migrator").Wrap(err)
	}
	defer func() {
		if closeErr := m.Close(); closeErr != nil {
			logger.Warn("failed to close migrator", "error", closeErr)
		}
	}()
	if err := m.Up(); err != nil {
		return oops.Code("MIGRATION_FAILED").With("operation", "apply migrations").Wrap(err)
	}
	logger.Info("database migrations applied")
	return nil
}

func newRedisClient(url string) (RedisClient, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, oops.Code("CONFIG_INVALID").With("operation", "parse REDIS_URL").Wrap(err)
	}
	return redis.NewClient(opts), nil
}

// limiterHandle is a rate limiter plus what serve needs to run and stop it.
type limiterHandle struct {
	limiter auth.RateLimiter
	ping    func(ctx context.Context) error
	close   func()
}

func buildLimiter(ctx context.Context, cfg *config.Config, deps *Deps, reg prometheus.Registerer, logger *slog.Logger) (*limiterHandle, error) {
	if cfg.RateLimit.Backend == config.LimiterRedis {
		client, err := deps.RedisFactory(cfg.Secrets.RedisURL)
		if err != nil {
			return nil, err
		}
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, oops.Code("RATELIMIT_BACKEND_FAILED").With("operation", "ping redis").Wrap(err)
		}
		limiter, err := ratelimit.NewRedis(client, ratelimit.RedisConfig{
			Policies:  cfg.RateLimit.Policies,
			KeyPrefix: cfg.RateLimit.KeyPrefix,
		})
		if err != nil {
			_ = client.Close()
			return nil, err
		}
		logger.Info("using redis rate limiter")
		return &limiterHandle{
			limiter: limiter,
			ping:    func(ctx context.Context) error { return client.Ping(ctx).Err() },
			close: func() {
				if err := client.Close(); err != nil {
					logger.Warn("failed to close redis client", "error", err)
				}
			},
		}, nil
	}

	limiter, err := ratelimit.NewMemory(ratelimit.MemoryConfig{
		Policies:   cfg.RateLimit.Policies,
		Registerer: reg,
	})
	if err != nil {
		return nil, err
	}
	return &limiterHandle{
		limiter: limiter,
		ping:    func(context.Context) error { return nil },
		close:   func() { _ = limiter.Close() },
	}, nil
}

func buildNotifier(ctx context.Context, cfg *config.Config, codeOutput io.Writer, logger *slog.Logger) (auth.Notifier, error) {
	var (
		base auth.Notifier
		err  error
	)
	switch cfg.Notify.Backend {
	case config.NotifySES:
		base, err = notify.LoadSES(ctx, notify.SESConfig{
			Sender:           cfg.Notify.Sender,
			Region:           cfg.Notify.Region,
			ConfigurationSet: cfg.Notify.ConfigurationSet,
		})
	default:
		logger.Warn("delivering one-time codes to stdout; do not use in production")
		base, err = notify.NewWriter(codeOutput)
	}
	if err != nil {
		return nil, err
	}
	retrying, err := notify.NewRetrying(base, logger, notify.RetryConfig{
		Attempts: cfg.Notify.RetryAttempts,
		Base:     cfg.Notify.RetryBase,
	})
	if err != nil {
		return nil, err
	}
	return retrying, nil
}

// newCredentialStore is shared by serve and the account commands.
func newCredentialStore(accounts auth.AccountRepository) (*auth.CredentialStore, error) {
	return auth.NewCredentialStore(accounts, auth.NewArgon2idHasher(), nil)
}
