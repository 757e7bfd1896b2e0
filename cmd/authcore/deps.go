// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"context"
	"io"
	"log/slog"
	"os"

	"github.com/redis/go-redis/v9"

	"github.com/holomush/authcore/internal/auth"
	"github.com/holomush/authcore/internal/config"
	"github.com/holomush/authcore/internal/store"
)

// Storage bundles the repositories of one backend.
type Storage struct {
	Accounts   auth.AccountRepository
	Challenges auth.ChallengeRepository
	Sessions   auth.SessionRepository

	// Ping reports whether the backend is reachable.
	Ping func(ctx context.Context) error
	// Close releases the backend.
	Close func()
}

// Migrator wraps the methods used from store.Migrator.
type Migrator interface {
	Up() error
	Down() error
	Steps(n int) error
	Version() (version uint, dirty bool, err error)
	Force(version int) error
	PendingMigrations() ([]uint, error)
	AppliedMigrations() ([]uint, error)
	Close() error
}

// RedisClient wraps the methods used from *redis.Client.
type RedisClient interface {
	redis.Scripter
	Del(ctx context.Context, keys ...string) *redis.IntCmd
	Ping(ctx context.Context) *redis.StatusCmd
	Close() error
}

// Deps contains injectable dependencies for the commands.
// All fields with nil values will use their default implementations.
type Deps struct {
	// StorageOpener opens the repositories selected by the config.
	// Default: openStorage
	StorageOpener func(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Storage, error)

	// MigratorFactory creates a migrator for a database URL.
	// Default: store.NewMigrator
	MigratorFactory func(databaseURL string) (Migrator, error)

	// RedisFactory connects to Redis for the shared rate limiter.
	// Default: redis.ParseURL + redis.NewClient
	RedisFactory func(url string) (RedisClient, error)

	// CodeOutput receives codes from the stdout notifier.
	// Default: os.Stdout
	CodeOutput io.Writer

	// LogOutput receives log records.
	// Default: os.Stderr
	LogOutput io.Writer

	// Ready is called with the API address once serve is accepting requests.
	Ready func(apiAddr string)

	// PasswordInput is read by account commands for the password.
	// Default: os.Stdin
	PasswordInput io.Reader

	configFile string
}

func (d *Deps) withDefaults() *Deps {
	if d == nil {
		d = &Deps{}
	}
	if d.StorageOpener == nil {
		d.StorageOpener = openStorage
	}
	if d.MigratorFactory == nil {
		d.MigratorFactory = func(databaseURL string) (Migrator, error) {
			m, err := store.NewMigrator(databaseURL)
			if err != nil {
				return nil, err
			}
			return m, nil
		}
	}
	if d.RedisFactory == nil {
		d.RedisFactory = newRedisClient
	}
	if d.CodeOutput == nil {
		d.CodeOutput = os.Stdout
	}
	if d.LogOutput == nil {
		d.LogOutput = os.Stderr
	}
	if d.Ready == nil {
		d.Ready = func(string) {}
	}
	if d.PasswordInput == nil {
		d.PasswordInput = os.Stdin
	}
	return d
}
