// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package config loads authcore configuration. Values are layered:
// built-in defaults, then the YAML config file, then command-line flags.
// Secrets are read from the environment only.
package config

import (
	"time"

	"github.com/holomush/authcore/internal/auth"
	"github.com/holomush/authcore/internal/ratelimit"
	"github.com/holomush/authcore/internal/store"
)

// Backend names.
const (
	StorePostgres = "postgres"
	StoreMemory   = "memory"

	LimiterMemory = "memory"
	LimiterRedis  = "redis"

	NotifySES    = "ses"
	NotifyStdout = "stdout"
)

// MinPepperBytes is the shortest accepted OTP pepper.
const MinPepperBytes = 16

// Config is the complete service configuration.
type Config struct {
	Listen      string          `koanf:"listen"`
	MetricsAddr string          `koanf:"metrics_addr"`
	Log         LogConfig       `koanf:"log"`
	Store       StoreConfig     `koanf:"store"`
	RateLimit   RateLimitConfig `koanf:"ratelimit"`
	OTP         OTPConfig       `koanf:"otp"`
	Session     SessionConfig   `koanf:"session"`
	Reset       ResetConfig     `koanf:"reset"`
	Notify      NotifyConfig    `koanf:"notify"`
	Janitor     JanitorConfig   `koanf:"janitor"`

	Secrets Secrets `koanf:"-"`
}

// LogConfig controls logging output.
type LogConfig struct {
	Format string `koanf:"format"`
	Level  string `koanf:"level"`
}

// StoreConfig selects and tunes the persistence backend.
type StoreConfig struct {
	Backend         string        `koanf:"backend"`
	MaxConns        int32         `koanf:"max_conns"`
	ConnectAttempts uint64        `koanf:"connect_attempts"`
	ConnectBackoff  time.Duration `koanf:"connect_backoff"`
	AutoMigrate     bool          `koanf:"auto_migrate"`
}

// RateLimitConfig selects the limiter backend and its policies.
type RateLimitConfig struct {
	Backend   string             `koanf:"backend"`
	KeyPrefix string             `koanf:"key_prefix"`
	Policies  ratelimit.Policies `koanf:"policies"`
}

// OTPConfig tunes one-time codes.
type OTPConfig struct {
	TTL         time.Duration `koanf:"ttl"`
	MaxAttempts int           `koanf:"max_attempts"`
}

// SessionConfig tunes login sessions.
type SessionConfig struct {
	TTL time.Duration `koanf:"ttl"`
}

// ResetConfig tunes the password reset flow.
type ResetConfig struct {
	MinResponse    time.Duration `koanf:"min_response"`
	SessionOnReset bool          `koanf:"session_on_reset"`
}

// NotifyConfig selects how codes are delivered.
type NotifyConfig struct {
	Backend          string        `koanf:"backend"`
	Sender           string        `koanf:"sender"`
	Region           string        `koanf:"region"`
	ConfigurationSet string        `koanf:"configuration_set"`
	RetryAttempts    uint64        `koanf:"retry_attempts"`
	RetryBase        time.Duration `koanf:"retry_base"`
	Workers          int           `koanf:"workers"`
	Queue            int           `koanf:"queue"`
	Timeout          time.Duration `koanf:"timeout"`
}

// JanitorConfig tunes expired-row cleanup.
type JanitorConfig struct {
	Interval time.Duration `koanf:"interval"`
}

// Secrets are read from the environment, never from files or flags.
type Secrets struct {
	DatabaseURL string `env:"DATABASE_URL"`
	RedisURL    string `env:"REDIS_URL"`
	OTPPepper   string `env:"AUTHCORE_OTP_PEPPER"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Listen:      "127.0.0.1:8080",
		MetricsAddr: "127.0.0.1:9100",
		Log: LogConfig{
			Format: "json",
			Level:  "info",
		},
		Store: StoreConfig{
			Backend:         StorePostgres,
			ConnectAttempts: store.DefaultConnectAttempts,
			ConnectBackoff:  store.DefaultConnectBackoff,
		},
		RateLimit: RateLimitConfig{
			Backend:   LimiterMemory,
			KeyPrefix: ratelimit.DefaultKeyPrefix,
			Policies:  ratelimit.DefaultPolicies(),
		},
		OTP: OTPConfig{
			TTL:         auth.OTPTTL,
			MaxAttempts: auth.OTPMaxAttempts,
		},
		Session: SessionConfig{
			TTL: auth.SessionTTL,
		},
		Reset: ResetConfig{
			MinResponse: auth.DefaultResetMinResponse,
		},
		Notify: NotifyConfig{
			Backend:       NotifyStdout,
			RetryAttempts: 3,
			RetryBase:     200 * time.Millisecond,
			Workers:       auth.DefaultDeliveryWorkers,
			Queue:         auth.DefaultDeliveryQueue,
			Timeout:       auth.DefaultDeliveryTimeout,
		},
		Janitor: JanitorConfig{
			Interval: auth.DefaultJanitorInterval,
		},
	}
}
