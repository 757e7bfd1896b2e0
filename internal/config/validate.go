// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package config

import (
	"net/mail"

	"github.com/samber/oops"
)

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	invalid := oops.Code("CONFIG_INVALID")

	if c.Listen == "" {
		return invalid.Errorf("listen address is required")
	}
	if c.Log.Format != "json" && c.Log.Format != "text" {
		return invalid.With("log_format", c.Log.Format).Errorf("log format must be 'json' or 'text'")
	}
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return invalid.With("log_level", c.Log.Level).Errorf("log level must be debug, info, warn or error")
	}

	switch c.Store.Backend {
	case StorePostgres:
		if c.Secrets.DatabaseURL == "" {
			return invalid.Errorf("DATABASE_URL is required for the postgres store")
		}
		if len(c.Secrets.OTPPepper) < MinPepperBytes {
			return invalid.Errorf("AUTHCORE_OTP_PEPPER must be at least %d bytes for the postgres store", MinPepperBytes)
		}
	case StoreMemory:
	default:
		return invalid.With("store", c.Store.Backend).Errorf("store must be 'postgres' or 'memory'")
	}

	switch c.RateLimit.Backend {
	case LimiterRedis:
		if c.Secrets.RedisURL == "" {
			return invalid.Errorf("REDIS_URL is required for the redis rate limiter")
		}
	case LimiterMemory:
	default:
		return invalid.With("ratelimit_backend", c.RateLimit.Backend).Errorf("rate limit backend must be 'memory' or 'redis'")
	}
	if err := c.RateLimit.Policies.Validate(); err != nil {
		return err
	}

	switch c.Notify.Backend {
	case NotifySES:
		if c.Notify.Sender == "" {
			return invalid.Errorf("notify sender is required for ses")
		}
		if _, err := mail.ParseAddress(c.Notify.Sender); err != nil {
			return invalid.With("sender", c.Notify.Sender).Wrapf(err, "notify sender is not a valid address")
		}
	case NotifyStdout:
	default:
		return invalid.With("notify_backend", c.Notify.Backend).Errorf("notify backend must be 'ses' or 'stdout'")
	}

	if c.OTP.TTL <= 0 || c.Session.TTL <= 0 {
		return invalid.Errorf("otp and session ttl must be positive")
	}
	if c.OTP.MaxAttempts < 1 {
		return invalid.Errorf("otp max attempts must be at least 1")
	}
	if c.Reset.MinResponse < 0 {
		return invalid.Errorf("reset min response cannot be negative")
	}
	return nil
}
