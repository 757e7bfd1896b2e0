// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package ratelimit

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/samber/oops"

	"github.com/holomush/authcore/internal/auth"
)

// DefaultKeyPrefix namespaces limiter keys in a shared Redis.
const DefaultKeyPrefix = "authcore:ratelimit:"

// allowScript increments the window counter only while it is below the
// limit (ARGV[2]), starting the window on the first hit. It returns
// {allowed, count, ttl}; a denied call leaves the counter untouched.
var allowScript = redis.NewScript(`
local current = tonumber(redis.call('GET', KEYS[1]) or '0')
local allowed = 0
if current < tonumber(ARGV[2]) then
	current = redis.call('INCR', KEYS[1])
	allowed = 1
end
local ttl = redis.call('PTTL', KEYS[1])
if ttl < 0 then
	redis.call('PEXPIRE', KEYS[1], ARGV[1])
	ttl = tonumber(ARGV[1])
end
return {allowed, current, ttl}
`)

// cooldownScript returns the remaining TTL when the window is exhausted,
// or 0.
var cooldownScript = redis.NewScript(`
local current = tonumber(redis.call('GET', KEYS[1]) or '0')
if current < tonumber(ARGV[1]) then
	return 0
end
local ttl = redis.call('PTTL', KEYS[1])
if ttl < 0 then
	return 0
end
return ttl
`)

// Scripter is the subset of a go-redis client the limiter needs.
// *redis.Client and *redis.ClusterClient satisfy it.
type Scripter interface {
	redis.Scripter
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// RedisConfig configures a Redis limiter.
type RedisConfig struct {
	// Policies defaults to DefaultPolicies when nil.
	Policies Policies

	// KeyPrefix defaults to DefaultKeyPrefix.
	KeyPrefix string
}

// Redis is a fixed-window limiter whose windows live in Redis, so every
// replica shares one budget per (subject, action). Subjects are hashed
// before they become keys.
type Redis struct {
	client   Scripter
	policies Policies
	prefix   string
}

// NewRedis creates a Redis limiter.
func NewRedis(client Scripter, cfg RedisConfig) (*Redis, error) {
	if client == nil {
		return nil, oops.Code("RATELIMIT_INVALID_CONFIG").Errorf("redis client is required")
	}
	policies := cfg.Policies
	if policies == nil {
		policies = DefaultPolicies()
	}
	if err := policies.Validate(); err != nil {
		return nil, err
	}
	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	return &Redis{client: client, policies: policies.clone(), prefix: prefix}, nil
}

// Allow implements auth.RateLimiter.
func (r *Redis) Allow(ctx context.Context, subject, action string) (bool, error) {
	policy, err := r.policies.lookup(action)
	if err != nil {
		return false, err
	}

	res, err := allowScript.Run(ctx, r.client, []string{r.key(subject, action)},
		policy.Window.Milliseconds(), policy.Limit).Int64Slice()
	if err != nil {
		return false, oops.Code("RATELIMIT_BACKEND_FAILED").
			With("operation", "allow").
			With("action", action).
			Wrap(err)
	}
	if len(res) != 3 {
		return false, oops.Code("RATELIMIT_BACKEND_FAILED").
			With("operation", "allow").
			Errorf("unexpected script reply length %d", len(res))
	}
	return res[0] == 1, nil
}

// CooldownRemaining implements auth.RateLimiter.
func (r *Redis) CooldownRemaining(ctx context.Context, subject, action string) (time.Duration, error) {
	policy, err := r.policies.lookup(action)
	if err != nil {
		return 0, err
	}

	ms, err := cooldownScript.Run(ctx, r.client, []string{r.key(subject, action)}, policy.Limit).Int64()
	if err != nil {
		return 0, oops.Code("RATELIMIT_BACKEND_FAILED").
			With("operation", "cooldown").
			With("action", action).
			Wrap(err)
	}
	return time.Duration(ms) * time.Millisecond, nil
}

// Reset implements auth.RateLimiter.
func (r *Redis) Reset(ctx context.Context, subject, action string) error {
	if err := r.client.Del(ctx, r.key(subject, action)).Err(); err != nil {
		return oops.Code("RATELIMIT_BACKEND_FAILED").
			With("operation", "reset").
			With("action", action).
			Wrap(err)
	}
	return nil
}

func (r *Redis) key(subject, action string) string {
	sum := sha256.Sum256([]byte(subject))
	return r.prefix + action + ":" + hex.EncodeToString(sum[:])
}

var _ auth.RateLimiter = (*Redis)(nil)
