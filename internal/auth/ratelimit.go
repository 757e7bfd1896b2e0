// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"context"
	"time"
)

// ActionLoginAttempt is the rate-limit action consumed by every login.
const ActionLoginAttempt = "login-attempt"

// RateLimiter guards actions per subject (normalized email). Implementations
// live in internal/ratelimit.
type RateLimiter interface {
	// Allow reports whether one more unit of action is permitted for subject
	// and, if so, records it. The check and the increment are one atomic step.
	Allow(ctx context.Context, subject, action string) (bool, error)

	// CooldownRemaining returns how long until Allow would succeed again.
	// Zero means allowed now. It consumes nothing.
	CooldownRemaining(ctx context.Context, subject, action string) (time.Duration, error)

	// Reset clears the bucket for (subject, action).
	Reset(ctx context.Context, subject, action string) error
}
