// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package ratelimit implements fixed-window limits per (subject, action).
// Memory keeps windows in process; Redis shares them across replicas.
package ratelimit

import (
	"time"

	"github.com/samber/oops"

	"github.com/holomush/authcore/internal/auth"
)

// Policy allows Limit units of an action per Window.
type Policy struct {
	Limit  int           `koanf:"limit"`
	Window time.Duration `koanf:"window"`
}

// Policies maps an action name to its policy.
type Policies map[string]Policy

// Default policies.
var (
	DefaultLoginPolicy   = Policy{Limit: 5, Window: 15 * time.Minute}
	DefaultOTPSendPolicy = Policy{Limit: 1, Window: auth.OTPResendCooldown}
)

// DefaultPolicies returns the policies for every action the auth package
// consumes.
func DefaultPolicies() Policies {
	return Policies{
		auth.ActionLoginAttempt:                DefaultLoginPolicy,
		auth.PurposePasswordReset.SendAction(): DefaultOTPSendPolicy,
	}
}

// Validate checks every policy is usable.
func (p Policies) Validate() error {
	if len(p) == 0 {
		return oops.Code("RATELIMIT_INVALID_CONFIG").Errorf("at least one policy is required")
	}
	for action, policy := range p {
		if policy.Limit < 1 {
			return oops.Code("RATELIMIT_INVALID_CONFIG").
				With("action", action).
				Errorf("limit must be at least 1")
		}
		if policy.Window <= 0 {
			return oops.Code("RATELIMIT_INVALID_CONFIG").
				With("action", action).
				Errorf("window must be positive")
		}
	}
	return nil
}

func (p Policies) lookup(action string) (Policy, error) {
	policy, ok := p[action]
	if !ok {
		return Policy{}, oops.Code("RATELIMIT_UNKNOWN_ACTION").
			With("action", action).
			Errorf("no rate limit policy for action")
	}
	return policy, nil
}

func (p Policies) clone() Policies {
	out := make(Policies, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}
