// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"context"
	"crypto/rand"
	"io"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/holomush/authcore/internal/clock"
)

// VerifyReason explains a failed verification. It is internal detail and is
// never shown to callers of Service.
type VerifyReason string

// Verification reasons.
const (
	ReasonNone      VerifyReason = ""
	ReasonMismatch  VerifyReason = "mismatch"
	ReasonExpired   VerifyReason = "expired"
	ReasonExhausted VerifyReason = "exhausted"
	ReasonConsumed  VerifyReason = "consumed"
	ReasonNotFound  VerifyReason = "not_found"
)

// VerifyResult is the outcome of OTPManager.Verify.
type VerifyResult struct {
	OK       bool
	Reason   VerifyReason
	Attempts int
}

// OTPConfig configures an OTPManager. Zero values take defaults.
type OTPConfig struct {
	TTL         time.Duration
	MaxAttempts int

	// Pepper keys the code MAC. It must be stable across restarts when
	// challenges are persisted outside the process. If empty a random
	// per-process pepper is generated.
	Pepper []byte

	Clock clock.Clock
	Rand  io.Reader
}

// OTPManager issues and verifies one-time codes.
type OTPManager struct {
	repo        ChallengeRepository
	limiter     RateLimiter
	clock       clock.Clock
	rand        io.Reader
	ttl         time.Duration
	maxAttempts int
	pepper      []byte
}

// NewOTPManager creates an OTPManager.
func NewOTPManager(repo ChallengeRepository, limiter RateLimiter, cfg OTPConfig) (*OTPManager, error) {
	if repo == nil {
		return nil, oops.Code("OTP_INVALID_CONFIG").Errorf("challenge repository is required")
	}
	if limiter == nil {
		return nil, oops.Code("OTP_INVALID_CONFIG").Errorf("rate limiter is required")
	}

	m := &OTPManager{
		repo:        repo,
		limiter:     limiter,
		clock:       cfg.Clock,
		rand:        cfg.Rand,
		ttl:         cfg.TTL,
		maxAttempts: cfg.MaxAttempts,
		pepper:      cfg.Pepper,
	}
	if m.clock == nil {
		m.clock = clock.Real()
	}
	if m.rand == nil {
		m.rand = rand.Reader
	}
	if m.ttl <= 0 {
		m.ttl = OTPTTL
	}
	if m.maxAttempts <= 0 {
		m.maxAttempts = OTPMaxAttempts
	}
	if len(m.pepper) == 0 {
		m.pepper = make([]byte, 32)
		if _, err := io.ReadFull(rand.Reader, m.pepper); err != nil {
			return nil, oops.Code("OTP_INVALID_CONFIG").With("operation", "generate pepper").Wrap(err)
		}
	}
	return m, nil
}

// Issue creates a new challenge for (account, purpose), replacing any prior
// one, and returns it together with the plaintext code for delivery.
// Returns an OTP_THROTTLED error while the resend cooldown is running.
func (m *OTPManager) Issue(ctx context.Context, account *Account, purpose Purpose) (*Challenge, string, error) {
	if err := purpose.Validate(); err != nil {
		return nil, "", err
	}

	allowed, err := m.limiter.Allow(ctx, account.Email, purpose.SendAction())
	if err != nil {
		return nil, "", oops.Code("OTP_ISSUE_FAILED").
			With("operation", "rate limit check").
			With("purpose", string(purpose)).
			Wrap(err)
	}
	if !allowed {
		return nil, "", oops.Code(CodeOTPThrottled).
			With("purpose", string(purpose)).
			Errorf("one-time code issuance throttled")
	}

	code, err := GenerateCode(m.rand)
	if err != nil {
		return nil, "", err
	}

	challenge, err := NewChallenge(account.ID, purpose, codeMAC(m.pepper, account.ID, purpose, code), m.clock.Now(), m.ttl)
	if err != nil {
		return nil, "", err
	}

	if err := m.repo.Replace(ctx, challenge); err != nil {
		return nil, "", oops.Code("OTP_ISSUE_FAILED").
			With("operation", "replace challenge").
			With("account_id", account.ID.String()).
			With("purpose", string(purpose)).
			Wrap(err)
	}

	OTPIssued.WithLabelValues(string(purpose)).Inc()
	return challenge, code, nil
}

// Decoy performs the rate-limit, generation and MAC work of Issue without
// storing anything. It backs the unknown-account branch of password reset so
// both branches spend comparable effort and share one cooldown per email.
func (m *OTPManager) Decoy(ctx context.Context, email string, purpose Purpose) error {
	if _, err := m.limiter.Allow(ctx, email, purpose.SendAction()); err != nil {
		return oops.Code("OTP_DECOY_FAILED").
			With("operation", "rate limit check").
			Wrap(err)
	}
	code, err := GenerateCode(m.rand)
	if err != nil {
		return err
	}
	_ = codeMAC(m.pepper, ulid.ULID{}, purpose, code)
	return nil
}

// Verify checks code against the challenge for (account, purpose). The
// attempt counter and any consumption are persisted atomically before the
// result is returned. Infrastructure failures are returned as errors; every
// other failure is a VerifyResult with OK false.
func (m *OTPManager) Verify(ctx context.Context, account *Account, purpose Purpose, code string) (VerifyResult, error) {
	if err := purpose.Validate(); err != nil {
		return VerifyResult{}, err
	}

	var result VerifyResult
	err := m.repo.Update(ctx, account.ID, purpose, func(c *Challenge) error {
		now := m.clock.Now()
		switch {
		case c.IsExpiredAt(now):
			result = VerifyResult{Reason: ReasonExpired, Attempts: c.Attempts}
		case c.IsConsumed():
			result = VerifyResult{Reason: ReasonConsumed, Attempts: c.Attempts}
		case !c.HasAttemptsLeft(m.maxAttempts):
			result = VerifyResult{Reason: ReasonExhausted, Attempts: c.Attempts}
		default:
			c.Attempts++
			if codeMatches(m.pepper, account.ID, purpose, code, c.CodeHash) {
				c.ConsumedAt = &now
				result = VerifyResult{OK: true, Attempts: c.Attempts}
			} else {
				result = VerifyResult{Reason: ReasonMismatch, Attempts: c.Attempts}
			}
		}
		return nil
	})
	if err != nil {
		if isNotFound(err) {
			OTPVerifications.WithLabelValues(string(purpose), string(ReasonNotFound)).Inc()
			return VerifyResult{Reason: ReasonNotFound}, nil
		}
		return VerifyResult{}, oops.Code("OTP_VERIFY_FAILED").
			With("operation", "update challenge").
			With("account_id", account.ID.String()).
			With("purpose", string(purpose)).
			Wrap(err)
	}

	reason := string(result.Reason)
	if result.OK {
		reason = ResultSuccess
	}
	OTPVerifications.WithLabelValues(string(purpose), reason).Inc()
	return result, nil
}

// BurnVerifyCost performs a constant-time code comparison against a throwaway
// MAC. It is the equal-cost stand-in for Verify when the account is unknown.
func (m *OTPManager) BurnVerifyCost(purpose Purpose, code string) {
	_ = codeMatches(m.pepper, ulid.ULID{}, purpose, code, codeMAC(m.pepper, ulid.ULID{}, purpose, "decoy"))
}

// Cooldown returns the remaining resend cooldown for email and purpose.
func (m *OTPManager) Cooldown(ctx context.Context, email string, purpose Purpose) (time.Duration, error) {
	d, err := m.limiter.CooldownRemaining(ctx, email, purpose.SendAction())
	if err != nil {
		return 0, oops.Code("OTP_COOLDOWN_FAILED").
			With("purpose", string(purpose)).
			Wrap(err)
	}
	return d, nil
}
