// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"io"
	"math/big"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// OTP configuration defaults.
const (
	OTPCodeLength     = 6
	OTPTTL            = 10 * time.Minute
	OTPMaxAttempts    = 5
	OTPResendCooldown = 60 * time.Second
)

var otpSpace = big.NewInt(1_000_000) // 10^OTPCodeLength

// Purpose scopes a challenge. One account may hold one challenge per purpose.
type Purpose string

// Known purposes.
const (
	PurposePasswordReset Purpose = "password-reset"
)

// Validate returns an error for purposes this package does not issue.
func (p Purpose) Validate() error {
	switch p {
	case PurposePasswordReset:
		return nil
	default:
		return oops.Code("OTP_INVALID_PURPOSE").With("purpose", string(p)).Errorf("unknown otp purpose")
	}
}

// SendAction is the rate-limit action that gates code issuance for p.
func (p Purpose) SendAction() string {
	return "otp-send:" + string(p)
}

// Challenge is an issued one-time code for an (account, purpose) pair.
type Challenge struct {
	ID         ulid.ULID
	AccountID  ulid.ULID
	Purpose    Purpose
	CodeHash   string
	IssuedAt   time.Time
	ExpiresAt  time.Time
	ConsumedAt *time.Time
	Attempts   int
}

// NewChallenge creates a validated Challenge.
func NewChallenge(accountID ulid.ULID, purpose Purpose, codeHash string, issuedAt time.Time, ttl time.Duration) (*Challenge, error) {
	if accountID.Compare(ulid.ULID{}) == 0 {
		return nil, oops.Code("OTP_INVALID_ACCOUNT").Errorf("account ID cannot be zero")
	}
	if err := purpose.Validate(); err != nil {
		return nil, err
	}
	if codeHash == "" {
		return nil, oops.Code("OTP_INVALID_HASH").Errorf("code hash cannot be empty")
	}
	if ttl <= 0 {
		return nil, oops.Code("OTP_INVALID_TTL").Errorf("ttl must be positive")
	}
	return &Challenge{
		ID:        ulid.Make(),
		AccountID: accountID,
		Purpose:   purpose,
		CodeHash:  codeHash,
		IssuedAt:  issuedAt,
		ExpiresAt: issuedAt.Add(ttl),
	}, nil
}

// IsExpiredAt reports whether the challenge is past its TTL at t.
func (c *Challenge) IsExpiredAt(t time.Time) bool {
	return t.After(c.ExpiresAt)
}

// IsConsumed reports whether the challenge was redeemed by a correct code.
func (c *Challenge) IsConsumed() bool {
	return c.ConsumedAt != nil
}

// HasAttemptsLeft reports whether fewer than maxAttempts verifications
// have been recorded. An exhausted challenge stays exhausted until reissued.
func (c *Challenge) HasAttemptsLeft(maxAttempts int) bool {
	return c.Attempts < maxAttempts
}

// IsActiveAt reports whether the challenge can still be verified at t.
func (c *Challenge) IsActiveAt(t time.Time, maxAttempts int) bool {
	return !c.IsConsumed() && !c.IsExpiredAt(t) && c.HasAttemptsLeft(maxAttempts)
}

// GenerateCode returns a uniformly random zero-padded numeric code read from r.
func GenerateCode(r io.Reader) (string, error) {
	if r == nil {
		r = rand.Reader
	}
	n, err := rand.Int(r, otpSpace)
	if err != nil {
		return "", oops.Code("OTP_GENERATE_FAILED").
			With("operation", "crypto/rand.Int").
			Wrap(err)
	}
	return fmt.Sprintf("%0*d", OTPCodeLength, n.Int64()), nil
}

// codeMAC binds a code to its account and purpose under a server-side pepper,
// so a leaked table row does not reveal the 10^6-space code by brute force.
func codeMAC(pepper []byte, accountID ulid.ULID, purpose Purpose, code string) string {
	mac := hmac.New(sha256.New, pepper)
	mac.Write([]byte(purpose))
	mac.Write([]byte{0})
	mac.Write(accountID[:])
	mac.Write([]byte{0})
	mac.Write([]byte(code))
	return hex.EncodeToString(mac.Sum(nil))
}

// codeMatches compares a supplied code against a stored MAC in constant time.
func codeMatches(pepper []byte, accountID ulid.ULID, purpose Purpose, code, storedHash string) bool {
	if code == "" || storedHash == "" {
		return false
	}
	computed := codeMAC(pepper, accountID, purpose, code)
	return subtle.ConstantTimeCompare([]byte(computed), []byte(storedHash)) == 1
}

// ChallengeRepository manages challenge persistence. Each (account, purpose)
// pair maps to at most one stored challenge.
type ChallengeRepository interface {
	// Replace stores c as the only challenge for its (account, purpose),
	// overwriting any previous one in a single atomic write.
	Replace(ctx context.Context, c *Challenge) error

	// Update loads the challenge for (accountID, purpose), passes it to fn
	// and persists the mutated value, all under exclusion against concurrent
	// Replace and Update calls for the same pair. The write is committed
	// before Update returns. If fn returns an error nothing is written.
	// Returns ErrNotFound if no challenge exists.
	Update(ctx context.Context, accountID ulid.ULID, purpose Purpose, fn func(c *Challenge) error) error

	// DeleteExpired removes challenges that expired before the given time
	// and returns the count deleted.
	DeleteExpired(ctx context.Context, before time.Time) (int64, error)
}
