// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"context"
	"net/mail"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// Password policy constraints.
const (
	MinPasswordLength = 8
	MaxPasswordLength = 256
)

// MaxEmailLength is the RFC 5321 upper bound for a forward path.
const MaxEmailLength = 254

// Account is a credential record keyed by normalized email.
type Account struct {
	ID           ulid.ULID
	Email        string
	PasswordHash string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// NewAccount creates a validated Account. email must already be normalized.
func NewAccount(email, passwordHash string, now time.Time) (*Account, error) {
	if email == "" {
		return nil, oops.Code(CodeValidation).Errorf("email cannot be empty")
	}
	if passwordHash == "" {
		return nil, oops.Code("ACCOUNT_INVALID_HASH").Errorf("password hash cannot be empty")
	}
	if now.IsZero() {
		return nil, oops.Code("ACCOUNT_INVALID_TIME").Errorf("creation time cannot be zero")
	}
	return &Account{
		ID:           ulid.Make(),
		Email:        email,
		PasswordHash: passwordHash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}

// NormalizeEmail returns the canonical form of an email address used as the
// account key: NFKC-normalized, case-folded and stripped of surrounding space.
func NormalizeEmail(email string) (string, error) {
	trimmed := strings.TrimSpace(email)
	if trimmed == "" {
		return "", oops.Code(CodeValidation).Errorf("email cannot be empty")
	}
	if len(trimmed) > MaxEmailLength {
		return "", oops.Code(CodeValidation).
			With("max", MaxEmailLength).
			Errorf("email must be at most %d characters", MaxEmailLength)
	}

	// Casers are stateful, so one is built per call.
	folded := cases.Fold().String(norm.NFKC.String(trimmed))

	addr, err := mail.ParseAddress(folded)
	if err != nil || addr.Address != folded || addr.Name != "" {
		return "", oops.Code(CodeValidation).Errorf("email address is not valid")
	}
	return folded, nil
}

// ValidatePassword checks a plaintext password against the password policy.
// The error text is safe to show to the caller; it never echoes the password.
func ValidatePassword(password string) error {
	n := utf8.RuneCountInString(password)
	if n < MinPasswordLength {
		return oops.Code(CodeValidation).
			With("min", MinPasswordLength).
			Errorf("password must be at least %d characters", MinPasswordLength)
	}
	if n > MaxPasswordLength {
		return oops.Code(CodeValidation).
			With("max", MaxPasswordLength).
			Errorf("password must be at most %d characters", MaxPasswordLength)
	}
	return nil
}

// AccountRepository manages account persistence.
type AccountRepository interface {
	// Create stores a new account. Returns ErrEmailTaken if the email exists.
	Create(ctx context.Context, account *Account) error

	// GetByID retrieves an account by ID.
	GetByID(ctx context.Context, id ulid.ULID) (*Account, error)

	// GetByEmail retrieves an account by normalized email.
	// Returns ErrNotFound if no account has the given email.
	GetByEmail(ctx context.Context, email string) (*Account, error)

	// UpdatePassword replaces the password hash in a single write.
	UpdatePassword(ctx context.Context, id ulid.ULID, passwordHash string, updatedAt time.Time) error
}
