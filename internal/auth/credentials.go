// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"

	"github.com/samber/oops"

	"github.com/holomush/authcore/internal/clock"
)

// CredentialStore owns account password hashes: lookup, verification and
// replacement. Callers never see a hash.
type CredentialStore struct {
	accounts AccountRepository
	hasher   PasswordHasher
	clock    clock.Clock

	// decoyHash is verified against when an email has no account so that
	// unknown and known emails cost the same argon2 work.
	decoyHash string
}

// NewCredentialStore creates a CredentialStore. The decoy hash is derived
// from a random password with the supplied hasher, so its cost matches the
// cost of every real hash the store writes.
func NewCredentialStore(accounts AccountRepository, hasher PasswordHasher, clk clock.Clock) (*CredentialStore, error) {
	if accounts == nil {
		return nil, oops.Code("CREDENTIALS_INVALID_CONFIG").Errorf("account repository is required")
	}
	if hasher == nil {
		return nil, oops.Code("CREDENTIALS_INVALID_CONFIG").Errorf("password hasher is required")
	}
	if clk == nil {
		clk = clock.Real()
	}

	seed := make([]byte, 24)
	if _, err := rand.Read(seed); err != nil {
		return nil, oops.Code("CREDENTIALS_INVALID_CONFIG").With("operation", "decoy seed").Wrap(err)
	}
	decoy, err := hasher.Hash(hex.EncodeToString(seed))
	if err != nil {
		return nil, oops.Code("CREDENTIALS_INVALID_CONFIG").With("operation", "decoy hash").Wrap(err)
	}

	return &CredentialStore{
		accounts:  accounts,
		hasher:    hasher,
		clock:     clk,
		decoyHash: decoy,
	}, nil
}

// Lookup returns the account for email, or an error wrapping ErrNotFound.
func (c *CredentialStore) Lookup(ctx context.Context, email string) (*Account, error) {
	normalized, err := NormalizeEmail(email)
	if err != nil {
		return nil, oops.Code("ACCOUNT_NOT_FOUND").Wrap(ErrNotFound)
	}
	return c.accounts.GetByEmail(ctx, normalized) //nolint:wrapcheck // repositories return coded errors
}

// VerifyPassword checks plaintext against the stored hash for email.
// An unknown email is not an error: the decoy hash is verified instead and
// (nil, false, nil) is returned, indistinguishable from a wrong password.
func (c *CredentialStore) VerifyPassword(ctx context.Context, email, plaintext string) (*Account, bool, error) {
	account, err := c.Lookup(ctx, email)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			return nil, false, oops.Code("CREDENTIALS_VERIFY_FAILED").
				With("operation", "get account by email").
				Wrap(err)
		}
		c.BurnHashCost(plaintext)
		return nil, false, nil
	}

	ok, err := c.hasher.Verify(plaintext, account.PasswordHash)
	if err != nil {
		return nil, false, oops.Code("CREDENTIALS_VERIFY_FAILED").
			With("operation", "verify password").
			With("account_id", account.ID.String()).
			Wrap(err)
	}
	if !ok {
		return nil, false, nil
	}
	return account, true, nil
}

// BurnHashCost performs one password verification against the decoy hash and
// discards the result. It is the equal-cost no-op for paths that must not
// reveal whether an account exists.
func (c *CredentialStore) BurnHashCost(plaintext string) {
	_, _ = c.hasher.Verify(plaintext, c.decoyHash) //nolint:errcheck // result intentionally discarded
}

// SetPassword validates plaintext against the password policy, hashes it with
// a fresh salt and replaces the stored hash for email in one write.
func (c *CredentialStore) SetPassword(ctx context.Context, email, plaintext string) error {
	if err := ValidatePassword(plaintext); err != nil {
		return err
	}

	account, err := c.Lookup(ctx, email)
	if err != nil {
		return oops.Code("CREDENTIALS_SET_FAILED").
			With("operation", "get account by email").
			Wrap(err)
	}
	return c.setHash(ctx, account, plaintext)
}

// CreateAccount registers a new account. It exists for operator seeding; the
// public surface has no signup.
func (c *CredentialStore) CreateAccount(ctx context.Context, email, plaintext string) (*Account, error) {
	normalized, err := NormalizeEmail(email)
	if err != nil {
		return nil, err
	}
	if err := ValidatePassword(plaintext); err != nil {
		return nil, err
	}

	hash, err := c.hasher.Hash(plaintext)
	if err != nil {
		return nil, oops.Code("CREDENTIALS_CREATE_FAILED").With("operation", "hash password").Wrap(err)
	}

	account, err := NewAccount(normalized, hash, c.clock.Now())
	if err != nil {
		return nil, err
	}

	if err := c.accounts.Create(ctx, account); err != nil {
		if errors.Is(err, ErrEmailTaken) {
			return nil, oops.Code(CodeEmailTaken).Errorf("an account with that email already exists")
		}
		return nil, oops.Code("CREDENTIALS_CREATE_FAILED").
			With("operation", "persist account").
			Wrap(err)
	}
	return account, nil
}

// UpgradeHash rehashes plaintext when the stored hash uses stale parameters.
// Callers must only pass a plaintext that has just verified.
func (c *CredentialStore) UpgradeHash(ctx context.Context, account *Account, plaintext string) (bool, error) {
	if !c.hasher.NeedsUpgrade(account.PasswordHash) {
		return false, nil
	}
	if err := c.setHash(ctx, account, plaintext); err != nil {
		return false, err
	}
	return true, nil
}

func (c *CredentialStore) setHash(ctx context.Context, account *Account, plaintext string) error {
	hash, err := c.hasher.Hash(plaintext)
	if err != nil {
		return oops.Code("CREDENTIALS_SET_FAILED").
			With("operation", "hash password").
			With("account_id", account.ID.String()).
			Wrap(err)
	}

	now := c.clock.Now()
	if err := c.accounts.UpdatePassword(ctx, account.ID, hash, now); err != nil {
		return oops.Code("CREDENTIALS_SET_FAILED").
			With("operation", "update password").
			With("account_id", account.ID.String()).
			Wrap(err)
	}
	account.PasswordHash = hash
	account.UpdatedAt = now
	return nil
}
