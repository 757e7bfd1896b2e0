// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/holomush/authcore/internal/clock"
)

// Session token configuration.
const (
	SessionTokenBytes = 32             // 32 bytes = 64 hex chars
	SessionTTL        = 24 * time.Hour // default lifetime
)

// Session is an issued login session. Only the token hash is stored.
type Session struct {
	ID        ulid.ULID
	AccountID ulid.ULID
	TokenHash string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// NewSession creates a validated Session.
func NewSession(accountID ulid.ULID, tokenHash string, issuedAt, expiresAt time.Time) (*Session, error) {
	if accountID.Compare(ulid.ULID{}) == 0 {
		return nil, oops.Code("SESSION_INVALID_ACCOUNT").Errorf("account ID cannot be zero")
	}
	if tokenHash == "" {
		return nil, oops.Code("SESSION_INVALID_HASH").Errorf("token hash cannot be empty")
	}
	if !expiresAt.After(issuedAt) {
		return nil, oops.Code("SESSION_INVALID_EXPIRY").Errorf("expiry must be after issue time")
	}
	return &Session{
		ID:        ulid.Make(),
		AccountID: accountID,
		TokenHash: tokenHash,
		IssuedAt:  issuedAt,
		ExpiresAt: expiresAt,
	}, nil
}

// IsExpiredAt returns true if the session would be expired at the given time.
// A session is still valid at exactly ExpiresAt.
func (s *Session) IsExpiredAt(t time.Time) bool {
	return t.After(s.ExpiresAt)
}

// GenerateSessionToken reads SessionTokenBytes from r and returns the hex
// token and its SHA256 hash. The plaintext goes to the client; the hash is
// stored.
func GenerateSessionToken(r io.Reader) (token, hash string, err error) {
	if r == nil {
		r = rand.Reader
	}
	tokenBytes := make([]byte, SessionTokenBytes)
	if _, err = io.ReadFull(r, tokenBytes); err != nil {
		return "", "", oops.Code("SESSION_TOKEN_GENERATE_FAILED").
			With("operation", "read random bytes").
			With("requested_bytes", SessionTokenBytes).
			Wrap(err)
	}

	token = hex.EncodeToString(tokenBytes)
	return token, HashSessionToken(token), nil
}

// HashSessionToken computes the SHA256 hash of a session token.
func HashSessionToken(token string) string {
	h := sha256.Sum256([]byte(token))
	return hex.EncodeToString(h[:])
}

// SessionRepository manages session persistence.
type SessionRepository interface {
	// Create stores a new session.
	Create(ctx context.Context, session *Session) error

	// GetByTokenHash retrieves a session by its token hash.
	GetByTokenHash(ctx context.Context, tokenHash string) (*Session, error)

	// Delete removes a session by ID.
	Delete(ctx context.Context, id ulid.ULID) error

	// DeleteByAccount removes all sessions for an account.
	DeleteByAccount(ctx context.Context, accountID ulid.ULID) error

	// DeleteExpired removes sessions that expired before the given time and
	// returns the count deleted.
	DeleteExpired(ctx context.Context, before time.Time) (int64, error)
}

// SessionIssuer mints and resolves opaque session tokens.
type SessionIssuer struct {
	repo  SessionRepository
	clock clock.Clock
	rand  io.Reader
	ttl   time.Duration
}

// NewSessionIssuer creates a SessionIssuer. A non-positive ttl uses SessionTTL;
// nil clk and r use the real clock and crypto/rand.
func NewSessionIssuer(repo SessionRepository, ttl time.Duration, clk clock.Clock, r io.Reader) (*SessionIssuer, error) {
	if repo == nil {
		return nil, oops.Code("SESSION_INVALID_CONFIG").Errorf("session repository is required")
	}
	if ttl <= 0 {
		ttl = SessionTTL
	}
	if clk == nil {
		clk = clock.Real()
	}
	if r == nil {
		r = rand.Reader
	}
	return &SessionIssuer{repo: repo, clock: clk, rand: r, ttl: ttl}, nil
}

// Issue creates a session for accountID and returns it with the plaintext token.
func (i *SessionIssuer) Issue(ctx context.Context, accountID ulid.ULID) (*Session, string, error) {
	token, hash, err := GenerateSessionToken(i.rand)
	if err != nil {
		return nil, "", err
	}

	now := i.clock.Now()
	session, err := NewSession(accountID, hash, now, now.Add(i.ttl))
	if err != nil {
		return nil, "", err
	}

	if err := i.repo.Create(ctx, session); err != nil {
		return nil, "", oops.Code("SESSION_CREATE_FAILED").
			With("operation", "persist session").
			With("account_id", accountID.String()).
			Wrap(err)
	}
	return session, token, nil
}

// Validate resolves a plaintext token to its live session.
func (i *SessionIssuer) Validate(ctx context.Context, token string) (*Session, error) {
	if token == "" {
		return nil, oops.Code(CodeSessionInvalid).Errorf("invalid session token")
	}

	session, err := i.repo.GetByTokenHash(ctx, HashSessionToken(token))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, oops.Code(CodeSessionInvalid).Errorf("invalid session token")
		}
		return nil, oops.Code("SESSION_VALIDATE_FAILED").
			With("operation", "get session by token hash").
			Wrap(err)
	}

	if session.IsExpiredAt(i.clock.Now()) {
		return nil, oops.Code(CodeSessionInvalid).Errorf("invalid session token")
	}
	return session, nil
}

// Revoke deletes the session identified by token.
func (i *SessionIssuer) Revoke(ctx context.Context, token string) error {
	session, err := i.Validate(ctx, token)
	if err != nil {
		return err
	}
	if err := i.repo.Delete(ctx, session.ID); err != nil {
		if errors.Is(err, ErrNotFound) {
			return oops.Code(CodeSessionInvalid).Errorf("invalid session token")
		}
		return oops.Code("SESSION_REVOKE_FAILED").
			With("session_id", session.ID.String()).
			Wrap(err)
	}
	return nil
}

// RevokeAll deletes every session for accountID.
func (i *SessionIssuer) RevokeAll(ctx context.Context, accountID ulid.ULID) error {
	if err := i.repo.DeleteByAccount(ctx, accountID); err != nil {
		return oops.Code("SESSION_REVOKE_ALL_FAILED").
			With("account_id", accountID.String()).
			Wrap(err)
	}
	return nil
}
