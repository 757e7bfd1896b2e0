// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/holomush/authcore/internal/auth"
	"github.com/holomush/authcore/internal/store"
)

// ChallengeRepository implements auth.ChallengeRepository using PostgreSQL.
// The (account_id, purpose) unique constraint keeps one row per pair.
type ChallengeRepository struct {
	db store.DB
}

// NewChallengeRepository creates a new ChallengeRepository.
func NewChallengeRepository(db store.DB) *ChallengeRepository {
	return &ChallengeRepository{db: db}
}

// Replace upserts c as the only challenge for its pair, resetting attempts
// and consumption.
func (r *ChallengeRepository) Replace(ctx context.Context, c *auth.Challenge) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO otp_challenges (id, account_id, purpose, code_hash, issued_at, expires_at, consumed_at, attempts)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (account_id, purpose) DO UPDATE SET
			id = EXCLUDED.id,
			code_hash = EXCLUDED.code_hash,
			issued_at = EXCLUDED.issued_at,
			expires_at = EXCLUDED.expires_at,
			consumed_at = EXCLUDED.consumed_at,
			attempts = EXCLUDED.attempts
	`,
		c.ID.String(),
		c.AccountID.String(),
		string(c.Purpose),
		c.CodeHash,
		c.IssuedAt,
		c.ExpiresAt,
		c.ConsumedAt,
		c.Attempts,
	)
	if err != nil {
		return oops.Code("CHALLENGE_REPLACE_FAILED").
			With("operation", "upsert challenge").
			With("account_id", c.AccountID.String()).
			With("purpose", string(c.Purpose)).
			Wrap(err)
	}
	return nil
}

// Update locks the row for the pair, applies fn and writes the result in one
// transaction.
func (r *ChallengeRepository) Update(ctx context.Context, accountID ulid.ULID, purpose auth.Purpose, fn func(c *auth.Challenge) error) (err error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return oops.Code("CHALLENGE_UPDATE_FAILED").With("operation", "begin").Wrap(err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx) //nolint:errcheck // original error takes precedence
		}
	}()

	row := tx.QueryRow(ctx, `
		SELECT id, account_id, purpose, code_hash, issued_at, expires_at, consumed_at, attempts
		FROM otp_challenges
		WHERE account_id = $1 AND purpose = $2
		FOR UPDATE
	`, accountID.String(), string(purpose))

	c, err := scanChallenge(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return oops.Code("CHALLENGE_NOT_FOUND").
			With("account_id", accountID.String()).
			With("purpose", string(purpose)).
			Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return oops.Code("CHALLENGE_UPDATE_FAILED").With("operation", "select for update").Wrap(err)
	}

	if err = fn(c); err != nil {
		return err
	}

	if _, err = tx.Exec(ctx, `
		UPDATE otp_challenges SET consumed_at = $2, attempts = $3
		WHERE id = $1
	`, c.ID.String(), c.ConsumedAt, c.Attempts); err != nil {
		return oops.Code("CHALLENGE_UPDATE_FAILED").With("operation", "write challenge").Wrap(err)
	}

	if err = tx.Commit(ctx); err != nil {
		return oops.Code("CHALLENGE_UPDATE_FAILED").With("operation", "commit").Wrap(err)
	}
	return nil
}

// DeleteExpired removes challenges that expired before the given time.
func (r *ChallengeRepository) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	tag, err := r.db.Exec(ctx, `DELETE FROM otp_challenges WHERE expires_at < $1`, before)
	if err != nil {
		return 0, oops.Code("CHALLENGE_DELETE_EXPIRED_FAILED").Wrap(err)
	}
	return tag.RowsAffected(), nil
}

func scanChallenge(row pgx.Row) (*auth.Challenge, error) {
	var (
		idStr, accountStr, purpose string
		c                          auth.Challenge
	)
	if err := row.Scan(&idStr, &accountStr, &purpose, &c.CodeHash, &c.IssuedAt, &c.ExpiresAt, &c.ConsumedAt, &c.Attempts); err != nil {
		return nil, err //nolint:wrapcheck // callers wrap with operation context
	}
	var err error
	if c.ID, err = ulid.Parse(idStr); err != nil {
		return nil, oops.Code("CHALLENGE_INVALID_ID").With("id", idStr).Wrap(err)
	}
	if c.AccountID, err = ulid.Parse(accountStr); err != nil {
		return nil, oops.Code("CHALLENGE_INVALID_ID").With("account_id", accountStr).Wrap(err)
	}
	c.Purpose = auth.Purpose(purpose)
	return &c, nil
}

var _ auth.ChallengeRepository = (*ChallengeRepository)(nil)
