// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package memory

import (
	"context"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/holomush/authcore/internal/auth"
)

type challengeKey struct {
	accountID ulid.ULID
	purpose   auth.Purpose
}

// ChallengeRepository is an in-memory auth.ChallengeRepository. A single
// mutex serializes Replace and Update, which gives the per-pair exclusion
// the interface requires.
type ChallengeRepository struct {
	mu         sync.Mutex
	challenges map[challengeKey]auth.Challenge
}

// NewChallengeRepository creates an empty ChallengeRepository.
func NewChallengeRepository() *ChallengeRepository {
	return &ChallengeRepository{challenges: make(map[challengeKey]auth.Challenge)}
}

// Replace implements auth.ChallengeRepository.
func (r *ChallengeRepository) Replace(_ context.Context, c *auth.Challenge) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.challenges[challengeKey{c.AccountID, c.Purpose}] = cloneChallenge(c)
	return nil
}

// Update implements auth.ChallengeRepository.
func (r *ChallengeRepository) Update(_ context.Context, accountID ulid.ULID, purpose auth.Purpose, fn func(c *auth.Challenge) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := challengeKey{accountID, purpose}
	stored, ok := r.challenges[key]
	if !ok {
		return oops.Code("CHALLENGE_NOT_FOUND").
			With("account_id", accountID.String()).
			With("purpose", string(purpose)).
			Wrap(auth.ErrNotFound)
	}

	working := cloneChallenge(&stored)
	if err := fn(&working); err != nil {
		return err
	}
	r.challenges[key] = cloneChallenge(&working)
	return nil
}

// DeleteExpired implements auth.ChallengeRepository.
func (r *ChallengeRepository) DeleteExpired(_ context.Context, before time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var n int64
	for key, c := range r.challenges {
		if c.ExpiresAt.Before(before) {
			delete(r.challenges, key)
			n++
		}
	}
	return n, nil
}

// Get returns a copy of the stored challenge for (accountID, purpose).
func (r *ChallengeRepository) Get(accountID ulid.ULID, purpose auth.Purpose) (auth.Challenge, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.challenges[challengeKey{accountID, purpose}]
	if !ok {
		return auth.Challenge{}, false
	}
	return cloneChallenge(&c), true
}

func cloneChallenge(c *auth.Challenge) auth.Challenge {
	out := *c
	if c.ConsumedAt != nil {
		t := *c.ConsumedAt
		out.ConsumedAt = &t
	}
	return out
}

var _ auth.ChallengeRepository = (*ChallengeRepository)(nil)
