// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth_test

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/holomush/authcore/internal/auth"
	"github.com/holomush/authcore/internal/auth/memory"
	"github.com/holomush/authcore/internal/clock"
	"github.com/holomush/authcore/pkg/errutil"
)

func TestGenerateSessionToken(t *testing.T) {
	t.Run("hex token and matching hash", func(t *testing.T) {
		token, hash, err := auth.GenerateSessionToken(bytes.NewReader(bytes.Repeat([]byte{0xAB}, auth.SessionTokenBytes)))
		require.NoError(t, err)
		assert.Equal(t, "ab", token[:2])
		assert.Len(t, token, auth.SessionTokenBytes*2)
		assert.Equal(t, auth.HashSessionToken(token), hash)
		assert.NotEqual(t, token, hash)
	})

	t.Run("short reader fails", func(t *testing.T) {
		_, _, err := auth.GenerateSessionToken(bytes.NewReader([]byte{1, 2, 3}))
		errutil.AssertErrorCode(t, err, "SESSION_TOKEN_GENERATE_FAILED")
	})
}

func TestNewSession(t *testing.T) {
	accountID := ulid.Make()

	_, err := auth.NewSession(ulid.ULID{}, "hash", testEpoch, testEpoch.Add(time.Hour))
	errutil.AssertErrorCode(t, err, "SESSION_INVALID_ACCOUNT")

	_, err = auth.NewSession(accountID, "", testEpoch, testEpoch.Add(time.Hour))
	errutil.AssertErrorCode(t, err, "SESSION_INVALID_HASH")

	_, err = auth.NewSession(accountID, "hash", testEpoch, testEpoch)
	errutil.AssertErrorCode(t, err, "SESSION_INVALID_EXPIRY")

	s, err := auth.NewSession(accountID, "hash", testEpoch, testEpoch.Add(time.Hour))
	require.NoError(t, err)
	assert.False(t, s.IsExpiredAt(testEpoch.Add(time.Hour-time.Nanosecond)))
	assert.False(t, s.IsExpiredAt(testEpoch.Add(time.Hour)), "valid through the expiry instant")
	assert.True(t, s.IsExpiredAt(testEpoch.Add(time.Hour+time.Nanosecond)))
}

func TestSessionIssuer(t *testing.T) {
	ctx := context.Background()

	newIssuer := func(t *testing.T) (*auth.SessionIssuer, *memory.SessionRepository, *clock.Fake) {
		t.Helper()
		repo := memory.NewSessionRepository()
		clk := clock.NewFake(testEpoch)
		issuer, err := auth.NewSessionIssuer(repo, time.Hour, clk, nil)
		require.NoError(t, err)
		return issuer, repo, clk
	}

	t.Run("requires repository", func(t *testing.T) {
		_, err := auth.NewSessionIssuer(nil, 0, nil, nil)
		errutil.AssertErrorCode(t, err, "SESSION_INVALID_CONFIG")
	})

	t.Run("issue and validate", func(t *testing.T) {
		issuer, _, _ := newIssuer(t)
		accountID := ulid.Make()

		session, token, err := issuer.Issue(ctx, accountID)
		require.NoError(t, err)
		assert.Equal(t, testEpoch.Add(time.Hour), session.ExpiresAt)

		got, err := issuer.Validate(ctx, token)
		require.NoError(t, err)
		assert.Equal(t, session.ID, got.ID)
		assert.Equal(t, accountID, got.AccountID)
	})

	t.Run("unknown, empty and expired tokens are invalid", func(t *testing.T) {
		issuer, _, clk := newIssuer(t)
		_, token, err := issuer.Issue(ctx, ulid.Make())
		require.NoError(t, err)

		_, err = issuer.Validate(ctx, "")
		errutil.AssertErrorCode(t, err, auth.CodeSessionInvalid)

		_, err = issuer.Validate(ctx, "deadbeef")
		errutil.AssertErrorCode(t, err, auth.CodeSessionInvalid)

		clk.Advance(time.Hour)
		_, err = issuer.Validate(ctx, token)
		require.NoError(t, err, "valid through the expiry instant")

		clk.Advance(time.Nanosecond)
		_, err = issuer.Validate(ctx, token)
		errutil.AssertErrorCode(t, err, auth.CodeSessionInvalid)
	})

	t.Run("revoke and revoke all", func(t *testing.T) {
		issuer, repo, _ := newIssuer(t)
		accountID := ulid.Make()

		_, first, err := issuer.Issue(ctx, accountID)
		require.NoError(t, err)
		_, _, err = issuer.Issue(ctx, accountID)
		require.NoError(t, err)
		require.Equal(t, 2, repo.Count(accountID))

		require.NoError(t, issuer.Revoke(ctx, first))
		assert.Equal(t, 1, repo.Count(accountID))
		errutil.AssertErrorCode(t, issuer.Revoke(ctx, first), auth.CodeSessionInvalid)

		require.NoError(t, issuer.RevokeAll(ctx, accountID))
		assert.Zero(t, repo.Count(accountID))
	})
}
