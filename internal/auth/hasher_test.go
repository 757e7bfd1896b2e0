// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/holomush/authcore/internal/auth"
	"github.com/holomush/authcore/pkg/errutil"
)

func TestArgon2idHasher_Hash(t *testing.T) {
	hasher := cheapHasher()

	first, err := hasher.Hash("correct horse battery")
	require.NoError(t, err)
	second, err := hasher.Hash("correct horse battery")
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(first, "$argon2id$"))
	assert.NotEqual(t, first, second, "each hash gets a fresh salt")
	assert.NotContains(t, first, "correct horse battery")

	_, err = hasher.Hash("")
	errutil.AssertErrorCode(t, err, "AUTH_EMPTY_PASSWORD")
}

func TestArgon2idHasher_Verify(t *testing.T) {
	hasher := cheapHasher()
	hash, err := hasher.Hash("correct horse battery")
	require.NoError(t, err)

	ok, err := hasher.Verify("correct horse battery", hash)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = hasher.Verify("Correct horse battery", hash)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestArgon2idHasher_VerifyRejectsMalformedHashes(t *testing.T) {
	hasher := cheapHasher()

	tests := []struct {
		name    string
		hash    string
		wantMsg string
	}{
		{name: "not phc", hash: "not-a-valid-hash", wantMsg: "invalid hash format"},
		{name: "argon2i", hash: "$argon2i$v=19$m=65536,t=1,p=4$c2FsdA$aGFzaA", wantMsg: "unsupported hash algorithm"},
		{name: "bad version", hash: "$argon2id$vXX$m=65536,t=1,p=4$c2FsdA$aGFzaA"},
		{name: "bad params", hash: "$argon2id$v=19$invalid$c2FsdA$aGFzaA"},
		{name: "bad salt encoding", hash: "$argon2id$v=19$m=65536,t=1,p=4$!!!invalid!!!$aGFzaA"},
		{name: "bad key encoding", hash: "$argon2id$v=19$m=65536,t=1,p=4$c2FsdA$!!!invalid!!!"},
		{name: "threads overflow uint8", hash: "$argon2id$v=19$m=65536,t=1,p=256$c2FsdA$aGFzaA", wantMsg: "threads value"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ok, err := hasher.Verify("password", tt.hash)
			assert.False(t, ok)
			errutil.AssertErrorCode(t, err, "AUTH_INVALID_HASH")
			if tt.wantMsg != "" {
				assert.Contains(t, err.Error(), tt.wantMsg)
			}
		})
	}
}

func TestNeedsUpgrade(t *testing.T) {
	hasher := cheapHasher()

	t.Run("foreign algorithm needs upgrade", func(t *testing.T) {
		assert.True(t, hasher.NeedsUpgrade("$2a$10$N9qo8uLOickgx2ZMRZoMyeIvNq.Uf3hE9tQALNP1Qn9sNp5x5x5x5"))
	})

	t.Run("current parameters do not need upgrade", func(t *testing.T) {
		hash, err := hasher.Hash("password")
		require.NoError(t, err)
		assert.False(t, hasher.NeedsUpgrade(hash))
	})

	t.Run("different cost parameters need upgrade", func(t *testing.T) {
		stronger := auth.NewArgon2idHasherWithParams(auth.Argon2Params{Time: 2, Memory: 128, Threads: 1})
		hash, err := stronger.Hash("password")
		require.NoError(t, err)
		assert.True(t, hasher.NeedsUpgrade(hash))
		assert.False(t, stronger.NeedsUpgrade(hash))
	})

	t.Run("garbage needs upgrade", func(t *testing.T) {
		assert.True(t, hasher.NeedsUpgrade("not-a-hash"))
	})
}

func TestNewArgon2idHasherWithParams_Defaults(t *testing.T) {
	h := auth.NewArgon2idHasherWithParams(auth.Argon2Params{Memory: 64})
	p := h.Params()
	def := auth.DefaultArgon2Params()

	assert.Equal(t, uint32(64), p.Memory)
	assert.Equal(t, def.Time, p.Time)
	assert.Equal(t, def.Threads, p.Threads)
	assert.Equal(t, def.SaltLen, p.SaltLen)
	assert.Equal(t, def.KeyLen, p.KeyLen)
}

func TestHash_EncodesParams(t *testing.T) {
	hash, err := cheapHasher().Hash("password")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(hash, "$argon2id$v=19$m=64,t=1,p=1$"), hash)
}
