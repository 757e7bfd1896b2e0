// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/require"

	"github.com/holomush/authcore/internal/auth"
	"github.com/holomush/authcore/internal/auth/memory"
	"github.com/holomush/authcore/internal/clock"
	"github.com/holomush/authcore/internal/ratelimit"
)

var testEpoch = time.Date(2026, 3, 14, 15, 9, 26, 0, time.UTC)

// cheapParams keeps argon2 fast in tests.
var cheapParams = auth.Argon2Params{Time: 1, Memory: 64, Threads: 1}

func cheapHasher() *auth.Argon2idHasher {
	return auth.NewArgon2idHasherWithParams(cheapParams)
}

// sequenceReader serves fixed bytes, for deterministic code generation.
// 0x07 0x5E 0x61 yields 482913; 0x01 0xE2 0x40 yields 123456.
func sequenceReader(chunks ...[]byte) io.Reader {
	var all []byte
	for _, c := range chunks {
		all = append(all, c...)
	}
	return bytes.NewReader(all)
}

var (
	code482913 = []byte{0x07, 0x5E, 0x61}
	code123456 = []byte{0x01, 0xE2, 0x40}
)

type sentCode struct {
	Email   string
	Purpose auth.Purpose
	Code    string
}

// recordingDispatcher captures dispatched codes synchronously.
type recordingDispatcher struct {
	mu   sync.Mutex
	sent []sentCode
}

func (d *recordingDispatcher) Dispatch(email string, purpose auth.Purpose, code string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.sent = append(d.sent, sentCode{Email: email, Purpose: purpose, Code: code})
}

func (d *recordingDispatcher) all() []sentCode {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]sentCode(nil), d.sent...)
}

func (d *recordingDispatcher) last(t *testing.T) sentCode {
	t.Helper()
	sent := d.all()
	require.NotEmpty(t, sent, "expected a dispatched code")
	return sent[len(sent)-1]
}

// flakyAccounts fails UpdatePassword while failUpdates is set.
type flakyAccounts struct {
	*memory.AccountRepository

	mu          sync.Mutex
	failUpdates bool
}

func (f *flakyAccounts) setFailUpdates(v bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failUpdates = v
}

func (f *flakyAccounts) UpdatePassword(ctx context.Context, id ulid.ULID, hash string, updatedAt time.Time) error {
	f.mu.Lock()
	fail := f.failUpdates
	f.mu.Unlock()
	if fail {
		return errors.New("storage unavailable")
	}
	return f.AccountRepository.UpdatePassword(ctx, id, hash, updatedAt)
}

type fixture struct {
	svc         *auth.Service
	clock       *clock.Fake
	accounts    *flakyAccounts
	challenges  *memory.ChallengeRepository
	sessions    *memory.SessionRepository
	limiter     *ratelimit.Memory
	credentials *auth.CredentialStore
	otp         *auth.OTPManager
	issuer      *auth.SessionIssuer
	delivery    *recordingDispatcher
	logs        *bytes.Buffer
}

type fixtureOption func(*fixtureOptions)

type fixtureOptions struct {
	cfg     auth.ServiceConfig
	otpRand io.Reader
}

func withServiceConfig(cfg auth.ServiceConfig) fixtureOption {
	return func(o *fixtureOptions) { o.cfg = cfg }
}

func withOTPRand(r io.Reader) fixtureOption {
	return func(o *fixtureOptions) { o.otpRand = r }
}

func newFixture(t *testing.T, opts ...fixtureOption) *fixture {
	t.Helper()

	var o fixtureOptions
	for _, opt := range opts {
		opt(&o)
	}

	f := &fixture{
		clock:      clock.NewFake(testEpoch),
		accounts:   &flakyAccounts{AccountRepository: memory.NewAccountRepository()},
		challenges: memory.NewChallengeRepository(),
		sessions:   memory.NewSessionRepository(),
		delivery:   &recordingDispatcher{},
		logs:       &bytes.Buffer{},
	}

	var err error
	f.limiter, err = ratelimit.NewMemory(ratelimit.MemoryConfig{Clock: f.clock})
	require.NoError(t, err)
	t.Cleanup(func() { _ = f.limiter.Close() })

	f.credentials, err = auth.NewCredentialStore(f.accounts, cheapHasher(), f.clock)
	require.NoError(t, err)

	f.otp, err = auth.NewOTPManager(f.challenges, f.limiter, auth.OTPConfig{
		Pepper: []byte("test-pepper"),
		Clock:  f.clock,
		Rand:   o.otpRand,
	})
	require.NoError(t, err)

	f.issuer, err = auth.NewSessionIssuer(f.sessions, 0, f.clock, nil)
	require.NoError(t, err)

	logger := slog.New(slog.NewJSONHandler(f.logs, &slog.HandlerOptions{Level: slog.LevelDebug}))
	f.svc, err = auth.NewService(auth.ServiceDeps{
		Credentials: f.credentials,
		OTP:         f.otp,
		Limiter:     f.limiter,
		Sessions:    f.issuer,
		Delivery:    f.delivery,
		Logger:      logger,
	}, o.cfg)
	require.NoError(t, err)

	return f
}

func (f *fixture) seedAccount(t *testing.T, email, password string) *auth.Account {
	t.Helper()
	account, err := f.credentials.CreateAccount(context.Background(), email, password)
	require.NoError(t, err)
	return account
}
