// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/holomush/authcore/internal/auth"
	"github.com/holomush/authcore/internal/config"
	"github.com/holomush/authcore/internal/httpapi"
	"github.com/holomush/authcore/pkg/errutil"
)

// syncBuffer is written by delivery workers and read by the test.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

var deliveredCode = regexp.MustCompile(`code is (\d{6})`)

func memoryServeConfig() *config.Config {
	cfg := config.Default()
	cfg.Listen = "127.0.0.1:0"
	cfg.MetricsAddr = ""
	cfg.Log.Format = "text"
	cfg.Store.Backend = config.StoreMemory
	cfg.RateLimit.Backend = config.LimiterMemory
	cfg.Notify.Backend = config.NotifyStdout
	cfg.Reset.MinResponse = 10 * time.Millisecond
	return &cfg
}

type apiClient struct {
	t      *testing.T
	base   string
	client *http.Client
}

func (c *apiClient) do(method, path, token string, body any) (int, map[string]any) {
	c.t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(c.t, err)
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(context.Background(), method, c.base+path, reader)
	require.NoError(c.t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := c.client.Do(req)
	require.NoError(c.t, err)
	defer resp.Body.Close()

	out := map[string]any{}
	require.NoError(c.t, json.NewDecoder(resp.Body).Decode(&out))
	return resp.StatusCode, out
}

func TestRunServe_PasswordResetFlow(t *testing.T) {
	storage, opener := memoryStorage()
	credentials, err := newCredentialStore(storage.Accounts)
	require.NoError(t, err)
	_, err = credentials.CreateAccount(context.Background(), "dana@example.com", "old password")
	require.NoError(t, err)

	codes := &syncBuffer{}
	addrCh := make(chan string, 1)
	deps := (&Deps{
		StorageOpener: opener,
		CodeOutput:    codes,
		LogOutput:     io.Discard,
		Ready:         func(addr string) { addrCh <- addr },
	}).withDefaults()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	errCh := make(chan error, 1)
	go func() { errCh <- runServe(ctx, memoryServeConfig(), deps) }()

	var addr string
	select {
	case addr = <-addrCh:
	case err := <-errCh:
		t.Fatalf("serve exited early: %v", err)
	case <-time.After(10 * time.Second):
		t.Fatal("serve did not become ready")
	}

	api := &apiClient{
		t:      t,
		base:   "http://" + addr,
		client: &http.Client{Timeout: 10 * time.Second, Transport: &http.Transport{DisableKeepAlives: true}},
	}

	status, body := api.do(http.MethodPost, "/v1/login", "", httpapi.LoginRequest{Email: "dana@example.com", Password: "wrong password"})
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, auth.MsgInvalidCredentials, body["message"])

	status, body = api.do(http.MethodPost, "/v1/password-reset/request", "", httpapi.ResetRequest{Email: "dana@example.com"})
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, auth.MsgResetRequested, body["message"])

	var code string
	require.Eventually(t, func() bool {
		m := deliveredCode.FindStringSubmatch(codes.String())
		if m == nil {
			return false
		}
		code = m[1]
		return true
	}, 5*time.Second, 10*time.Millisecond)
	assert.Contains(t, codes.String(), "To: dana@example.com")

	status, body = api.do(http.MethodGet, "/v1/password-reset/cooldown?email=dana@example.com", "", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Greater(t, body["cooldown_seconds"], float64(0))

	status, _ = api.do(http.MethodPost, "/v1/password-reset/confirm", "", httpapi.ConfirmRequest{
		Email: "dana@example.com", Code: code, NewPassword: "brand new password",
	})
	require.Equal(t, http.StatusOK, status)

	status, body = api.do(http.MethodPost, "/v1/password-reset/confirm", "", httpapi.ConfirmRequest{
		Email: "dana@example.com", Code: code, NewPassword: "another new password",
	})
	assert.Equal(t, http.StatusUnauthorized, status, "a code is single use")
	assert.Equal(t, auth.MsgResetInvalidCode, body["message"])

	status, body = api.do(http.MethodPost, "/v1/login", "", httpapi.LoginRequest{Email: "dana@example.com", Password: "brand new password"})
	require.Equal(t, http.StatusOK, status)
	session, ok := body["session"].(map[string]any)
	require.True(t, ok, "login returns a session")
	token, _ := session["token"].(string) //nolint:errcheck // checked below
	require.NotEmpty(t, token)

	status, body = api.do(http.MethodGet, "/v1/session", token, nil)
	require.Equal(t, http.StatusOK, status)
	assert.NotEmpty(t, body["account_id"])

	status, _ = api.do(http.MethodPost, "/v1/logout", token, nil)
	require.Equal(t, http.StatusOK, status)

	status, _ = api.do(http.MethodGet, "/v1/session", token, nil)
	assert.Equal(t, http.StatusUnauthorized, status)

	cancel()
	select {
	case err := <-errCh:
		require.NoError(t, err)
	case <-time.After(15 * time.Second):
		t.Fatal("serve did not shut down")
	}
}

func TestRunServe_InvalidConfig(t *testing.T) {
	cfg := memoryServeConfig()
	cfg.Listen = ""
	deps := (&Deps{
		StorageOpener: func(context.Context, *config.Config, *slog.Logger) (*Storage, error) {
			t.Fatal("storage must not be opened for an invalid config")
			return nil, nil
		},
		LogOutput: io.Discard,
	}).withDefaults()

	errutil.AssertErrorCode(t, runServe(context.Background(), cfg, deps), "CONFIG_INVALID")
}

func TestRunServe_StorageFailure(t *testing.T) {
	deps := (&Deps{
		StorageOpener: func(context.Context, *config.Config, *slog.Logger) (*Storage, error) {
			return nil, assert.AnError
		},
		LogOutput: io.Discard,
	}).withDefaults()

	err := runServe(context.Background(), memoryServeConfig(), deps)
	errutil.AssertErrorCode(t, err, "SERVE_FAILED")
	assert.True(t, strings.Contains(err.Error(), assert.AnError.Error()))
}
