// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package httpapi exposes the auth service as a JSON API.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/holomush/authcore/internal/auth"
	"github.com/holomush/authcore/internal/observability"
	"github.com/holomush/authcore/pkg/errutil"
)

// maxBodyBytes bounds request bodies. Credentials are small.
const maxBodyBytes = 64 << 10

// MsgBadRequest is returned when the body cannot be decoded.
const MsgBadRequest = "Invalid request body."

// Service is the subset of *auth.Service the API needs.
type Service interface {
	Login(ctx context.Context, email, password string) auth.Outcome
	RequestReset(ctx context.Context, email string) auth.Outcome
	ConfirmReset(ctx context.Context, email, code, newPassword string) auth.Outcome
	ResendCooldown(ctx context.Context, email string) (time.Duration, error)
	Authenticate(ctx context.Context, token string) (*auth.Session, error)
	Logout(ctx context.Context, token string) auth.Outcome
}

var _ Service = (*auth.Service)(nil)

// LoginRequest is the body of POST /v1/login.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// ResetRequest is the body of POST /v1/password-reset/request.
type ResetRequest struct {
	Email string `json:"email"`
}

// ConfirmRequest is the body of POST /v1/password-reset/confirm.
type ConfirmRequest struct {
	Email       string `json:"email"`
	Code        string `json:"code"`
	NewPassword string `json:"new_password"`
}

// CooldownResponse is the body of the cooldown endpoint.
type CooldownResponse struct {
	CooldownSeconds int `json:"cooldown_seconds"`
}

// SessionResponse describes the session behind a bearer token.
type SessionResponse struct {
	AccountID string    `json:"account_id"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Handler serves the API routes.
type Handler struct {
	svc     Service
	logger  *slog.Logger
	metrics *observability.Metrics
	mux     *http.ServeMux
}

// NewHandler builds the API router. metrics may be nil.
func NewHandler(svc Service, logger *slog.Logger, metrics *observability.Metrics) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Handler{svc: svc, logger: logger, metrics: metrics, mux: http.NewServeMux()}

	h.route("POST /v1/login", "login", h.handleLogin)
	h.route("POST /v1/password-reset/request", "reset_request", h.handleResetRequest)
	h.route("POST /v1/password-reset/confirm", "reset_confirm", h.handleResetConfirm)
	h.route("GET /v1/password-reset/cooldown", "reset_cooldown", h.handleCooldown)
	h.route("POST /v1/logout", "logout", h.handleLogout)
	h.route("GET /v1/session", "session", h.handleSession)
	return h
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

func (h *Handler) route(pattern, name string, fn http.HandlerFunc) {
	h.mux.Handle(pattern, h.instrument(name, fn))
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if !h.decode(w, r, &req) {
		return
	}
	h.writeOutcome(w, h.svc.Login(r.Context(), req.Email, req.Password))
}

func (h *Handler) handleResetRequest(w http.ResponseWriter, r *http.Request) {
	var req ResetRequest
	if !h.decode(w, r, &req) {
		return
	}
	h.writeOutcome(w, h.svc.RequestReset(r.Context(), req.Email))
}

func (h *Handler) handleResetConfirm(w http.ResponseWriter, r *http.Request) {
	var req ConfirmRequest
	if !h.decode(w, r, &req) {
		return
	}
	h.writeOutcome(w, h.svc.ConfirmReset(r.Context(), req.Email, req.Code, req.NewPassword))
}

func (h *Handler) handleCooldown(w http.ResponseWriter, r *http.Request) {
	remaining, err := h.svc.ResendCooldown(r.Context(), r.URL.Query().Get("email"))
	if err != nil {
		errutil.LogErrorContext(r.Context(), h.logger, "cooldown lookup failed", err)
		h.writeOutcome(w, auth.Outcome{Status: auth.StatusError, Message: auth.MsgUnexpected})
		return
	}
	writeJSON(w, http.StatusOK, CooldownResponse{CooldownSeconds: int(math.Ceil(remaining.Seconds()))})
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	token, ok := bearerToken(r)
	if !ok {
		h.writeOutcome(w, auth.Outcome{Status: auth.StatusInvalid, Message: auth.MsgSessionInvalid})
		return
	}
	h.writeOutcome(w, h.svc.Logout(r.Context(), token))
}

func (h *Handler) handleSession(w http.ResponseWriter, r *http.Request) {
	token, ok := bearerToken(r)
	if !ok {
		h.writeOutcome(w, auth.Outcome{Status: auth.StatusInvalid, Message: auth.MsgSessionInvalid})
		return
	}
	session, err := h.svc.Authenticate(r.Context(), token)
	if err != nil {
		if auth.ErrorCode(err) == auth.CodeSessionInvalid {
			h.writeOutcome(w, auth.Outcome{Status: auth.StatusInvalid, Message: auth.MsgSessionInvalid})
			return
		}
		errutil.LogErrorContext(r.Context(), h.logger, "session lookup failed", err)
		h.writeOutcome(w, auth.Outcome{Status: auth.StatusError, Message: auth.MsgUnexpected})
		return
	}
	writeJSON(w, http.StatusOK, SessionResponse{
		AccountID: session.AccountID.String(),
		ExpiresAt: session.ExpiresAt,
	})
}

// decode reads a JSON body into dst. It writes a 400 and returns false on
// malformed input.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		h.logger.DebugContext(r.Context(), "rejecting request body", "error", err.Error())
		writeJSON(w, http.StatusBadRequest, auth.Outcome{Status: auth.StatusValidation, Message: MsgBadRequest})
		return false
	}
	return true
}

func (h *Handler) writeOutcome(w http.ResponseWriter, out auth.Outcome) {
	writeJSON(w, StatusCode(out.Status), out)
}

// StatusCode maps an outcome status onto an HTTP status code.
func StatusCode(s auth.Status) int {
	switch s {
	case auth.StatusOK:
		return http.StatusOK
	case auth.StatusInvalid:
		return http.StatusUnauthorized
	case auth.StatusValidation:
		return http.StatusBadRequest
	case auth.StatusThrottled:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

func writeJSON(w http.ResponseWriter, code int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(code)
	//nolint:errcheck // client may have disconnected
	json.NewEncoder(w).Encode(body)
}
