// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/samber/oops"

	"github.com/holomush/authcore/pkg/errutil"
)

// CodeDispatcher hands an issued code to the delivery pipeline without
// blocking. *Dispatcher implements it.
type CodeDispatcher interface {
	Dispatch(email string, purpose Purpose, code string)
}

// ServiceDeps are the collaborators of a Service. All are required.
type ServiceDeps struct {
	Credentials *CredentialStore
	OTP         *OTPManager
	Limiter     RateLimiter
	Sessions    *SessionIssuer
	Delivery    CodeDispatcher
	Logger      *slog.Logger
}

// DefaultResetMinResponse is the reset latency floor used by the server
// configuration.
const DefaultResetMinResponse = 400 * time.Millisecond

// ServiceConfig tunes Service behavior.
type ServiceConfig struct {
	// ResetMinResponse is the minimum wall time of RequestReset and
	// ConfirmReset, so account-exists and account-missing branches fall in
	// the same latency class. Zero disables padding.
	ResetMinResponse time.Duration

	// SessionOnReset issues a session after a successful password reset.
	SessionOnReset bool
}

// Service orchestrates login and the password reset flow. Every operation
// returns an Outcome; internal failures are logged, never surfaced.
type Service struct {
	credentials *CredentialStore
	otp         *OTPManager
	limiter     RateLimiter
	sessions    *SessionIssuer
	delivery    CodeDispatcher
	logger      *slog.Logger
	cfg         ServiceConfig
}

// NewService creates a Service.
func NewService(deps ServiceDeps, cfg ServiceConfig) (*Service, error) {
	switch {
	case deps.Credentials == nil:
		return nil, oops.Code("SERVICE_INVALID_CONFIG").Errorf("credential store is required")
	case deps.OTP == nil:
		return nil, oops.Code("SERVICE_INVALID_CONFIG").Errorf("otp manager is required")
	case deps.Limiter == nil:
		return nil, oops.Code("SERVICE_INVALID_CONFIG").Errorf("rate limiter is required")
	case deps.Sessions == nil:
		return nil, oops.Code("SERVICE_INVALID_CONFIG").Errorf("session issuer is required")
	case deps.Delivery == nil:
		return nil, oops.Code("SERVICE_INVALID_CONFIG").Errorf("delivery dispatcher is required")
	case deps.Logger == nil:
		return nil, oops.Code("SERVICE_INVALID_CONFIG").Errorf("logger is required")
	}
	return &Service{
		credentials: deps.Credentials,
		otp:         deps.OTP,
		limiter:     deps.Limiter,
		sessions:    deps.Sessions,
		delivery:    deps.Delivery,
		logger:      deps.Logger,
		cfg:         cfg,
	}, nil
}

// Login authenticates email and password and issues a session. The rate
// limit is consulted before any credential work; unknown emails and wrong
// passwords produce the same outcome.
func (s *Service) Login(ctx context.Context, email, password string) Outcome {
	subject := subjectKey(email)

	allowed, err := s.limiter.Allow(ctx, subject, ActionLoginAttempt)
	if err != nil {
		return s.unexpected(ctx, LoginAttempts, "login rate limit check failed", err)
	}
	if !allowed {
		LoginAttempts.WithLabelValues(ResultThrottled).Inc()
		return failOutcome(StatusThrottled, MsgThrottled)
	}

	account, ok, err := s.credentials.VerifyPassword(ctx, email, password)
	if err != nil {
		return s.unexpected(ctx, LoginAttempts, "login verification failed", err)
	}
	if !ok {
		LoginAttempts.WithLabelValues(ResultInvalid).Inc()
		return failOutcome(StatusInvalid, MsgInvalidCredentials)
	}

	if err := s.limiter.Reset(ctx, subject, ActionLoginAttempt); err != nil {
		s.logger.WarnContext(ctx, "failed to reset login rate limit",
			"account_id", account.ID.String(), "error", err)
	}
	if upgraded, err := s.credentials.UpgradeHash(ctx, account, password); err != nil {
		s.logger.WarnContext(ctx, "password hash upgrade failed",
			"account_id", account.ID.String(), "error", err)
	} else if upgraded {
		s.logger.InfoContext(ctx, "password hash upgraded", "account_id", account.ID.String())
	}

	session, token, err := s.sessions.Issue(ctx, account.ID)
	if err != nil {
		return s.unexpected(ctx, LoginAttempts, "login session issue failed", err)
	}

	LoginAttempts.WithLabelValues(ResultSuccess).Inc()
	out := okOutcome(MsgLoginSuccess)
	out.Session = &SessionHandle{Token: token, ExpiresAt: session.ExpiresAt}
	return out
}

// RequestReset starts a password reset for email. The returned Outcome is
// identical whether or not the account exists, whether a code was issued or
// throttled, and whether delivery later fails.
func (s *Service) RequestReset(ctx context.Context, email string) Outcome {
	defer s.padResponse(ctx, time.Now())

	s.requestReset(ctx, email)
	return okOutcome(MsgResetRequested)
}

func (s *Service) requestReset(ctx context.Context, email string) {
	account, err := s.credentials.Lookup(ctx, email)
	if err != nil {
		if !isNotFound(err) {
			errutil.LogErrorContext(ctx, s.logger, "password reset lookup failed", err)
		}
		if decoyErr := s.otp.Decoy(ctx, subjectKey(email), PurposePasswordReset); decoyErr != nil {
			errutil.LogErrorContext(ctx, s.logger, "password reset decoy failed", decoyErr)
		}
		return
	}

	_, code, err := s.otp.Issue(ctx, account, PurposePasswordReset)
	if err != nil {
		if ErrorCode(err) == CodeOTPThrottled {
			s.logger.InfoContext(ctx, "password reset code throttled", "account_id", account.ID.String())
			return
		}
		errutil.LogErrorContext(ctx, s.logger, "password reset code issue failed", err)
		return
	}

	s.delivery.Dispatch(account.Email, PurposePasswordReset, code)
	s.logger.InfoContext(ctx, "password reset code issued", "account_id", account.ID.String())
}

// ConfirmReset completes a password reset. Unknown accounts and every code
// failure (mismatch, expiry, exhaustion, reuse) collapse into one outcome.
// If the new password cannot be stored after the code was consumed, the code
// stays consumed and the caller is told to start over.
func (s *Service) ConfirmReset(ctx context.Context, email, code, newPassword string) Outcome {
	defer s.padResponse(ctx, time.Now())

	if err := ValidatePassword(newPassword); err != nil {
		ResetConfirmations.WithLabelValues(ResultRejected).Inc()
		return failOutcome(StatusValidation, validationMessage(err))
	}

	account, err := s.credentials.Lookup(ctx, email)
	if err != nil {
		if !isNotFound(err) {
			return s.unexpected(ctx, ResetConfirmations, "password reset lookup failed", err)
		}
		s.otp.BurnVerifyCost(PurposePasswordReset, code)
		ResetConfirmations.WithLabelValues(ResultInvalid).Inc()
		return failOutcome(StatusInvalid, MsgResetInvalidCode)
	}

	result, err := s.otp.Verify(ctx, account, PurposePasswordReset, code)
	if err != nil {
		return s.unexpected(ctx, ResetConfirmations, "password reset verification failed", err)
	}
	if !result.OK {
		s.logger.DebugContext(ctx, "password reset code rejected",
			"account_id", account.ID.String(),
			"reason", string(result.Reason),
			"attempts", result.Attempts,
		)
		ResetConfirmations.WithLabelValues(ResultInvalid).Inc()
		return failOutcome(StatusInvalid, MsgResetInvalidCode)
	}

	if err := s.credentials.SetPassword(ctx, account.Email, newPassword); err != nil {
		errutil.LogErrorContext(ctx, s.logger, "password reset store failed after code consumption", err)
		ResetConfirmations.WithLabelValues(ResultError).Inc()
		return failOutcome(StatusError, MsgResetRetry)
	}

	if err := s.sessions.RevokeAll(ctx, account.ID); err != nil {
		errutil.LogErrorContext(ctx, s.logger, "failed to revoke sessions after password reset", err)
	}
	s.logger.InfoContext(ctx, "password reset completed", "account_id", account.ID.String())
	ResetConfirmations.WithLabelValues(ResultSuccess).Inc()

	out := okOutcome(MsgResetComplete)
	if !s.cfg.SessionOnReset {
		return out
	}
	session, token, err := s.sessions.Issue(ctx, account.ID)
	if err != nil {
		// The password is already changed; the caller can log in normally.
		errutil.LogErrorContext(ctx, s.logger, "session issue after password reset failed", err)
		return out
	}
	out.Session = &SessionHandle{Token: token, ExpiresAt: session.ExpiresAt}
	return out
}

// ResendCooldown returns how long the caller must wait before another reset
// code can be requested for email. It behaves the same for unknown emails.
func (s *Service) ResendCooldown(ctx context.Context, email string) (time.Duration, error) {
	return s.otp.Cooldown(ctx, subjectKey(email), PurposePasswordReset)
}

// Authenticate resolves a session token.
func (s *Service) Authenticate(ctx context.Context, token string) (*Session, error) {
	return s.sessions.Validate(ctx, token) //nolint:wrapcheck // already coded
}

// Logout revokes the session identified by token.
func (s *Service) Logout(ctx context.Context, token string) Outcome {
	if err := s.sessions.Revoke(ctx, token); err != nil {
		if ErrorCode(err) == CodeSessionInvalid {
			return failOutcome(StatusInvalid, MsgSessionInvalid)
		}
		errutil.LogErrorContext(ctx, s.logger, "logout failed", err)
		return failOutcome(StatusError, MsgUnexpected)
	}
	return okOutcome(MsgLoggedOut)
}

func (s *Service) unexpected(ctx context.Context, counter *prometheus.CounterVec, msg string, err error) Outcome {
	errutil.LogErrorContext(ctx, s.logger, msg, err)
	counter.WithLabelValues(ResultError).Inc()
	return failOutcome(StatusError, MsgUnexpected)
}

// padResponse sleeps until ResetMinResponse has elapsed since start or ctx
// is done.
func (s *Service) padResponse(ctx context.Context, start time.Time) {
	remaining := s.cfg.ResetMinResponse - time.Since(start)
	if remaining <= 0 {
		return
	}
	timer := time.NewTimer(remaining)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
	}
}

// subjectKey is the rate-limit subject for an email. Malformed input is
// still keyed (lowercased) so it is throttled like any other address.
func subjectKey(email string) string {
	if normalized, err := NormalizeEmail(email); err == nil {
		return normalized
	}
	return strings.ToLower(strings.TrimSpace(email))
}

// validationMessage extracts the caller-safe message of a validation error.
func validationMessage(err error) string {
	if oopsErr, ok := oops.AsOops(err); ok {
		return oopsErr.Error()
	}
	return err.Error()
}
