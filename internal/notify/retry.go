// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package notify

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/samber/oops"
	"github.com/sethvargo/go-retry"

	"github.com/holomush/authcore/internal/auth"
)

// Retry defaults.
const (
	DefaultRetryAttempts = 3
	DefaultRetryBase     = 200 * time.Millisecond
	maxRetryDelay        = 5 * time.Second
)

type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err was marked with Permanent.
func IsPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p)
}

// RetryConfig tunes Retrying. Zero values take defaults.
type RetryConfig struct {
	Attempts uint64
	Base     time.Duration
}

// Retrying retries a Notifier with capped exponential backoff. Permanent
// errors and context cancellation end the loop early.
type Retrying struct {
	next   auth.Notifier
	logger *slog.Logger
	cfg    RetryConfig
}

// NewRetrying wraps next.
func NewRetrying(next auth.Notifier, logger *slog.Logger, cfg RetryConfig) (*Retrying, error) {
	if next == nil {
		return nil, oops.Code("NOTIFY_INVALID_CONFIG").Errorf("notifier is required")
	}
	if logger == nil {
		return nil, oops.Code("NOTIFY_INVALID_CONFIG").Errorf("logger is required")
	}
	if cfg.Attempts == 0 {
		cfg.Attempts = DefaultRetryAttempts
	}
	if cfg.Base <= 0 {
		cfg.Base = DefaultRetryBase
	}
	return &Retrying{next: next, logger: logger, cfg: cfg}, nil
}

// Send calls the wrapped notifier until it succeeds or attempts run out.
func (r *Retrying) Send(ctx context.Context, email string, purpose auth.Purpose, code string) error {
	backoff := retry.NewExponential(r.cfg.Base)
	backoff = retry.WithCappedDuration(maxRetryDelay, backoff)
	backoff = retry.WithMaxRetries(r.cfg.Attempts-1, backoff)

	attempt := 0
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		err := r.next.Send(ctx, email, purpose, code)
		if err == nil {
			return nil
		}
		if IsPermanent(err) || ctx.Err() != nil {
			return err
		}
		r.logger.Debug("notification attempt failed",
			"attempt", attempt,
			"purpose", string(purpose),
			"error", err)
		return retry.RetryableError(err)
	})
	if err != nil {
		return oops.Code("NOTIFY_RETRIES_EXHAUSTED").
			With("attempts", attempt).
			With("purpose", string(purpose)).
			Wrap(err)
	}
	return nil
}

var _ auth.Notifier = (*Retrying)(nil)
