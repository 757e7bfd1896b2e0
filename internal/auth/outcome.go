// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import "time"

// Status classifies an Outcome for transports.
type Status string

// Outcome statuses.
const (
	StatusOK         Status = "ok"
	StatusInvalid    Status = "invalid"
	StatusValidation Status = "validation"
	StatusThrottled  Status = "throttled"
	StatusError      Status = "error"
)

// Caller-facing messages. They never mention whether an account exists or
// which internal check failed.
const (
	MsgLoginSuccess       = "Login successful."
	MsgInvalidCredentials = "Invalid email or password."
	MsgThrottled          = "Too many attempts. Please try again later."
	MsgResetRequested     = "If an account with that email exists, a password reset code has been sent."
	MsgResetComplete      = "Password reset successfully."
	MsgResetInvalidCode   = "Invalid or expired code."
	MsgResetRetry         = "This reset code can no longer be used. Please request a new password reset."
	MsgLoggedOut          = "Logged out."
	MsgSessionInvalid     = "Invalid or expired session."
	MsgUnexpected         = "An unexpected error occurred. Please try again."
)

// Outcome is the uniform result of every Service operation.
type Outcome struct {
	Success bool           `json:"success"`
	Status  Status         `json:"status"`
	Message string         `json:"message"`
	Session *SessionHandle `json:"session,omitempty"`
}

// SessionHandle is the opaque credential handed to the caller.
type SessionHandle struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

func okOutcome(msg string) Outcome {
	return Outcome{Success: true, Status: StatusOK, Message: msg}
}

func failOutcome(status Status, msg string) Outcome {
	return Outcome{Success: false, Status: status, Message: msg}
}
