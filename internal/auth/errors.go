// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"errors"

	"github.com/samber/oops"
)

// ErrNotFound is returned when a requested entity does not exist.
var ErrNotFound = errors.New("not found")

// ErrEmailTaken is returned by AccountRepository.Create when the normalized
// email already belongs to another account.
var ErrEmailTaken = errors.New("email already registered")

// Error codes surfaced by this package. Service maps them onto Outcome values;
// every other code is treated as an internal failure.
const (
	CodeValidation         = "AUTH_VALIDATION"
	CodeEmailTaken         = "AUTH_EMAIL_TAKEN"
	CodeInvalidCredentials = "AUTH_INVALID_CREDENTIALS"
	CodeThrottled          = "AUTH_THROTTLED"
	CodeOTPThrottled       = "OTP_THROTTLED"
	CodeResetInvalidCode   = "RESET_INVALID_CODE"
	CodeSessionInvalid     = "SESSION_INVALID"
	CodeInternal           = "AUTH_INTERNAL"
)

// ErrorCode returns the oops code attached to err, or "" if there is none.
func ErrorCode(err error) string {
	oopsErr, ok := oops.AsOops(err)
	if !ok {
		return ""
	}
	code, _ := oopsErr.Code().(string) //nolint:errcheck // non-string codes are treated as absent
	return code
}

func isNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
