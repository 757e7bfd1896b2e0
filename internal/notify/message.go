// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package notify implements auth.Notifier backends for delivering one-time
// codes: Amazon SES for production, an io.Writer for development, and a
// retrying wrapper for either.
package notify

import (
	"fmt"

	"github.com/samber/oops"

	"github.com/holomush/authcore/internal/auth"
)

// Message is a rendered notification.
type Message struct {
	Subject string
	Body    string
}

// Render builds the message for a code of the given purpose.
func Render(purpose auth.Purpose, code string) (Message, error) {
	if code == "" {
		return Message{}, oops.Code("NOTIFY_INVALID_CODE").Errorf("code cannot be empty")
	}

	switch purpose {
	case auth.PurposePasswordReset:
		minutes := int(auth.OTPTTL.Minutes())
		return Message{
			Subject: "Your password reset code",
			Body: fmt.Sprintf(
				"Your password reset code is %s.\n\n"+
					"It expires in %d minutes. If you did not request a password reset, you can ignore this message.\n",
				code, minutes),
		}, nil
	default:
		return Message{}, oops.Code("NOTIFY_UNKNOWN_PURPOSE").With("purpose", string(purpose)).Errorf("no template for purpose")
	}
}
