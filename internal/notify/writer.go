// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package notify

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/samber/oops"

	"github.com/holomush/authcore/internal/auth"
)

// Writer prints codes to an io.Writer. It is meant for local development
// where no mail backend is available; never use it in production.
type Writer struct {
	mu sync.Mutex
	w  io.Writer
}

// NewWriter creates a Writer notifier.
func NewWriter(w io.Writer) (*Writer, error) {
	if w == nil {
		return nil, oops.Code("NOTIFY_INVALID_CONFIG").Errorf("writer is required")
	}
	return &Writer{w: w}, nil
}

// Send writes the rendered message for email.
func (n *Writer) Send(ctx context.Context, email string, purpose auth.Purpose, code string) error {
	if err := ctx.Err(); err != nil {
		return oops.Code("NOTIFY_SEND_FAILED").Wrap(err)
	}
	msg, err := Render(purpose, code)
	if err != nil {
		return err
	}

	n.mu.Lock()
	defer n.mu.Unlock()
	if _, err := fmt.Fprintf(n.w, "To: %s\nSubject: %s\n\n%s\n", email, msg.Subject, msg.Body); err != nil {
		return oops.Code("NOTIFY_SEND_FAILED").With("backend", "writer").Wrap(err)
	}
	return nil
}

var _ auth.Notifier = (*Writer)(nil)
