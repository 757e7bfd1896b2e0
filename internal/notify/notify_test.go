// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package notify

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/holomush/authcore/internal/auth"
	"github.com/holomush/authcore/pkg/errutil"
)

func TestRender(t *testing.T) {
	msg, err := Render(auth.PurposePasswordReset, "482913")
	require.NoError(t, err)
	assert.Equal(t, "Your password reset code", msg.Subject)
	assert.Contains(t, msg.Body, "482913")
	assert.Contains(t, msg.Body, "10 minutes")

	_, err = Render(auth.Purpose("signup"), "482913")
	errutil.AssertErrorCode(t, err, "NOTIFY_UNKNOWN_PURPOSE")

	_, err = Render(auth.PurposePasswordReset, "")
	errutil.AssertErrorCode(t, err, "NOTIFY_INVALID_CODE")
}

func TestWriter(t *testing.T) {
	_, err := NewWriter(nil)
	errutil.AssertErrorCode(t, err, "NOTIFY_INVALID_CONFIG")

	var buf bytes.Buffer
	w, err := NewWriter(&buf)
	require.NoError(t, err)

	require.NoError(t, w.Send(context.Background(), "alice@example.com", auth.PurposePasswordReset, "123456"))
	out := buf.String()
	assert.Contains(t, out, "To: alice@example.com")
	assert.Contains(t, out, "Subject: Your password reset code")
	assert.Contains(t, out, "123456")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err = w.Send(ctx, "alice@example.com", auth.PurposePasswordReset, "123456")
	errutil.AssertErrorCode(t, err, "NOTIFY_SEND_FAILED")
}

type fakeSES struct {
	mu     sync.Mutex
	inputs []*ses.SendEmailInput
	err    error
}

func (f *fakeSES) SendEmail(_ context.Context, in *ses.SendEmailInput, _ ...func(*ses.Options)) (*ses.SendEmailOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inputs = append(f.inputs, in)
	if f.err != nil {
		return nil, f.err
	}
	return &ses.SendEmailOutput{MessageId: aws.String("msg-1")}, nil
}

func TestNewSES_Validation(t *testing.T) {
	_, err := NewSES(nil, SESConfig{Sender: "no-reply@example.com"})
	errutil.AssertErrorCode(t, err, "NOTIFY_INVALID_CONFIG")

	_, err = NewSES(&fakeSES{}, SESConfig{})
	errutil.AssertErrorCode(t, err, "NOTIFY_INVALID_CONFIG")
}

func TestSES_Send(t *testing.T) {
	client := &fakeSES{}
	n, err := NewSES(client, SESConfig{Sender: "no-reply@example.com", ConfigurationSet: "auth"})
	require.NoError(t, err)

	require.NoError(t, n.Send(context.Background(), "alice@example.com", auth.PurposePasswordReset, "482913"))

	require.Len(t, client.inputs, 1)
	in := client.inputs[0]
	assert.Equal(t, "no-reply@example.com", aws.ToString(in.Source))
	assert.Equal(t, []string{"alice@example.com"}, in.Destination.ToAddresses)
	assert.Equal(t, "Your password reset code", aws.ToString(in.Message.Subject.Data))
	assert.Contains(t, aws.ToString(in.Message.Body.Text.Data), "482913")
	assert.Equal(t, "auth", aws.ToString(in.ConfigurationSetName))
}

func TestSES_SendErrors(t *testing.T) {
	t.Run("throttling is retryable", func(t *testing.T) {
		n, err := NewSES(&fakeSES{err: errors.New("throttled")}, SESConfig{Sender: "no-reply@example.com"})
		require.NoError(t, err)

		err = n.Send(context.Background(), "alice@example.com", auth.PurposePasswordReset, "482913")
		errutil.AssertErrorCode(t, err, "NOTIFY_SEND_FAILED")
		assert.False(t, IsPermanent(err))
	})

	t.Run("rejection is permanent", func(t *testing.T) {
		rejected := &types.MessageRejected{Message: aws.String("address blacklisted")}
		n, err := NewSES(&fakeSES{err: rejected}, SESConfig{Sender: "no-reply@example.com"})
		require.NoError(t, err)

		err = n.Send(context.Background(), "alice@example.com", auth.PurposePasswordReset, "482913")
		errutil.AssertErrorCode(t, err, "NOTIFY_SEND_FAILED")
		assert.True(t, IsPermanent(err))
	})
}

type flakyNotifier struct {
	mu        sync.Mutex
	failures  int
	calls     int
	permanent bool
}

func (f *flakyNotifier) Send(context.Context, string, auth.Purpose, string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.calls <= f.failures {
		if f.permanent {
			return Permanent(errors.New("rejected"))
		}
		return errors.New("temporary failure")
	}
	return nil
}

func TestRetrying(t *testing.T) {
	logger := slog.New(slog.DiscardHandler)
	cfg := RetryConfig{Attempts: 3, Base: time.Millisecond}

	t.Run("requires a notifier and logger", func(t *testing.T) {
		_, err := NewRetrying(nil, logger, cfg)
		errutil.AssertErrorCode(t, err, "NOTIFY_INVALID_CONFIG")
		_, err = NewRetrying(&flakyNotifier{}, nil, cfg)
		errutil.AssertErrorCode(t, err, "NOTIFY_INVALID_CONFIG")
	})

	t.Run("recovers from transient failures", func(t *testing.T) {
		inner := &flakyNotifier{failures: 2}
		r, err := NewRetrying(inner, logger, cfg)
		require.NoError(t, err)

		require.NoError(t, r.Send(context.Background(), "alice@example.com", auth.PurposePasswordReset, "482913"))
		assert.Equal(t, 3, inner.calls)
	})

	t.Run("gives up after the configured attempts", func(t *testing.T) {
		inner := &flakyNotifier{failures: 10}
		r, err := NewRetrying(inner, logger, cfg)
		require.NoError(t, err)

		err = r.Send(context.Background(), "alice@example.com", auth.PurposePasswordReset, "482913")
		errutil.AssertErrorCode(t, err, "NOTIFY_RETRIES_EXHAUSTED")
		errutil.AssertErrorContext(t, err, "attempts", 3)
		assert.Equal(t, 3, inner.calls)
	})

	t.Run("permanent errors stop immediately", func(t *testing.T) {
		inner := &flakyNotifier{failures: 10, permanent: true}
		r, err := NewRetrying(inner, logger, cfg)
		require.NoError(t, err)

		err = r.Send(context.Background(), "alice@example.com", auth.PurposePasswordReset, "482913")
		require.Error(t, err)
		assert.True(t, IsPermanent(err))
		assert.Equal(t, 1, inner.calls)
	})

	t.Run("defaults apply", func(t *testing.T) {
		r, err := NewRetrying(&flakyNotifier{}, logger, RetryConfig{})
		require.NoError(t, err)
		assert.Equal(t, uint64(DefaultRetryAttempts), r.cfg.Attempts)
		assert.Equal(t, DefaultRetryBase, r.cfg.Base)
	})
}
