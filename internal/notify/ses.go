// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package notify

import (
	"context"
	"errors"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"
	"github.com/samber/oops"

	"github.com/holomush/authcore/internal/auth"
)

const charset = "UTF-8"

// SESAPI is the subset of the SES client used by SES. *ses.Client
// satisfies it.
type SESAPI interface {
	SendEmail(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error)
}

// SESConfig configures an SES notifier.
type SESConfig struct {
	// Sender is the verified From address.
	Sender string
	// Region overrides the SDK default region chain when set.
	Region string
	// ConfigurationSet is an optional SES configuration set name.
	ConfigurationSet string
}

// SES sends codes through Amazon Simple Email Service.
type SES struct {
	client SESAPI
	cfg    SESConfig
}

// NewSES creates an SES notifier around an existing client.
func NewSES(client SESAPI, cfg SESConfig) (*SES, error) {
	if client == nil {
		return nil, oops.Code("NOTIFY_INVALID_CONFIG").Errorf("ses client is required")
	}
	if cfg.Sender == "" {
		return nil, oops.Code("NOTIFY_INVALID_CONFIG").Errorf("sender address is required")
	}
	return &SES{client: client, cfg: cfg}, nil
}

// LoadSES builds an SES client from the default AWS credential chain and
// returns a notifier using it.
func LoadSES(ctx context.Context, cfg SESConfig) (*SES, error) {
	var opts []func(*config.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, config.WithRegion(cfg.Region))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, oops.Code("NOTIFY_INVALID_CONFIG").With("backend", "ses").Wrap(err)
	}
	return NewSES(ses.NewFromConfig(awsCfg), cfg)
}

// Send emails the code to email.
func (n *SES) Send(ctx context.Context, email string, purpose auth.Purpose, code string) error {
	msg, err := Render(purpose, code)
	if err != nil {
		return err
	}

	input := &ses.SendEmailInput{
		Source:      aws.String(n.cfg.Sender),
		Destination: &types.Destination{ToAddresses: []string{email}},
		Message: &types.Message{
			Subject: &types.Content{Data: aws.String(msg.Subject), Charset: aws.String(charset)},
			Body: &types.Body{
				Text: &types.Content{Data: aws.String(msg.Body), Charset: aws.String(charset)},
			},
		},
	}
	if n.cfg.ConfigurationSet != "" {
		input.ConfigurationSetName = aws.String(n.cfg.ConfigurationSet)
	}

	if _, err := n.client.SendEmail(ctx, input); err != nil {
		builder := oops.Code("NOTIFY_SEND_FAILED").With("backend", "ses").With("purpose", string(purpose))
		if isPermanent(err) {
			return builder.Wrap(Permanent(err))
		}
		return builder.Wrap(err)
	}
	return nil
}

// isPermanent reports SES rejections that a retry cannot fix.
func isPermanent(err error) bool {
	var rejected *types.MessageRejected
	var unverified *types.MailFromDomainNotVerifiedException
	var paused *types.AccountSendingPausedException
	return errors.As(err, &rejected) || errors.As(err, &unverified) || errors.As(err, &paused)
}

var _ auth.Notifier = (*SES)(nil)
