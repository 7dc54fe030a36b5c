package email

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/mrz1836/postmark"

	"github.com/dmitrymomot/posnotify/pkg/notifications"
	"github.com/dmitrymomot/posnotify/pkg/validator"
)

// postmarkTemplateNotFound is the Postmark API error code for an unknown
// template id or alias.
const postmarkTemplateNotFound = 1101

type postmarkSender struct {
	client *postmark.Client
	config Config
}

// NewPostmarkSender creates a Sender that renders server-side Postmark
// templates addressed by alias.
func NewPostmarkSender(cfg Config) (Sender, error) {
	if cfg.PostmarkServerToken == "" {
		return nil, fmt.Errorf("%w: PostmarkServerToken is required", ErrInvalidConfig)
	}
	if cfg.PostmarkAccountToken == "" {
		return nil, fmt.Errorf("%w: PostmarkAccountToken is required", ErrInvalidConfig)
	}
	err := validator.Apply(
		validator.ValidEmail("sender_email", cfg.SenderEmail),
		validator.ValidEmail("support_email", cfg.SupportEmail),
	)
	if err != nil {
		return nil, errors.Join(ErrInvalidConfig, err)
	}

	return &postmarkSender{
		client: postmark.NewClient(cfg.PostmarkServerToken, cfg.PostmarkAccountToken),
		config: cfg,
	}, nil
}

// Send delivers msg through Postmark. Replies go to the message's ReplyTo or,
// when unset, to the support address.
func (c *postmarkSender) Send(ctx context.Context, msg Message) (string, error) {
	if err := msg.Validate(); err != nil {
		return "", err
	}

	replyTo := msg.ReplyTo
	if replyTo == "" {
		replyTo = c.config.SupportEmail
	}

	resp, err := c.client.SendTemplatedEmail(ctx, postmark.TemplatedEmail{
		TemplateAlias: msg.Template,
		TemplateModel: templateModel(msg),
		From:          c.config.SenderEmail,
		To:            msg.To,
		Cc:            strings.Join(msg.CC, ","),
		Bcc:           strings.Join(msg.BCC, ","),
		ReplyTo:       replyTo,
		Tag:           msg.Tag,
		TrackOpens:    true,
	})
	if err != nil {
		return "", errors.Join(ErrFailedToSendEmail, err)
	}
	if resp.ErrorCode == postmarkTemplateNotFound {
		return "", fmt.Errorf("%w: %s", notifications.ErrTemplateNotFound, msg.Template)
	}
	if resp.ErrorCode > 0 {
		return "", errors.Join(
			ErrFailedToSendEmail,
			fmt.Errorf("postmark error: %d - %s", resp.ErrorCode, resp.Message),
		)
	}
	return resp.MessageID, nil
}

// templateModel is the data the template renders, with the subject and
// attachment links under reserved keys.
func templateModel(msg Message) map[string]any {
	model := make(map[string]any, len(msg.Model)+2)
	for k, v := range msg.Model {
		model[k] = v
	}
	if msg.Subject != "" {
		model["subject"] = msg.Subject
	}
	if len(msg.Links) > 0 {
		model["attachments"] = msg.Links
	}
	return model
}
