package email

import (
	"context"
	"fmt"

	"github.com/dmitrymomot/posnotify/pkg/notifications"
)

// Provider adapts a Sender to the EMAIL channel.
type Provider struct {
	sender Sender
}

// NewProvider creates the EMAIL channel provider.
func NewProvider(sender Sender) *Provider {
	return &Provider{sender: sender}
}

// NewProviderFromConfig picks Postmark when cfg carries credentials and the
// file-system dev sender otherwise.
func NewProviderFromConfig(cfg Config) (*Provider, error) {
	if !cfg.Production() {
		return NewProvider(NewDevSender(cfg.DevDir)), nil
	}
	sender, err := NewPostmarkSender(cfg)
	if err != nil {
		return nil, err
	}
	return NewProvider(sender), nil
}

// Send delivers job to the recipient's email address.
func (p *Provider) Send(ctx context.Context, job notifications.Job) (notifications.Result, error) {
	if job.Recipient.Email == "" {
		return notifications.Result{}, fmt.Errorf("%w: email", notifications.ErrMissingContact)
	}

	msg := Message{
		To:       job.Recipient.Email,
		Subject:  job.Subject,
		Template: job.TemplateID,
		Model:    job.TemplateData,
		Tag:      string(job.Type),
	}
	if o := job.Options.Email; o != nil {
		msg.CC = o.CC
		msg.BCC = o.BCC
		msg.ReplyTo = o.ReplyTo
		for _, a := range o.Attachments {
			msg.Links = append(msg.Links, Link{Name: a.Name, URL: a.URL})
		}
	}

	id, err := p.sender.Send(ctx, msg)
	if err != nil {
		return notifications.Result{}, err
	}
	return notifications.Result{ExternalID: id}, nil
}

var _ notifications.Provider = (*Provider)(nil)
