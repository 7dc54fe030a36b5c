package email

import (
	"context"
	"errors"

	"github.com/dmitrymomot/posnotify/pkg/validator"
)

// Sender delivers one templated message and returns the provider message id.
type Sender interface {
	Send(ctx context.Context, msg Message) (string, error)
}

// Link is a file the message refers to.
type Link struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

// Message is a templated email. Template is resolved by the sender.
type Message struct {
	To       string         `json:"to"`
	CC       []string       `json:"cc,omitempty"`
	BCC      []string       `json:"bcc,omitempty"`
	ReplyTo  string         `json:"reply_to,omitempty"`
	Subject  string         `json:"subject,omitempty"`
	Template string         `json:"template"`
	Model    map[string]any `json:"model,omitempty"`
	Links    []Link         `json:"links,omitempty"`
	Tag      string         `json:"tag,omitempty"`
}

// Validate checks the fields every sender needs.
func (m Message) Validate() error {
	rules := []validator.Rule{
		validator.RequiredString("to", m.To),
		validator.ValidEmail("to", m.To),
		validator.RequiredString("template", m.Template),
	}
	for _, cc := range m.CC {
		rules = append(rules, validator.ValidEmail("cc", cc))
	}
	for _, bcc := range m.BCC {
		rules = append(rules, validator.ValidEmail("bcc", bcc))
	}
	if m.ReplyTo != "" {
		rules = append(rules, validator.ValidEmail("reply_to", m.ReplyTo))
	}
	if err := validator.Apply(rules...); err != nil {
		return errors.Join(ErrInvalidMessage, err)
	}
	return nil
}
