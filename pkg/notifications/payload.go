package notifications

import (
	"errors"
	"slices"
	"time"

	"github.com/dmitrymomot/posnotify/pkg/validator"
)

// Template data keys carrying the caller-supplied text of a CUSTOM notification.
const (
	CustomTemplateID = "custom"
	CustomSubjectKey = "subject"
	CustomBodyKey    = "body"
)

// RecipientSpec describes who should receive a notification. Any combination
// of fields may be set; the resolved recipients are the union of all of them.
type RecipientSpec struct {
	UserID   string   `json:"user_id,omitempty"`
	UserIDs  []string `json:"user_ids,omitempty"`
	Role     string   `json:"role,omitempty"`
	Roles    []string `json:"roles,omitempty"`
	BranchID string   `json:"branch_id,omitempty"`

	// Direct contact used when no user id is given.
	Email  string `json:"email,omitempty"`
	Mobile string `json:"mobile,omitempty"`
}

// IsEmpty reports whether no field of the spec is populated.
func (s RecipientSpec) IsEmpty() bool {
	return s.UserID == "" && len(s.UserIDs) == 0 &&
		s.Role == "" && len(s.Roles) == 0 &&
		s.BranchID == "" && s.Email == "" && s.Mobile == ""
}

// Metadata links a notification to what triggered it.
type Metadata struct {
	ResourceType string `json:"resource_type,omitempty"`
	ResourceID   string `json:"resource_id,omitempty"`
	TriggeredBy  string `json:"triggered_by,omitempty"`
	BusinessID   string `json:"business_id,omitempty"`
	BranchID     string `json:"branch_id,omitempty"`
}

// Attachment is a file referenced by an email.
type Attachment struct {
	Name        string `json:"name"`
	ContentType string `json:"content_type,omitempty"`
	URL         string `json:"url"`
}

// EmailOptions are passed through to the email provider untouched.
type EmailOptions struct {
	CC          []string     `json:"cc,omitempty"`
	BCC         []string     `json:"bcc,omitempty"`
	ReplyTo     string       `json:"reply_to,omitempty"`
	Attachments []Attachment `json:"attachments,omitempty"`
}

// DeliveryOptions holds per-channel knobs.
type DeliveryOptions struct {
	Email *EmailOptions `json:"email,omitempty"`
}

// Payload is the caller's request to notify someone about an event.
type Payload struct {
	Type         Type            `json:"type"`
	Channels     []Channel       `json:"channels"`
	Priority     Priority        `json:"priority,omitempty"`
	Recipients   RecipientSpec   `json:"recipients"`
	Subject      string          `json:"subject,omitempty"`
	TemplateID   string          `json:"template_id"`
	TemplateData map[string]any  `json:"template_data,omitempty"`
	ScheduledFor *time.Time      `json:"scheduled_for,omitempty"`
	Options      DeliveryOptions `json:"options,omitzero"`
	Metadata     Metadata        `json:"metadata,omitzero"`
}

// normalize fills defaults and drops duplicate channels, preserving order.
func (p Payload) normalize() Payload {
	if p.Priority == "" {
		p.Priority = PriorityMedium
	}
	channels := make([]Channel, 0, len(p.Channels))
	for _, ch := range p.Channels {
		if !slices.Contains(channels, ch) {
			channels = append(channels, ch)
		}
	}
	p.Channels = channels
	return p
}

// Validate checks the payload shape. The returned error matches both the
// relevant sentinels (errors.Is) and validator.IsValidationError.
func (p Payload) Validate() error {
	rules := []validator.Rule{
		validator.InList("type", p.Type, allTypes[:]),
		validator.RequiredSlice("channels", p.Channels),
		validator.RequiredString("template_id", p.TemplateID),
		validator.MaxLenString("subject", p.Subject, 500),
	}
	if p.Priority != "" {
		rules = append(rules, validator.InList("priority", p.Priority, allPriorities))
	}
	for _, ch := range p.Channels {
		rules = append(rules, validator.InList("channels", ch, allChannels))
	}
	if p.Recipients.Email != "" {
		rules = append(rules, validator.ValidEmail("recipients.email", p.Recipients.Email))
	}
	if p.Recipients.Mobile != "" {
		rules = append(rules, validator.ValidPhone("recipients.mobile", p.Recipients.Mobile))
	}

	err := validator.Apply(rules...)
	if err == nil {
		if p.Recipients.IsEmpty() {
			return errNoRecipients()
		}
		return nil
	}

	verrs := validator.ExtractValidationErrors(err)
	causes := []error{ErrInvalidPayload}
	if verrs.Has("type") {
		causes = append(causes, ErrUnknownType)
	}
	if verrs.Has("channels") {
		if len(p.Channels) == 0 {
			causes = append(causes, ErrNoChannels)
		} else {
			causes = append(causes, ErrUnknownChannel)
		}
	}
	if verrs.Has("template_id") {
		causes = append(causes, ErrTemplateRequired)
	}
	if verrs.Has("priority") {
		causes = append(causes, ErrInvalidPriority)
	}
	return errors.Join(append(causes, verrs)...)
}

// errNoRecipients is the validation error for a spec that names nobody.
func errNoRecipients() error {
	return errors.Join(ErrNoRecipients, validator.ValidationErrors{{
		Field:          "recipients",
		Message:        "no active recipients",
		TranslationKey: "validation.required",
		TranslationValues: map[string]any{
			"field": "recipients",
		},
	}})
}
