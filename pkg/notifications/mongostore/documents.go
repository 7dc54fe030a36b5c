package mongostore

import (
	"time"

	"github.com/dmitrymomot/posnotify/pkg/notifications"
)

type recipientDoc struct {
	UserID string `bson:"user_id,omitempty"`
	Email  string `bson:"email,omitempty"`
	Mobile string `bson:"mobile,omitempty"`
}

type channelDoc struct {
	Channel      string     `bson:"channel"`
	Status       string     `bson:"status"`
	SentAt       *time.Time `bson:"sent_at,omitempty"`
	FailedAt     *time.Time `bson:"failed_at,omitempty"`
	ErrorMessage string     `bson:"error_message,omitempty"`
	RetryCount   int        `bson:"retry_count"`
	NextRetryAt  *time.Time `bson:"next_retry_at,omitempty"`
	ExternalID   string     `bson:"external_id,omitempty"`
}

type attachmentDoc struct {
	Name        string `bson:"name"`
	ContentType string `bson:"content_type,omitempty"`
	URL         string `bson:"url"`
}

type emailOptionsDoc struct {
	CC          []string        `bson:"cc,omitempty"`
	BCC         []string        `bson:"bcc,omitempty"`
	ReplyTo     string          `bson:"reply_to,omitempty"`
	Attachments []attachmentDoc `bson:"attachments,omitempty"`
}

type metadataDoc struct {
	ResourceType string `bson:"resource_type,omitempty"`
	ResourceID   string `bson:"resource_id,omitempty"`
	TriggeredBy  string `bson:"triggered_by,omitempty"`
	BusinessID   string `bson:"business_id,omitempty"`
	BranchID     string `bson:"branch_id,omitempty"`
}

type recordDoc struct {
	ID           string           `bson:"_id"`
	Type         string           `bson:"type"`
	Priority     string           `bson:"priority"`
	Status       string           `bson:"status"`
	Recipient    recipientDoc     `bson:"recipient"`
	Subject      string           `bson:"subject,omitempty"`
	TemplateID   string           `bson:"template_id"`
	TemplateData map[string]any   `bson:"template_data,omitempty"`
	EmailOptions *emailOptionsDoc `bson:"email_options,omitempty"`
	Channels     []channelDoc     `bson:"channels"`
	Metadata     metadataDoc      `bson:"metadata"`
	ScheduledFor *time.Time       `bson:"scheduled_for,omitempty"`
	ProcessedAt  *time.Time       `bson:"processed_at,omitempty"`
	ReadAt       *time.Time       `bson:"read_at,omitempty"`
	ExpiresAt    *time.Time       `bson:"expires_at,omitempty"`
	Version      int64            `bson:"version"`
	CreatedAt    time.Time        `bson:"created_at"`
	UpdatedAt    time.Time        `bson:"updated_at"`
}

func toChannelDoc(e notifications.ChannelEntry) channelDoc {
	return channelDoc{
		Channel:      string(e.Channel),
		Status:       string(e.Status),
		SentAt:       e.SentAt,
		FailedAt:     e.FailedAt,
		ErrorMessage: e.ErrorMessage,
		RetryCount:   e.RetryCount,
		NextRetryAt:  e.NextRetryAt,
		ExternalID:   e.ExternalID,
	}
}

func (d channelDoc) entry() notifications.ChannelEntry {
	return notifications.ChannelEntry{
		Channel:      notifications.Channel(d.Channel),
		Status:       notifications.Status(d.Status),
		SentAt:       d.SentAt,
		FailedAt:     d.FailedAt,
		ErrorMessage: d.ErrorMessage,
		RetryCount:   d.RetryCount,
		NextRetryAt:  d.NextRetryAt,
		ExternalID:   d.ExternalID,
	}
}

func toRecordDoc(r *notifications.Record) recordDoc {
	doc := recordDoc{
		ID:       r.ID,
		Type:     string(r.Type),
		Priority: string(r.Priority),
		Status:   string(r.Status),
		Recipient: recipientDoc{
			UserID: r.Recipient.UserID,
			Email:  r.Recipient.Email,
			Mobile: r.Recipient.Mobile,
		},
		Subject:      r.Subject,
		TemplateID:   r.TemplateID,
		TemplateData: r.TemplateData,
		Metadata:     metadataDoc(r.Metadata),
		ScheduledFor: r.ScheduledFor,
		ProcessedAt:  r.ProcessedAt,
		ReadAt:       r.ReadAt,
		ExpiresAt:    r.ExpiresAt,
		Version:      r.Version,
		CreatedAt:    r.CreatedAt,
		UpdatedAt:    r.UpdatedAt,
	}
	if o := r.Options.Email; o != nil {
		doc.EmailOptions = &emailOptionsDoc{CC: o.CC, BCC: o.BCC, ReplyTo: o.ReplyTo}
		for _, a := range o.Attachments {
			doc.EmailOptions.Attachments = append(doc.EmailOptions.Attachments, attachmentDoc(a))
		}
	}
	doc.Channels = make([]channelDoc, len(r.Channels))
	for i, e := range r.Channels {
		doc.Channels[i] = toChannelDoc(e)
	}
	return doc
}

func (d recordDoc) record() *notifications.Record {
	r := &notifications.Record{
		ID:       d.ID,
		Type:     notifications.Type(d.Type),
		Priority: notifications.Priority(d.Priority),
		Status:   notifications.Status(d.Status),
		Recipient: notifications.Recipient{
			UserID: d.Recipient.UserID,
			Email:  d.Recipient.Email,
			Mobile: d.Recipient.Mobile,
		},
		Subject:      d.Subject,
		TemplateID:   d.TemplateID,
		TemplateData: d.TemplateData,
		Metadata:     notifications.Metadata(d.Metadata),
		ScheduledFor: utcPtr(d.ScheduledFor),
		ProcessedAt:  utcPtr(d.ProcessedAt),
		ReadAt:       utcPtr(d.ReadAt),
		ExpiresAt:    utcPtr(d.ExpiresAt),
		Version:      d.Version,
		CreatedAt:    d.CreatedAt.UTC(),
		UpdatedAt:    d.UpdatedAt.UTC(),
	}
	if o := d.EmailOptions; o != nil {
		r.Options.Email = &notifications.EmailOptions{CC: o.CC, BCC: o.BCC, ReplyTo: o.ReplyTo}
		for _, a := range o.Attachments {
			r.Options.Email.Attachments = append(r.Options.Email.Attachments, notifications.Attachment(a))
		}
	}
	r.Channels = make([]notifications.ChannelEntry, len(d.Channels))
	for i, c := range d.Channels {
		r.Channels[i] = c.entry()
	}
	return r
}

type overrideDoc struct {
	Enabled  bool     `bson:"enabled"`
	Channels []string `bson:"channels,omitempty"`
}

type quietHoursDoc struct {
	Enabled  bool   `bson:"enabled"`
	Start    string `bson:"start"`
	End      string `bson:"end"`
	Timezone string `bson:"timezone"`
}

type pushTokenDoc struct {
	Token    string    `bson:"token"`
	Platform string    `bson:"platform"`
	DeviceID string    `bson:"device_id,omitempty"`
	AddedAt  time.Time `bson:"added_at"`
	LastUsed time.Time `bson:"last_used"`
}

type preferenceDoc struct {
	UserID     string                 `bson:"_id"`
	Channels   map[string]bool        `bson:"channels"`
	Overrides  map[string]overrideDoc `bson:"overrides,omitempty"`
	QuietHours quietHoursDoc          `bson:"quiet_hours"`
	PushTokens []pushTokenDoc         `bson:"push_tokens,omitempty"`
	CreatedAt  time.Time              `bson:"created_at"`
	UpdatedAt  time.Time              `bson:"updated_at"`
}

func toPreferenceDoc(p *notifications.Preference) preferenceDoc {
	doc := preferenceDoc{
		UserID:     p.UserID,
		Channels:   make(map[string]bool, len(p.Channels)),
		QuietHours: quietHoursDoc(p.QuietHours),
		CreatedAt:  p.CreatedAt,
		UpdatedAt:  p.UpdatedAt,
	}
	for ch, on := range p.Channels {
		doc.Channels[string(ch)] = on
	}
	for t, o := range p.Overrides.Map() {
		if doc.Overrides == nil {
			doc.Overrides = make(map[string]overrideDoc)
		}
		od := overrideDoc{Enabled: o.Enabled}
		for _, ch := range o.Channels {
			od.Channels = append(od.Channels, string(ch))
		}
		doc.Overrides[string(t)] = od
	}
	for _, t := range p.PushTokens {
		doc.PushTokens = append(doc.PushTokens, pushTokenDoc(t))
	}
	return doc
}

// preference converts the document back. Overrides for types or channels
// this build does not know are dropped.
func (d preferenceDoc) preference() *notifications.Preference {
	p := &notifications.Preference{
		UserID:     d.UserID,
		Channels:   make(map[notifications.Channel]bool, len(d.Channels)),
		QuietHours: notifications.QuietHours(d.QuietHours),
		CreatedAt:  d.CreatedAt.UTC(),
		UpdatedAt:  d.UpdatedAt.UTC(),
	}
	for ch, on := range d.Channels {
		p.Channels[notifications.Channel(ch)] = on
	}
	for t, od := range d.Overrides {
		o := &notifications.TypeOverride{Enabled: od.Enabled}
		for _, ch := range od.Channels {
			o.Channels = append(o.Channels, notifications.Channel(ch))
		}
		_ = p.Overrides.Set(notifications.Type(t), o)
	}
	for _, t := range d.PushTokens {
		t.AddedAt = t.AddedAt.UTC()
		t.LastUsed = t.LastUsed.UTC()
		p.PushTokens = append(p.PushTokens, notifications.PushToken(t))
	}
	return p
}

type userDoc struct {
	ID        string   `bson:"_id"`
	Email     string   `bson:"email,omitempty"`
	Mobile    string   `bson:"mobile,omitempty"`
	Roles     []string `bson:"roles,omitempty"`
	BranchIDs []string `bson:"branch_ids,omitempty"`
	Active    bool     `bson:"active"`
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
