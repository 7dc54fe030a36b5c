package notifications

import (
	"time"
)

// Recipient is one concrete contact resolved from a RecipientSpec.
// A recipient without UserID is a guest.
type Recipient struct {
	UserID string `json:"user_id,omitempty"`
	Email  string `json:"email,omitempty"`
	Mobile string `json:"mobile,omitempty"`
}

// IsGuest reports whether r is a raw contact with no user behind it.
func (r Recipient) IsGuest() bool {
	return r.UserID == ""
}

// Key identifies r for deduplication. Guests are keyed by their contact so
// two different guests never collapse into one.
func (r Recipient) Key() string {
	if r.IsGuest() {
		return "guest:" + r.Email + "|" + r.Mobile
	}
	return r.UserID
}

// hasContact reports whether r can be reached on ch at all.
func (r Recipient) hasContact(ch Channel) bool {
	switch ch {
	case ChannelEmail:
		return r.Email != ""
	case ChannelSMS:
		return r.Mobile != ""
	default:
		return !r.IsGuest()
	}
}

// ChannelEntry tracks delivery on one channel of a record.
type ChannelEntry struct {
	Channel      Channel    `json:"channel"`
	Status       Status     `json:"status"`
	SentAt       *time.Time `json:"sent_at,omitempty"`
	FailedAt     *time.Time `json:"failed_at,omitempty"`
	ErrorMessage string     `json:"error_message,omitempty"`
	RetryCount   int        `json:"retry_count"`
	NextRetryAt  *time.Time `json:"next_retry_at,omitempty"`
	ExternalID   string     `json:"external_id,omitempty"`
}

// Record is the persisted unit of delivery: one recipient, one or more channels.
type Record struct {
	ID           string          `json:"id"`
	Type         Type            `json:"type"`
	Priority     Priority        `json:"priority"`
	Status       Status          `json:"status"`
	Recipient    Recipient       `json:"recipient"`
	Subject      string          `json:"subject,omitempty"`
	TemplateID   string          `json:"template_id"`
	TemplateData map[string]any  `json:"template_data,omitempty"`
	Options      DeliveryOptions `json:"options,omitzero"`
	Channels     []ChannelEntry  `json:"channels"`
	Metadata     Metadata        `json:"metadata,omitzero"`
	ScheduledFor *time.Time      `json:"scheduled_for,omitempty"`
	ProcessedAt  *time.Time      `json:"processed_at,omitempty"`
	ReadAt       *time.Time      `json:"read_at,omitempty"`
	ExpiresAt    *time.Time      `json:"expires_at,omitempty"`
	Version      int64           `json:"version"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// Entry returns the entry for ch, or nil when the record does not carry it.
func (r *Record) Entry(ch Channel) *ChannelEntry {
	for i := range r.Channels {
		if r.Channels[i].Channel == ch {
			return &r.Channels[i]
		}
	}
	return nil
}

// HasChannel reports whether the record carries an entry for ch.
func (r *Record) HasChannel(ch Channel) bool {
	return r.Entry(ch) != nil
}

// IsRead reports whether the in-app notification was acknowledged.
func (r *Record) IsRead() bool {
	return r.ReadAt != nil
}

// IsExpired reports whether the record is past its expiry at now.
func (r *Record) IsExpired(now time.Time) bool {
	return r.ExpiresAt != nil && !now.Before(*r.ExpiresAt)
}

// IsDeferred reports whether the record waits for a future promotion.
func (r *Record) IsDeferred() bool {
	return r.Status == StatusPending && r.ProcessedAt == nil && r.ScheduledFor != nil
}

// Clone returns a deep copy safe to hand out of a store.
func (r *Record) Clone() *Record {
	c := *r
	c.Channels = append([]ChannelEntry(nil), r.Channels...)
	for i := range c.Channels {
		c.Channels[i].SentAt = cloneTime(r.Channels[i].SentAt)
		c.Channels[i].FailedAt = cloneTime(r.Channels[i].FailedAt)
		c.Channels[i].NextRetryAt = cloneTime(r.Channels[i].NextRetryAt)
	}
	if r.TemplateData != nil {
		c.TemplateData = make(map[string]any, len(r.TemplateData))
		for k, v := range r.TemplateData {
			c.TemplateData[k] = v
		}
	}
	c.ScheduledFor = cloneTime(r.ScheduledFor)
	c.ProcessedAt = cloneTime(r.ProcessedAt)
	c.ReadAt = cloneTime(r.ReadAt)
	c.ExpiresAt = cloneTime(r.ExpiresAt)
	return &c
}

// OverallStatus reduces channel statuses into the record status:
// SENT iff every entry is SENT, FAILED iff some entry failed and none is
// still PENDING or QUEUED, PENDING while nothing has been queued yet,
// QUEUED otherwise.
func OverallStatus(entries []ChannelEntry) Status {
	if len(entries) == 0 {
		return StatusPending
	}

	var pending, queued, sent, failed int
	for _, e := range entries {
		switch e.Status {
		case StatusPending:
			pending++
		case StatusQueued:
			queued++
		case StatusSent:
			sent++
		case StatusFailed:
			failed++
		}
	}

	switch {
	case sent == len(entries):
		return StatusSent
	case failed > 0 && pending == 0 && queued == 0:
		return StatusFailed
	case pending == len(entries):
		return StatusPending
	default:
		return StatusQueued
	}
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
