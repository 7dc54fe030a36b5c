package notifications

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/posnotify/pkg/queue"
)

// Job is the fully denormalized payload of one channel queue task, so a
// provider can deliver it without reading the record.
type Job struct {
	RecordID     string          `json:"record_id"`
	Type         Type            `json:"type"`
	Priority     Priority        `json:"priority"`
	Channel      Channel         `json:"channel"`
	Recipient    Recipient       `json:"recipient"`
	PushTokens   []string        `json:"push_tokens,omitempty"`
	Subject      string          `json:"subject,omitempty"`
	TemplateID   string          `json:"template_id"`
	TemplateData map[string]any  `json:"template_data,omitempty"`
	Options      DeliveryOptions `json:"options,omitzero"`
	Metadata     Metadata        `json:"metadata,omitzero"`
}

// Result is what a provider reports for a successful delivery.
type Result struct {
	ExternalID string
}

// Provider delivers jobs on one channel.
// Returning an error wrapping ErrTemplateNotFound stops retries for the job.
type Provider interface {
	Send(ctx context.Context, job Job) (Result, error)
}

// ProviderFunc adapts a function to Provider.
type ProviderFunc func(ctx context.Context, job Job) (Result, error)

func (f ProviderFunc) Send(ctx context.Context, job Job) (Result, error) {
	return f(ctx, job)
}

// RetryPolicy bounds the attempts of one channel job.
type RetryPolicy struct {
	MaxAttempts int8
	Backoff     queue.Backoff
}

// DefaultRetryPolicy returns the stock policy for ch.
func DefaultRetryPolicy(ch Channel) RetryPolicy {
	switch ch {
	case ChannelEmail:
		return RetryPolicy{MaxAttempts: 3, Backoff: queue.ExponentialBackoff(2 * time.Second)}
	case ChannelPush:
		return RetryPolicy{MaxAttempts: 3, Backoff: queue.ExponentialBackoff(time.Second)}
	case ChannelSMS:
		return RetryPolicy{MaxAttempts: 2, Backoff: queue.FixedBackoff(5 * time.Second)}
	default:
		return RetryPolicy{MaxAttempts: 1}
	}
}

// jobTaskID is stable per record and channel so enqueueing twice is a no-op.
func jobTaskID(recordID string, ch Channel) uuid.UUID {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(recordID+"/"+string(ch)))
}

func newJob(rec *Record, ch Channel, pushTokens []string) Job {
	return Job{
		RecordID:     rec.ID,
		Type:         rec.Type,
		Priority:     rec.Priority,
		Channel:      ch,
		Recipient:    rec.Recipient,
		PushTokens:   pushTokens,
		Subject:      rec.Subject,
		TemplateID:   rec.TemplateID,
		TemplateData: rec.TemplateData,
		Options:      rec.Options,
		Metadata:     rec.Metadata,
	}
}
