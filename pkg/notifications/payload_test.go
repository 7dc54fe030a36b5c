package notifications_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/posnotify/pkg/notifications"
	"github.com/dmitrymomot/posnotify/pkg/validator"
)

func TestPayload_Validate(t *testing.T) {
	t.Parallel()

	valid := billPayload(notifications.RecipientSpec{UserID: "u1"}, notifications.ChannelEmail)

	tests := []struct {
		name   string
		mutate func(*notifications.Payload)
		want   []error
		field  string
	}{
		{
			name:   "unknown type",
			mutate: func(p *notifications.Payload) { p.Type = "PARTY" },
			want:   []error{notifications.ErrInvalidPayload, notifications.ErrUnknownType},
			field:  "type",
		},
		{
			name:   "no channels",
			mutate: func(p *notifications.Payload) { p.Channels = nil },
			want:   []error{notifications.ErrInvalidPayload, notifications.ErrNoChannels},
			field:  "channels",
		},
		{
			name:   "unknown channel",
			mutate: func(p *notifications.Payload) { p.Channels = []notifications.Channel{"FAX"} },
			want:   []error{notifications.ErrInvalidPayload, notifications.ErrUnknownChannel},
			field:  "channels",
		},
		{
			name:   "missing template",
			mutate: func(p *notifications.Payload) { p.TemplateID = "" },
			want:   []error{notifications.ErrInvalidPayload, notifications.ErrTemplateRequired},
			field:  "template_id",
		},
		{
			name:   "bad priority",
			mutate: func(p *notifications.Payload) { p.Priority = "URGENT" },
			want:   []error{notifications.ErrInvalidPayload, notifications.ErrInvalidPriority},
			field:  "priority",
		},
		{
			name: "bad guest email",
			mutate: func(p *notifications.Payload) {
				p.Recipients = notifications.RecipientSpec{Email: "not-an-email"}
			},
			want:  []error{notifications.ErrInvalidPayload},
			field: "recipients.email",
		},
		{
			name:   "empty recipients",
			mutate: func(p *notifications.Payload) { p.Recipients = notifications.RecipientSpec{} },
			want:   []error{notifications.ErrNoRecipients},
			field:  "recipients",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			p := valid
			tt.mutate(&p)

			err := p.Validate()
			require.Error(t, err)
			for _, want := range tt.want {
				assert.ErrorIs(t, err, want)
			}
			assert.True(t, validator.IsValidationError(err))
			assert.True(t, validator.ExtractValidationErrors(err).Has(tt.field))
		})
	}

	t.Run("valid payload", func(t *testing.T) {
		t.Parallel()
		assert.NoError(t, valid.Validate())
	})

	t.Run("missing priority is allowed", func(t *testing.T) {
		t.Parallel()
		p := valid
		p.Priority = ""
		assert.NoError(t, p.Validate())
	})
}

func TestRecipientSpec_IsEmpty(t *testing.T) {
	t.Parallel()

	assert.True(t, notifications.RecipientSpec{}.IsEmpty())
	assert.False(t, notifications.RecipientSpec{Roles: []string{"manager"}}.IsEmpty())
	assert.False(t, notifications.RecipientSpec{Mobile: "+15550000001"}.IsEmpty())
}
