package notifications

import (
	"encoding/json"
	"fmt"
	"slices"
	"time"
)

// defaultChannels is what a user gets before touching their settings.
var defaultChannels = map[Channel]bool{
	ChannelEmail: true,
	ChannelPush:  true,
	ChannelSMS:   false,
	ChannelInApp: true,
}

// TypeOverride narrows delivery for one notification type.
// An empty Channels list means "no channel restriction".
type TypeOverride struct {
	Enabled  bool      `json:"enabled"`
	Channels []Channel `json:"channels,omitempty"`
}

// allows reports whether ch survives this override.
func (o TypeOverride) allows(ch Channel) bool {
	if !o.Enabled {
		return false
	}
	return len(o.Channels) == 0 || slices.Contains(o.Channels, ch)
}

// TypeOverrides is a fixed table with one optional slot per notification type.
type TypeOverrides [numTypes]*TypeOverride

// Get returns the override for t, if any.
func (o *TypeOverrides) Get(t Type) (TypeOverride, bool) {
	i, ok := t.index()
	if !ok || o[i] == nil {
		return TypeOverride{}, false
	}
	return *o[i], true
}

// Set stores an override for t. A nil override clears the slot.
func (o *TypeOverrides) Set(t Type, override *TypeOverride) error {
	i, ok := t.index()
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownType, t)
	}
	if override != nil {
		for _, ch := range override.Channels {
			if !ch.Valid() {
				return fmt.Errorf("%w: %q", ErrUnknownChannel, ch)
			}
		}
		cp := *override
		cp.Channels = slices.Clone(override.Channels)
		override = &cp
	}
	o[i] = override
	return nil
}

// Map returns the populated slots keyed by type.
func (o *TypeOverrides) Map() map[Type]TypeOverride {
	m := make(map[Type]TypeOverride)
	for i, override := range o {
		if override != nil {
			m[allTypes[i]] = *override
		}
	}
	return m
}

func (o TypeOverrides) MarshalJSON() ([]byte, error) {
	return json.Marshal(o.Map())
}

func (o *TypeOverrides) UnmarshalJSON(data []byte) error {
	var m map[Type]*TypeOverride
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}
	*o = TypeOverrides{}
	for t, override := range m {
		if err := o.Set(t, override); err != nil {
			return err
		}
	}
	return nil
}

// PushToken is a device registered for push delivery.
type PushToken struct {
	Token    string    `json:"token"`
	Platform string    `json:"platform"`
	DeviceID string    `json:"device_id,omitempty"`
	AddedAt  time.Time `json:"added_at"`
	LastUsed time.Time `json:"last_used"`
}

// Preference is one user's delivery settings.
type Preference struct {
	UserID     string           `json:"user_id"`
	Channels   map[Channel]bool `json:"channels"`
	Overrides  TypeOverrides    `json:"overrides"`
	QuietHours QuietHours       `json:"quiet_hours"`
	PushTokens []PushToken      `json:"push_tokens,omitempty"`
	CreatedAt  time.Time        `json:"created_at"`
	UpdatedAt  time.Time        `json:"updated_at"`
}

// DefaultPreference returns the settings a user gets on first contact.
func DefaultPreference(userID string, now time.Time) *Preference {
	channels := make(map[Channel]bool, len(defaultChannels))
	for ch, on := range defaultChannels {
		channels[ch] = on
	}
	return &Preference{
		UserID:     userID,
		Channels:   channels,
		QuietHours: QuietHours{Start: "22:00", End: "07:00", Timezone: "UTC"},
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// ChannelEnabled reports the global flag for ch, falling back to the default.
func (p *Preference) ChannelEnabled(ch Channel) bool {
	if on, ok := p.Channels[ch]; ok {
		return on
	}
	return defaultChannels[ch]
}

// Allows reports whether a notification of type t may go out on ch.
func (p *Preference) Allows(t Type, ch Channel) bool {
	if !p.ChannelEnabled(ch) {
		return false
	}
	if override, ok := p.Overrides.Get(t); ok {
		return override.allows(ch)
	}
	return true
}

// UpsertPushToken registers token, refreshing it in place when already known.
func (p *Preference) UpsertPushToken(token PushToken, now time.Time) {
	for i := range p.PushTokens {
		if p.PushTokens[i].Token == token.Token {
			p.PushTokens[i].Platform = token.Platform
			if token.DeviceID != "" {
				p.PushTokens[i].DeviceID = token.DeviceID
			}
			p.PushTokens[i].LastUsed = now
			return
		}
	}
	token.AddedAt = now
	token.LastUsed = now
	p.PushTokens = append(p.PushTokens, token)
}

// RemovePushToken drops token and reports whether it was registered.
func (p *Preference) RemovePushToken(token string) bool {
	n := len(p.PushTokens)
	p.PushTokens = slices.DeleteFunc(p.PushTokens, func(t PushToken) bool {
		return t.Token == token
	})
	return len(p.PushTokens) != n
}

// Clone returns a deep copy.
func (p *Preference) Clone() *Preference {
	c := *p
	c.Channels = make(map[Channel]bool, len(p.Channels))
	for ch, on := range p.Channels {
		c.Channels[ch] = on
	}
	for i, override := range p.Overrides {
		if override != nil {
			cp := *override
			cp.Channels = slices.Clone(override.Channels)
			c.Overrides[i] = &cp
		}
	}
	c.PushTokens = slices.Clone(p.PushTokens)
	return &c
}

// PreferenceUpdate is a partial change to a Preference. Nil fields are left alone.
type PreferenceUpdate struct {
	Channels   map[Channel]bool       `json:"channels,omitempty"`
	Overrides  map[Type]*TypeOverride `json:"overrides,omitempty"` // nil value clears the override
	QuietHours *QuietHours            `json:"quiet_hours,omitempty"`
}

// apply validates the update and writes it into p.
func (u PreferenceUpdate) apply(p *Preference) error {
	for ch := range u.Channels {
		if !ch.Valid() {
			return fmt.Errorf("%w: %q", ErrUnknownChannel, ch)
		}
	}
	if u.QuietHours != nil {
		if err := u.QuietHours.Validate(); err != nil {
			return err
		}
	}

	next := p.Clone()
	for ch, on := range u.Channels {
		next.Channels[ch] = on
	}
	for t, override := range u.Overrides {
		if err := next.Overrides.Set(t, override); err != nil {
			return err
		}
	}
	if u.QuietHours != nil {
		next.QuietHours = *u.QuietHours
	}

	*p = *next
	return nil
}
