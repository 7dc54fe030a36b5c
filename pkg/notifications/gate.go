package notifications

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrymomot/posnotify/pkg/cache"
)

// Decision is the gate's verdict for one recipient.
type Decision struct {
	// Channels that survived preference filtering, in request order.
	Channels []Channel
	// DeferUntil is set when quiet hours hold the notification back.
	DeferUntil *time.Time
	// PushTokens registered by the recipient, set when PUSH survived.
	PushTokens []string
}

// Gate filters requested channels through a recipient's preferences and
// decides whether quiet hours defer delivery.
type Gate struct {
	prefs     PreferenceStore
	cache     *cache.LRUCache[string, *Preference]
	cacheSize int
	cacheTTL  time.Duration
	now       func() time.Time
}

// GateOption configures a Gate.
type GateOption func(*Gate)

// WithGateCacheSize bounds the number of cached preferences. Zero disables caching.
func WithGateCacheSize(size int) GateOption {
	return func(g *Gate) {
		g.cacheSize = max(size, 0)
	}
}

// WithGateCacheTTL bounds how long a cached preference is trusted, which
// matters when other processes update preferences. Zero keeps entries until
// they are evicted or invalidated.
func WithGateCacheTTL(ttl time.Duration) GateOption {
	return func(g *Gate) {
		g.cacheTTL = max(ttl, 0)
	}
}

// WithGateClock overrides the time source used for quiet hours.
func WithGateClock(now func() time.Time) GateOption {
	return func(g *Gate) {
		if now != nil {
			g.now = now
		}
	}
}

// NewGate creates a Gate over prefs with a 10,000-entry preference cache.
func NewGate(prefs PreferenceStore, opts ...GateOption) *Gate {
	g := &Gate{
		prefs:     prefs,
		cacheSize: 10000,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	if g.cacheSize > 0 {
		g.cache = cache.NewLRUCache[string, *Preference](g.cacheSize,
			cache.WithTTL(g.cacheTTL),
			cache.WithClock(g.now),
		)
	}
	return g
}

// Evaluate decides which of the requested channels reach r for a notification
// of type t, and whether delivery must wait for quiet hours to end.
func (g *Gate) Evaluate(ctx context.Context, r Recipient, t Type, priority Priority, requested []Channel) (Decision, error) {
	var pref *Preference
	if r.IsGuest() {
		pref = DefaultPreference("", g.now())
	} else {
		var err error
		if pref, err = g.Preference(ctx, r.UserID); err != nil {
			return Decision{}, err
		}
	}

	var d Decision
	for _, ch := range requested {
		if !pref.Allows(t, ch) || !r.hasContact(ch) {
			continue
		}
		if ch == ChannelPush {
			if d.PushTokens = pushTokenValues(pref); len(d.PushTokens) == 0 {
				continue
			}
		}
		d.Channels = append(d.Channels, ch)
	}

	if len(d.Channels) == 0 || r.IsGuest() || priority == PriorityCritical {
		return d, nil
	}

	now := g.now()
	if pref.QuietHours.Contains(now) {
		until := pref.QuietHours.NextEnd(now)
		d.DeferUntil = &until
	}
	return d, nil
}

// Preference returns the user's preference, creating the default one on first use.
func (g *Gate) Preference(ctx context.Context, userID string) (*Preference, error) {
	if g.cache != nil {
		if pref, ok := g.cache.Get(userID); ok {
			return pref.Clone(), nil
		}
	}

	pref, err := g.prefs.GetPreference(ctx, userID)
	if errors.Is(err, ErrPreferenceNotFound) {
		pref, err = g.prefs.CreatePreferenceIfAbsent(ctx, DefaultPreference(userID, g.now()))
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load preference for user %s: %w", userID, err)
	}

	if g.cache != nil {
		g.cache.Put(userID, pref.Clone())
	}
	return pref, nil
}

// Invalidate drops the cached preference of userID.
func (g *Gate) Invalidate(userID string) {
	if g.cache != nil {
		g.cache.Remove(userID)
	}
}

func pushTokenValues(pref *Preference) []string {
	tokens := make([]string, 0, len(pref.PushTokens))
	for _, t := range pref.PushTokens {
		tokens = append(tokens, t.Token)
	}
	return tokens
}
