package notifications

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dmitrymomot/posnotify/pkg/logger"
	"github.com/dmitrymomot/posnotify/pkg/validator"
)

// Manager serves the read side of notifications: the in-app feed,
// acknowledgements, preferences, push tokens and delivery analytics.
type Manager struct {
	records RecordStore
	prefs   PreferenceStore
	gate    *Gate
	now     func() time.Time
	logger  *slog.Logger
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithManagerLogger sets the logger for the Manager.
func WithManagerLogger(l *slog.Logger) ManagerOption {
	return func(m *Manager) {
		if l != nil {
			m.logger = l
		}
	}
}

// WithManagerClock overrides the time source used for read and expiry stamps.
func WithManagerClock(now func() time.Time) ManagerOption {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

// NewManager creates a Manager. gate is used to read preferences through its
// cache and is invalidated on every preference write.
func NewManager(records RecordStore, prefs PreferenceStore, gate *Gate, opts ...ManagerOption) *Manager {
	m := &Manager{
		records: records,
		prefs:   prefs,
		gate:    gate,
		now:     time.Now,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.logger = m.logger.With(logger.Component("manager"))
	return m
}

// List returns the user's unexpired in-app notifications, newest first.
func (m *Manager) List(ctx context.Context, userID string, opts ListOptions) ([]*Record, error) {
	if opts.Now.IsZero() {
		opts.Now = m.now()
	}
	recs, err := m.records.List(ctx, userID, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list notifications: %w", err)
	}
	return recs, nil
}

// MarkRead acknowledges one in-app notification.
func (m *Manager) MarkRead(ctx context.Context, userID, id string) error {
	n, err := m.records.MarkRead(ctx, userID, m.now(), id)
	if err != nil {
		return fmt.Errorf("failed to mark notification read: %w", err)
	}
	if n == 0 {
		return ErrRecordNotFound
	}
	return nil
}

// MarkAllRead acknowledges every unread in-app notification and returns how many changed.
func (m *Manager) MarkAllRead(ctx context.Context, userID string) (int, error) {
	n, err := m.records.MarkAllRead(ctx, userID, m.now())
	if err != nil {
		return 0, fmt.Errorf("failed to mark notifications read: %w", err)
	}
	return n, nil
}

// CountUnread counts the user's unread, unexpired in-app notifications.
func (m *Manager) CountUnread(ctx context.Context, userID string) (int, error) {
	n, err := m.records.CountUnread(ctx, userID, m.now())
	if err != nil {
		return 0, fmt.Errorf("failed to count unread notifications: %w", err)
	}
	return n, nil
}

// Delete removes the user's notifications.
func (m *Manager) Delete(ctx context.Context, userID string, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	if err := m.records.Delete(ctx, userID, ids...); err != nil {
		return fmt.Errorf("failed to delete notifications: %w", err)
	}
	return nil
}

// GetPreferences returns the user's preferences, creating defaults on first read.
func (m *Manager) GetPreferences(ctx context.Context, userID string) (*Preference, error) {
	return m.gate.Preference(ctx, userID)
}

// UpdatePreferences applies u to the user's preferences and returns the result.
func (m *Manager) UpdatePreferences(ctx context.Context, userID string, u PreferenceUpdate) (*Preference, error) {
	return m.modifyPreference(ctx, userID, func(p *Preference) error {
		return u.apply(p)
	})
}

// RegisterPushToken adds a device token, or refreshes it when already registered.
func (m *Manager) RegisterPushToken(ctx context.Context, userID string, token PushToken) (*Preference, error) {
	if err := validator.Apply(
		validator.RequiredString("token", token.Token),
		validator.InListString("platform", token.Platform, []string{"android", "ios", "web"}),
	); err != nil {
		return nil, err
	}

	return m.modifyPreference(ctx, userID, func(p *Preference) error {
		p.UpsertPushToken(token, m.now())
		return nil
	})
}

// RemovePushToken unregisters a device token.
func (m *Manager) RemovePushToken(ctx context.Context, userID, token string) error {
	_, err := m.modifyPreference(ctx, userID, func(p *Preference) error {
		if !p.RemovePushToken(token) {
			return ErrPushTokenNotFound
		}
		return nil
	})
	return err
}

// Analytics returns per-type delivery counts for records created in [q.From, q.To).
func (m *Manager) Analytics(ctx context.Context, q AnalyticsQuery) ([]TypeStats, error) {
	if err := validator.Apply(
		validator.RequiredComparable("from", q.From),
		validator.RequiredComparable("to", q.To),
		validator.DateAfter("to", q.To, q.From),
	); err != nil {
		return nil, err
	}

	stats, err := m.records.Analytics(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate analytics: %w", err)
	}
	return stats, nil
}

func (m *Manager) modifyPreference(ctx context.Context, userID string, fn func(*Preference) error) (*Preference, error) {
	pref, err := m.prefs.GetPreference(ctx, userID)
	if errors.Is(err, ErrPreferenceNotFound) {
		pref, err = m.prefs.CreatePreferenceIfAbsent(ctx, DefaultPreference(userID, m.now()))
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load preference for user %s: %w", userID, err)
	}

	if err := fn(pref); err != nil {
		return nil, err
	}
	pref.UpdatedAt = m.now()

	if err := m.prefs.SavePreference(ctx, pref); err != nil {
		return nil, fmt.Errorf("failed to save preference for user %s: %w", userID, err)
	}
	m.gate.Invalidate(userID)

	m.logger.LogAttrs(ctx, slog.LevelDebug, "preferences updated", logger.UserID(userID))
	return pref, nil
}
