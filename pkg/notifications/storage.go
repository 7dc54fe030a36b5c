package notifications

import (
	"context"
	"time"
)

// RecordStore persists notification records.
//
// Channel, status and claim writes bump the record Version. Channel updates
// are scoped to the single matching entry so sibling channels completing
// concurrently do not overwrite each other.
type RecordStore interface {
	// CreateRecord stores a new record.
	CreateRecord(ctx context.Context, rec *Record) error

	// GetRecord returns the current state of a record or ErrRecordNotFound.
	GetRecord(ctx context.Context, id string) (*Record, error)

	// UpdateChannel replaces the entry for entry.Channel, but only while that
	// entry is still in status from. It returns the record as stored after the
	// update, ErrVersionConflict when the entry moved on, or ErrRecordNotFound.
	UpdateChannel(ctx context.Context, id string, from Status, entry ChannelEntry) (*Record, error)

	// SetStatus writes the overall status when the stored version still equals
	// version, otherwise it returns ErrVersionConflict.
	SetStatus(ctx context.Context, id string, status Status, version int64) error

	// ClaimForProcessing stamps processedAt on a record that has none yet and
	// returns the claimed record. A second claim returns ErrAlreadyClaimed.
	ClaimForProcessing(ctx context.Context, id string, now time.Time) (*Record, error)

	// ReleaseClaim clears processedAt so the record is due again. Releasing an
	// unclaimed record is a no-op.
	ReleaseClaim(ctx context.Context, id string) error

	// ListDue returns unclaimed records scheduled at or before now, oldest
	// schedule first.
	ListDue(ctx context.Context, now time.Time, limit int) ([]*Record, error)

	// DeleteDeferred removes a record only while it is PENDING and unclaimed,
	// otherwise it returns ErrNotDeferred.
	DeleteDeferred(ctx context.Context, id string) error

	// List returns the user's in-app records, newest first.
	List(ctx context.Context, userID string, opts ListOptions) ([]*Record, error)

	// MarkRead acknowledges the given in-app records of the user and returns
	// how many changed.
	MarkRead(ctx context.Context, userID string, now time.Time, ids ...string) (int, error)

	// MarkAllRead acknowledges every unread in-app record of the user.
	MarkAllRead(ctx context.Context, userID string, now time.Time) (int, error)

	// CountUnread counts the user's unread, unexpired in-app records.
	CountUnread(ctx context.Context, userID string, now time.Time) (int, error)

	// Delete removes records owned by the user.
	Delete(ctx context.Context, userID string, ids ...string) error

	// Analytics aggregates delivery counts per type.
	Analytics(ctx context.Context, q AnalyticsQuery) ([]TypeStats, error)
}

// PreferenceStore persists user preferences.
type PreferenceStore interface {
	// GetPreference returns the stored preference or ErrPreferenceNotFound.
	GetPreference(ctx context.Context, userID string) (*Preference, error)

	// CreatePreferenceIfAbsent stores pref unless the user already has one,
	// and returns whichever preference is stored afterwards.
	CreatePreferenceIfAbsent(ctx context.Context, pref *Preference) (*Preference, error)

	// SavePreference writes pref, replacing the stored one.
	SavePreference(ctx context.Context, pref *Preference) error
}

// ListOptions filters and paginates the in-app feed.
type ListOptions struct {
	Limit      int // 0 = no limit
	Offset     int
	OnlyUnread bool
	Statuses   []Status
	Types      []Type
	Since      *time.Time
	Now        time.Time // records expired at Now are skipped
}

// AnalyticsQuery selects records created in [From, To), optionally for one branch.
type AnalyticsQuery struct {
	From     time.Time
	To       time.Time
	BranchID string
}

// TypeStats are delivery counts for one notification type.
type TypeStats struct {
	Type   Type `json:"type"`
	Total  int  `json:"total"`
	Sent   int  `json:"sent"`
	Failed int  `json:"failed"`
	Read   int  `json:"read"`
}
