package notifications

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"sync"
	"time"
)

// MemoryStorage is an in-memory RecordStore and PreferenceStore.
// Suitable for development and testing.
type MemoryStorage struct {
	records map[string]*Record
	prefs   map[string]*Preference
	mu      sync.RWMutex
}

// NewMemoryStorage creates an empty MemoryStorage.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		records: make(map[string]*Record),
		prefs:   make(map[string]*Preference),
	}
}

func (s *MemoryStorage) CreateRecord(ctx context.Context, rec *Record) error {
	if rec == nil || rec.ID == "" {
		return fmt.Errorf("record id is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.records[rec.ID]; exists {
		return fmt.Errorf("record %s already exists", rec.ID)
	}
	s.records[rec.ID] = rec.Clone()
	return nil
}

func (s *MemoryStorage) GetRecord(ctx context.Context, id string) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[id]
	if !ok {
		return nil, ErrRecordNotFound
	}
	return rec.Clone(), nil
}

func (s *MemoryStorage) UpdateChannel(ctx context.Context, id string, from Status, entry ChannelEntry) (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[id]
	if !ok {
		return nil, ErrRecordNotFound
	}
	current := rec.Entry(entry.Channel)
	if current == nil || current.Status != from {
		return nil, ErrVersionConflict
	}

	*current = entry
	rec.Version++
	rec.UpdatedAt = time.Now()
	return rec.Clone(), nil
}

func (s *MemoryStorage) SetStatus(ctx context.Context, id string, status Status, version int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[id]
	if !ok {
		return ErrRecordNotFound
	}
	if rec.Version != version {
		return ErrVersionConflict
	}

	rec.Status = status
	rec.Version++
	rec.UpdatedAt = time.Now()
	return nil
}

func (s *MemoryStorage) ClaimForProcessing(ctx context.Context, id string, now time.Time) (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[id]
	if !ok {
		return nil, ErrRecordNotFound
	}
	if rec.ProcessedAt != nil {
		return nil, ErrAlreadyClaimed
	}

	rec.ProcessedAt = &now
	rec.Version++
	rec.UpdatedAt = now
	return rec.Clone(), nil
}

func (s *MemoryStorage) ReleaseClaim(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[id]
	if !ok {
		return ErrRecordNotFound
	}
	if rec.ProcessedAt == nil {
		return nil
	}
	rec.ProcessedAt = nil
	rec.Version++
	rec.UpdatedAt = time.Now()
	return nil
}

func (s *MemoryStorage) ListDue(ctx context.Context, now time.Time, limit int) ([]*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var due []*Record
	for _, rec := range s.records {
		if rec.ProcessedAt == nil && rec.ScheduledFor != nil && !rec.ScheduledFor.After(now) {
			due = append(due, rec.Clone())
		}
	}

	slices.SortFunc(due, func(a, b *Record) int {
		return a.ScheduledFor.Compare(*b.ScheduledFor)
	})
	if limit > 0 && len(due) > limit {
		due = due[:limit]
	}
	return due, nil
}

func (s *MemoryStorage) DeleteDeferred(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[id]
	if !ok {
		return ErrRecordNotFound
	}
	if rec.Status != StatusPending || rec.ProcessedAt != nil {
		return ErrNotDeferred
	}

	delete(s.records, id)
	return nil
}

func (s *MemoryStorage) List(ctx context.Context, userID string, opts ListOptions) ([]*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*Record
	for _, rec := range s.records {
		if s.inFeed(rec, userID, opts.Now) && matches(rec, opts) {
			out = append(out, rec.Clone())
		}
	}

	slices.SortFunc(out, func(a, b *Record) int {
		return cmp.Or(b.CreatedAt.Compare(a.CreatedAt), cmp.Compare(a.ID, b.ID))
	})

	if opts.Offset > 0 {
		if opts.Offset >= len(out) {
			return []*Record{}, nil
		}
		out = out[opts.Offset:]
	}
	if opts.Limit > 0 && len(out) > opts.Limit {
		out = out[:opts.Limit]
	}
	return out, nil
}

func (s *MemoryStorage) MarkRead(ctx context.Context, userID string, now time.Time, ids ...string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, id := range ids {
		rec, ok := s.records[id]
		if !ok || !s.inFeed(rec, userID, time.Time{}) || rec.ReadAt != nil {
			continue
		}
		rec.ReadAt = &now
		n++
	}
	return n, nil
}

func (s *MemoryStorage) MarkAllRead(ctx context.Context, userID string, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, rec := range s.records {
		if s.inFeed(rec, userID, now) && rec.ReadAt == nil {
			rec.ReadAt = &now
			n++
		}
	}
	return n, nil
}

func (s *MemoryStorage) CountUnread(ctx context.Context, userID string, now time.Time) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for _, rec := range s.records {
		if s.inFeed(rec, userID, now) && rec.ReadAt == nil {
			n++
		}
	}
	return n, nil
}

func (s *MemoryStorage) Delete(ctx context.Context, userID string, ids ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, id := range ids {
		if rec, ok := s.records[id]; ok && rec.Recipient.UserID == userID {
			delete(s.records, id)
		}
	}
	return nil
}

func (s *MemoryStorage) Analytics(ctx context.Context, q AnalyticsQuery) ([]TypeStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var table [numTypes]TypeStats
	for _, rec := range s.records {
		if rec.CreatedAt.Before(q.From) || !rec.CreatedAt.Before(q.To) {
			continue
		}
		if q.BranchID != "" && rec.Metadata.BranchID != q.BranchID {
			continue
		}
		i, ok := rec.Type.index()
		if !ok {
			continue
		}

		table[i].Total++
		switch rec.Status {
		case StatusSent:
			table[i].Sent++
		case StatusFailed:
			table[i].Failed++
		}
		if rec.ReadAt != nil {
			table[i].Read++
		}
	}

	var stats []TypeStats
	for i, st := range table {
		if st.Total > 0 {
			st.Type = allTypes[i]
			stats = append(stats, st)
		}
	}
	return stats, nil
}

// inFeed reports whether rec is a delivered in-app notification of userID.
// Deferred records stay hidden until promotion. A zero now skips the expiry
// check.
func (s *MemoryStorage) inFeed(rec *Record, userID string, now time.Time) bool {
	if rec.Recipient.UserID != userID {
		return false
	}
	if e := rec.Entry(ChannelInApp); e == nil || e.Status != StatusSent {
		return false
	}
	return now.IsZero() || !rec.IsExpired(now)
}

func matches(rec *Record, opts ListOptions) bool {
	if opts.OnlyUnread && rec.ReadAt != nil {
		return false
	}
	if len(opts.Statuses) > 0 && !slices.Contains(opts.Statuses, rec.Status) {
		return false
	}
	if len(opts.Types) > 0 && !slices.Contains(opts.Types, rec.Type) {
		return false
	}
	if opts.Since != nil && rec.CreatedAt.Before(*opts.Since) {
		return false
	}
	return true
}

func (s *MemoryStorage) GetPreference(ctx context.Context, userID string) (*Preference, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	pref, ok := s.prefs[userID]
	if !ok {
		return nil, ErrPreferenceNotFound
	}
	return pref.Clone(), nil
}

func (s *MemoryStorage) CreatePreferenceIfAbsent(ctx context.Context, pref *Preference) (*Preference, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.prefs[pref.UserID]; ok {
		return existing.Clone(), nil
	}
	s.prefs[pref.UserID] = pref.Clone()
	return pref.Clone(), nil
}

func (s *MemoryStorage) SavePreference(ctx context.Context, pref *Preference) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.prefs[pref.UserID] = pref.Clone()
	return nil
}
