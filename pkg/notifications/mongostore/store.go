package mongostore

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/dmitrymomot/posnotify/pkg/logger"
	"github.com/dmitrymomot/posnotify/pkg/notifications"
)

// Default collection names.
const (
	RecordsCollection     = "notifications"
	PreferencesCollection = "notification_preferences"
	UsersCollection       = "users"
)

// Store is a RecordStore and PreferenceStore backed by MongoDB.
type Store struct {
	records *mongo.Collection
	prefs   *mongo.Collection
	now     func() time.Time
	logger  *slog.Logger
}

type storeConfig struct {
	records string
	prefs   string
	now     func() time.Time
	logger  *slog.Logger
}

// Option configures a Store.
type Option func(*storeConfig)

// WithRecordsCollection overrides the records collection name.
func WithRecordsCollection(name string) Option {
	return func(c *storeConfig) {
		if name != "" {
			c.records = name
		}
	}
}

// WithPreferencesCollection overrides the preferences collection name.
func WithPreferencesCollection(name string) Option {
	return func(c *storeConfig) {
		if name != "" {
			c.prefs = name
		}
	}
}

// WithClock overrides the time source used for updated_at stamps.
func WithClock(now func() time.Time) Option {
	return func(c *storeConfig) {
		if now != nil {
			c.now = now
		}
	}
}

// WithLogger sets the logger for the Store.
func WithLogger(l *slog.Logger) Option {
	return func(c *storeConfig) {
		if l != nil {
			c.logger = l
		}
	}
}

// New creates a Store over db.
func New(db *mongo.Database, opts ...Option) *Store {
	cfg := storeConfig{
		records: RecordsCollection,
		prefs:   PreferencesCollection,
		now:     time.Now,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	return &Store{
		records: db.Collection(cfg.records, collectionOptions()),
		prefs:   db.Collection(cfg.prefs, collectionOptions()),
		now:     cfg.now,
		logger:  cfg.logger.With(logger.Component("notifications.mongostore")),
	}
}

// collectionOptions decodes nested template data into maps rather than bson.D,
// so records read back look like the ones that were written.
func collectionOptions() *options.CollectionOptionsBuilder {
	return options.Collection().SetBSONOptions(&options.BSONOptions{DefaultDocumentM: true})
}

func (s *Store) CreateRecord(ctx context.Context, rec *notifications.Record) error {
	if rec == nil || rec.ID == "" {
		return fmt.Errorf("record id is required")
	}
	if _, err := s.records.InsertOne(ctx, toRecordDoc(rec)); err != nil {
		return fmt.Errorf("failed to insert record %s: %w", rec.ID, err)
	}
	return nil
}

func (s *Store) GetRecord(ctx context.Context, id string) (*notifications.Record, error) {
	var doc recordDoc
	err := s.records.FindOne(ctx, bson.D{{Key: "_id", Value: id}}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, notifications.ErrRecordNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load record %s: %w", id, err)
	}
	return doc.record(), nil
}

func (s *Store) UpdateChannel(ctx context.Context, id string, from notifications.Status, entry notifications.ChannelEntry) (*notifications.Record, error) {
	filter, update := channelUpdate(id, from, entry, s.now())

	var doc recordDoc
	err := s.records.FindOneAndUpdate(ctx, filter, update, returnAfter()).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, s.missOrConflict(ctx, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update %s entry of record %s: %w", entry.Channel, id, err)
	}
	return doc.record(), nil
}

func (s *Store) SetStatus(ctx context.Context, id string, status notifications.Status, version int64) error {
	filter, update := statusUpdate(id, status, version, s.now())

	res, err := s.records.UpdateOne(ctx, filter, update)
	if err != nil {
		return fmt.Errorf("failed to set status of record %s: %w", id, err)
	}
	if res.MatchedCount == 0 {
		return s.missOrConflict(ctx, id)
	}
	return nil
}

func (s *Store) ClaimForProcessing(ctx context.Context, id string, now time.Time) (*notifications.Record, error) {
	filter, update := claimUpdate(id, now)

	var doc recordDoc
	err := s.records.FindOneAndUpdate(ctx, filter, update, returnAfter()).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		err := s.missOrConflict(ctx, id)
		if errors.Is(err, notifications.ErrVersionConflict) {
			return nil, notifications.ErrAlreadyClaimed
		}
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to claim record %s: %w", id, err)
	}
	return doc.record(), nil
}

func (s *Store) ListDue(ctx context.Context, now time.Time, limit int) ([]*notifications.Record, error) {
	opts := options.Find().SetSort(bson.D{{Key: "scheduled_for", Value: 1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	return s.find(ctx, dueFilter(now), opts)
}

func (s *Store) ReleaseClaim(ctx context.Context, id string) error {
	filter, update := releaseUpdate(id, s.now())
	res, err := s.records.UpdateOne(ctx, filter, update)
	if err != nil {
		return fmt.Errorf("failed to release record %s: %w", id, err)
	}
	// A record that is already unclaimed matches nothing; only a missing one is an error.
	if res.MatchedCount == 0 {
		if err := s.missOrConflict(ctx, id); !errors.Is(err, notifications.ErrVersionConflict) {
			return err
		}
	}
	return nil
}

func (s *Store) DeleteDeferred(ctx context.Context, id string) error {
	res, err := s.records.DeleteOne(ctx, deferredFilter(id))
	if err != nil {
		return fmt.Errorf("failed to delete deferred record %s: %w", id, err)
	}
	if res.DeletedCount == 0 {
		err := s.missOrConflict(ctx, id)
		if errors.Is(err, notifications.ErrVersionConflict) {
			return notifications.ErrNotDeferred
		}
		return err
	}
	return nil
}

func (s *Store) List(ctx context.Context, userID string, opts notifications.ListOptions) ([]*notifications.Record, error) {
	find := options.Find().SetSort(bson.D{
		{Key: "created_at", Value: -1},
		{Key: "_id", Value: 1},
	})
	if opts.Offset > 0 {
		find.SetSkip(int64(opts.Offset))
	}
	if opts.Limit > 0 {
		find.SetLimit(int64(opts.Limit))
	}
	return s.find(ctx, listFilter(userID, opts), find)
}

func (s *Store) MarkRead(ctx context.Context, userID string, now time.Time, ids ...string) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	return s.markRead(ctx, markReadFilter(userID, ids), now)
}

func (s *Store) MarkAllRead(ctx context.Context, userID string, now time.Time) (int, error) {
	filter := append(feedFilter(userID, now), bson.E{Key: "read_at", Value: nil})
	return s.markRead(ctx, filter, now)
}

func (s *Store) markRead(ctx context.Context, filter bson.D, now time.Time) (int, error) {
	res, err := s.records.UpdateMany(ctx, filter, bson.D{
		{Key: "$set", Value: bson.D{{Key: "read_at", Value: now}}},
	})
	if err != nil {
		return 0, fmt.Errorf("failed to mark records read: %w", err)
	}
	return int(res.ModifiedCount), nil
}

func (s *Store) CountUnread(ctx context.Context, userID string, now time.Time) (int, error) {
	filter := append(feedFilter(userID, now), bson.E{Key: "read_at", Value: nil})
	n, err := s.records.CountDocuments(ctx, filter)
	if err != nil {
		return 0, fmt.Errorf("failed to count unread records: %w", err)
	}
	return int(n), nil
}

func (s *Store) Delete(ctx context.Context, userID string, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := s.records.DeleteMany(ctx, bson.D{
		{Key: "_id", Value: bson.D{{Key: "$in", Value: ids}}},
		{Key: "recipient.user_id", Value: userID},
	})
	if err != nil {
		return fmt.Errorf("failed to delete records: %w", err)
	}
	return nil
}

func (s *Store) Analytics(ctx context.Context, q notifications.AnalyticsQuery) ([]notifications.TypeStats, error) {
	cur, err := s.records.Aggregate(ctx, analyticsPipeline(q))
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate analytics: %w", err)
	}

	var docs []statsDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode analytics: %w", err)
	}

	known := notifications.Types()
	stats := make([]notifications.TypeStats, 0, len(docs))
	for _, d := range docs {
		t := notifications.Type(d.Type)
		if !t.Valid() {
			s.logger.LogAttrs(ctx, slog.LevelWarn, "skipping analytics for unknown type",
				logger.NotificationType(d.Type))
			continue
		}
		stats = append(stats, notifications.TypeStats{
			Type:   t,
			Total:  d.Total,
			Sent:   d.Sent,
			Failed: d.Failed,
			Read:   d.Read,
		})
	}
	slices.SortFunc(stats, func(a, b notifications.TypeStats) int {
		return cmp.Compare(slices.Index(known, a.Type), slices.Index(known, b.Type))
	})
	return stats, nil
}

func (s *Store) GetPreference(ctx context.Context, userID string) (*notifications.Preference, error) {
	var doc preferenceDoc
	err := s.prefs.FindOne(ctx, bson.D{{Key: "_id", Value: userID}}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, notifications.ErrPreferenceNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load preference of user %s: %w", userID, err)
	}
	return doc.preference(), nil
}

func (s *Store) CreatePreferenceIfAbsent(ctx context.Context, pref *notifications.Preference) (*notifications.Preference, error) {
	_, err := s.prefs.InsertOne(ctx, toPreferenceDoc(pref))
	if err == nil {
		return pref.Clone(), nil
	}
	if !mongo.IsDuplicateKeyError(err) {
		return nil, fmt.Errorf("failed to create preference of user %s: %w", pref.UserID, err)
	}
	return s.GetPreference(ctx, pref.UserID)
}

func (s *Store) SavePreference(ctx context.Context, pref *notifications.Preference) error {
	_, err := s.prefs.ReplaceOne(ctx,
		bson.D{{Key: "_id", Value: pref.UserID}},
		toPreferenceDoc(pref),
		options.Replace().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("failed to save preference of user %s: %w", pref.UserID, err)
	}
	return nil
}

func (s *Store) find(ctx context.Context, filter bson.D, opts *options.FindOptionsBuilder) ([]*notifications.Record, error) {
	cur, err := s.records.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to query records: %w", err)
	}

	var docs []recordDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode records: %w", err)
	}

	out := make([]*notifications.Record, len(docs))
	for i, d := range docs {
		out[i] = d.record()
	}
	return out, nil
}

// missOrConflict explains why a conditional write matched nothing.
func (s *Store) missOrConflict(ctx context.Context, id string) error {
	n, err := s.records.CountDocuments(ctx, bson.D{{Key: "_id", Value: id}}, options.Count().SetLimit(1))
	if err != nil {
		return fmt.Errorf("failed to check record %s: %w", id, err)
	}
	if n == 0 {
		return notifications.ErrRecordNotFound
	}
	return notifications.ErrVersionConflict
}

func returnAfter() *options.FindOneAndUpdateOptionsBuilder {
	return options.FindOneAndUpdate().SetReturnDocument(options.After)
}

var (
	_ notifications.RecordStore     = (*Store)(nil)
	_ notifications.PreferenceStore = (*Store)(nil)
)
