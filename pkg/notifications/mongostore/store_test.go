package mongostore_test

import (
	"context"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	driver "go.mongodb.org/mongo-driver/v2/mongo"

	"github.com/dmitrymomot/posnotify/pkg/mongo"
	"github.com/dmitrymomot/posnotify/pkg/notifications"
	"github.com/dmitrymomot/posnotify/pkg/notifications/mongostore"
)

var testNow = time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

// newDatabase connects to MONGODB_URL and hands out a throwaway database.
func newDatabase(t *testing.T) *driver.Database {
	t.Helper()

	url := os.Getenv("MONGODB_URL")
	if url == "" {
		t.Skip("MONGODB_URL not set, skipping mongo integration test")
	}

	ctx := context.Background()
	client, err := mongo.Connect(ctx, mongo.Config{
		ConnectionURL:  url,
		AppName:        "posnotify-test",
		ConnectTimeout: 5 * time.Second,
		MaxPoolSize:    10,
		RetryAttempts:  1,
	})
	require.NoError(t, err)

	db := client.Database("posnotify_test_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:12])
	t.Cleanup(func() {
		_ = db.Drop(context.Background())
		_ = client.Disconnect(context.Background())
	})
	return db
}

func newStore(t *testing.T) *mongostore.Store {
	t.Helper()

	s := mongostore.New(newDatabase(t), mongostore.WithClock(func() time.Time { return testNow }))
	require.NoError(t, s.EnsureIndexes(context.Background()))
	return s
}

func record(id, userID string, channels ...notifications.Channel) *notifications.Record {
	rec := &notifications.Record{
		ID:         id,
		Type:       notifications.TypeBillCreated,
		Priority:   notifications.PriorityHigh,
		Status:     notifications.StatusQueued,
		Recipient:  notifications.Recipient{UserID: userID, Email: userID + "@shop.test"},
		TemplateID: "bill-created",
		TemplateData: map[string]any{
			"bill_no": "B-100",
			"totals":  map[string]any{"gross": "12.50"},
		},
		Metadata:    notifications.Metadata{BranchID: "b1"},
		ProcessedAt: &testNow,
		CreatedAt:   testNow,
		UpdatedAt:   testNow,
	}
	for _, ch := range channels {
		entry := notifications.ChannelEntry{Channel: ch, Status: notifications.StatusQueued}
		if ch == notifications.ChannelInApp {
			entry.Status = notifications.StatusSent
			entry.SentAt = &testNow
		}
		rec.Channels = append(rec.Channels, entry)
	}
	return rec
}

func TestStore_Records(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := newStore(t)

	require.NoError(t, s.CreateRecord(ctx, record("r1", "u1", notifications.ChannelEmail, notifications.ChannelSMS)))
	assert.Error(t, s.CreateRecord(ctx, record("r1", "u1")), "ids are unique")

	got, err := s.GetRecord(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, "B-100", got.TemplateData["bill_no"])
	assert.Equal(t, testNow, got.CreatedAt)

	_, err = s.GetRecord(ctx, "missing")
	assert.ErrorIs(t, err, notifications.ErrRecordNotFound)

	sentAt := testNow
	sent := notifications.ChannelEntry{Channel: notifications.ChannelEmail, Status: notifications.StatusSent, SentAt: &sentAt, ExternalID: "pm-1"}
	updated, err := s.UpdateChannel(ctx, "r1", notifications.StatusQueued, sent)
	require.NoError(t, err)
	assert.Equal(t, int64(1), updated.Version)
	assert.Equal(t, "pm-1", updated.Entry(notifications.ChannelEmail).ExternalID)
	assert.Equal(t, notifications.StatusQueued, updated.Entry(notifications.ChannelSMS).Status)

	_, err = s.UpdateChannel(ctx, "r1", notifications.StatusQueued, sent)
	assert.ErrorIs(t, err, notifications.ErrVersionConflict)
	_, err = s.UpdateChannel(ctx, "missing", notifications.StatusQueued, sent)
	assert.ErrorIs(t, err, notifications.ErrRecordNotFound)

	assert.ErrorIs(t, s.SetStatus(ctx, "r1", notifications.StatusSent, 0), notifications.ErrVersionConflict)
	assert.ErrorIs(t, s.SetStatus(ctx, "missing", notifications.StatusSent, 0), notifications.ErrRecordNotFound)
	require.NoError(t, s.SetStatus(ctx, "r1", notifications.StatusQueued, 1))
}

func TestStore_ConcurrentSiblingUpdates(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := newStore(t)
	channels := []notifications.Channel{notifications.ChannelEmail, notifications.ChannelSMS, notifications.ChannelPush}
	require.NoError(t, s.CreateRecord(ctx, record("r1", "u1", channels...)))

	var wg sync.WaitGroup
	for _, ch := range channels {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.UpdateChannel(ctx, "r1", notifications.StatusQueued,
				notifications.ChannelEntry{Channel: ch, Status: notifications.StatusSent})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	got, err := s.GetRecord(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, int64(3), got.Version)
	for _, ch := range channels {
		assert.Equal(t, notifications.StatusSent, got.Entry(ch).Status, ch)
	}
}

func TestStore_DeferredRecords(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := newStore(t)

	deferred := func(id string, at time.Time) *notifications.Record {
		rec := record(id, "u1", notifications.ChannelEmail)
		rec.Status = notifications.StatusPending
		rec.Channels[0].Status = notifications.StatusPending
		rec.ProcessedAt = nil
		rec.ScheduledFor = &at
		return rec
	}
	require.NoError(t, s.CreateRecord(ctx, deferred("late", testNow.Add(time.Hour))))
	require.NoError(t, s.CreateRecord(ctx, deferred("b", testNow.Add(-time.Minute))))
	require.NoError(t, s.CreateRecord(ctx, deferred("a", testNow.Add(-time.Hour))))

	due, err := s.ListDue(ctx, testNow, 10)
	require.NoError(t, err)
	require.Len(t, due, 2)
	assert.Equal(t, "a", due[0].ID)
	assert.Equal(t, "b", due[1].ID)

	claimed, err := s.ClaimForProcessing(ctx, "a", testNow)
	require.NoError(t, err)
	assert.Equal(t, testNow, *claimed.ProcessedAt)
	_, err = s.ClaimForProcessing(ctx, "a", testNow)
	assert.ErrorIs(t, err, notifications.ErrAlreadyClaimed)
	_, err = s.ClaimForProcessing(ctx, "missing", testNow)
	assert.ErrorIs(t, err, notifications.ErrRecordNotFound)

	require.NoError(t, s.ReleaseClaim(ctx, "a"))
	require.NoError(t, s.ReleaseClaim(ctx, "a"))
	assert.ErrorIs(t, s.ReleaseClaim(ctx, "missing"), notifications.ErrRecordNotFound)
	due, err = s.ListDue(ctx, testNow, 10)
	require.NoError(t, err)
	assert.Len(t, due, 2)
	_, err = s.ClaimForProcessing(ctx, "a", testNow)
	require.NoError(t, err)

	assert.ErrorIs(t, s.DeleteDeferred(ctx, "a"), notifications.ErrNotDeferred)
	require.NoError(t, s.DeleteDeferred(ctx, "late"))
	assert.ErrorIs(t, s.DeleteDeferred(ctx, "late"), notifications.ErrRecordNotFound)
}

func TestStore_Feed(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := newStore(t)

	for i, id := range []string{"f1", "f2", "f3"} {
		rec := record(id, "u1", notifications.ChannelInApp)
		rec.CreatedAt = testNow.Add(time.Duration(i) * time.Minute)
		require.NoError(t, s.CreateRecord(ctx, rec))
	}
	expired := record("old", "u1", notifications.ChannelInApp)
	past := testNow.Add(-time.Hour)
	expired.ExpiresAt = &past
	require.NoError(t, s.CreateRecord(ctx, expired))
	require.NoError(t, s.CreateRecord(ctx, record("mail", "u1", notifications.ChannelEmail)))
	require.NoError(t, s.CreateRecord(ctx, record("other", "u2", notifications.ChannelInApp)))

	list, err := s.List(ctx, "u1", notifications.ListOptions{Now: testNow})
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, []string{"f3", "f2", "f1"}, []string{list[0].ID, list[1].ID, list[2].ID})

	page, err := s.List(ctx, "u1", notifications.ListOptions{Now: testNow, Offset: 1, Limit: 1})
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, "f2", page[0].ID)

	n, err := s.MarkRead(ctx, "u1", testNow, "f1", "other", "missing")
	require.NoError(t, err)
	assert.Equal(t, 1, n, "only the user's own records are acknowledged")

	unread, err := s.CountUnread(ctx, "u1", testNow)
	require.NoError(t, err)
	assert.Equal(t, 2, unread)

	n, err = s.MarkAllRead(ctx, "u1", testNow)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	list, err = s.List(ctx, "u1", notifications.ListOptions{Now: testNow, OnlyUnread: true})
	require.NoError(t, err)
	assert.Empty(t, list)

	require.NoError(t, s.Delete(ctx, "u1", "f1", "other"))
	_, err = s.GetRecord(ctx, "f1")
	assert.ErrorIs(t, err, notifications.ErrRecordNotFound)
	_, err = s.GetRecord(ctx, "other")
	assert.NoError(t, err, "records of other users are kept")
}

func TestStore_Analytics(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := newStore(t)

	sent := record("s1", "u1", notifications.ChannelInApp)
	sent.Status = notifications.StatusSent
	sent.ReadAt = &testNow
	failed := record("s2", "u1", notifications.ChannelEmail)
	failed.Status = notifications.StatusFailed
	low := record("s3", "u1", notifications.ChannelEmail)
	low.Type = notifications.TypeLowStock
	otherBranch := record("s4", "u1", notifications.ChannelEmail)
	otherBranch.Metadata.BranchID = "b2"
	outside := record("s5", "u1", notifications.ChannelEmail)
	outside.CreatedAt = testNow.Add(48 * time.Hour)

	for _, rec := range []*notifications.Record{sent, failed, low, otherBranch, outside} {
		require.NoError(t, s.CreateRecord(ctx, rec))
	}

	stats, err := s.Analytics(ctx, notifications.AnalyticsQuery{
		From:     testNow.Add(-time.Hour),
		To:       testNow.Add(time.Hour),
		BranchID: "b1",
	})
	require.NoError(t, err)
	require.Len(t, stats, 2)
	assert.Equal(t, notifications.TypeStats{Type: notifications.TypeBillCreated, Total: 2, Sent: 1, Failed: 1, Read: 1}, stats[0])
	assert.Equal(t, notifications.TypeStats{Type: notifications.TypeLowStock, Total: 1}, stats[1])
}

func TestStore_Preferences(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := newStore(t)

	_, err := s.GetPreference(ctx, "u1")
	assert.ErrorIs(t, err, notifications.ErrPreferenceNotFound)

	first := notifications.DefaultPreference("u1", testNow)
	first.Channels[notifications.ChannelSMS] = true
	got, err := s.CreatePreferenceIfAbsent(ctx, first)
	require.NoError(t, err)
	assert.True(t, got.ChannelEnabled(notifications.ChannelSMS))

	got, err = s.CreatePreferenceIfAbsent(ctx, notifications.DefaultPreference("u1", testNow))
	require.NoError(t, err)
	assert.True(t, got.ChannelEnabled(notifications.ChannelSMS), "existing preference wins")

	got.UpsertPushToken(notifications.PushToken{Token: "tok-1", Platform: "android"}, testNow)
	got.QuietHours = notifications.QuietHours{Enabled: true, Start: "22:00", End: "07:00", Timezone: "UTC"}
	require.NoError(t, s.SavePreference(ctx, got))

	stored, err := s.GetPreference(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, stored.PushTokens, 1)
	assert.Equal(t, "tok-1", stored.PushTokens[0].Token)
	assert.Equal(t, got.QuietHours, stored.QuietHours)
}

func TestDirectory(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	dir := mongostore.NewDirectory(newDatabase(t), "")
	require.NoError(t, dir.EnsureIndexes(ctx))

	users := []notifications.User{
		{ID: "alice", Email: "alice@shop.test", Roles: []string{"manager"}, BranchIDs: []string{"b1"}, Active: true},
		{ID: "bob", Mobile: "+15550000002", Roles: []string{"cashier"}, BranchIDs: []string{"b1", "b2"}, Active: true},
		{ID: "carol", Roles: []string{"manager"}, BranchIDs: []string{"b2"}, Active: false},
	}
	for _, u := range users {
		require.NoError(t, dir.Put(ctx, u))
	}

	got, err := dir.ActiveUsers(ctx, []string{"alice", "carol", "nobody"})
	require.NoError(t, err)
	assert.Equal(t, []notifications.Recipient{{UserID: "alice", Email: "alice@shop.test"}}, got)

	got, err = dir.ActiveUsersByRoles(ctx, []string{"manager", "cashier"})
	require.NoError(t, err)
	assert.Len(t, got, 2)

	got, err = dir.ActiveUsersByBranch(ctx, "b2")
	require.NoError(t, err)
	assert.Equal(t, []notifications.Recipient{{UserID: "bob", Mobile: "+15550000002"}}, got)

	users[2].Active = true
	require.NoError(t, dir.Put(ctx, users[2]))
	got, err = dir.ActiveUsersByBranch(ctx, "b2")
	require.NoError(t, err)
	assert.Len(t, got, 2)
}
