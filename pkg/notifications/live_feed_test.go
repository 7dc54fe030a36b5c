package notifications_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/posnotify/pkg/notifications"
)

func TestLiveFeed(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	feed := notifications.NewLiveFeed(2)
	t.Cleanup(func() { _ = feed.Close() })

	alice := feed.Subscribe(ctx, "alice")
	bob := feed.Subscribe(ctx, "bob")

	rec := &notifications.Record{ID: "r1", Recipient: notifications.Recipient{UserID: "alice"}}
	require.NoError(t, feed.Publish(ctx, rec))
	require.NoError(t, feed.Publish(ctx, &notifications.Record{ID: "guest", Recipient: notifications.Recipient{Email: "a@x.com"}}))
	require.NoError(t, feed.Publish(ctx, &notifications.Record{ID: "nobody", Recipient: notifications.Recipient{UserID: "carol"}}))

	select {
	case msg := <-alice.Receive(ctx):
		assert.Equal(t, "r1", msg.Data.ID)
	case <-time.After(time.Second):
		t.Fatal("alice did not receive her record")
	}

	select {
	case msg := <-bob.Receive(ctx):
		t.Fatalf("bob received %s", msg.Data.ID)
	case <-time.After(20 * time.Millisecond):
	}

	// published records are copies
	rec.ID = "mutated"
	require.NoError(t, feed.Publish(ctx, &notifications.Record{ID: "r2", Recipient: notifications.Recipient{UserID: "alice"}}))
	msg := <-alice.Receive(ctx)
	assert.Equal(t, "r2", msg.Data.ID)
}

func TestLiveFeed_EvictionClosesSubscribers(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	feed := notifications.NewLiveFeed(1, notifications.WithMaxBroadcasters(1))
	t.Cleanup(func() { _ = feed.Close() })

	first := feed.Subscribe(ctx, "u1")
	feed.Subscribe(ctx, "u2")

	select {
	case _, ok := <-first.Receive(ctx):
		assert.False(t, ok, "evicted user's stream is closed")
	case <-time.After(time.Second):
		t.Fatal("evicted subscriber was not closed")
	}
}

func TestLiveFeed_Close(t *testing.T) {
	t.Parallel()

	feed := notifications.NewLiveFeed(1)
	sub := feed.Subscribe(context.Background(), "u1")
	require.NoError(t, feed.Close())

	_, ok := <-sub.Receive(context.Background())
	assert.False(t, ok)
}
