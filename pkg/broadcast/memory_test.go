package broadcast_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/posnotify/pkg/broadcast"
)

type alert struct {
	ID   string
	Text string
}

func receive(t *testing.T, sub broadcast.Subscriber[alert]) (broadcast.Message[alert], bool) {
	t.Helper()
	select {
	case msg, ok := <-sub.Receive(context.Background()):
		return msg, ok
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for subscriber")
		return broadcast.Message[alert]{}, false
	}
}

func TestMemoryBroadcaster_FanOut(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	b := broadcast.NewMemoryBroadcaster[alert](4)
	defer b.Close()

	subs := []broadcast.Subscriber[alert]{b.Subscribe(ctx), b.Subscribe(ctx), b.Subscribe(ctx)}
	assert.Equal(t, 3, b.Len())

	require.NoError(t, b.Broadcast(ctx, broadcast.Message[alert]{Data: alert{ID: "n1", Text: "low stock"}}))
	require.NoError(t, b.Broadcast(ctx, broadcast.Message[alert]{Data: alert{ID: "n2", Text: "bill paid"}}))

	for _, sub := range subs {
		first, ok := receive(t, sub)
		require.True(t, ok)
		assert.Equal(t, "n1", first.Data.ID)

		second, ok := receive(t, sub)
		require.True(t, ok)
		assert.Equal(t, "n2", second.Data.ID, "messages arrive in order")
	}
}

func TestMemoryBroadcaster_SlowSubscriberIsDropped(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	b := broadcast.NewMemoryBroadcaster[alert](1)
	defer b.Close()

	slow := b.Subscribe(ctx)
	fast := b.Subscribe(ctx)

	require.NoError(t, b.Broadcast(ctx, broadcast.Message[alert]{Data: alert{ID: "n1"}}))
	_, ok := receive(t, fast)
	require.True(t, ok)

	// slow still holds n1, so n2 overflows its buffer
	require.NoError(t, b.Broadcast(ctx, broadcast.Message[alert]{Data: alert{ID: "n2"}}))
	assert.Equal(t, 1, b.Len())

	msg, ok := receive(t, slow)
	require.True(t, ok)
	assert.Equal(t, "n1", msg.Data.ID)
	_, ok = receive(t, slow)
	assert.False(t, ok, "dropped subscriber is closed")

	msg, ok = receive(t, fast)
	require.True(t, ok)
	assert.Equal(t, "n2", msg.Data.ID)
}

func TestMemoryBroadcaster_ContextEndsSubscription(t *testing.T) {
	t.Parallel()

	b := broadcast.NewMemoryBroadcaster[alert](4)
	defer b.Close()

	ctx, cancel := context.WithCancel(context.Background())
	sub := b.Subscribe(ctx)
	cancel()

	_, ok := receive(t, sub)
	assert.False(t, ok)
	assert.Eventually(t, func() bool { return b.Len() == 0 }, time.Second, 5*time.Millisecond)
}

func TestMemoryBroadcaster_Close(t *testing.T) {
	t.Parallel()

	t.Run("closes live subscribers", func(t *testing.T) {
		t.Parallel()

		b := broadcast.NewMemoryBroadcaster[alert](4)

		// one subscription whose context never ends, one that has a watcher
		forever := b.Subscribe(context.Background())
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		watched := b.Subscribe(ctx)

		done := make(chan struct{})
		go func() {
			_ = b.Close()
			close(done)
		}()
		select {
		case <-done:
		case <-time.After(time.Second):
			t.Fatal("Close blocked on a subscription that was never cancelled")
		}

		_, ok := receive(t, forever)
		assert.False(t, ok)
		_, ok = receive(t, watched)
		assert.False(t, ok)
		assert.Equal(t, 0, b.Len())
	})

	t.Run("is idempotent and disables the broadcaster", func(t *testing.T) {
		t.Parallel()

		ctx := context.Background()
		b := broadcast.NewMemoryBroadcaster[alert](4)
		require.NoError(t, b.Close())
		require.NoError(t, b.Close())

		require.NoError(t, b.Broadcast(ctx, broadcast.Message[alert]{Data: alert{ID: "n1"}}))
		sub := b.Subscribe(ctx)
		_, ok := receive(t, sub)
		assert.False(t, ok, "subscriptions after Close are born closed")
	})
}

func TestMemoryBroadcaster_Concurrent(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	b := broadcast.NewMemoryBroadcaster[alert](1000)
	defer b.Close()

	const subscribers, messages = 5, 100
	subs := make([]broadcast.Subscriber[alert], subscribers)
	for i := range subs {
		subs[i] = b.Subscribe(ctx)
	}

	var wg sync.WaitGroup
	for range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range messages / 4 {
				_ = b.Broadcast(ctx, broadcast.Message[alert]{Data: alert{Text: "tick"}})
			}
		}()
	}
	wg.Wait()

	for _, sub := range subs {
		assert.Len(t, sub.Receive(ctx), messages)
	}
}
