package notifications

import (
	"context"
	"log/slog"
	"sync"

	"github.com/dmitrymomot/posnotify/pkg/broadcast"
	"github.com/dmitrymomot/posnotify/pkg/cache"
	"github.com/dmitrymomot/posnotify/pkg/logger"
)

// LiveFeed pushes in-app records to connected clients as they are delivered.
// Transports (SSE, WebSocket) subscribe per user; users with no subscriber
// cost nothing.
type LiveFeed struct {
	users           *cache.LRUCache[string, broadcast.Broadcaster[Record]]
	bufferSize      int
	maxBroadcasters int
	logger          *slog.Logger
	mu              sync.Mutex
}

// LiveFeedOption configures a LiveFeed.
type LiveFeedOption func(*LiveFeed)

// WithLiveFeedLogger sets the logger for the LiveFeed.
func WithLiveFeedLogger(l *slog.Logger) LiveFeedOption {
	return func(f *LiveFeed) {
		if l != nil {
			f.logger = l
		}
	}
}

// WithMaxBroadcasters caps the number of per-user broadcasters kept alive.
// The least recently used one is closed when the cap is hit. Default is 10,000.
func WithMaxBroadcasters(limit int) LiveFeedOption {
	return func(f *LiveFeed) {
		if limit > 0 {
			f.maxBroadcasters = limit
		}
	}
}

// NewLiveFeed creates a LiveFeed whose subscribers buffer bufferSize records.
func NewLiveFeed(bufferSize int, opts ...LiveFeedOption) *LiveFeed {
	f := &LiveFeed{
		bufferSize:      bufferSize,
		maxBroadcasters: 10000,
		logger:          slog.Default(),
	}
	for _, opt := range opts {
		opt(f)
	}

	f.users = cache.NewLRUCache[string, broadcast.Broadcaster[Record]](f.maxBroadcasters)
	f.users.SetEvictCallback(func(userID string, b broadcast.Broadcaster[Record]) {
		if err := b.Close(); err != nil {
			f.logger.LogAttrs(context.Background(), slog.LevelError, "failed to close evicted broadcaster",
				logger.UserID(userID),
				logger.Error(err),
			)
		}
	})
	return f
}

// Publish sends rec to the recipient's live subscribers, if any.
func (f *LiveFeed) Publish(ctx context.Context, rec *Record) error {
	if rec.Recipient.IsGuest() {
		return nil
	}

	f.mu.Lock()
	b, ok := f.users.Get(rec.Recipient.UserID)
	f.mu.Unlock()
	if !ok {
		return nil
	}
	return b.Broadcast(ctx, broadcast.Message[Record]{Data: *rec.Clone()})
}

// Subscribe returns a live stream of userID's in-app records. It ends when
// ctx is cancelled or the feed is closed.
func (f *LiveFeed) Subscribe(ctx context.Context, userID string) broadcast.Subscriber[Record] {
	f.mu.Lock()
	defer f.mu.Unlock()

	b, ok := f.users.Get(userID)
	if !ok {
		b = broadcast.NewMemoryBroadcaster[Record](f.bufferSize)
		f.users.Put(userID, b)
	}
	return b.Subscribe(ctx)
}

// Close closes every per-user broadcaster.
func (f *LiveFeed) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.users.Clear()
	return nil
}
