package broadcast

import "context"

// Message carries one broadcast value.
type Message[T any] struct {
	Data T
}

// Subscriber is one consumer of a Broadcaster.
type Subscriber[T any] interface {
	// Receive returns the delivery channel. It is closed when the
	// subscription ends.
	Receive(ctx context.Context) <-chan Message[T]

	// Close ends the subscription. It is idempotent.
	Close() error
}

// Broadcaster fans messages out to its subscribers. Implementations drop
// messages for consumers that cannot keep up instead of blocking the sender.
type Broadcaster[T any] interface {
	// Subscribe registers a subscriber that lives until ctx is done, the
	// subscriber is closed or the broadcaster is closed.
	Subscribe(ctx context.Context) Subscriber[T]

	// Broadcast offers msg to every current subscriber.
	Broadcast(ctx context.Context, msg Message[T]) error

	// Close ends every subscription. Later subscriptions are born closed and
	// later broadcasts are no-ops.
	Close() error
}
