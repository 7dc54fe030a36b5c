package broadcast

import (
	"context"
	"sync"
)

// MemoryBroadcaster is an in-process Broadcaster. A subscriber whose buffer
// is full when a message arrives is dropped, so one stalled client never
// delays the others.
type MemoryBroadcaster[T any] struct {
	mu         sync.RWMutex
	subs       map[*subscriber[T]]struct{}
	bufferSize int
	closed     bool
	done       chan struct{}
	watchers   sync.WaitGroup
}

// NewMemoryBroadcaster creates a MemoryBroadcaster whose subscribers buffer
// bufferSize messages (at least one).
func NewMemoryBroadcaster[T any](bufferSize int) *MemoryBroadcaster[T] {
	return &MemoryBroadcaster[T]{
		subs:       make(map[*subscriber[T]]struct{}),
		bufferSize: max(bufferSize, 1),
		done:       make(chan struct{}),
	}
}

func (b *MemoryBroadcaster[T]) Subscribe(ctx context.Context) Subscriber[T] {
	sub := &subscriber[T]{ch: make(chan Message[T], b.bufferSize)}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		_ = sub.Close()
		return sub
	}
	b.subs[sub] = struct{}{}

	if ctx.Done() != nil {
		b.watchers.Add(1)
		go func() {
			defer b.watchers.Done()
			select {
			case <-ctx.Done():
				b.remove(sub)
			case <-b.done:
			}
		}()
	}
	return sub
}

func (b *MemoryBroadcaster[T]) Broadcast(_ context.Context, msg Message[T]) error {
	b.mu.RLock()
	var slow []*subscriber[T]
	if !b.closed {
		for sub := range b.subs {
			if !sub.offer(msg) {
				slow = append(slow, sub)
			}
		}
	}
	b.mu.RUnlock()

	for _, sub := range slow {
		b.remove(sub)
	}
	return nil
}

// Len returns the number of live subscribers.
func (b *MemoryBroadcaster[T]) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

func (b *MemoryBroadcaster[T]) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	close(b.done)
	for sub := range b.subs {
		_ = sub.Close()
	}
	clear(b.subs)
	b.mu.Unlock()

	b.watchers.Wait()
	return nil
}

func (b *MemoryBroadcaster[T]) remove(sub *subscriber[T]) {
	b.mu.Lock()
	delete(b.subs, sub)
	b.mu.Unlock()
	_ = sub.Close()
}

type subscriber[T any] struct {
	mu     sync.RWMutex
	ch     chan Message[T]
	closed bool
}

func (s *subscriber[T]) Receive(context.Context) <-chan Message[T] {
	return s.ch
}

func (s *subscriber[T]) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.ch)
	}
	return nil
}

// offer delivers msg without blocking. It reports false when the subscriber
// is closed or its buffer is full.
func (s *subscriber[T]) offer(msg Message[T]) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return false
	}
	select {
	case s.ch <- msg:
		return true
	default:
		return false
	}
}
