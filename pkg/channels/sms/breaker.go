package sms

import (
	"sync"
	"time"
)

type breakerState int

const (
	breakerClosed breakerState = iota
	breakerOpen
	breakerHalfOpen
)

func (s breakerState) String() string {
	switch s {
	case breakerClosed:
		return "closed"
	case breakerOpen:
		return "open"
	case breakerHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// breaker stops calling the gateway after consecutive transport failures and
// lets a single trial request through once recovery has elapsed.
type breaker struct {
	mu sync.Mutex

	threshold int
	recovery  time.Duration
	now       func() time.Time

	state       breakerState
	failures    int
	lastFailure time.Time
	probing     bool
}

func newBreaker(threshold int, recovery time.Duration, now func() time.Time) *breaker {
	if threshold <= 0 {
		threshold = 5
	}
	if recovery <= 0 {
		recovery = 30 * time.Second
	}
	return &breaker{threshold: threshold, recovery: recovery, now: now}
}

func (b *breaker) allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case breakerClosed:
		return true
	case breakerOpen:
		if b.now().Sub(b.lastFailure) < b.recovery {
			return false
		}
		b.state = breakerHalfOpen
		b.probing = true
		return true
	default:
		// One trial request at a time while half-open.
		if b.probing {
			return false
		}
		b.probing = true
		return true
	}
}

func (b *breaker) success() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.state = breakerClosed
	b.failures = 0
	b.probing = false
}

func (b *breaker) failure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.lastFailure = b.now()
	b.probing = false
	if b.state == breakerHalfOpen {
		b.state = breakerOpen
		return
	}
	b.failures++
	if b.failures >= b.threshold {
		b.state = breakerOpen
	}
}

func (b *breaker) current() breakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}
