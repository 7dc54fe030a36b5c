package queue

import (
	"fmt"
	"time"
)

// BackoffKind selects how the delay between attempts grows.
type BackoffKind string

const (
	BackoffFixed       BackoffKind = "fixed"
	BackoffExponential BackoffKind = "exponential"
)

// maxBackoff caps exponential growth so a misconfigured policy cannot park a task for days.
const maxBackoff = time.Hour

// Backoff describes the delay applied before a failed task is retried.
type Backoff struct {
	Kind  BackoffKind   `json:"kind"`
	Delay time.Duration `json:"delay"`
}

// FixedBackoff waits the same delay before every retry.
func FixedBackoff(d time.Duration) Backoff {
	return Backoff{Kind: BackoffFixed, Delay: d}
}

// ExponentialBackoff doubles the delay after each failed attempt, starting at base.
func ExponentialBackoff(base time.Duration) Backoff {
	return Backoff{Kind: BackoffExponential, Delay: base}
}

// Next returns the delay before the retry that follows failedAttempts failures.
// The first retry (failedAttempts == 1) waits exactly Delay for both kinds.
func (b Backoff) Next(failedAttempts int) time.Duration {
	if b.Delay <= 0 || failedAttempts < 1 {
		return 0
	}

	switch b.Kind {
	case BackoffExponential:
		d := b.Delay
		for i := 1; i < failedAttempts; i++ {
			d *= 2
			if d >= maxBackoff {
				return maxBackoff
			}
		}
		return d
	default:
		return b.Delay
	}
}

func (b Backoff) String() string {
	if b.Kind == "" {
		return "none"
	}
	return fmt.Sprintf("%s(%v)", b.Kind, b.Delay)
}
