package queue

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// TaskInfo describes the task a handler is currently executing.
type TaskInfo struct {
	ID          uuid.UUID
	Name        string
	Queue       string
	Attempt     int // 1-based
	MaxAttempts int
	Backoff     Backoff
}

// LastAttempt reports whether a failure of this attempt is terminal.
func (i TaskInfo) LastAttempt() bool {
	return i.Attempt >= i.MaxAttempts
}

// RetryAt is when the worker will run the next attempt if this one fails at now.
func (i TaskInfo) RetryAt(now time.Time) time.Time {
	return now.Add(i.Backoff.Next(i.Attempt))
}

type taskInfoKey struct{}

// WithTaskInfo stores task metadata in ctx for the handler.
func WithTaskInfo(ctx context.Context, info TaskInfo) context.Context {
	return context.WithValue(ctx, taskInfoKey{}, info)
}

// TaskInfoFromContext returns the metadata of the task being handled.
// ok is false outside of a worker.
func TaskInfoFromContext(ctx context.Context) (TaskInfo, bool) {
	info, ok := ctx.Value(taskInfoKey{}).(TaskInfo)
	return info, ok
}
