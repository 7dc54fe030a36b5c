package queue_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/dmitrymomot/posnotify/pkg/queue"
)

func TestPriority_Valid(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		priority queue.Priority
		valid    bool
	}{
		{"critical", queue.PriorityCritical, true},
		{"high", queue.PriorityHigh, true},
		{"medium", queue.PriorityMedium, true},
		{"low", queue.PriorityLow, true},
		{"max", queue.PriorityMax, true},
		{"custom", queue.Priority(37), true},
		{"zero", queue.Priority(0), false},
		{"negative", queue.Priority(-1), false},
		{"above max", queue.Priority(101), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.valid, tt.priority.Valid())
		})
	}
}

func TestPriority_Ordering(t *testing.T) {
	t.Parallel()

	assert.True(t, queue.PriorityCritical.Before(queue.PriorityHigh))
	assert.True(t, queue.PriorityHigh.Before(queue.PriorityMedium))
	assert.True(t, queue.PriorityMedium.Before(queue.PriorityLow))
	assert.False(t, queue.PriorityLow.Before(queue.PriorityLow))
	assert.Equal(t, queue.PriorityMedium, queue.PriorityDefault)
}

func TestTask_Attempts(t *testing.T) {
	t.Parallel()

	task := &queue.Task{MaxAttempts: 3}
	assert.Equal(t, 1, task.Attempt())
	assert.False(t, task.LastAttempt())

	task.Attempts = 2
	assert.Equal(t, 3, task.Attempt())
	assert.True(t, task.LastAttempt())

	single := &queue.Task{MaxAttempts: 1}
	assert.True(t, single.LastAttempt())
}

func TestBackoff_Next(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		backoff queue.Backoff
		failed  int
		want    time.Duration
	}{
		{"exponential first retry", queue.ExponentialBackoff(2 * time.Second), 1, 2 * time.Second},
		{"exponential second retry", queue.ExponentialBackoff(2 * time.Second), 2, 4 * time.Second},
		{"exponential third retry", queue.ExponentialBackoff(time.Second), 3, 4 * time.Second},
		{"exponential capped", queue.ExponentialBackoff(time.Minute), 20, time.Hour},
		{"fixed", queue.FixedBackoff(5 * time.Second), 1, 5 * time.Second},
		{"fixed later", queue.FixedBackoff(5 * time.Second), 4, 5 * time.Second},
		{"no failures", queue.ExponentialBackoff(time.Second), 0, 0},
		{"zero delay", queue.Backoff{}, 2, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, tt.backoff.Next(tt.failed))
		})
	}
}

func TestTaskInfo_LastAttempt(t *testing.T) {
	t.Parallel()

	assert.False(t, queue.TaskInfo{Attempt: 1, MaxAttempts: 2}.LastAttempt())
	assert.True(t, queue.TaskInfo{Attempt: 2, MaxAttempts: 2}.LastAttempt())
}

func TestTaskStatus_Constants(t *testing.T) {
	t.Parallel()

	assert.Equal(t, queue.TaskStatus("pending"), queue.TaskStatusPending)
	assert.Equal(t, queue.TaskStatus("processing"), queue.TaskStatusProcessing)
	assert.Equal(t, queue.TaskStatus("completed"), queue.TaskStatusCompleted)
	assert.Equal(t, queue.TaskStatus("failed"), queue.TaskStatusFailed)
	assert.Equal(t, "default", queue.DefaultQueueName)
}

func TestTaskInfo_RetryAt(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	info := queue.TaskInfo{Attempt: 2, MaxAttempts: 3, Backoff: queue.ExponentialBackoff(2 * time.Second)}
	assert.Equal(t, now.Add(4*time.Second), info.RetryAt(now))

	fixed := queue.TaskInfo{Attempt: 1, MaxAttempts: 2, Backoff: queue.FixedBackoff(5 * time.Second)}
	assert.Equal(t, now.Add(5*time.Second), fixed.RetryAt(now))
}
