package queue

import (
	"time"

	"github.com/google/uuid"
)

// DefaultQueueName is the default queue name used when no queue is specified
const DefaultQueueName = "default"

// TaskType represents the type of task
type TaskType string

const (
	TaskTypeOneTime  TaskType = "one-time"
	TaskTypePeriodic TaskType = "periodic"
)

// TaskStatus represents the status of a task
type TaskStatus string

const (
	TaskStatusPending    TaskStatus = "pending"
	TaskStatusProcessing TaskStatus = "processing"
	TaskStatusCompleted  TaskStatus = "completed"
	TaskStatusFailed     TaskStatus = "failed"
)

// Priority is a dequeue weight: the lower the value, the sooner the task is claimed.
type Priority int8

// Priority constants
const (
	PriorityCritical Priority = 1
	PriorityHigh     Priority = 2
	PriorityMedium   Priority = 3
	PriorityLow      Priority = 4
	PriorityDefault  Priority = PriorityMedium

	PriorityMin = PriorityCritical
	PriorityMax Priority = 100
)

// Valid checks if the priority is within valid range
func (p Priority) Valid() bool {
	return p >= PriorityMin && p <= PriorityMax
}

// Before reports whether p must be dequeued ahead of other.
func (p Priority) Before(other Priority) bool {
	return p < other
}

// Task represents a task in the queue
type Task struct {
	ID          uuid.UUID  `json:"id"`
	Queue       string     `json:"queue"`
	TaskType    TaskType   `json:"task_type"`
	TaskName    string     `json:"task_name"`
	Payload     []byte     `json:"payload,omitempty"`
	Status      TaskStatus `json:"status"`
	Priority    Priority   `json:"priority"`
	Attempts    int8       `json:"attempts"`     // failed attempts so far
	MaxAttempts int8       `json:"max_attempts"` // total attempts allowed, including the first
	Backoff     Backoff    `json:"backoff"`
	ScheduledAt time.Time  `json:"scheduled_at"`
	LockedUntil *time.Time `json:"locked_until,omitempty"`
	LockedBy    *uuid.UUID `json:"locked_by,omitempty"`
	ProcessedAt *time.Time `json:"processed_at,omitempty"`
	Error       *string    `json:"error,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

// Attempt returns the 1-based number of the attempt a claimed task is on.
func (t *Task) Attempt() int {
	return int(t.Attempts) + 1
}

// LastAttempt reports whether the current attempt is the final one allowed.
func (t *Task) LastAttempt() bool {
	return t.Attempt() >= int(t.MaxAttempts)
}

// TasksDlq represents a task in the dead letter queue
type TasksDlq struct {
	ID        uuid.UUID `json:"id"`
	TaskID    uuid.UUID `json:"task_id"`
	Queue     string    `json:"queue"`
	TaskType  TaskType  `json:"task_type"`
	TaskName  string    `json:"task_name"`
	Payload   []byte    `json:"payload,omitempty"`
	Priority  Priority  `json:"priority"`
	Error     string    `json:"error"`
	Attempts  int8      `json:"attempts"`
	FailedAt  time.Time `json:"failed_at"`
	CreatedAt time.Time `json:"created_at"`
}
