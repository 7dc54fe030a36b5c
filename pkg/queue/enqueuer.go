package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// EnqueuerRepository stores new tasks.
type EnqueuerRepository interface {
	// CreateTask returns ErrDuplicateTask if the ID is taken.
	CreateTask(ctx context.Context, task *Task) error
}

// Enqueuer creates one-time tasks from JSON-encodable payloads.
type Enqueuer struct {
	repo     EnqueuerRepository
	defaults Task
	now      func() time.Time
}

// EnqueuerOption changes the defaults applied to every enqueued task.
type EnqueuerOption func(*Task)

func WithDefaultQueue(queue string) EnqueuerOption {
	return func(t *Task) {
		if queue != "" {
			t.Queue = queue
		}
	}
}

func WithDefaultPriority(p Priority) EnqueuerOption {
	return func(t *Task) {
		if p.Valid() {
			t.Priority = p
		}
	}
}

func WithDefaultBackoff(b Backoff) EnqueuerOption {
	return func(t *Task) { t.Backoff = b }
}

func NewEnqueuer(repo EnqueuerRepository, opts ...EnqueuerOption) (*Enqueuer, error) {
	if repo == nil {
		return nil, ErrRepositoryNil
	}
	e := &Enqueuer{
		repo: repo,
		defaults: Task{
			Queue:       DefaultQueueName,
			TaskType:    TaskTypeOneTime,
			Status:      TaskStatusPending,
			Priority:    PriorityDefault,
			MaxAttempts: 3,
			Backoff:     ExponentialBackoff(30 * time.Second),
		},
		now: time.Now,
	}
	for _, opt := range opts {
		opt(&e.defaults)
	}
	return e, nil
}

type enqueueOptions struct {
	task  Task
	delay time.Duration
	at    *time.Time
}

// EnqueueOption adjusts a single task.
type EnqueueOption func(*enqueueOptions)

// WithTaskID fixes the task ID so that a repeated enqueue fails with
// ErrDuplicateTask instead of running the work twice.
func WithTaskID(id uuid.UUID) EnqueueOption {
	return func(o *enqueueOptions) { o.task.ID = id }
}

func WithQueue(queue string) EnqueueOption {
	return func(o *enqueueOptions) {
		if queue != "" {
			o.task.Queue = queue
		}
	}
}

// WithPriority is validated by Enqueue, which fails with ErrInvalidPriority.
func WithPriority(p Priority) EnqueueOption {
	return func(o *enqueueOptions) { o.task.Priority = p }
}

// WithMaxAttempts counts the first attempt. Values outside 1..10 are ignored.
func WithMaxAttempts(n int8) EnqueueOption {
	return func(o *enqueueOptions) {
		if n >= 1 && n <= 10 {
			o.task.MaxAttempts = n
		}
	}
}

func WithBackoff(b Backoff) EnqueueOption {
	return func(o *enqueueOptions) { o.task.Backoff = b }
}

func WithDelay(d time.Duration) EnqueueOption {
	return func(o *enqueueOptions) {
		if d > 0 {
			o.delay = d
		}
	}
}

// WithScheduledAt takes precedence over WithDelay.
func WithScheduledAt(at time.Time) EnqueueOption {
	return func(o *enqueueOptions) { o.at = &at }
}

// WithTaskName overrides the name derived from the payload type.
func WithTaskName(name string) EnqueueOption {
	return func(o *enqueueOptions) {
		if name != "" {
			o.task.TaskName = name
		}
	}
}

// Enqueue stores payload as a pending task and returns its ID.
func (e *Enqueuer) Enqueue(ctx context.Context, payload any, opts ...EnqueueOption) (uuid.UUID, error) {
	if payload == nil {
		return uuid.Nil, ErrPayloadNil
	}

	o := enqueueOptions{task: e.defaults}
	for _, opt := range opts {
		opt(&o)
	}
	task := o.task
	if !task.Priority.Valid() {
		return uuid.Nil, ErrInvalidPriority
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to marshal payload of type %T: %w", payload, err)
	}
	task.Payload = raw
	if task.TaskName == "" {
		task.TaskName = payloadName(payload)
	}
	if task.ID == uuid.Nil {
		task.ID = uuid.New()
	}

	task.CreatedAt = e.now()
	switch {
	case o.at != nil:
		task.ScheduledAt = *o.at
	default:
		task.ScheduledAt = task.CreatedAt.Add(o.delay)
	}

	if err := e.repo.CreateTask(ctx, &task); err != nil {
		return task.ID, fmt.Errorf("failed to create task %q in queue %q: %w", task.TaskName, task.Queue, err)
	}
	return task.ID, nil
}
