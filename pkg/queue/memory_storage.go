package queue

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStorage keeps tasks in process. It implements every repository
// interface of the package and is meant for tests and single-process runs.
// Locks that lapse are released lazily, on the next call that reads tasks.
type MemoryStorage struct {
	mu    sync.Mutex
	tasks map[uuid.UUID]*Task
	dlq   []TasksDlq
	now   func() time.Time
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{tasks: make(map[uuid.UUID]*Task), now: time.Now}
}

// Close exists for parity with RedisStorage.
func (ms *MemoryStorage) Close() error { return nil }

func (ms *MemoryStorage) CreateTask(_ context.Context, task *Task) error {
	if task == nil {
		return errors.New("task cannot be nil")
	}
	ms.mu.Lock()
	defer ms.mu.Unlock()
	if _, ok := ms.tasks[task.ID]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateTask, task.ID)
	}
	stored := *task
	ms.tasks[task.ID] = &stored
	return nil
}

func (ms *MemoryStorage) GetTask(_ context.Context, taskID uuid.UUID) (*Task, error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	ms.releaseExpired()

	task, ok := ms.tasks[taskID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrTaskNotFound, taskID)
	}
	out := *task
	return &out, nil
}

func (ms *MemoryStorage) GetPendingTaskByName(_ context.Context, taskName string) (*Task, error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	ms.releaseExpired()

	for _, task := range ms.tasks {
		if task.Status == TaskStatusPending && task.TaskName == taskName {
			out := *task
			return &out, nil
		}
	}
	return nil, ErrTaskNotFound
}

// DLQ returns the dead-lettered tasks in the order they were buried.
func (ms *MemoryStorage) DLQ() []TasksDlq {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	return slices.Clone(ms.dlq)
}

// ClaimTask locks the ready task with the lowest priority weight, breaking
// ties by scheduled time.
func (ms *MemoryStorage) ClaimTask(_ context.Context, workerID uuid.UUID, queues []string, lockDuration time.Duration) (*Task, error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	ms.releaseExpired()

	now := ms.now()
	var best *Task
	for _, task := range ms.tasks {
		if task.Status != TaskStatusPending || task.ScheduledAt.After(now) || !slices.Contains(queues, task.Queue) {
			continue
		}
		if best == nil || compareReady(task, best) < 0 {
			best = task
		}
	}
	if best == nil {
		return nil, ErrNoTaskToClaim
	}

	lockedUntil := now.Add(lockDuration)
	best.Status = TaskStatusProcessing
	best.LockedUntil = &lockedUntil
	best.LockedBy = &workerID
	out := *best
	return &out, nil
}

func compareReady(a, b *Task) int {
	return cmp.Or(cmp.Compare(a.Priority, b.Priority), a.ScheduledAt.Compare(b.ScheduledAt))
}

func (ms *MemoryStorage) CompleteTask(_ context.Context, taskID uuid.UUID) error {
	return ms.settle(taskID, func(task *Task, now time.Time) {
		task.Status = TaskStatusCompleted
		task.ProcessedAt = &now
	})
}

func (ms *MemoryStorage) RetryTask(_ context.Context, taskID uuid.UUID, errorMsg string, retryAt time.Time) error {
	return ms.settle(taskID, func(task *Task, _ time.Time) {
		task.Attempts++
		task.Error = &errorMsg
		task.Status = TaskStatusPending
		task.ScheduledAt = retryAt
	})
}

func (ms *MemoryStorage) FailTask(_ context.Context, taskID uuid.UUID, errorMsg string) error {
	return ms.settle(taskID, func(task *Task, now time.Time) {
		task.Attempts++
		task.Error = &errorMsg
		task.Status = TaskStatusFailed
		task.ProcessedAt = &now
	})
}

// settle applies fn to a processing task and drops its lock.
func (ms *MemoryStorage) settle(taskID uuid.UUID, fn func(*Task, time.Time)) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	task, err := ms.processing(taskID)
	if err != nil {
		return err
	}
	fn(task, ms.now())
	task.LockedUntil = nil
	task.LockedBy = nil
	return nil
}

func (ms *MemoryStorage) MoveToDLQ(_ context.Context, taskID uuid.UUID) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	task, ok := ms.tasks[taskID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrTaskNotFound, taskID)
	}
	now := ms.now()
	entry := TasksDlq{
		ID:        uuid.New(),
		TaskID:    task.ID,
		Queue:     task.Queue,
		TaskType:  task.TaskType,
		TaskName:  task.TaskName,
		Payload:   task.Payload,
		Priority:  task.Priority,
		Attempts:  task.Attempts,
		FailedAt:  now,
		CreatedAt: now,
	}
	if task.Error != nil {
		entry.Error = *task.Error
	}
	ms.dlq = append(ms.dlq, entry)
	delete(ms.tasks, taskID)
	return nil
}

func (ms *MemoryStorage) ExtendLock(_ context.Context, taskID uuid.UUID, duration time.Duration) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	task, err := ms.processing(taskID)
	if err != nil {
		return err
	}
	lockedUntil := ms.now().Add(duration)
	task.LockedUntil = &lockedUntil
	return nil
}

func (ms *MemoryStorage) processing(taskID uuid.UUID) (*Task, error) {
	task, ok := ms.tasks[taskID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrTaskNotFound, taskID)
	}
	if task.Status != TaskStatusProcessing {
		return nil, fmt.Errorf("task %s is %s, not processing", taskID, task.Status)
	}
	return task, nil
}

// releaseExpired returns tasks whose worker let the lock lapse to pending.
// The attempt counter is kept: the attempt never reported an outcome.
func (ms *MemoryStorage) releaseExpired() {
	now := ms.now()
	for _, task := range ms.tasks {
		if task.Status == TaskStatusProcessing && task.LockedUntil != nil && task.LockedUntil.Before(now) {
			task.Status = TaskStatusPending
			task.LockedUntil = nil
			task.LockedBy = nil
		}
	}
}
