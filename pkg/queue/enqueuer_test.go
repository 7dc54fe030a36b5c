package queue_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/posnotify/pkg/queue"
)

// Mock repository for enqueuer tests
type mockEnqueuerRepo struct {
	createFunc func(ctx context.Context, task *queue.Task) error
	tasks      []*queue.Task
}

func (m *mockEnqueuerRepo) CreateTask(ctx context.Context, task *queue.Task) error {
	if m.createFunc != nil {
		return m.createFunc(ctx, task)
	}
	m.tasks = append(m.tasks, task)
	return nil
}

type enqueueTestPayload struct {
	Message string `json:"message"`
	Value   int    `json:"value"`
}

// Type that cannot be marshaled to JSON
type unmarshalablePayload struct {
	Ch chan int
}

func TestEnqueuer_NewEnqueuer(t *testing.T) {
	t.Parallel()

	t.Run("successful creation", func(t *testing.T) {
		t.Parallel()

		enqueuer, err := queue.NewEnqueuer(&mockEnqueuerRepo{})
		require.NoError(t, err)
		require.NotNil(t, enqueuer)
	})

	t.Run("nil repository error", func(t *testing.T) {
		t.Parallel()

		enqueuer, err := queue.NewEnqueuer(nil)
		assert.ErrorIs(t, err, queue.ErrRepositoryNil)
		assert.Nil(t, enqueuer)
	})
}

func TestEnqueuer_Enqueue(t *testing.T) {
	t.Parallel()

	t.Run("defaults", func(t *testing.T) {
		t.Parallel()

		repo := &mockEnqueuerRepo{}
		enqueuer, err := queue.NewEnqueuer(repo)
		require.NoError(t, err)

		before := time.Now()
		id, err := enqueuer.Enqueue(context.Background(), enqueueTestPayload{Message: "hello", Value: 1})
		require.NoError(t, err)
		require.Len(t, repo.tasks, 1)

		task := repo.tasks[0]
		assert.Equal(t, id, task.ID)
		assert.NotEqual(t, uuid.Nil, task.ID)
		assert.Equal(t, queue.DefaultQueueName, task.Queue)
		assert.Equal(t, queue.TaskTypeOneTime, task.TaskType)
		assert.Equal(t, "queue_test.enqueueTestPayload", task.TaskName)
		assert.Equal(t, queue.TaskStatusPending, task.Status)
		assert.Equal(t, queue.PriorityDefault, task.Priority)
		assert.Equal(t, int8(0), task.Attempts)
		assert.Equal(t, int8(3), task.MaxAttempts)
		assert.Equal(t, queue.ExponentialBackoff(30*time.Second), task.Backoff)
		assert.False(t, task.ScheduledAt.Before(before))

		var decoded enqueueTestPayload
		require.NoError(t, json.Unmarshal(task.Payload, &decoded))
		assert.Equal(t, "hello", decoded.Message)
	})

	t.Run("options override defaults", func(t *testing.T) {
		t.Parallel()

		repo := &mockEnqueuerRepo{}
		enqueuer, err := queue.NewEnqueuer(repo,
			queue.WithDefaultQueue("notifications"),
			queue.WithDefaultPriority(queue.PriorityLow),
			queue.WithDefaultBackoff(queue.FixedBackoff(time.Second)),
		)
		require.NoError(t, err)

		taskID := uuid.New()
		at := time.Now().Add(time.Hour)
		_, err = enqueuer.Enqueue(context.Background(), enqueueTestPayload{},
			queue.WithTaskID(taskID),
			queue.WithQueue("sms"),
			queue.WithPriority(queue.PriorityCritical),
			queue.WithMaxAttempts(2),
			queue.WithBackoff(queue.FixedBackoff(5*time.Second)),
			queue.WithScheduledAt(at),
			queue.WithTaskName("notify.sms"),
		)
		require.NoError(t, err)
		require.Len(t, repo.tasks, 1)

		task := repo.tasks[0]
		assert.Equal(t, taskID, task.ID)
		assert.Equal(t, "sms", task.Queue)
		assert.Equal(t, queue.PriorityCritical, task.Priority)
		assert.Equal(t, int8(2), task.MaxAttempts)
		assert.Equal(t, queue.FixedBackoff(5*time.Second), task.Backoff)
		assert.True(t, task.ScheduledAt.Equal(at))
		assert.Equal(t, "notify.sms", task.TaskName)
	})

	t.Run("enqueuer defaults apply", func(t *testing.T) {
		t.Parallel()

		repo := &mockEnqueuerRepo{}
		enqueuer, err := queue.NewEnqueuer(repo,
			queue.WithDefaultQueue("notifications"),
			queue.WithDefaultPriority(queue.PriorityLow),
		)
		require.NoError(t, err)

		_, err = enqueuer.Enqueue(context.Background(), enqueueTestPayload{})
		require.NoError(t, err)
		assert.Equal(t, "notifications", repo.tasks[0].Queue)
		assert.Equal(t, queue.PriorityLow, repo.tasks[0].Priority)
	})

	t.Run("delay", func(t *testing.T) {
		t.Parallel()

		repo := &mockEnqueuerRepo{}
		enqueuer, err := queue.NewEnqueuer(repo)
		require.NoError(t, err)

		before := time.Now()
		_, err = enqueuer.Enqueue(context.Background(), enqueueTestPayload{}, queue.WithDelay(10*time.Minute))
		require.NoError(t, err)
		assert.False(t, repo.tasks[0].ScheduledAt.Before(before.Add(10*time.Minute)))
	})

	t.Run("max attempts out of range is ignored", func(t *testing.T) {
		t.Parallel()

		repo := &mockEnqueuerRepo{}
		enqueuer, err := queue.NewEnqueuer(repo)
		require.NoError(t, err)

		_, err = enqueuer.Enqueue(context.Background(), enqueueTestPayload{}, queue.WithMaxAttempts(0))
		require.NoError(t, err)
		_, err = enqueuer.Enqueue(context.Background(), enqueueTestPayload{}, queue.WithMaxAttempts(11))
		require.NoError(t, err)
		assert.Equal(t, int8(3), repo.tasks[0].MaxAttempts)
		assert.Equal(t, int8(3), repo.tasks[1].MaxAttempts)
	})

	t.Run("nil payload", func(t *testing.T) {
		t.Parallel()

		enqueuer, err := queue.NewEnqueuer(&mockEnqueuerRepo{})
		require.NoError(t, err)

		_, err = enqueuer.Enqueue(context.Background(), nil)
		assert.ErrorIs(t, err, queue.ErrPayloadNil)
	})

	t.Run("invalid priority", func(t *testing.T) {
		t.Parallel()

		enqueuer, err := queue.NewEnqueuer(&mockEnqueuerRepo{})
		require.NoError(t, err)

		_, err = enqueuer.Enqueue(context.Background(), enqueueTestPayload{}, queue.WithPriority(0))
		assert.ErrorIs(t, err, queue.ErrInvalidPriority)
	})

	t.Run("unmarshalable payload", func(t *testing.T) {
		t.Parallel()

		repo := &mockEnqueuerRepo{}
		enqueuer, err := queue.NewEnqueuer(repo)
		require.NoError(t, err)

		_, err = enqueuer.Enqueue(context.Background(), unmarshalablePayload{Ch: make(chan int)})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to marshal payload")
		assert.Empty(t, repo.tasks)
	})

	t.Run("repository error is wrapped", func(t *testing.T) {
		t.Parallel()

		repoErr := errors.New("storage down")
		enqueuer, err := queue.NewEnqueuer(&mockEnqueuerRepo{
			createFunc: func(ctx context.Context, task *queue.Task) error { return repoErr },
		})
		require.NoError(t, err)

		_, err = enqueuer.Enqueue(context.Background(), enqueueTestPayload{})
		assert.ErrorIs(t, err, repoErr)
	})

	t.Run("same task id twice is a duplicate", func(t *testing.T) {
		t.Parallel()

		storage := queue.NewMemoryStorage()
		t.Cleanup(func() { _ = storage.Close() })

		enqueuer, err := queue.NewEnqueuer(storage)
		require.NoError(t, err)

		taskID := uuid.New()
		_, err = enqueuer.Enqueue(context.Background(), enqueueTestPayload{}, queue.WithTaskID(taskID))
		require.NoError(t, err)

		_, err = enqueuer.Enqueue(context.Background(), enqueueTestPayload{}, queue.WithTaskID(taskID))
		assert.ErrorIs(t, err, queue.ErrDuplicateTask)
	})
}
