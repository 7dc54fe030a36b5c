package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Key layout under the configured prefix:
//
//	<p>:task:<id>        task JSON
//	<p>:meta:<id>        hash {queue, priority, scheduled} read by the claim script
//	<p>:ready:<queue>    zset, score = priority*1e13 + scheduled unix ms
//	<p>:delayed:<queue>  zset, score = scheduled unix ms
//	<p>:processing       zset, score = lock deadline unix ms
//	<p>:names:<name>     set of task ids carrying a task name
//	<p>:dlq              list of TasksDlq JSON, newest first
//
// The claim script touches keys derived from the prefix, so every key must live
// on one node. Use a hash-tagged prefix such as "{posnotify}:queue" on a cluster.
const priorityWeight = 1e13

// claimScript recovers expired locks, promotes due delayed tasks and pops the
// best ready task across the requested queues in one atomic step.
var claimScript = redis.NewScript(`
local prefix = ARGV[1]
local now = tonumber(ARGV[2])
local lockUntil = tonumber(ARGV[3])
local weight = tonumber(ARGV[4])

local expired = redis.call('ZRANGEBYSCORE', prefix .. ':processing', '-inf', now, 'LIMIT', 0, 100)
for _, id in ipairs(expired) do
  redis.call('ZREM', prefix .. ':processing', id)
  local m = redis.call('HMGET', prefix .. ':meta:' .. id, 'queue', 'priority', 'scheduled')
  if m[1] then
    redis.call('ZADD', prefix .. ':ready:' .. m[1], tonumber(m[2]) * weight + tonumber(m[3]), id)
  end
end

local best, bestScore, bestQueue = nil, nil, nil
for i = 5, #ARGV do
  local q = ARGV[i]
  local due = redis.call('ZRANGEBYSCORE', prefix .. ':delayed:' .. q, '-inf', now, 'LIMIT', 0, 100)
  for _, id in ipairs(due) do
    redis.call('ZREM', prefix .. ':delayed:' .. q, id)
    local m = redis.call('HMGET', prefix .. ':meta:' .. id, 'priority', 'scheduled')
    if m[1] then
      redis.call('ZADD', prefix .. ':ready:' .. q, tonumber(m[1]) * weight + tonumber(m[2]), id)
    end
  end
  local head = redis.call('ZRANGE', prefix .. ':ready:' .. q, 0, 0, 'WITHSCORES')
  if head[1] and (bestScore == nil or tonumber(head[2]) < bestScore) then
    best, bestScore, bestQueue = head[1], tonumber(head[2]), q
  end
end

if not best then
  return false
end
redis.call('ZREM', prefix .. ':ready:' .. bestQueue, best)
redis.call('ZADD', prefix .. ':processing', lockUntil, best)
return best
`)

// RedisStorage implements the queue repository interfaces on top of Redis.
type RedisStorage struct {
	client    redis.UniversalClient
	prefix    string
	retention time.Duration
}

// RedisStorageOption configures a RedisStorage.
type RedisStorageOption func(*RedisStorage)

// WithKeyPrefix sets the key namespace.
func WithKeyPrefix(prefix string) RedisStorageOption {
	return func(s *RedisStorage) {
		if prefix != "" {
			s.prefix = prefix
		}
	}
}

// WithRetention sets how long completed and failed tasks are kept.
func WithRetention(d time.Duration) RedisStorageOption {
	return func(s *RedisStorage) {
		if d > 0 {
			s.retention = d
		}
	}
}

// NewRedisStorage creates a Redis-backed queue storage.
func NewRedisStorage(client redis.UniversalClient, opts ...RedisStorageOption) (*RedisStorage, error) {
	if client == nil {
		return nil, ErrRepositoryNil
	}
	s := &RedisStorage{
		client:    client,
		prefix:    "posnotify:queue",
		retention: 24 * time.Hour,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *RedisStorage) taskKey(id uuid.UUID) string { return s.prefix + ":task:" + id.String() }
func (s *RedisStorage) metaKey(id uuid.UUID) string { return s.prefix + ":meta:" + id.String() }
func (s *RedisStorage) readyKey(queue string) string { return s.prefix + ":ready:" + queue }
func (s *RedisStorage) delayKey(queue string) string { return s.prefix + ":delayed:" + queue }
func (s *RedisStorage) namesKey(name string) string { return s.prefix + ":names:" + name }
func (s *RedisStorage) processingKey() string { return s.prefix + ":processing" }
func (s *RedisStorage) dlqKey() string { return s.prefix + ":dlq" }

func readyScore(p Priority, scheduledAt time.Time) float64 {
	return float64(p)*priorityWeight + float64(scheduledAt.UnixMilli())
}

// CreateTask implements EnqueuerRepository and SchedulerRepository
func (s *RedisStorage) CreateTask(ctx context.Context, task *Task) error {
	if task == nil {
		return errors.New("task cannot be nil")
	}

	data, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("failed to marshal task %s: %w", task.ID, err)
	}

	ok, err := s.client.SetNX(ctx, s.taskKey(task.ID), data, 0).Result()
	if err != nil {
		return fmt.Errorf("failed to store task %s: %w", task.ID, err)
	}
	if !ok {
		return fmt.Errorf("%w: %s", ErrDuplicateTask, task.ID)
	}

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, s.metaKey(task.ID),
			"queue", task.Queue,
			"priority", int(task.Priority),
			"scheduled", task.ScheduledAt.UnixMilli())
		pipe.SAdd(ctx, s.namesKey(task.TaskName), task.ID.String())
		s.schedule(ctx, pipe, task)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to index task %s: %w", task.ID, err)
	}
	return nil
}

// schedule places a pending task on the ready or delayed set of its queue.
func (s *RedisStorage) schedule(ctx context.Context, pipe redis.Pipeliner, task *Task) {
	if task.ScheduledAt.After(time.Now()) {
		pipe.ZAdd(ctx, s.delayKey(task.Queue), redis.Z{
			Score:  float64(task.ScheduledAt.UnixMilli()),
			Member: task.ID.String(),
		})
		return
	}
	pipe.ZAdd(ctx, s.readyKey(task.Queue), redis.Z{
		Score:  readyScore(task.Priority, task.ScheduledAt),
		Member: task.ID.String(),
	})
}

// GetTask loads a task by ID.
func (s *RedisStorage) GetTask(ctx context.Context, taskID uuid.UUID) (*Task, error) {
	data, err := s.client.Get(ctx, s.taskKey(taskID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("%w: %s", ErrTaskNotFound, taskID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load task %s: %w", taskID, err)
	}

	var task Task
	if err := json.Unmarshal(data, &task); err != nil {
		return nil, fmt.Errorf("failed to decode task %s: %w", taskID, err)
	}
	return &task, nil
}

func (s *RedisStorage) saveTask(ctx context.Context, pipe redis.Pipeliner, task *Task, ttl time.Duration) error {
	data, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("failed to marshal task %s: %w", task.ID, err)
	}
	pipe.Set(ctx, s.taskKey(task.ID), data, ttl)
	return nil
}

// GetPendingTaskByName implements SchedulerRepository
func (s *RedisStorage) GetPendingTaskByName(ctx context.Context, taskName string) (*Task, error) {
	ids, err := s.client.SMembers(ctx, s.namesKey(taskName)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks named %q: %w", taskName, err)
	}

	for _, raw := range ids {
		id, err := uuid.Parse(raw)
		if err != nil {
			continue
		}
		task, err := s.GetTask(ctx, id)
		if errors.Is(err, ErrTaskNotFound) {
			s.client.SRem(ctx, s.namesKey(taskName), raw)
			continue
		}
		if err != nil {
			return nil, err
		}
		if task.Status == TaskStatusPending {
			return task, nil
		}
	}
	return nil, ErrTaskNotFound
}

// ClaimTask implements WorkerRepository
func (s *RedisStorage) ClaimTask(ctx context.Context, workerID uuid.UUID, queues []string, lockDuration time.Duration) (*Task, error) {
	now := time.Now()
	lockUntil := now.Add(lockDuration)

	args := make([]any, 0, 4+len(queues))
	args = append(args, s.prefix, now.UnixMilli(), lockUntil.UnixMilli(), strconv.FormatFloat(priorityWeight, 'f', 0, 64))
	for _, q := range queues {
		args = append(args, q)
	}

	raw, err := claimScript.Run(ctx, s.client, []string{s.processingKey()}, args...).Text()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNoTaskToClaim
	}
	if err != nil {
		return nil, fmt.Errorf("failed to run claim script: %w", err)
	}

	id, err := uuid.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("claimed malformed task id %q: %w", raw, err)
	}

	task, err := s.GetTask(ctx, id)
	if err != nil {
		return nil, err
	}

	task.Status = TaskStatusProcessing
	task.LockedUntil = &lockUntil
	task.LockedBy = &workerID

	if _, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		return s.saveTask(ctx, pipe, task, 0)
	}); err != nil {
		return nil, fmt.Errorf("failed to mark task %s processing: %w", id, err)
	}
	return task, nil
}

// CompleteTask implements WorkerRepository
func (s *RedisStorage) CompleteTask(ctx context.Context, taskID uuid.UUID) error {
	task, err := s.GetTask(ctx, taskID)
	if err != nil {
		return err
	}
	if task.Status != TaskStatusProcessing {
		return fmt.Errorf("task %s is not in processing state", taskID)
	}

	now := time.Now()
	task.Status = TaskStatusCompleted
	task.ProcessedAt = &now
	task.LockedUntil = nil
	task.LockedBy = nil

	return s.finish(ctx, task)
}

// RetryTask implements WorkerRepository
func (s *RedisStorage) RetryTask(ctx context.Context, taskID uuid.UUID, errorMsg string, retryAt time.Time) error {
	task, err := s.GetTask(ctx, taskID)
	if err != nil {
		return err
	}
	if task.Status != TaskStatusProcessing {
		return fmt.Errorf("task %s is not in processing state", taskID)
	}

	task.Attempts++
	task.Error = &errorMsg
	task.Status = TaskStatusPending
	task.ScheduledAt = retryAt
	task.LockedUntil = nil
	task.LockedBy = nil

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		if err := s.saveTask(ctx, pipe, task, 0); err != nil {
			return err
		}
		pipe.ZRem(ctx, s.processingKey(), task.ID.String())
		pipe.HSet(ctx, s.metaKey(task.ID), "scheduled", retryAt.UnixMilli())
		s.schedule(ctx, pipe, task)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to reschedule task %s: %w", taskID, err)
	}
	return nil
}

// FailTask implements WorkerRepository
func (s *RedisStorage) FailTask(ctx context.Context, taskID uuid.UUID, errorMsg string) error {
	task, err := s.GetTask(ctx, taskID)
	if err != nil {
		return err
	}
	if task.Status != TaskStatusProcessing {
		return fmt.Errorf("task %s is not in processing state", taskID)
	}

	now := time.Now()
	task.Attempts++
	task.Error = &errorMsg
	task.Status = TaskStatusFailed
	task.ProcessedAt = &now
	task.LockedUntil = nil
	task.LockedBy = nil

	return s.finish(ctx, task)
}

// finish persists a terminal task with the retention TTL and drops it from every index.
func (s *RedisStorage) finish(ctx context.Context, task *Task) error {
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		if err := s.saveTask(ctx, pipe, task, s.retention); err != nil {
			return err
		}
		pipe.ZRem(ctx, s.processingKey(), task.ID.String())
		pipe.SRem(ctx, s.namesKey(task.TaskName), task.ID.String())
		pipe.Del(ctx, s.metaKey(task.ID))
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to finish task %s: %w", task.ID, err)
	}
	return nil
}

// MoveToDLQ implements WorkerRepository
func (s *RedisStorage) MoveToDLQ(ctx context.Context, taskID uuid.UUID) error {
	task, err := s.GetTask(ctx, taskID)
	if err != nil {
		return err
	}

	now := time.Now()
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

	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal dlq entry for task %s: %w", taskID, err)
	}

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.LPush(ctx, s.dlqKey(), data)
		pipe.Del(ctx, s.taskKey(task.ID), s.metaKey(task.ID))
		pipe.ZRem(ctx, s.processingKey(), task.ID.String())
		pipe.ZRem(ctx, s.readyKey(task.Queue), task.ID.String())
		pipe.ZRem(ctx, s.delayKey(task.Queue), task.ID.String())
		pipe.SRem(ctx, s.namesKey(task.TaskName), task.ID.String())
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to move task %s to DLQ: %w", taskID, err)
	}
	return nil
}

// DLQ returns up to limit dead letter entries, newest first.
func (s *RedisStorage) DLQ(ctx context.Context, limit int64) ([]TasksDlq, error) {
	if limit <= 0 {
		limit = 100
	}
	items, err := s.client.LRange(ctx, s.dlqKey(), 0, limit-1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read DLQ: %w", err)
	}

	out := make([]TasksDlq, 0, len(items))
	for _, item := range items {
		var entry TasksDlq
		if err := json.Unmarshal([]byte(item), &entry); err != nil {
			continue
		}
		out = append(out, entry)
	}
	return out, nil
}

// ExtendLock implements WorkerRepository
func (s *RedisStorage) ExtendLock(ctx context.Context, taskID uuid.UUID, duration time.Duration) error {
	task, err := s.GetTask(ctx, taskID)
	if err != nil {
		return err
	}
	if task.Status != TaskStatusProcessing {
		return fmt.Errorf("task %s is not in processing state", taskID)
	}

	lockUntil := time.Now().Add(duration)
	task.LockedUntil = &lockUntil

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		if err := s.saveTask(ctx, pipe, task, 0); err != nil {
			return err
		}
		pipe.ZAddXX(ctx, s.processingKey(), redis.Z{
			Score:  float64(lockUntil.UnixMilli()),
			Member: task.ID.String(),
		})
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to extend lock for task %s: %w", taskID, err)
	}
	return nil
}
