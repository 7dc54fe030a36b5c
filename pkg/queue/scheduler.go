package queue

import (
	"context"
	"errors"
	"log/slog"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/posnotify/pkg/logger"
)

// SchedulerRepository is the storage the scheduler writes periodic tasks to.
type SchedulerRepository interface {
	CreateTask(ctx context.Context, task *Task) error
	// GetPendingTaskByName returns ErrTaskNotFound when no pending task has the name.
	GetPendingTaskByName(ctx context.Context, taskName string) (*Task, error)
}

// Scheduler keeps exactly one pending instance of every registered periodic
// task. When the pending instance has been claimed, the next check creates
// another at the schedule's following run time. Several schedulers may share
// a repository; they converge on the same run times but can race to create a
// duplicate, which the periodic handler must tolerate.
type Scheduler struct {
	repo     SchedulerRepository
	interval time.Duration
	now      func() time.Time
	logger   *slog.Logger

	mu    sync.Mutex
	tasks map[string]*periodicTask
}

type periodicTask struct {
	name     string
	schedule Schedule
	opts     schedulerTaskOptions
	next     time.Time
}

// SchedulerOption configures a Scheduler.
type SchedulerOption func(*Scheduler)

// WithCheckInterval sets how often pending instances are checked. Default 30s.
func WithCheckInterval(d time.Duration) SchedulerOption {
	return func(s *Scheduler) {
		if d > 0 {
			s.interval = d
		}
	}
}

func WithSchedulerLogger(l *slog.Logger) SchedulerOption {
	return func(s *Scheduler) {
		if l != nil {
			s.logger = l
		}
	}
}

func WithSchedulerClock(now func() time.Time) SchedulerOption {
	return func(s *Scheduler) {
		if now != nil {
			s.now = now
		}
	}
}

type schedulerTaskOptions struct {
	queue       string
	priority    Priority
	maxAttempts int8
	backoff     Backoff
}

// SchedulerTaskOption configures one periodic task.
type SchedulerTaskOption func(*schedulerTaskOptions)

func WithTaskQueue(queue string) SchedulerTaskOption {
	return func(o *schedulerTaskOptions) {
		if queue != "" {
			o.queue = queue
		}
	}
}

func WithTaskPriority(p Priority) SchedulerTaskOption {
	return func(o *schedulerTaskOptions) {
		if p.Valid() {
			o.priority = p
		}
	}
}

// WithTaskMaxAttempts accepts 1 to 10; other values keep the default of 3.
func WithTaskMaxAttempts(n int8) SchedulerTaskOption {
	return func(o *schedulerTaskOptions) {
		if n >= 1 && n <= 10 {
			o.maxAttempts = n
		}
	}
}

func WithTaskBackoff(b Backoff) SchedulerTaskOption {
	return func(o *schedulerTaskOptions) { o.backoff = b }
}

func NewScheduler(repo SchedulerRepository, opts ...SchedulerOption) (*Scheduler, error) {
	if repo == nil {
		return nil, ErrRepositoryNil
	}
	s := &Scheduler{
		repo:     repo,
		interval: 30 * time.Second,
		now:      time.Now,
		logger:   slog.Default(),
		tasks:    make(map[string]*periodicTask),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With(logger.Component("scheduler"))
	return s, nil
}

// AddTask registers name to run on schedule. Register a matching
// NewPeriodicTaskHandler on a worker consuming the task's queue.
func (s *Scheduler) AddTask(name string, schedule Schedule, opts ...SchedulerTaskOption) error {
	o := schedulerTaskOptions{
		queue:       DefaultQueueName,
		priority:    PriorityDefault,
		maxAttempts: 3,
		backoff:     ExponentialBackoff(30 * time.Second),
	}
	for _, opt := range opts {
		opt(&o)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tasks[name]; ok {
		return ErrTaskAlreadyRegistered
	}
	s.tasks[name] = &periodicTask{name: name, schedule: schedule, opts: o}
	s.logger.Info("periodic task registered",
		slog.String("task_name", name),
		slog.String("schedule", schedule.String()),
		slog.String("queue", o.queue),
	)
	return nil
}

func (s *Scheduler) RemoveTask(name string) {
	s.mu.Lock()
	delete(s.tasks, name)
	s.mu.Unlock()
}

// ListTasks returns the registered task names in sorted order.
func (s *Scheduler) ListTasks() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Sorted(maps.Keys(s.tasks))
}

// NextRun returns the run time of the pending instance of name as last seen
// by this scheduler.
func (s *Scheduler) NextRun(name string) (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[name]
	if !ok || t.next.IsZero() {
		return time.Time{}, false
	}
	return t.next, true
}

// Start checks all tasks immediately and then every check interval until ctx
// is done, returning ctx.Err().
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	empty := len(s.tasks) == 0
	s.mu.Unlock()
	if empty {
		return ErrSchedulerNotConfigured
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		s.check(ctx)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (s *Scheduler) check(ctx context.Context) {
	s.mu.Lock()
	tasks := slices.Collect(maps.Values(s.tasks))
	s.mu.Unlock()

	for _, t := range tasks {
		next, err := s.ensurePending(ctx, t)
		if err != nil {
			s.logger.LogAttrs(ctx, slog.LevelError, "failed to schedule periodic task",
				slog.String("task_name", t.name),
				logger.Error(err),
			)
			continue
		}
		s.mu.Lock()
		t.next = next
		s.mu.Unlock()
	}
}

func (s *Scheduler) ensurePending(ctx context.Context, t *periodicTask) (time.Time, error) {
	existing, err := s.repo.GetPendingTaskByName(ctx, t.name)
	switch {
	case err == nil:
		return existing.ScheduledAt, nil
	case !errors.Is(err, ErrTaskNotFound):
		return time.Time{}, err
	}

	now := s.now()
	runAt := t.schedule.Next(now)
	task := &Task{
		ID:          uuid.New(),
		Queue:       t.opts.queue,
		TaskType:    TaskTypePeriodic,
		TaskName:    t.name,
		Status:      TaskStatusPending,
		Priority:    t.opts.priority,
		MaxAttempts: t.opts.maxAttempts,
		Backoff:     t.opts.backoff,
		ScheduledAt: runAt,
		CreatedAt:   now,
	}
	if err := s.repo.CreateTask(ctx, task); err != nil {
		return time.Time{}, err
	}
	s.logger.LogAttrs(ctx, slog.LevelDebug, "periodic task created",
		slog.String("task_name", t.name),
		slog.Time("scheduled_at", runAt),
	)
	return runAt, nil
}
