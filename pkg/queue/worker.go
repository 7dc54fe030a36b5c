package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/posnotify/pkg/logger"
)

// WorkerRepository is the storage a Worker claims and settles tasks through.
type WorkerRepository interface {
	// ClaimTask locks the ready task with the lowest priority weight, or
	// returns ErrNoTaskToClaim.
	ClaimTask(ctx context.Context, workerID uuid.UUID, queues []string, lockDuration time.Duration) (*Task, error)
	CompleteTask(ctx context.Context, taskID uuid.UUID) error
	// RetryTask records a failed attempt and releases the task until retryAt.
	RetryTask(ctx context.Context, taskID uuid.UUID, errorMsg string, retryAt time.Time) error
	FailTask(ctx context.Context, taskID uuid.UUID, errorMsg string) error
	MoveToDLQ(ctx context.Context, taskID uuid.UUID) error
	ExtendLock(ctx context.Context, taskID uuid.UUID, duration time.Duration) error
}

// Worker claims tasks from its queues and runs up to MaxConcurrentTasks of
// them at once.
type Worker struct {
	repo         WorkerRepository
	id           uuid.UUID
	queues       []string
	pullInterval time.Duration
	lockTimeout  time.Duration
	slots        chan struct{}
	now          func() time.Time
	logger       *slog.Logger

	mu       sync.RWMutex
	handlers map[string]Handler
	cancel   context.CancelFunc
	loopDone chan struct{}
	inflight sync.WaitGroup
}

type workerOptions struct {
	queues             []string
	pullInterval       time.Duration
	lockTimeout        time.Duration
	maxConcurrentTasks int
	logger             *slog.Logger
}

// WorkerOption configures a Worker.
type WorkerOption func(*workerOptions)

// WithQueues replaces the default queue list.
func WithQueues(queues ...string) WorkerOption {
	return func(o *workerOptions) {
		if len(queues) > 0 {
			o.queues = queues
		}
	}
}

// WithPullInterval sets how often an idle worker polls. Default 500ms.
func WithPullInterval(d time.Duration) WorkerOption {
	return func(o *workerOptions) {
		if d > 0 {
			o.pullInterval = d
		}
	}
}

// WithLockTimeout sets how long a claimed task stays locked. It also bounds
// the handler run time. Default 5m.
func WithLockTimeout(d time.Duration) WorkerOption {
	return func(o *workerOptions) {
		if d > 0 {
			o.lockTimeout = d
		}
	}
}

func WithMaxConcurrentTasks(n int) WorkerOption {
	return func(o *workerOptions) {
		if n > 0 {
			o.maxConcurrentTasks = n
		}
	}
}

func WithWorkerLogger(l *slog.Logger) WorkerOption {
	return func(o *workerOptions) {
		if l != nil {
			o.logger = l
		}
	}
}

func NewWorker(repo WorkerRepository, opts ...WorkerOption) (*Worker, error) {
	if repo == nil {
		return nil, ErrRepositoryNil
	}
	o := workerOptions{
		queues:             []string{DefaultQueueName},
		pullInterval:       500 * time.Millisecond,
		lockTimeout:        5 * time.Minute,
		maxConcurrentTasks: 1,
		logger:             slog.Default(),
	}
	for _, opt := range opts {
		opt(&o)
	}

	id := uuid.New()
	return &Worker{
		repo:         repo,
		id:           id,
		queues:       o.queues,
		pullInterval: o.pullInterval,
		lockTimeout:  o.lockTimeout,
		slots:        make(chan struct{}, o.maxConcurrentTasks),
		now:          time.Now,
		logger:       o.logger.With(logger.Component("worker"), slog.String("worker_id", id.String())),
		handlers:     make(map[string]Handler),
	}, nil
}

// RegisterHandler adds h under h.Name(). A nil handler is ignored.
func (w *Worker) RegisterHandler(h Handler) error {
	if h == nil {
		return nil
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, ok := w.handlers[h.Name()]; ok {
		return fmt.Errorf("%w: %s", ErrTaskAlreadyRegistered, h.Name())
	}
	w.handlers[h.Name()] = h
	return nil
}

func (w *Worker) RegisterHandlers(handlers ...Handler) error {
	for _, h := range handlers {
		if err := w.RegisterHandler(h); err != nil {
			return err
		}
	}
	return nil
}

// Start begins polling in the background.
func (w *Worker) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.cancel != nil {
		return ErrWorkerRunning
	}
	if len(w.handlers) == 0 {
		return ErrNoHandlers
	}

	ctx, w.cancel = context.WithCancel(ctx)
	w.loopDone = make(chan struct{})
	go w.loop(ctx, w.loopDone)

	w.logger.LogAttrs(ctx, slog.LevelInfo, "worker started",
		slog.Any("queues", w.queues),
		slog.Int("max_concurrent", cap(w.slots)),
	)
	return nil
}

// Stop stops claiming and waits for in-flight tasks to settle.
func (w *Worker) Stop() error {
	w.mu.Lock()
	cancel, loopDone := w.cancel, w.loopDone
	w.cancel, w.loopDone = nil, nil
	w.mu.Unlock()
	if cancel == nil {
		return ErrWorkerNotRunning
	}

	cancel()
	<-loopDone
	w.inflight.Wait()
	w.logger.Info("worker stopped")
	return nil
}

// Run adapts the worker to errgroup: it starts, blocks until ctx is done and
// then stops.
func (w *Worker) Run(ctx context.Context) func() error {
	return func() error {
		if err := w.Start(ctx); err != nil {
			return err
		}
		<-ctx.Done()
		return w.Stop()
	}
}

func (w *Worker) loop(ctx context.Context, done chan<- struct{}) {
	defer close(done)
	ticker := time.NewTicker(w.pullInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.fill(ctx)
		}
	}
}

// fill claims tasks until every slot is busy or the queues are drained.
func (w *Worker) fill(ctx context.Context) {
	for ctx.Err() == nil {
		select {
		case w.slots <- struct{}{}:
		default:
			return
		}

		task, err := w.repo.ClaimTask(ctx, w.id, w.queues, w.lockTimeout)
		if err != nil || task == nil {
			<-w.slots
			if err != nil && !errors.Is(err, ErrNoTaskToClaim) && !errors.Is(err, context.Canceled) {
				w.logger.LogAttrs(ctx, slog.LevelError, "failed to claim task", logger.Error(err))
			}
			return
		}

		w.inflight.Add(1)
		go func() {
			defer w.inflight.Done()
			defer func() { <-w.slots }()
			w.process(task)
		}()
	}
}

func (w *Worker) process(task *Task) {
	log := w.logger.With(
		slog.String("task_id", task.ID.String()),
		slog.String("task_name", task.TaskName),
		slog.String("queue", task.Queue),
		logger.Attempt(task.Attempt()),
	)
	start := time.Now()

	w.mu.RLock()
	h, ok := w.handlers[task.TaskName]
	w.mu.RUnlock()
	if !ok {
		log.Error("no handler registered for task")
		w.bury(log, task, ErrHandlerNotFound.Error()+": "+task.TaskName)
		return
	}

	// In-flight tasks outlive Stop; only the lock timeout bounds them.
	ctx, cancel := context.WithTimeout(context.Background(), w.lockTimeout)
	defer cancel()
	ctx = WithTaskInfo(ctx, TaskInfo{
		ID:          task.ID,
		Name:        task.TaskName,
		Queue:       task.Queue,
		Attempt:     task.Attempt(),
		MaxAttempts: int(task.MaxAttempts),
		Backoff:     task.Backoff,
	})

	err := safeHandle(ctx, h, task)
	elapsed := time.Since(start)
	if err == nil {
		if err := w.repo.CompleteTask(context.Background(), task.ID); err != nil {
			log.LogAttrs(ctx, slog.LevelError, "failed to complete task", logger.Error(err))
			return
		}
		log.LogAttrs(ctx, slog.LevelDebug, "task completed", logger.Duration(elapsed))
		return
	}

	final := task.LastAttempt() || IsPermanent(err)
	level := slog.LevelWarn
	if final {
		level = slog.LevelError
	}
	log.LogAttrs(ctx, level, "task failed",
		slog.Int("max_attempts", int(task.MaxAttempts)),
		slog.Bool("final", final),
		logger.Duration(elapsed),
		logger.Error(err),
	)

	if final {
		w.bury(log, task, err.Error())
		return
	}
	retryAt := TaskInfo{Attempt: task.Attempt(), Backoff: task.Backoff}.RetryAt(w.now())
	if rerr := w.repo.RetryTask(context.Background(), task.ID, err.Error(), retryAt); rerr != nil {
		log.LogAttrs(ctx, slog.LevelError, "failed to reschedule task", logger.Error(rerr))
	}
}

// bury fails the task and moves it to the dead letter queue.
func (w *Worker) bury(log *slog.Logger, task *Task, reason string) {
	ctx := context.Background()
	if err := w.repo.FailTask(ctx, task.ID, reason); err != nil {
		log.LogAttrs(ctx, slog.LevelError, "failed to mark task failed", logger.Error(err))
		return
	}
	if err := w.repo.MoveToDLQ(ctx, task.ID); err != nil {
		log.LogAttrs(ctx, slog.LevelError, "failed to move task to dead letter queue", logger.Error(err))
		return
	}
	log.Warn("task moved to dead letter queue")
}

func safeHandle(ctx context.Context, h Handler, task *Task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic in handler %s: %v", task.TaskName, r)
		}
	}()
	return h.Handle(ctx, task.Payload)
}

// ExtendLockForTask pushes the lock of a long-running task out by extension.
func (w *Worker) ExtendLockForTask(ctx context.Context, taskID uuid.UUID, extension time.Duration) error {
	return w.repo.ExtendLock(ctx, taskID, extension)
}

// WorkerInfo identifies this worker process.
func (w *Worker) WorkerInfo() (id string, hostname string, pid int) {
	hostname, _ = os.Hostname()
	return w.id.String(), hostname, os.Getpid()
}
