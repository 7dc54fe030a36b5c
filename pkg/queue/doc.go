// Package queue provides a repository-agnostic task queue with immediate,
// delayed and periodic execution, per-task retry budgets and a dead letter queue.
//
// The package is organised around three components:
//
//   - Enqueuer: adds one-time tasks to the queue
//   - Scheduler: turns Schedule definitions into tasks at runtime
//   - Worker: claims ready tasks and dispatches them to a registered Handler
//
// Components talk to storage only through small repository interfaces.
// MemoryStorage backs tests and local runs; RedisStorage backs production.
//
// # Priorities and retries
//
// Priority is a weight: a task with a lower value is claimed first, and equal
// weights are served in scheduled-time order. Each task carries MaxAttempts and
// a Backoff. When a handler fails, the worker either reschedules the task at
// now + Backoff.Next(attempt) or, on the last attempt or when the error was
// wrapped with Permanent, marks it failed and moves it to the dead letter queue.
// Handlers can inspect the current attempt with TaskInfoFromContext.
//
// # Usage
//
//	type DeliveryJob struct {
//	    RecordID string
//	}
//
//	e, _ := queue.NewEnqueuer(repo)
//	id, err := e.Enqueue(ctx, DeliveryJob{RecordID: rec.ID},
//	    queue.WithPriority(queue.PriorityHigh),
//	    queue.WithMaxAttempts(3),
//	    queue.WithBackoff(queue.ExponentialBackoff(2*time.Second)),
//	)
//
// Passing WithTaskID makes the enqueue idempotent: a second enqueue with the same
// ID fails with ErrDuplicateTask and the task runs once.
//
// Periodic job:
//
//	s, _ := queue.NewScheduler(repo, queue.WithCheckInterval(30*time.Second))
//	_ = s.AddTask("notify.promote_due", queue.EveryInterval(time.Minute))
//	go s.Start(ctx)
//
//	w.RegisterHandler(queue.NewPeriodicTaskHandler("notify.promote_due", promote))
package queue
