package queue

import "errors"

// Common errors
var (
	// ErrRepositoryNil is returned when a nil repository is provided
	ErrRepositoryNil = errors.New("repository cannot be nil")

	// ErrPayloadNil is returned when attempting to enqueue a nil payload
	ErrPayloadNil = errors.New("payload cannot be nil")

	// ErrInvalidPriority is returned when priority is outside valid range
	ErrInvalidPriority = errors.New("priority must be between 1 and 100")

	// ErrDuplicateTask is returned when a task with the same ID is already stored
	ErrDuplicateTask = errors.New("task already exists")

	// ErrTaskNotFound is returned when a task ID is unknown to the storage
	ErrTaskNotFound = errors.New("task not found")

	// ErrNoTaskToClaim is returned by ClaimTask when nothing is ready to run
	ErrNoTaskToClaim = errors.New("no task available to claim")

	// ErrHandlerNotFound is returned when no handler is registered for a task
	ErrHandlerNotFound = errors.New("no handler registered for task type")

	// ErrNoHandlers is returned when worker has no handlers registered
	ErrNoHandlers = errors.New("no task handlers registered")

	// ErrTaskAlreadyRegistered is returned when trying to register a duplicate task
	ErrTaskAlreadyRegistered = errors.New("task already registered")

	// ErrWorkerRunning is returned by Start on a worker that is already running
	ErrWorkerRunning = errors.New("worker already started")

	// ErrWorkerNotRunning is returned by Stop on a worker that is not running
	ErrWorkerNotRunning = errors.New("worker not started")

	// ErrSchedulerNotConfigured is returned when scheduler has no tasks
	ErrSchedulerNotConfigured = errors.New("scheduler has no registered tasks")

	// ErrPermanent marks a handler failure that must not be retried
	ErrPermanent = errors.New("permanent task failure")
)

// Permanent wraps err so the worker skips remaining attempts and moves the task
// straight to the dead letter queue.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return errors.Join(ErrPermanent, err)
}

// IsPermanent reports whether err was produced by Permanent.
func IsPermanent(err error) bool {
	return errors.Is(err, ErrPermanent)
}
