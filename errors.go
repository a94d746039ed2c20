package taskmesh

import "errors"

var (
	// Structural errors. These surface synchronously to the caller and
	// are never queued or retried.
	ErrValidation         = errors.New("taskmesh: invalid task")
	ErrNoCapableWorker    = errors.New("taskmesh: no capable worker")
	ErrNotFound           = errors.New("taskmesh: task not found")
	ErrCannotCancelActive = errors.New("taskmesh: cannot cancel active task")

	// Worker boundary errors.
	ErrCapabilityMismatch = errors.New("taskmesh: capability mismatch")
	ErrCapacityExceeded   = errors.New("taskmesh: worker capacity exceeded")

	// Execution failures. Converted to structured results at the worker
	// boundary and retried up to the task's retry budget.
	ErrTaskTimeout   = errors.New("taskmesh: task timed out")
	ErrTaskExecution = errors.New("taskmesh: task execution failed")

	// Registration and lifecycle errors.
	ErrWorkerExists      = errors.New("taskmesh: worker already registered")
	ErrDispatcherStopped = errors.New("taskmesh: dispatcher not running")
)

// Retryable reports whether an execution error counts against the task's
// retry budget. Timeouts and domain handler faults are retryable; structural
// errors (validation, capability mismatch) terminate the task immediately.
func Retryable(err error) bool {
	return errors.Is(err, ErrTaskTimeout) || errors.Is(err, ErrTaskExecution)
}
