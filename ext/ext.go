// Package ext defines the extension system for taskmesh.
// Extensions are notified of lifecycle events (task submitted, assigned,
// completed, failed, etc.) and can react to them — logging, metrics,
// auditing, alerting.
//
// Each lifecycle hook is a separate interface so extensions opt in only
// to the events they care about.
package ext

import (
	"context"
	"time"

	"github.com/taskmesh/taskmesh/id"
	"github.com/taskmesh/taskmesh/task"
)

// Extension is the base interface all extensions must implement.
type Extension interface {
	// Name returns a unique human-readable name for the extension.
	Name() string
}

// TaskSubmitted is called after a task is accepted into the queue.
type TaskSubmitted interface {
	OnTaskSubmitted(ctx context.Context, t *task.Task) error
}

// TaskAssigned is called when the dispatcher hands a task to a worker.
type TaskAssigned interface {
	OnTaskAssigned(ctx context.Context, t *task.Task, workerID id.WorkerID) error
}

// TaskCompleted is called after a task finishes successfully.
type TaskCompleted interface {
	OnTaskCompleted(ctx context.Context, t *task.Task, elapsed time.Duration) error
}

// TaskFailed is called when a task fails terminally (no more retries).
type TaskFailed interface {
	OnTaskFailed(ctx context.Context, t *task.Task, err error) error
}

// TaskRetrying is called when a task fails but re-enters the queue.
type TaskRetrying interface {
	OnTaskRetrying(ctx context.Context, t *task.Task, attempt int, notBefore time.Time) error
}

// TaskCancelled is called when a queued task is cancelled.
type TaskCancelled interface {
	OnTaskCancelled(ctx context.Context, t *task.Task) error
}

// WorkerRegistered is called when a worker joins the dispatcher.
type WorkerRegistered interface {
	OnWorkerRegistered(ctx context.Context, workerID id.WorkerID, name string, capabilities []string) error
}

// CronFired is called when a cron entry fires and submits a task.
type CronFired interface {
	OnCronFired(ctx context.Context, entryName string, taskID id.TaskID) error
}

// Shutdown is called during graceful shutdown.
type Shutdown interface {
	OnShutdown(ctx context.Context) error
}
