package task

import (
	"time"

	"github.com/taskmesh/taskmesh/id"
)

// Result is the structured outcome a worker returns to the dispatcher for
// every executed task. Execution failures are carried in Err; nothing
// escapes the worker boundary as a panic or unstructured fault.
type Result struct {
	TaskID   id.TaskID
	WorkerID id.WorkerID
	Status   Status // StatusCompleted or StatusFailed
	Output   []byte
	Err      error

	StartedAt  time.Time
	FinishedAt time.Time
}

// Elapsed returns the wall-clock execution time.
func (r *Result) Elapsed() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// Failed reports whether the execution ended in failure.
func (r *Result) Failed() bool {
	return r.Status == StatusFailed
}
