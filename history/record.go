package history

import (
	"time"

	"github.com/taskmesh/taskmesh/id"
	"github.com/taskmesh/taskmesh/task"
)

// Record is the immutable archive entry written when a task reaches a
// terminal state. The queue and active registry never hold terminal tasks;
// this record is the only place their final state lives.
type Record struct {
	ID         id.RecordID `json:"id"`
	TaskID     id.TaskID   `json:"task_id"`
	Type       string      `json:"type"`
	Payload    []byte      `json:"payload"`
	Codec      string      `json:"codec,omitempty"`
	Priority   task.Priority `json:"priority"`
	Status     task.Status `json:"status"`
	WorkerID   id.WorkerID `json:"worker_id,omitempty"`
	RetryCount int         `json:"retry_count"`
	MaxRetries int         `json:"max_retries"`
	Error      string      `json:"error,omitempty"`
	Output     []byte      `json:"output,omitempty"`

	SubmittedAt time.Time  `json:"submitted_at"`
	FinishedAt  time.Time  `json:"finished_at"`
	ArchivedAt  time.Time  `json:"archived_at"`
	ResubmitAt  *time.Time `json:"resubmit_at,omitempty"`
}
