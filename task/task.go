package task

import (
	"time"

	"github.com/taskmesh/taskmesh"
	"github.com/taskmesh/taskmesh/id"
)

// Status represents the lifecycle state of a task.
type Status string

const (
	// StatusQueued means the task is waiting in the priority queue.
	StatusQueued Status = "queued"
	// StatusAssigned means a worker is currently executing the task.
	StatusAssigned Status = "assigned"
	// StatusRetrying means the task failed and is back in the queue
	// awaiting another attempt.
	StatusRetrying Status = "retrying"
	// StatusCompleted means the task finished successfully.
	StatusCompleted Status = "completed"
	// StatusFailed means the task failed and will not be retried.
	StatusFailed Status = "failed"
	// StatusCancelled means the task was cancelled before assignment.
	StatusCancelled Status = "cancelled"
)

// Terminal reports whether the status is one of the three terminal states.
// A task reaches exactly one terminal status and is then archived to history.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// Priority determines queue ordering. Tasks drain in priority order;
// submission time breaks ties within the same priority.
type Priority string

const (
	PriorityUrgent Priority = "urgent"
	PriorityHigh   Priority = "high"
	PriorityNormal Priority = "normal"
	PriorityLow    Priority = "low"
)

// Rank returns the numeric ordering value for the priority.
// Higher ranks drain first. Unknown priorities rank as normal.
func (p Priority) Rank() int {
	switch p {
	case PriorityUrgent:
		return 3
	case PriorityHigh:
		return 2
	case PriorityLow:
		return 0
	default:
		return 1
	}
}

// Valid reports whether p is one of the four defined priorities.
func (p Priority) Valid() bool {
	switch p {
	case PriorityUrgent, PriorityHigh, PriorityNormal, PriorityLow:
		return true
	}
	return false
}

// Task represents a schedulable unit of work. The dispatcher owns the task
// exclusively from submission until it reaches a terminal state.
type Task struct {
	taskmesh.Entity

	ID         id.TaskID     `json:"id"`
	Type       string        `json:"type"`
	Payload    []byte        `json:"payload"`
	Codec      string        `json:"codec,omitempty"`
	Priority   Priority      `json:"priority"`
	Status     Status        `json:"status"`
	MaxRetries int           `json:"max_retries"`
	RetryCount int           `json:"retry_count"`
	LastError  string        `json:"last_error,omitempty"`
	Worker     id.WorkerID   `json:"worker_id,omitempty"`
	Output     []byte        `json:"output,omitempty"`

	SubmittedAt time.Time  `json:"submitted_at"`
	NotBefore   time.Time  `json:"not_before,omitempty"`
	AssignedAt  *time.Time `json:"assigned_at,omitempty"`
	FinishedAt  *time.Time `json:"finished_at,omitempty"`
}
