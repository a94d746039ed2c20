package cron

import (
	"time"

	cronlib "github.com/robfig/cron/v3"

	"github.com/taskmesh/taskmesh/id"
	"github.com/taskmesh/taskmesh/task"
)

// Entry is a recurring task submission. The scheduler owns the parsed
// schedule; callers define entries with EntrySpec.
type Entry struct {
	ID       id.CronID     `json:"id"`
	Name     string        `json:"name"`
	Spec     string        `json:"spec"`
	TaskType string        `json:"task_type"`
	Payload  []byte        `json:"payload,omitempty"`
	Codec    string        `json:"codec,omitempty"`
	Priority task.Priority `json:"priority,omitempty"`
	Enabled  bool          `json:"enabled"`
	NextRun  time.Time     `json:"next_run"`
	LastRun  *time.Time    `json:"last_run,omitempty"`

	schedule cronlib.Schedule
}

// EntrySpec describes an entry to register with the scheduler.
type EntrySpec struct {
	// Name uniquely identifies the entry within a scheduler.
	Name string
	// Spec is the cron expression, e.g. "*/5 * * * *" or "@every 30s".
	Spec string
	// TaskType names the capability the submitted tasks require.
	TaskType string
	// Payload is the raw encoded payload submitted on every fire.
	Payload []byte
	// Codec names the payload encoding; empty means the default.
	Codec string
	// Priority applies to every submitted task; empty means normal.
	Priority task.Priority
}
