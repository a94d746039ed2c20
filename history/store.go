// Package history provides the immutable terminal-task archive and the
// service layer for archiving and resubmitting tasks.
package history

import (
	"context"
	"errors"
	"time"

	"github.com/taskmesh/taskmesh/id"
	"github.com/taskmesh/taskmesh/task"
)

// ErrRecordNotFound is returned when no archive entry exists for a task id.
var ErrRecordNotFound = errors.New("taskmesh/history: record not found")

// ListOpts controls pagination and filtering for archive list queries.
type ListOpts struct {
	// Limit is the maximum number of records to return. Zero means no limit.
	Limit int
	// Offset is the number of records to skip.
	Offset int
	// Status filters by terminal status. Empty means all statuses.
	Status task.Status
}

// Store defines the archive contract. Implementations must treat stored
// records as immutable: Get and List return copies.
type Store interface {
	// Archive persists a terminal record. Archiving the same task twice
	// overwrites the earlier record; the dispatcher never does this.
	Archive(ctx context.Context, r *Record) error

	// Get retrieves the record for a task id.
	Get(ctx context.Context, taskID id.TaskID) (*Record, error)

	// List returns records in archive order, newest first.
	List(ctx context.Context, opts ListOpts) ([]*Record, error)

	// Count returns the number of records with the given status.
	// An empty status counts everything.
	Count(ctx context.Context, status task.Status) (int64, error)

	// Purge removes records archived before the cutoff and reports how
	// many were removed.
	Purge(ctx context.Context, cutoff time.Time) (int64, error)
}
