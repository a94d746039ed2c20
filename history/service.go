package history

import (
	"context"
	"fmt"
	"time"

	"github.com/taskmesh/taskmesh/id"
	"github.com/taskmesh/taskmesh/task"
)

// SubmitFunc is the callback Resubmit uses to hand a payload back to the
// dispatcher. The dispatcher provides the implementation; keeping it a
// function type avoids an import cycle.
type SubmitFunc func(ctx context.Context, taskType string, payload []byte, codecName string, opts ...task.Option) (id.TaskID, error)

// Service provides high-level archive operations over a Store.
type Service struct {
	store Store
}

// NewService creates a history service.
func NewService(store Store) *Service {
	return &Service{store: store}
}

// Archive builds a Record from a terminal task and persists it.
func (s *Service) Archive(ctx context.Context, t *task.Task) error {
	if !t.Status.Terminal() {
		return fmt.Errorf("taskmesh/history: refusing to archive non-terminal task %s (%s)", t.ID, t.Status)
	}

	now := time.Now().UTC()
	finished := now
	if t.FinishedAt != nil {
		finished = *t.FinishedAt
	}

	r := &Record{
		ID:          id.NewRecordID(),
		TaskID:      t.ID,
		Type:        t.Type,
		Payload:     t.Payload,
		Codec:       t.Codec,
		Priority:    t.Priority,
		Status:      t.Status,
		WorkerID:    t.Worker,
		RetryCount:  t.RetryCount,
		MaxRetries:  t.MaxRetries,
		Error:       t.LastError,
		Output:      t.Output,
		SubmittedAt: t.SubmittedAt,
		FinishedAt:  finished,
		ArchivedAt:  now,
	}
	return s.store.Archive(ctx, r)
}

// Get returns the archived record for a task id.
func (s *Service) Get(ctx context.Context, taskID id.TaskID) (*Record, error) {
	return s.store.Get(ctx, taskID)
}

// Store returns the underlying archive store for direct access to List,
// Count, and Purge.
func (s *Service) Store() Store {
	return s.store
}

// Resubmit clones a terminally failed or cancelled task into a fresh
// submission with a new id and a zeroed retry count. The original record
// stays in the archive; its ResubmitAt timestamp marks the clone.
func (s *Service) Resubmit(ctx context.Context, taskID id.TaskID, submit SubmitFunc) (id.TaskID, error) {
	r, err := s.store.Get(ctx, taskID)
	if err != nil {
		return id.Nil, err
	}
	if r.Status == task.StatusCompleted {
		return id.Nil, fmt.Errorf("taskmesh/history: task %s completed, nothing to resubmit", taskID)
	}

	newID, err := submit(ctx, r.Type, r.Payload, r.Codec,
		task.WithPriority(r.Priority),
		task.WithMaxRetries(r.MaxRetries),
	)
	if err != nil {
		return id.Nil, err
	}

	now := time.Now().UTC()
	r.ResubmitAt = &now
	if err := s.store.Archive(ctx, r); err != nil {
		return newID, err
	}
	return newID, nil
}
