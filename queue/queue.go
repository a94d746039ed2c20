package queue

import (
	"sort"
	"time"

	"github.com/taskmesh/taskmesh/task"
)

// Queue is a priority-ordered task queue. Tasks drain in priority order;
// within the same priority, earlier submissions drain first. Retrying tasks
// keep their original submission time and therefore re-sort into their
// original FIFO slot.
//
// Queue is not safe for concurrent use.
type Queue struct {
	items []*task.Task
}

// New returns an empty Queue.
func New() *Queue {
	return &Queue{}
}

// less reports whether a drains strictly before b.
func less(a, b *task.Task) bool {
	ra, rb := a.Priority.Rank(), b.Priority.Rank()
	if ra != rb {
		return ra > rb
	}
	return a.SubmittedAt.Before(b.SubmittedAt)
}

// Len returns the number of queued tasks.
func (q *Queue) Len() int {
	return len(q.items)
}

// Push inserts a task at its priority position. Insertion is stable:
// a task sorts after every queued task with an equal key.
func (q *Queue) Push(t *task.Task) {
	idx := sort.Search(len(q.items), func(i int) bool {
		return less(t, q.items[i])
	})
	q.items = append(q.items, nil)
	copy(q.items[idx+1:], q.items[idx:])
	q.items[idx] = t
}

// PeekReady returns the highest-priority task whose NotBefore time has
// passed, without removing it. Returns nil if no task is ready.
func (q *Queue) PeekReady(now time.Time) *task.Task {
	for _, t := range q.items {
		if t.NotBefore.IsZero() || !t.NotBefore.After(now) {
			return t
		}
	}
	return nil
}

// Remove removes the task with the given id and returns it.
func (q *Queue) Remove(taskID string) (*task.Task, bool) {
	for i, t := range q.items {
		if t.ID.String() == taskID {
			q.items = append(q.items[:i], q.items[i+1:]...)
			return t, true
		}
	}
	return nil, false
}

// Position returns the 1-based queue position of the task with the given
// id. Position 1 is the next task to drain.
func (q *Queue) Position(taskID string) (int, bool) {
	for i, t := range q.items {
		if t.ID.String() == taskID {
			return i + 1, true
		}
	}
	return 0, false
}

// Snapshot returns the queued tasks in drain order. The slice is a copy;
// the tasks are not.
func (q *Queue) Snapshot() []*task.Task {
	out := make([]*task.Task, len(q.items))
	copy(out, q.items)
	return out
}
