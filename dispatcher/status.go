package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/taskmesh/taskmesh"
	"github.com/taskmesh/taskmesh/health"
	"github.com/taskmesh/taskmesh/history"
	"github.com/taskmesh/taskmesh/id"
	"github.com/taskmesh/taskmesh/task"
	"github.com/taskmesh/taskmesh/worker"
)

// TaskStatus is the answer to a status query. Exactly one of the
// position, execution, and record views is populated, matching the
// task's current phase.
type TaskStatus struct {
	TaskID id.TaskID   `json:"task_id"`
	State  task.Status `json:"state"`

	// Queued or retrying.
	QueuePosition int `json:"queue_position,omitempty"`

	// Assigned.
	WorkerID id.WorkerID   `json:"worker_id,omitempty"`
	Elapsed  time.Duration `json:"elapsed,omitempty"`

	// Terminal.
	Record *history.Record `json:"record,omitempty"`
}

// TaskStatus reports where a task currently is: its queue position if
// queued, elapsed execution time if active, or the full terminal record
// from the archive. Unknown ids report ErrNotFound. Terminal answers
// are idempotent; the archive record never changes.
func (d *Dispatcher) TaskStatus(ctx context.Context, taskID id.TaskID) (*TaskStatus, error) {
	d.mu.Lock()
	for _, t := range d.queue.Snapshot() {
		if t.ID.String() == taskID.String() {
			pos, _ := d.queue.Position(taskID.String())
			status := &TaskStatus{
				TaskID:        taskID,
				State:         t.Status,
				QueuePosition: pos,
			}
			d.mu.Unlock()
			return status, nil
		}
	}
	if entry, ok := d.active[taskID.String()]; ok {
		status := &TaskStatus{
			TaskID:   taskID,
			State:    entry.t.Status,
			WorkerID: entry.w.ID(),
			Elapsed:  time.Since(entry.started),
		}
		d.mu.Unlock()
		return status, nil
	}
	d.mu.Unlock()

	record, err := d.archive.Get(ctx, taskID)
	if err != nil {
		if errors.Is(err, history.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: %s", taskmesh.ErrNotFound, taskID)
		}
		return nil, err
	}
	return &TaskStatus{
		TaskID: taskID,
		State:  record.Status,
		Record: record,
	}, nil
}

// WorkerStatus is a worker's row in the system view.
type WorkerStatus struct {
	WorkerID         string   `json:"worker_id"`
	Name             string   `json:"name"`
	Capabilities     []string `json:"capabilities"`
	InFlight         int      `json:"in_flight"`
	ConcurrencyLimit int      `json:"concurrency_limit"`
	Load             float64  `json:"load"`
	SuccessRate      float64  `json:"success_rate"`
}

// SystemStatus is the read-only aggregate view of dispatcher state.
type SystemStatus struct {
	Running       bool           `json:"running"`
	QueueDepth    int            `json:"queue_depth"`
	ActiveTasks   int            `json:"active_tasks"`
	TotalCapacity int            `json:"total_capacity"`
	SystemLoad    float64        `json:"system_load"`
	Workers       []WorkerStatus `json:"workers"`
}

// SystemStatus computes the current system view. It never mutates state.
func (d *Dispatcher) SystemStatus(_ context.Context) *SystemStatus {
	d.mu.Lock()
	status := &SystemStatus{
		Running:     d.running,
		QueueDepth:  d.queue.Len(),
		ActiveTasks: len(d.active),
	}
	workers := make([]*worker.Worker, 0, len(d.workers))
	for _, w := range d.workers {
		workers = append(workers, w)
	}
	d.mu.Unlock()

	for _, w := range workers {
		status.TotalCapacity += w.ConcurrencyLimit()
		status.Workers = append(status.Workers, WorkerStatus{
			WorkerID:         w.ID().String(),
			Name:             w.Name(),
			Capabilities:     w.Capabilities(),
			InFlight:         w.InFlight(),
			ConcurrencyLimit: w.ConcurrencyLimit(),
			Load:             w.Load(),
			SuccessRate:      w.Metrics().SuccessRate(),
		})
	}
	if status.TotalCapacity > 0 {
		status.SystemLoad = float64(status.ActiveTasks) / float64(status.TotalCapacity)
	}
	return status
}

// WorkerPerformance is a worker's row in the performance report,
// including its per-task-type ledger.
type WorkerPerformance struct {
	WorkerID       string                         `json:"worker_id"`
	Name           string                         `json:"name"`
	TasksCompleted int64                          `json:"tasks_completed"`
	TasksFailed    int64                          `json:"tasks_failed"`
	SuccessRate    float64                        `json:"success_rate"`
	AvgExecution   time.Duration                  `json:"avg_execution"`
	Ledger         map[string]worker.LedgerRecord `json:"ledger,omitempty"`
}

// PerformanceReport aggregates execution metrics across all workers
// plus archive totals.
type PerformanceReport struct {
	GeneratedAt    time.Time           `json:"generated_at"`
	TasksCompleted int64               `json:"tasks_completed"`
	TasksFailed    int64               `json:"tasks_failed"`
	SuccessRate    float64             `json:"success_rate"`
	ArchivedTotal  int64               `json:"archived_total"`
	Workers        []WorkerPerformance `json:"workers"`
}

// PerformanceReport computes the current performance view.
func (d *Dispatcher) PerformanceReport(ctx context.Context) (*PerformanceReport, error) {
	d.mu.Lock()
	workers := make([]*worker.Worker, 0, len(d.workers))
	for _, w := range d.workers {
		workers = append(workers, w)
	}
	d.mu.Unlock()

	report := &PerformanceReport{GeneratedAt: time.Now().UTC()}
	for _, w := range workers {
		m := w.Metrics()
		report.TasksCompleted += m.TasksCompleted
		report.TasksFailed += m.TasksFailed
		report.Workers = append(report.Workers, WorkerPerformance{
			WorkerID:       w.ID().String(),
			Name:           w.Name(),
			TasksCompleted: m.TasksCompleted,
			TasksFailed:    m.TasksFailed,
			SuccessRate:    m.SuccessRate(),
			AvgExecution:   m.AvgExecution(),
			Ledger:         w.Ledger(),
		})
	}
	if total := report.TasksCompleted + report.TasksFailed; total > 0 {
		report.SuccessRate = float64(report.TasksCompleted) / float64(total)
	} else {
		report.SuccessRate = 1.0
	}

	archived, err := d.archive.Store().Count(ctx, "")
	if err != nil {
		return nil, err
	}
	report.ArchivedTotal = archived
	return report, nil
}

// Sample implements health.Source. Worker samples are collected in
// parallel since each takes the worker's own lock.
func (d *Dispatcher) Sample(ctx context.Context) (health.SystemSample, error) {
	d.mu.Lock()
	sample := health.SystemSample{
		At:          time.Now().UTC(),
		QueueDepth:  d.queue.Len(),
		ActiveTasks: len(d.active),
	}
	workers := make([]*worker.Worker, 0, len(d.workers))
	for _, w := range d.workers {
		workers = append(workers, w)
	}
	d.mu.Unlock()

	// Each goroutine writes its own slot; no further synchronization
	// is needed beyond Wait.
	samples := make([]health.WorkerSample, len(workers))
	g, _ := errgroup.WithContext(ctx)
	for i, w := range workers {
		g.Go(func() error {
			snap := w.Sample(time.Now().UTC())
			samples[i] = health.WorkerSample{
				WorkerID:    snap.WorkerID,
				Name:        snap.Name,
				InFlight:    snap.InFlight,
				Capacity:    w.ConcurrencyLimit(),
				SuccessRate: snap.SuccessRate,
				TotalTasks:  w.Metrics().TotalTasks(),
				Status:      snap.Status,
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return health.SystemSample{}, err
	}

	sample.Workers = samples
	for _, w := range workers {
		sample.TotalCapacity += w.ConcurrencyLimit()
	}
	if sample.TotalCapacity > 0 {
		sample.SystemLoad = float64(sample.ActiveTasks) / float64(sample.TotalCapacity)
	}
	return sample, nil
}

// Compile-time interface check.
var _ health.Source = (*Dispatcher)(nil)
