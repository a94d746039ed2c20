package dispatcher

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/taskmesh/taskmesh"
	"github.com/taskmesh/taskmesh/task"
	"github.com/taskmesh/taskmesh/worker"
)

// run is the dispatcher's serial control loop: a fixed-interval tick
// drains the queue and worker results are folded in between ticks. All
// lifecycle transitions happen here or under the same mutex.
func (d *Dispatcher) run(ctx context.Context) {
	defer d.wg.Done()

	ticker := time.NewTicker(d.cfg.DrainInterval)
	defer ticker.Stop()

	for {
		select {
		case <-d.stopCh:
			// Fold in results that arrived during shutdown.
			for {
				select {
				case res := <-d.resultCh:
					d.handleResult(ctx, res)
				default:
					return
				}
			}
		case res := <-d.resultCh:
			d.handleResult(ctx, res)
		case <-ticker.C:
			d.drain(ctx)
		}
	}
}

// drain assigns ready tasks to workers until the global capacity is
// reached or the head cannot move. The head only pops when a capable
// worker has a free slot; a saturated candidate set leaves it queued
// for the next tick, a missing candidate set fails it terminally.
func (d *Dispatcher) drain(ctx context.Context) {
	now := time.Now().UTC()

	for {
		d.mu.Lock()
		if len(d.active) >= d.cfg.MaxActive {
			d.mu.Unlock()
			return
		}
		head := d.queue.PeekReady(now)
		if head == nil {
			d.mu.Unlock()
			return
		}

		best, anyCapable := d.selectWorkerLocked(head)
		if !anyCapable {
			d.queue.Remove(head.ID.String())
			d.mu.Unlock()
			d.failNoCapableWorker(ctx, head)
			continue
		}
		if best == nil {
			// Capable workers exist but none has a free slot.
			d.mu.Unlock()
			return
		}
		if !d.limiter.Acquire(head.Type) {
			// Rate or type-concurrency limited; defer, never fail.
			d.mu.Unlock()
			return
		}

		d.queue.Remove(head.ID.String())
		d.assignLocked(ctx, head, best, now)
		d.mu.Unlock()
	}
}

// selectWorkerLocked picks the best-scoring capable worker with a free
// slot. The boolean reports whether any capable worker exists at all.
// Ties break on the lexicographically smallest worker id so selection
// is deterministic.
func (d *Dispatcher) selectWorkerLocked(t *task.Task) (*worker.Worker, bool) {
	var candidates []*worker.Worker
	for _, w := range d.workers {
		if w.CanHandle(t) {
			candidates = append(candidates, w)
		}
	}
	if len(candidates) == 0 {
		return nil, false
	}

	// Routing fast path: a matching type prefix narrows selection to the
	// named worker when that worker is among the candidates.
	if name, ok := d.routeFor(t.Type); ok {
		for _, w := range candidates {
			if w.Name() == name {
				candidates = []*worker.Worker{w}
				break
			}
		}
	}

	var best *worker.Worker
	var bestScore float64
	for _, w := range candidates {
		if d.loads[w.ID().String()] >= w.ConcurrencyLimit() {
			continue
		}
		score := w.Score(t)
		switch {
		case best == nil, score > bestScore:
			best, bestScore = w, score
		case score == bestScore && w.ID().String() < best.ID().String():
			best = w
		}
	}
	return best, true
}

func (d *Dispatcher) routeFor(taskType string) (string, bool) {
	for prefix, name := range d.routes {
		if strings.HasPrefix(taskType, prefix) {
			return name, true
		}
	}
	return "", false
}

// assignLocked marks the task assigned and hands it to the worker on a
// fresh goroutine; the result comes back over resultCh.
func (d *Dispatcher) assignLocked(ctx context.Context, t *task.Task, w *worker.Worker, now time.Time) {
	assigned := now
	t.Status = task.StatusAssigned
	t.Worker = w.ID()
	t.AssignedAt = &assigned
	t.Touch()

	taskCtx, cancel := context.WithCancel(context.Background())
	d.active[t.ID.String()] = &activeEntry{t: t, w: w, started: now, cancel: cancel}
	d.loads[w.ID().String()]++

	d.taskWG.Add(1)
	go func() {
		defer d.taskWG.Done()
		res := w.Execute(taskCtx, t)
		d.resultCh <- res
	}()

	d.exts.EmitTaskAssigned(ctx, t, w.ID())
	d.logger.Debug("task assigned",
		slog.String("task_id", t.ID.String()),
		slog.String("worker", w.Name()),
	)
}

// failNoCapableWorker terminally fails a task no registered worker can
// handle. The task is never requeued.
func (d *Dispatcher) failNoCapableWorker(ctx context.Context, t *task.Task) {
	now := time.Now().UTC()
	t.Status = task.StatusFailed
	t.LastError = taskmesh.ErrNoCapableWorker.Error()
	t.FinishedAt = &now
	t.Touch()

	if err := d.archive.Archive(ctx, t); err != nil {
		d.logger.Error("archive failed task failed",
			slog.String("task_id", t.ID.String()),
			slog.Any("error", err),
		)
	}
	d.exts.EmitTaskFailed(ctx, t, taskmesh.ErrNoCapableWorker)
	d.logger.Warn("no capable worker for task",
		slog.String("task_id", t.ID.String()),
		slog.String("type", t.Type),
	)
}

// handleResult folds a worker result back into dispatcher state:
// success archives the task completed; a retryable failure re-enters
// the queue with a backoff delay while budget remains, otherwise the
// task is terminally failed and archived.
func (d *Dispatcher) handleResult(ctx context.Context, res *task.Result) {
	d.mu.Lock()
	entry, ok := d.active[res.TaskID.String()]
	if !ok {
		d.mu.Unlock()
		return
	}
	delete(d.active, res.TaskID.String())
	if d.loads[entry.w.ID().String()] > 0 {
		d.loads[entry.w.ID().String()]--
	}
	d.mu.Unlock()

	entry.cancel()
	d.limiter.Release(entry.t.Type)
	t := entry.t

	if !res.Failed() {
		finished := res.FinishedAt
		t.Status = task.StatusCompleted
		t.Output = res.Output
		t.FinishedAt = &finished
		t.Touch()

		if err := d.archive.Archive(ctx, t); err != nil {
			d.logger.Error("archive completed task failed",
				slog.String("task_id", t.ID.String()),
				slog.Any("error", err),
			)
		}
		d.exts.EmitTaskCompleted(ctx, t, res.Elapsed())
		d.logger.Info("task completed",
			slog.String("task_id", t.ID.String()),
			slog.String("worker", entry.w.Name()),
			slog.Duration("elapsed", res.Elapsed()),
		)
		return
	}

	t.LastError = res.Err.Error()

	if taskmesh.Retryable(res.Err) && t.RetryCount < t.MaxRetries {
		t.RetryCount++
		t.Status = task.StatusRetrying
		t.Worker = entry.w.ID()
		t.NotBefore = time.Now().UTC().Add(d.backoff.Delay(t.RetryCount))
		t.AssignedAt = nil
		t.Touch()

		d.mu.Lock()
		d.queue.Push(t)
		d.mu.Unlock()

		d.exts.EmitTaskRetrying(ctx, t, t.RetryCount, t.NotBefore)
		d.logger.Warn("task retrying",
			slog.String("task_id", t.ID.String()),
			slog.Int("attempt", t.RetryCount),
			slog.Int("max_retries", t.MaxRetries),
			slog.String("error", t.LastError),
		)
		return
	}

	finished := res.FinishedAt
	t.Status = task.StatusFailed
	t.FinishedAt = &finished
	t.Touch()

	if err := d.archive.Archive(ctx, t); err != nil {
		d.logger.Error("archive failed task failed",
			slog.String("task_id", t.ID.String()),
			slog.Any("error", err),
		)
	}
	d.exts.EmitTaskFailed(ctx, t, res.Err)
	d.logger.Error("task failed",
		slog.String("task_id", t.ID.String()),
		slog.String("worker", entry.w.Name()),
		slog.Int("retry_count", t.RetryCount),
		slog.String("error", t.LastError),
	)
}
