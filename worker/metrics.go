package worker

import "time"

// Metrics holds a worker's execution counters. Updated only by the worker
// itself on task completion or failure; read through Metrics() which
// returns a copy.
type Metrics struct {
	TasksCompleted int64
	TasksFailed    int64
	TotalExecution time.Duration
	LastActivity   time.Time
}

// TotalTasks returns the number of finished executions.
func (m Metrics) TotalTasks() int64 {
	return m.TasksCompleted + m.TasksFailed
}

// SuccessRate returns the fraction of finished executions that succeeded.
// A worker with no history reports 1.0 so new workers are not penalized
// by the scoring bonus threshold.
func (m Metrics) SuccessRate() float64 {
	total := m.TotalTasks()
	if total == 0 {
		return 1.0
	}
	return float64(m.TasksCompleted) / float64(total)
}

// AvgExecution returns the mean wall-clock execution time.
func (m Metrics) AvgExecution() time.Duration {
	total := m.TotalTasks()
	if total == 0 {
		return 0
	}
	return m.TotalExecution / time.Duration(total)
}

// Metrics returns a copy of the worker's current counters.
func (w *Worker) Metrics() Metrics {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.metrics
}

func (w *Worker) recordSuccess(taskType string, elapsed time.Duration) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.metrics.TasksCompleted++
	w.metrics.TotalExecution += elapsed
	w.metrics.LastActivity = time.Now().UTC()

	rec := w.ledgerRecord(taskType)
	rec.Successes++
}

func (w *Worker) recordFailure(taskType string, elapsed time.Duration, err error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.metrics.TasksFailed++
	w.metrics.TotalExecution += elapsed
	w.metrics.LastActivity = time.Now().UTC()

	rec := w.ledgerRecord(taskType)
	rec.Failures++
	rec.LastError = err.Error()
	rec.LastErrorAt = time.Now().UTC()
}

// ledgerRecord returns the ledger entry for a task type, creating it if
// needed. Caller must hold w.mu.
func (w *Worker) ledgerRecord(taskType string) *LedgerRecord {
	rec, ok := w.ledger[taskType]
	if !ok {
		rec = &LedgerRecord{}
		w.ledger[taskType] = rec
	}
	return rec
}
