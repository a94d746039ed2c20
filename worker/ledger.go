package worker

import "time"

// LedgerRecord tallies per-task-type outcomes on a single worker. The
// ledger is purely additive bookkeeping: the dispatcher's scoring does not
// consume it, but operators can read it to spot failure-prone task types.
type LedgerRecord struct {
	Successes   int64     `json:"successes"`
	Failures    int64     `json:"failures"`
	LastError   string    `json:"last_error,omitempty"`
	LastErrorAt time.Time `json:"last_error_at,omitempty"`
}

// Ledger returns a copy of the worker's per-task-type tallies.
func (w *Worker) Ledger() map[string]LedgerRecord {
	w.mu.Lock()
	defer w.mu.Unlock()

	out := make(map[string]LedgerRecord, len(w.ledger))
	for taskType, rec := range w.ledger {
		out[taskType] = *rec
	}
	return out
}
