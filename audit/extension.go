package audit

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/taskmesh/taskmesh/ext"
	"github.com/taskmesh/taskmesh/id"
	"github.com/taskmesh/taskmesh/task"
)

// Compile-time interface checks.
var (
	_ ext.Extension        = (*Extension)(nil)
	_ ext.TaskSubmitted    = (*Extension)(nil)
	_ ext.TaskAssigned     = (*Extension)(nil)
	_ ext.TaskCompleted    = (*Extension)(nil)
	_ ext.TaskFailed       = (*Extension)(nil)
	_ ext.TaskRetrying     = (*Extension)(nil)
	_ ext.TaskCancelled    = (*Extension)(nil)
	_ ext.WorkerRegistered = (*Extension)(nil)
	_ ext.CronFired        = (*Extension)(nil)
)

// Recorder is the interface audit backends must implement.
type Recorder interface {
	// Record persists a fully-formed audit event.
	Record(ctx context.Context, event *Event) error
}

// Event is the structured audit record emitted for each lifecycle
// transition.
type Event struct {
	// What happened
	Action   string `json:"action"`
	Resource string `json:"resource"`
	Category string `json:"category"`

	// Details
	ResourceID string         `json:"resource_id,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	Outcome    string         `json:"outcome"`
	Severity   string         `json:"severity"`
	Reason     string         `json:"reason,omitempty"`
}

// RecorderFunc is an adapter to use a plain function as a Recorder.
type RecorderFunc func(ctx context.Context, event *Event) error

func (f RecorderFunc) Record(ctx context.Context, event *Event) error {
	return f(ctx, event)
}

// Severity constants.
const (
	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityCritical = "critical"
)

// Outcome constants.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// Extension bridges taskmesh lifecycle events to an audit trail backend.
// Each lifecycle hook emits a structured audit event through the
// [Recorder].
type Extension struct {
	recorder Recorder
	enabled  map[string]bool // nil = all enabled
	logger   *slog.Logger
}

// New creates an Extension that emits audit events through the provided
// Recorder.
func New(r Recorder, opts ...Option) *Extension {
	e := &Extension{
		recorder: r,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Name implements ext.Extension.
func (e *Extension) Name() string { return "audit" }

// OnTaskSubmitted implements ext.TaskSubmitted.
func (e *Extension) OnTaskSubmitted(ctx context.Context, t *task.Task) error {
	return e.record(ctx, ActionTaskSubmitted, SeverityInfo, OutcomeSuccess,
		ResourceTask, t.ID.String(), CategoryTask, nil,
		"type", t.Type,
		"priority", string(t.Priority),
	)
}

// OnTaskAssigned implements ext.TaskAssigned.
func (e *Extension) OnTaskAssigned(ctx context.Context, t *task.Task, workerID id.WorkerID) error {
	return e.record(ctx, ActionTaskAssigned, SeverityInfo, OutcomeSuccess,
		ResourceTask, t.ID.String(), CategoryTask, nil,
		"type", t.Type,
		"worker_id", workerID.String(),
	)
}

// OnTaskCompleted implements ext.TaskCompleted.
func (e *Extension) OnTaskCompleted(ctx context.Context, t *task.Task, elapsed time.Duration) error {
	return e.record(ctx, ActionTaskCompleted, SeverityInfo, OutcomeSuccess,
		ResourceTask, t.ID.String(), CategoryTask, nil,
		"type", t.Type,
		"worker_id", t.Worker.String(),
		"elapsed_ms", elapsed.Milliseconds(),
	)
}

// OnTaskFailed implements ext.TaskFailed.
func (e *Extension) OnTaskFailed(ctx context.Context, t *task.Task, taskErr error) error {
	return e.record(ctx, ActionTaskFailed, SeverityCritical, OutcomeFailure,
		ResourceTask, t.ID.String(), CategoryTask, taskErr,
		"type", t.Type,
		"retry_count", t.RetryCount,
		"max_retries", t.MaxRetries,
	)
}

// OnTaskRetrying implements ext.TaskRetrying.
func (e *Extension) OnTaskRetrying(ctx context.Context, t *task.Task, attempt int, notBefore time.Time) error {
	return e.record(ctx, ActionTaskRetrying, SeverityWarning, OutcomeFailure,
		ResourceTask, t.ID.String(), CategoryTask, nil,
		"type", t.Type,
		"attempt", attempt,
		"not_before", notBefore.Format(time.RFC3339),
	)
}

// OnTaskCancelled implements ext.TaskCancelled.
func (e *Extension) OnTaskCancelled(ctx context.Context, t *task.Task) error {
	return e.record(ctx, ActionTaskCancelled, SeverityInfo, OutcomeSuccess,
		ResourceTask, t.ID.String(), CategoryTask, nil,
		"type", t.Type,
	)
}

// OnWorkerRegistered implements ext.WorkerRegistered.
func (e *Extension) OnWorkerRegistered(ctx context.Context, workerID id.WorkerID, name string, capabilities []string) error {
	return e.record(ctx, ActionWorkerRegistered, SeverityInfo, OutcomeSuccess,
		ResourceWorker, workerID.String(), CategoryWorker, nil,
		"name", name,
		"capabilities", capabilities,
	)
}

// OnCronFired implements ext.CronFired.
func (e *Extension) OnCronFired(ctx context.Context, entryName string, taskID id.TaskID) error {
	return e.record(ctx, ActionCronFired, SeverityInfo, OutcomeSuccess,
		ResourceCron, entryName, CategoryCron, nil,
		"task_id", taskID.String(),
	)
}

// record builds and sends an audit event if the action is enabled.
// The kvPairs argument is a list of key-value pairs added to Metadata.
func (e *Extension) record(
	ctx context.Context,
	action, severity, outcome string,
	resource, resourceID, category string,
	err error,
	kvPairs ...any,
) error {
	if e.enabled != nil && !e.enabled[action] {
		return nil
	}

	meta := make(map[string]any, len(kvPairs)/2+1)
	for i := 0; i+1 < len(kvPairs); i += 2 {
		key, ok := kvPairs[i].(string)
		if !ok {
			key = fmt.Sprintf("%v", kvPairs[i])
		}
		meta[key] = kvPairs[i+1]
	}

	var reason string
	if err != nil {
		reason = err.Error()
		meta["error"] = err.Error()
	}

	evt := &Event{
		Action:     action,
		Resource:   resource,
		Category:   category,
		ResourceID: resourceID,
		Metadata:   meta,
		Outcome:    outcome,
		Severity:   severity,
		Reason:     reason,
	}

	if recErr := e.recorder.Record(ctx, evt); recErr != nil {
		e.logger.Warn("audit: failed to record audit event",
			slog.String("action", action),
			slog.String("resource_id", resourceID),
			slog.Any("error", recErr),
		)
	}
	return nil
}
