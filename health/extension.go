package health

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"

	"github.com/taskmesh/taskmesh/ext"
	"github.com/taskmesh/taskmesh/id"
	"github.com/taskmesh/taskmesh/task"
)

// Compile-time interface checks.
var (
	_ ext.Extension        = (*MetricsExtension)(nil)
	_ ext.TaskSubmitted    = (*MetricsExtension)(nil)
	_ ext.TaskCompleted    = (*MetricsExtension)(nil)
	_ ext.TaskFailed       = (*MetricsExtension)(nil)
	_ ext.TaskRetrying     = (*MetricsExtension)(nil)
	_ ext.TaskCancelled    = (*MetricsExtension)(nil)
	_ ext.WorkerRegistered = (*MetricsExtension)(nil)
	_ ext.CronFired        = (*MetricsExtension)(nil)
)

// MetricsExtension records system-wide lifecycle counters via
// OpenTelemetry. Register it on the dispatcher to track submission
// rates, completions, failures, retries, cancellations, worker
// registrations and cron fires.
type MetricsExtension struct {
	taskSubmitted     metric.Int64Counter
	taskCompleted     metric.Int64Counter
	taskFailed        metric.Int64Counter
	taskRetried       metric.Int64Counter
	taskCancelled     metric.Int64Counter
	workersRegistered metric.Int64Counter
	cronFired         metric.Int64Counter
}

// NewMetricsExtension creates a MetricsExtension on the global meter
// provider.
func NewMetricsExtension() *MetricsExtension {
	return NewMetricsExtensionWithMeter(otel.Meter("github.com/taskmesh/taskmesh/health"))
}

// NewMetricsExtensionWithMeter creates a MetricsExtension with the
// provided meter. Use an sdk meter backed by a manual reader in tests.
func NewMetricsExtensionWithMeter(meter metric.Meter) *MetricsExtension {
	m := &MetricsExtension{}
	m.taskSubmitted, _ = meter.Int64Counter("taskmesh.task.submitted",
		metric.WithDescription("Tasks accepted into the queue"))
	m.taskCompleted, _ = meter.Int64Counter("taskmesh.task.completed",
		metric.WithDescription("Tasks completed successfully"))
	m.taskFailed, _ = meter.Int64Counter("taskmesh.task.failed",
		metric.WithDescription("Tasks failed terminally"))
	m.taskRetried, _ = meter.Int64Counter("taskmesh.task.retried",
		metric.WithDescription("Task retry attempts"))
	m.taskCancelled, _ = meter.Int64Counter("taskmesh.task.cancelled",
		metric.WithDescription("Tasks cancelled while queued"))
	m.workersRegistered, _ = meter.Int64Counter("taskmesh.worker.registered",
		metric.WithDescription("Workers registered with the dispatcher"))
	m.cronFired, _ = meter.Int64Counter("taskmesh.cron.fired",
		metric.WithDescription("Cron entries fired"))
	return m
}

// Name implements ext.Extension.
func (m *MetricsExtension) Name() string { return "health-metrics" }

// OnTaskSubmitted implements ext.TaskSubmitted.
func (m *MetricsExtension) OnTaskSubmitted(ctx context.Context, _ *task.Task) error {
	m.taskSubmitted.Add(ctx, 1)
	return nil
}

// OnTaskCompleted implements ext.TaskCompleted.
func (m *MetricsExtension) OnTaskCompleted(ctx context.Context, _ *task.Task, _ time.Duration) error {
	m.taskCompleted.Add(ctx, 1)
	return nil
}

// OnTaskFailed implements ext.TaskFailed.
func (m *MetricsExtension) OnTaskFailed(ctx context.Context, _ *task.Task, _ error) error {
	m.taskFailed.Add(ctx, 1)
	return nil
}

// OnTaskRetrying implements ext.TaskRetrying.
func (m *MetricsExtension) OnTaskRetrying(ctx context.Context, _ *task.Task, _ int, _ time.Time) error {
	m.taskRetried.Add(ctx, 1)
	return nil
}

// OnTaskCancelled implements ext.TaskCancelled.
func (m *MetricsExtension) OnTaskCancelled(ctx context.Context, _ *task.Task) error {
	m.taskCancelled.Add(ctx, 1)
	return nil
}

// OnWorkerRegistered implements ext.WorkerRegistered.
func (m *MetricsExtension) OnWorkerRegistered(ctx context.Context, _ id.WorkerID, _ string, _ []string) error {
	m.workersRegistered.Add(ctx, 1)
	return nil
}

// OnCronFired implements ext.CronFired.
func (m *MetricsExtension) OnCronFired(ctx context.Context, _ string, _ id.TaskID) error {
	m.cronFired.Add(ctx, 1)
	return nil
}
