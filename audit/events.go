package audit

// Audit event actions. Each constant corresponds to one ext lifecycle
// hook and becomes the Action field of the audit event.
const (
	ActionTaskSubmitted    = "task.submitted"
	ActionTaskAssigned     = "task.assigned"
	ActionTaskCompleted    = "task.completed"
	ActionTaskFailed       = "task.failed"
	ActionTaskRetrying     = "task.retrying"
	ActionTaskCancelled    = "task.cancelled"
	ActionWorkerRegistered = "worker.registered"
	ActionCronFired        = "cron.fired"
)

// Audit event categories group related actions.
const (
	CategoryTask   = "taskmesh.task"
	CategoryWorker = "taskmesh.worker"
	CategoryCron   = "taskmesh.cron"
)

// Resource types used as the Resource field in audit events.
const (
	ResourceTask   = "task"
	ResourceWorker = "worker"
	ResourceCron   = "cron_entry"
)

// AllActions returns every action this extension can emit.
func AllActions() []string {
	return []string{
		ActionTaskSubmitted,
		ActionTaskAssigned,
		ActionTaskCompleted,
		ActionTaskFailed,
		ActionTaskRetrying,
		ActionTaskCancelled,
		ActionWorkerRegistered,
		ActionCronFired,
	}
}
