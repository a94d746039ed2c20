package task

import "time"

// Options configures per-task behavior at submission time.
type Options struct {
	// Priority determines drain ordering. Defaults to PriorityNormal.
	Priority Priority

	// MaxRetries is the retry budget before the task is terminally failed.
	// Negative means "use the dispatcher default".
	MaxRetries int

	// Codec names the payload codec ("json" or "msgpack").
	// Empty means the dispatcher default.
	Codec string

	// NotBefore defers assignment until the given time. Zero means the
	// task is eligible immediately.
	NotBefore time.Time
}

// DefaultOptions returns Options with submission defaults.
func DefaultOptions() Options {
	return Options{
		Priority:   PriorityNormal,
		MaxRetries: -1,
	}
}

// Option is a functional option applied at submission time.
type Option func(*Options)

// WithPriority sets the task priority.
func WithPriority(p Priority) Option {
	return func(o *Options) {
		o.Priority = p
	}
}

// WithMaxRetries overrides the dispatcher's default retry budget.
func WithMaxRetries(n int) Option {
	return func(o *Options) {
		o.MaxRetries = n
	}
}

// WithCodec selects the payload codec for this task.
func WithCodec(name string) Option {
	return func(o *Options) {
		o.Codec = name
	}
}

// WithNotBefore defers the task's eligibility for assignment.
func WithNotBefore(t time.Time) Option {
	return func(o *Options) {
		o.NotBefore = t
	}
}
