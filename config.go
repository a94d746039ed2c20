package taskmesh

import "time"

// Config holds configuration for the dispatch core.
type Config struct {
	// MaxActive is the global cap on concurrently executing tasks across
	// all workers. The drain loop stops assigning once it is reached.
	MaxActive int

	// DrainInterval is how often the dispatcher drains the priority queue.
	DrainInterval time.Duration

	// MaxRetries is the default retry budget for submitted tasks.
	// Individual tasks may override it at submission time.
	MaxRetries int

	// ShutdownTimeout is the maximum time to wait for in-flight tasks
	// during graceful shutdown before their contexts are cancelled.
	ShutdownTimeout time.Duration

	// HealthInterval is how often workers sample their own health.
	HealthInterval time.Duration
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		MaxActive:       10,
		DrainInterval:   1 * time.Second,
		MaxRetries:      3,
		ShutdownTimeout: 30 * time.Second,
		HealthInterval:  15 * time.Second,
	}
}
