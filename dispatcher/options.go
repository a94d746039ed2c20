package dispatcher

import (
	"log/slog"
	"time"

	"github.com/taskmesh/taskmesh"
	"github.com/taskmesh/taskmesh/backoff"
	"github.com/taskmesh/taskmesh/ext"
	"github.com/taskmesh/taskmesh/history"
	"github.com/taskmesh/taskmesh/queue"
)

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithConfig replaces the whole configuration.
func WithConfig(cfg taskmesh.Config) Option {
	return func(d *Dispatcher) { d.cfg = cfg }
}

// WithLogger sets the dispatcher's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(d *Dispatcher) { d.logger = logger }
}

// WithBackoff sets the retry delay strategy.
func WithBackoff(strategy backoff.Strategy) Option {
	return func(d *Dispatcher) { d.backoff = strategy }
}

// WithLimiter sets the per-task-type rate limiter consulted during drain.
func WithLimiter(limiter *queue.Limiter) Option {
	return func(d *Dispatcher) { d.limiter = limiter }
}

// WithRoutes installs a routing table mapping task-type prefixes to
// worker names. A matching route narrows worker selection to the named
// worker when it is capable; otherwise scoring falls back to the full
// candidate set.
func WithRoutes(routes map[string]string) Option {
	return func(d *Dispatcher) {
		d.routes = make(map[string]string, len(routes))
		for prefix, name := range routes {
			d.routes[prefix] = name
		}
	}
}

// WithHistoryStore replaces the terminal-task archive backend.
func WithHistoryStore(store history.Store) Option {
	return func(d *Dispatcher) { d.archive = history.NewService(store) }
}

// WithExtension registers a lifecycle extension.
func WithExtension(e ext.Extension) Option {
	return func(d *Dispatcher) { d.pendingExts = append(d.pendingExts, e) }
}

// WithDefaultCodec sets the codec used when a submission names none.
func WithDefaultCodec(name string) Option {
	return func(d *Dispatcher) { d.codecName = name }
}

// WithMaxActive overrides the global cap on concurrently executing tasks.
func WithMaxActive(n int) Option {
	return func(d *Dispatcher) { d.cfg.MaxActive = n }
}

// WithDrainInterval overrides how often the queue is drained.
func WithDrainInterval(interval time.Duration) Option {
	return func(d *Dispatcher) { d.cfg.DrainInterval = interval }
}

// WithMaxRetries overrides the default retry budget for submissions.
func WithMaxRetries(n int) Option {
	return func(d *Dispatcher) { d.cfg.MaxRetries = n }
}
