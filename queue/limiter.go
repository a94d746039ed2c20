package queue

import (
	"sync"

	"golang.org/x/time/rate"
)

// Config defines per-task-type limits applied during queue drain.
type Config struct {
	// Type is the task type this configuration applies to.
	Type string

	// MaxActive limits how many tasks of this type may run simultaneously
	// across all workers. Zero means no type-specific limit (the global
	// and per-worker limits still apply).
	MaxActive int

	// RateLimit is the maximum sustained assignments per second for this
	// task type. Zero disables rate limiting.
	RateLimit float64

	// RateBurst is the burst size for the token-bucket rate limiter.
	// Defaults to 1 if RateLimit is set but RateBurst is zero.
	RateBurst int
}

// typeState tracks runtime state for a single task type.
type typeState struct {
	config  Config
	limiter *rate.Limiter
	active  int
}

// Limiter controls per-task-type rate limiting and concurrency.
// It is safe for concurrent use.
type Limiter struct {
	mu    sync.Mutex
	types map[string]*typeState
}

// NewLimiter creates a Limiter with the given type configurations.
// Task types not listed here have no limits.
func NewLimiter(configs ...Config) *Limiter {
	l := &Limiter{
		types: make(map[string]*typeState, len(configs)),
	}
	for _, cfg := range configs {
		l.types[cfg.Type] = newTypeState(cfg)
	}
	return l
}

func newTypeState(cfg Config) *typeState {
	ts := &typeState{config: cfg}
	if cfg.RateLimit > 0 {
		burst := cfg.RateBurst
		if burst <= 0 {
			burst = 1
		}
		ts.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}
	return ts
}

// Acquire checks rate and concurrency limits for the given task type.
// If assignment is allowed it increments the active counter and returns
// true. The caller MUST call Release when the task finishes.
func (l *Limiter) Acquire(taskType string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	ts := l.types[taskType]
	if ts == nil {
		return true
	}
	if ts.limiter != nil && !ts.limiter.Allow() {
		return false
	}
	if ts.config.MaxActive > 0 && ts.active >= ts.config.MaxActive {
		return false
	}

	ts.active++
	return true
}

// Release decrements the active count for the task type.
func (l *Limiter) Release(taskType string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if ts := l.types[taskType]; ts != nil && ts.active > 0 {
		ts.active--
	}
}

// SetConfig dynamically updates (or creates) a task-type configuration.
func (l *Limiter) SetConfig(cfg Config) {
	l.mu.Lock()
	defer l.mu.Unlock()

	existing := l.types[cfg.Type]
	ts := newTypeState(cfg)

	// Preserve current active count if reconfiguring.
	if existing != nil {
		ts.active = existing.active
	}
	l.types[cfg.Type] = ts
}

// ActiveCount returns the current number of active tasks for a type.
func (l *Limiter) ActiveCount(taskType string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	if ts := l.types[taskType]; ts != nil {
		return ts.active
	}
	return 0
}
