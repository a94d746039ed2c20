// Package worker implements the capability-tagged task executor. A Worker
// wraps a single domain handler behind a uniform Execute contract, enforces
// its own timeout and concurrency slots, and records its own metrics and
// per-task-type ledger.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/taskmesh/taskmesh"
	"github.com/taskmesh/taskmesh/id"
	"github.com/taskmesh/taskmesh/middleware"
	"github.com/taskmesh/taskmesh/task"
)

// Config declares a worker's capabilities and limits. It is provided once
// at construction and treated as immutable for the worker's lifetime.
type Config struct {
	// Name is a human-readable worker name, unique within a dispatcher.
	Name string

	// Capabilities are the task types this worker handles directly.
	Capabilities []string

	// Specializations are broader domain tags used as a fuzzy secondary
	// match and scoring bonus.
	Specializations []string

	// ConcurrencyLimit is the maximum number of tasks this worker may
	// execute simultaneously. Defaults to 1.
	ConcurrencyLimit int

	// TaskTimeout is the per-task execution deadline enforced by the
	// worker's timeout guard. Defaults to 5 minutes.
	TaskTimeout time.Duration
}

// Worker executes tasks matching its declared capabilities.
type Worker struct {
	id      id.WorkerID
	cfg     Config
	handler Handler
	mw      middleware.Middleware
	extraMW []middleware.Middleware
	logger  *slog.Logger

	mu        sync.Mutex
	inFlight  int
	metrics   Metrics
	ledger    map[string]*LedgerRecord
	startedAt time.Time

	healthInterval time.Duration
	stopCh         chan struct{}
	stopOnce       sync.Once
	wg             sync.WaitGroup
}

// Option configures a Worker.
type Option func(*Worker)

// WithMiddleware prepends middleware to the worker's execution chain,
// outside the built-in timeout guard and panic recovery.
func WithMiddleware(mws ...middleware.Middleware) Option {
	return func(w *Worker) { w.extraMW = append(w.extraMW, mws...) }
}

// WithHealthInterval sets how often the worker samples its own health.
// A zero value disables the health loop.
func WithHealthInterval(d time.Duration) Option {
	return func(w *Worker) { w.healthInterval = d }
}

// WithID overrides the generated worker id. Intended for tests and for
// deterministic tie-breaking setups.
func WithID(workerID id.WorkerID) Option {
	return func(w *Worker) { w.id = workerID }
}

// New creates a Worker from its declared configuration and domain handler.
func New(cfg Config, handler Handler, logger *slog.Logger, opts ...Option) (*Worker, error) {
	if cfg.Name == "" {
		return nil, fmt.Errorf("%w: worker name is required", taskmesh.ErrValidation)
	}
	if handler == nil {
		return nil, fmt.Errorf("%w: worker %q needs a handler", taskmesh.ErrValidation, cfg.Name)
	}
	if len(cfg.Capabilities) == 0 && len(cfg.Specializations) == 0 {
		return nil, fmt.Errorf("%w: worker %q declares no capabilities", taskmesh.ErrValidation, cfg.Name)
	}
	if cfg.ConcurrencyLimit <= 0 {
		cfg.ConcurrencyLimit = 1
	}
	if cfg.TaskTimeout <= 0 {
		cfg.TaskTimeout = 5 * time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}

	w := &Worker{
		id:        id.NewWorkerID(),
		cfg:       cfg,
		handler:   handler,
		logger:    logger,
		ledger:    make(map[string]*LedgerRecord),
		startedAt: time.Now().UTC(),
		stopCh:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}

	// Recovery sits innermost so panics inside the timeout goroutine are
	// caught there; the guard itself wraps everything the handler does.
	chain := make([]middleware.Middleware, 0, len(w.extraMW)+2)
	chain = append(chain, w.extraMW...)
	chain = append(chain,
		middleware.Timeout(cfg.TaskTimeout, logger),
		middleware.Recover(logger),
	)
	w.mw = middleware.Chain(chain...)

	return w, nil
}

// ID returns the worker's unique identifier.
func (w *Worker) ID() id.WorkerID { return w.id }

// Name returns the worker's configured name.
func (w *Worker) Name() string { return w.cfg.Name }

// Capabilities returns the declared task types.
func (w *Worker) Capabilities() []string { return w.cfg.Capabilities }

// Specializations returns the declared domain tags.
func (w *Worker) Specializations() []string { return w.cfg.Specializations }

// ConcurrencyLimit returns the declared concurrency limit.
func (w *Worker) ConcurrencyLimit() int { return w.cfg.ConcurrencyLimit }

// TaskTimeout returns the per-task deadline.
func (w *Worker) TaskTimeout() time.Duration { return w.cfg.TaskTimeout }

// CanHandle reports whether the task's type matches a declared capability
// exactly or fuzzy-matches a declared specialization.
func (w *Worker) CanHandle(t *task.Task) bool {
	return w.hasCapability(t.Type) || w.matchesSpecialization(t.Type)
}

func (w *Worker) hasCapability(taskType string) bool {
	for _, c := range w.cfg.Capabilities {
		if c == taskType {
			return true
		}
	}
	return false
}

// matchesSpecialization fuzzy-matches a task type against the worker's
// domain tags: either string containing the other counts, so the tag
// "report" matches "report.generate" and vice versa.
func (w *Worker) matchesSpecialization(taskType string) bool {
	lowered := strings.ToLower(taskType)
	for _, s := range w.cfg.Specializations {
		tag := strings.ToLower(s)
		if strings.Contains(lowered, tag) || strings.Contains(tag, lowered) {
			return true
		}
	}
	return false
}

// HandlesUrgent reports whether the worker declares the urgent-handling
// capability used as a scoring bonus for urgent tasks.
func (w *Worker) HandlesUrgent() bool {
	return w.hasCapability("urgent") || w.matchesSpecialization("urgent")
}

// Score rates how well this worker suits the task. Components:
// 50 for a direct capability match, 30 for a specialization match,
// up to 20 for a free load factor, 10 for a success rate above 0.9,
// and 15 when an urgent task meets an urgent-capable worker.
func (w *Worker) Score(t *task.Task) float64 {
	var score float64
	if w.hasCapability(t.Type) {
		score += 50
	}
	if w.matchesSpecialization(t.Type) {
		score += 30
	}
	score += 20 * (1 - w.Load())
	if w.Metrics().SuccessRate() > 0.9 {
		score += 10
	}
	if t.Priority == task.PriorityUrgent && w.HandlesUrgent() {
		score += 15
	}
	return score
}

// InFlight returns the number of currently executing tasks.
func (w *Worker) InFlight() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.inFlight
}

// Load returns the current load factor in [0, 1].
func (w *Worker) Load() float64 {
	return float64(w.InFlight()) / float64(w.cfg.ConcurrencyLimit)
}

// HasFreeSlot reports whether the worker can accept another task.
func (w *Worker) HasFreeSlot() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.inFlight < w.cfg.ConcurrencyLimit
}

func (w *Worker) tryAcquire() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.inFlight >= w.cfg.ConcurrencyLimit {
		return false
	}
	w.inFlight++
	return true
}

func (w *Worker) release() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.inFlight > 0 {
		w.inFlight--
	}
}

// Execute runs a task through the worker's uniform contract: shape
// validation, capability check, capacity check, then the middleware chain
// around the domain handler. It always returns a structured Result; no
// error or panic escapes this boundary.
func (w *Worker) Execute(ctx context.Context, t *task.Task) *task.Result {
	started := time.Now().UTC()
	res := &task.Result{
		WorkerID:  w.id,
		StartedAt: started,
	}

	fail := func(err error) *task.Result {
		res.Status = task.StatusFailed
		res.Err = err
		res.FinishedAt = time.Now().UTC()
		return res
	}

	if t == nil || t.ID.IsNil() || t.Type == "" {
		return fail(fmt.Errorf("%w: malformed task", taskmesh.ErrValidation))
	}
	res.TaskID = t.ID

	if !w.CanHandle(t) {
		return fail(fmt.Errorf("%w: worker %q cannot handle %q",
			taskmesh.ErrCapabilityMismatch, w.cfg.Name, t.Type))
	}
	if !w.tryAcquire() {
		return fail(fmt.Errorf("%w: worker %q at limit %d",
			taskmesh.ErrCapacityExceeded, w.cfg.Name, w.cfg.ConcurrencyLimit))
	}
	defer w.release()

	var output []byte
	terminal := func(ctx context.Context) error {
		out, err := w.handler(ctx, t)
		if err != nil {
			return err
		}
		output = out
		return nil
	}

	err := w.mw(ctx, t, terminal)
	res.FinishedAt = time.Now().UTC()
	elapsed := res.FinishedAt.Sub(started)

	if err != nil {
		// Anything the taxonomy does not already classify is a domain
		// handler fault.
		if !errors.Is(err, taskmesh.ErrTaskTimeout) &&
			!errors.Is(err, taskmesh.ErrTaskExecution) &&
			!errors.Is(err, taskmesh.ErrValidation) {
			err = fmt.Errorf("%w: %v", taskmesh.ErrTaskExecution, err)
		}
		res.Status = task.StatusFailed
		res.Err = err
		w.recordFailure(t.Type, elapsed, err)
		return res
	}

	res.Status = task.StatusCompleted
	res.Output = output
	w.recordSuccess(t.Type, elapsed)
	return res
}
