package dispatcher

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/taskmesh/taskmesh"
	"github.com/taskmesh/taskmesh/backoff"
	"github.com/taskmesh/taskmesh/codec"
	"github.com/taskmesh/taskmesh/ext"
	"github.com/taskmesh/taskmesh/health"
	"github.com/taskmesh/taskmesh/history"
	"github.com/taskmesh/taskmesh/id"
	"github.com/taskmesh/taskmesh/queue"
	"github.com/taskmesh/taskmesh/task"
	"github.com/taskmesh/taskmesh/worker"
)

// Receipt is returned to the submitter on a successful submission.
type Receipt struct {
	TaskID        id.TaskID `json:"task_id"`
	QueuePosition int       `json:"queue_position"`
}

// activeEntry tracks a task while a worker executes it.
type activeEntry struct {
	t       *task.Task
	w       *worker.Worker
	started time.Time
	cancel  context.CancelFunc
}

// Dispatcher owns the queue, the active registry and the worker
// registry. All shared state is guarded by a single mutex; lifecycle
// transitions happen on the run loop's serial turn.
type Dispatcher struct {
	cfg       taskmesh.Config
	logger    *slog.Logger
	backoff   backoff.Strategy
	limiter   *queue.Limiter
	routes    map[string]string
	codecName string

	exts        *ext.Registry
	pendingExts []ext.Extension
	archive     *history.Service
	monitor     *health.Monitor

	mu      sync.Mutex
	queue   *queue.Queue
	active  map[string]*activeEntry
	workers map[string]*worker.Worker
	// loads counts assignments per worker id. The dispatcher reserves a
	// slot here synchronously at assignment; the worker's own slot
	// counter only moves once its goroutine starts executing.
	loads   map[string]int
	running bool
	stopped bool

	resultCh chan *task.Result
	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup // run loop
	taskWG   sync.WaitGroup // in-flight executions
}

// New creates a Dispatcher with an in-memory archive and default
// configuration.
func New(opts ...Option) *Dispatcher {
	d := &Dispatcher{
		cfg:       taskmesh.DefaultConfig(),
		logger:    slog.Default(),
		backoff:   backoff.DefaultStrategy(),
		limiter:   queue.NewLimiter(),
		codecName: codec.NameJSON,
		archive:   history.NewService(history.NewMemoryStore()),
		queue:     queue.New(),
		active:    make(map[string]*activeEntry),
		workers:   make(map[string]*worker.Worker),
		loads:     make(map[string]int),
		stopCh:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(d)
	}

	d.exts = ext.NewRegistry(d.logger)
	for _, e := range d.pendingExts {
		d.exts.Register(e)
	}
	d.pendingExts = nil

	d.resultCh = make(chan *task.Result, d.cfg.MaxActive)
	d.monitor = health.NewMonitor(d,
		health.WithInterval(d.cfg.HealthInterval),
		health.WithLogger(d.logger),
	)
	return d
}

// History returns the archive service for record queries and resubmits.
func (d *Dispatcher) History() *history.Service { return d.archive }

// Extensions returns the lifecycle hook registry. It satisfies
// cron.Emitter.
func (d *Dispatcher) Extensions() *ext.Registry { return d.exts }

// Health returns the dispatcher's health monitor.
func (d *Dispatcher) Health() *health.Monitor { return d.monitor }

// RegisterWorker adds a worker to the registry and starts its health
// loop. Worker ids and names must be unique within a dispatcher.
func (d *Dispatcher) RegisterWorker(ctx context.Context, w *worker.Worker) error {
	d.mu.Lock()
	if _, exists := d.workers[w.ID().String()]; exists {
		d.mu.Unlock()
		return fmt.Errorf("%w: id %s", taskmesh.ErrWorkerExists, w.ID())
	}
	for _, existing := range d.workers {
		if existing.Name() == w.Name() {
			d.mu.Unlock()
			return fmt.Errorf("%w: name %q", taskmesh.ErrWorkerExists, w.Name())
		}
	}
	d.workers[w.ID().String()] = w
	d.mu.Unlock()

	w.StartHealth()
	d.exts.EmitWorkerRegistered(ctx, w.ID(), w.Name(), w.Capabilities())
	d.logger.Info("worker registered",
		slog.String("worker", w.Name()),
		slog.String("worker_id", w.ID().String()),
		slog.Any("capabilities", w.Capabilities()),
		slog.Int("concurrency_limit", w.ConcurrencyLimit()),
	)
	return nil
}

// Submit validates a typed payload, encodes it and enqueues a task.
// It fails synchronously with ErrValidation for a malformed submission
// and with ErrNoCapableWorker when no registered worker handles the
// type; a rejected task never enters the queue.
func (d *Dispatcher) Submit(ctx context.Context, taskType string, payload any, opts ...task.Option) (*Receipt, error) {
	if taskType == "" {
		return nil, fmt.Errorf("%w: task type is required", taskmesh.ErrValidation)
	}
	if payload == nil {
		return nil, fmt.Errorf("%w: task payload is required", taskmesh.ErrValidation)
	}

	options := task.DefaultOptions()
	for _, opt := range opts {
		opt(&options)
	}
	codecName := options.Codec
	if codecName == "" {
		codecName = d.codecName
	}

	data, err := codec.Get(codecName).Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: encode payload: %v", taskmesh.ErrValidation, err)
	}

	taskID, err := d.SubmitEncoded(ctx, taskType, data, codecName, opts...)
	if err != nil {
		return nil, err
	}

	d.mu.Lock()
	pos, _ := d.queue.Position(taskID.String())
	d.mu.Unlock()
	return &Receipt{TaskID: taskID, QueuePosition: pos}, nil
}

// SubmitEncoded enqueues a task whose payload is already encoded. Its
// signature satisfies the cron and history submit callbacks.
func (d *Dispatcher) SubmitEncoded(ctx context.Context, taskType string, data []byte, codecName string, opts ...task.Option) (id.TaskID, error) {
	if taskType == "" {
		return id.Nil, fmt.Errorf("%w: task type is required", taskmesh.ErrValidation)
	}

	options := task.DefaultOptions()
	for _, opt := range opts {
		opt(&options)
	}
	if !options.Priority.Valid() {
		return id.Nil, fmt.Errorf("%w: unknown priority %q", taskmesh.ErrValidation, options.Priority)
	}
	maxRetries := options.MaxRetries
	if maxRetries < 0 {
		maxRetries = d.cfg.MaxRetries
	}
	if codecName == "" {
		codecName = d.codecName
	}

	now := time.Now().UTC()
	t := &task.Task{
		ID:          id.NewTaskID(),
		Type:        taskType,
		Payload:     data,
		Codec:       codecName,
		Priority:    options.Priority,
		Status:      task.StatusQueued,
		MaxRetries:  maxRetries,
		SubmittedAt: now,
		NotBefore:   options.NotBefore,
	}
	t.CreatedAt = now
	t.UpdatedAt = now

	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return id.Nil, taskmesh.ErrDispatcherStopped
	}
	if !d.anyCapableLocked(t) {
		d.mu.Unlock()
		return id.Nil, fmt.Errorf("%w: no worker handles %q", taskmesh.ErrNoCapableWorker, taskType)
	}
	d.queue.Push(t)
	pos, _ := d.queue.Position(t.ID.String())
	d.mu.Unlock()

	d.exts.EmitTaskSubmitted(ctx, t)
	d.logger.Info("task submitted",
		slog.String("task_id", t.ID.String()),
		slog.String("type", t.Type),
		slog.String("priority", string(t.Priority)),
		slog.Int("queue_position", pos),
	)
	return t.ID, nil
}

// Resubmit clones a terminally failed or cancelled task from the archive
// into a fresh submission.
func (d *Dispatcher) Resubmit(ctx context.Context, taskID id.TaskID) (id.TaskID, error) {
	return d.archive.Resubmit(ctx, taskID, d.SubmitEncoded)
}

// Cancel removes a queued task and archives it as cancelled. Active
// tasks cannot be cancelled; unknown or terminal ids report not found.
func (d *Dispatcher) Cancel(ctx context.Context, taskID id.TaskID) error {
	d.mu.Lock()
	if t, ok := d.queue.Remove(taskID.String()); ok {
		now := time.Now().UTC()
		t.Status = task.StatusCancelled
		t.FinishedAt = &now
		t.Touch()
		d.mu.Unlock()

		if err := d.archive.Archive(ctx, t); err != nil {
			d.logger.Error("archive cancelled task failed",
				slog.String("task_id", t.ID.String()),
				slog.Any("error", err),
			)
		}
		d.exts.EmitTaskCancelled(ctx, t)
		d.logger.Info("task cancelled", slog.String("task_id", t.ID.String()))
		return nil
	}
	if _, ok := d.active[taskID.String()]; ok {
		d.mu.Unlock()
		return fmt.Errorf("%w: task %s is executing", taskmesh.ErrCannotCancelActive, taskID)
	}
	d.mu.Unlock()
	return fmt.Errorf("%w: %s", taskmesh.ErrNotFound, taskID)
}

// Start launches the run loop and the health monitor.
func (d *Dispatcher) Start(ctx context.Context) error {
	d.mu.Lock()
	if d.running {
		d.mu.Unlock()
		return fmt.Errorf("taskmesh/dispatcher: already running")
	}
	if d.stopped {
		d.mu.Unlock()
		return taskmesh.ErrDispatcherStopped
	}
	d.running = true
	d.mu.Unlock()

	d.wg.Add(1)
	go d.run(ctx)
	d.monitor.Start(ctx)

	d.logger.Info("dispatcher started",
		slog.Duration("drain_interval", d.cfg.DrainInterval),
		slog.Int("max_active", d.cfg.MaxActive),
	)
	return nil
}

// Stop gracefully shuts the dispatcher down: no new submissions are
// accepted, in-flight tasks get up to ShutdownTimeout to finish, then
// their contexts are cancelled. Queued tasks are dropped; there is no
// persistence across restarts.
func (d *Dispatcher) Stop(ctx context.Context) error {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return taskmesh.ErrDispatcherStopped
	}
	d.stopped = true
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.taskWG.Wait()
		close(done)
	}()

	timer := time.NewTimer(d.cfg.ShutdownTimeout)
	defer timer.Stop()
	select {
	case <-done:
	case <-timer.C:
		d.logger.Warn("shutdown timeout reached, cancelling in-flight tasks")
		d.cancelActive()
		<-done
	case <-ctx.Done():
		d.cancelActive()
		<-done
	}

	d.stopOnce.Do(func() { close(d.stopCh) })
	d.wg.Wait()
	d.monitor.Stop()

	d.mu.Lock()
	d.running = false
	workers := make([]*worker.Worker, 0, len(d.workers))
	for _, w := range d.workers {
		workers = append(workers, w)
	}
	d.mu.Unlock()

	for _, w := range workers {
		w.Stop()
	}
	d.exts.EmitShutdown(ctx)
	d.logger.Info("dispatcher stopped")
	return nil
}

func (d *Dispatcher) cancelActive() {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, entry := range d.active {
		entry.cancel()
	}
}

// anyCapableLocked reports whether a registered worker can handle the
// task, regardless of current load.
func (d *Dispatcher) anyCapableLocked(t *task.Task) bool {
	for _, w := range d.workers {
		if w.CanHandle(t) {
			return true
		}
	}
	return false
}
