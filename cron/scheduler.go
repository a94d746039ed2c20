package cron

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	cronlib "github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"

	"github.com/taskmesh/taskmesh/id"
	"github.com/taskmesh/taskmesh/task"
)

var (
	// ErrDuplicateEntry is returned when an entry name is already registered.
	ErrDuplicateEntry = errors.New("taskmesh/cron: duplicate entry name")
	// ErrEntryNotFound is returned when no entry has the given name.
	ErrEntryNotFound = errors.New("taskmesh/cron: entry not found")
)

// SubmitFunc is the callback the scheduler uses to submit tasks.
// This breaks the import cycle: the dispatcher provides the implementation.
type SubmitFunc func(ctx context.Context, taskType string, payload []byte, codecName string, opts ...task.Option) (id.TaskID, error)

// Emitter emits cron lifecycle events.
// ext.Registry satisfies this interface via EmitCronFired.
type Emitter interface {
	EmitCronFired(ctx context.Context, entryName string, taskID id.TaskID)
}

// cronParser supports standard 5-field cron and descriptors like "@every 30s".
var cronParser = cronlib.NewParser(
	cronlib.Minute | cronlib.Hour | cronlib.Dom | cronlib.Month | cronlib.Dow | cronlib.Descriptor,
)

// ParseSpec parses a cron expression and returns the schedule.
func ParseSpec(expr string) (cronlib.Schedule, error) {
	return cronParser.Parse(expr)
}

// SchedulerOption configures a Scheduler.
type SchedulerOption func(*Scheduler)

// WithTickInterval sets how often the scheduler checks for due entries.
func WithTickInterval(d time.Duration) SchedulerOption {
	return func(s *Scheduler) { s.tickInterval = d }
}

// WithSchedulerLogger sets the scheduler's logger.
func WithSchedulerLogger(logger *slog.Logger) SchedulerOption {
	return func(s *Scheduler) { s.logger = logger }
}

// Scheduler fires cron entries on a tick loop and submits the resulting
// tasks through the provided callback.
type Scheduler struct {
	submit  SubmitFunc
	emitter Emitter
	logger  *slog.Logger

	tickInterval time.Duration

	mu      sync.Mutex
	entries map[string]*Entry

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewScheduler creates a Scheduler. The submit callback is required.
func NewScheduler(submit SubmitFunc, emitter Emitter, opts ...SchedulerOption) *Scheduler {
	s := &Scheduler{
		submit:       submit,
		emitter:      emitter,
		logger:       slog.Default(),
		tickInterval: 1 * time.Second,
		entries:      make(map[string]*Entry),
		stopCh:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Add registers a new entry. The first run is scheduled at the
// expression's next activation after now.
func (s *Scheduler) Add(spec EntrySpec) (*Entry, error) {
	if spec.Name == "" {
		return nil, fmt.Errorf("taskmesh/cron: entry name is required")
	}
	if spec.TaskType == "" {
		return nil, fmt.Errorf("taskmesh/cron: entry task type is required")
	}
	sched, err := ParseSpec(spec.Spec)
	if err != nil {
		return nil, fmt.Errorf("taskmesh/cron: parse %q: %w", spec.Spec, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.entries[spec.Name]; exists {
		return nil, fmt.Errorf("%w: %s", ErrDuplicateEntry, spec.Name)
	}

	entry := &Entry{
		ID:       id.NewCronID(),
		Name:     spec.Name,
		Spec:     spec.Spec,
		TaskType: spec.TaskType,
		Payload:  append([]byte(nil), spec.Payload...),
		Codec:    spec.Codec,
		Priority: spec.Priority,
		Enabled:  true,
		NextRun:  sched.Next(time.Now().UTC()),
		schedule: sched,
	}
	s.entries[spec.Name] = entry

	s.logger.Info("cron entry added",
		slog.String("name", entry.Name),
		slog.String("spec", entry.Spec),
		slog.String("task_type", entry.TaskType),
		slog.Time("next_run", entry.NextRun),
	)
	return snapshotEntry(entry), nil
}

// Remove deletes an entry by name.
func (s *Scheduler) Remove(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.entries[name]; !exists {
		return fmt.Errorf("%w: %s", ErrEntryNotFound, name)
	}
	delete(s.entries, name)
	return nil
}

// Enable toggles an entry without removing it.
func (s *Scheduler) Enable(name string, enabled bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, exists := s.entries[name]
	if !exists {
		return fmt.Errorf("%w: %s", ErrEntryNotFound, name)
	}
	entry.Enabled = enabled
	if enabled {
		entry.NextRun = entry.schedule.Next(time.Now().UTC())
	}
	return nil
}

// Entries returns a copy of all registered entries.
func (s *Scheduler) Entries() []*Entry {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*Entry, 0, len(s.entries))
	for _, entry := range s.entries {
		out = append(out, snapshotEntry(entry))
	}
	return out
}

// Start launches the tick loop.
func (s *Scheduler) Start(ctx context.Context) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		ticker := time.NewTicker(s.tickInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-s.stopCh:
				return
			case now := <-ticker.C:
				s.fireDue(ctx, now.UTC())
			}
		}
	}()
	s.logger.Info("cron scheduler started", slog.Duration("tick_interval", s.tickInterval))
}

// Stop terminates the tick loop and waits for in-flight fires.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopCh)
	})
	s.wg.Wait()
	s.logger.Info("cron scheduler stopped")
}

// fireDue submits every due entry. Entries fire concurrently; a failed
// submission is logged and does not block the others.
func (s *Scheduler) fireDue(ctx context.Context, now time.Time) {
	s.mu.Lock()
	var due []*Entry
	for _, entry := range s.entries {
		if !entry.Enabled || entry.NextRun.After(now) {
			continue
		}
		fired := now
		entry.LastRun = &fired
		entry.NextRun = entry.schedule.Next(now)
		due = append(due, entry)
	}
	s.mu.Unlock()

	if len(due) == 0 {
		return
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, entry := range due {
		g.Go(func() error {
			s.fire(gctx, entry)
			return nil
		})
	}
	_ = g.Wait()
}

func (s *Scheduler) fire(ctx context.Context, entry *Entry) {
	var opts []task.Option
	if entry.Priority != "" {
		opts = append(opts, task.WithPriority(entry.Priority))
	}
	if entry.Codec != "" {
		opts = append(opts, task.WithCodec(entry.Codec))
	}

	taskID, err := s.submit(ctx, entry.TaskType, entry.Payload, entry.Codec, opts...)
	if err != nil {
		s.logger.Error("cron submit failed",
			slog.String("name", entry.Name),
			slog.String("task_type", entry.TaskType),
			slog.Any("error", err),
		)
		return
	}

	if s.emitter != nil {
		s.emitter.EmitCronFired(ctx, entry.Name, taskID)
	}

	s.logger.Info("cron fired",
		slog.String("name", entry.Name),
		slog.String("task_type", entry.TaskType),
		slog.String("task_id", taskID.String()),
	)
}

func snapshotEntry(entry *Entry) *Entry {
	cp := *entry
	cp.Payload = append([]byte(nil), entry.Payload...)
	if entry.LastRun != nil {
		last := *entry.LastRun
		cp.LastRun = &last
	}
	return &cp
}
