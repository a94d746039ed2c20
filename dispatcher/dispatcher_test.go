package dispatcher_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"reflect"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/taskmesh/taskmesh"
	"github.com/taskmesh/taskmesh/dispatcher"
	"github.com/taskmesh/taskmesh/id"
	"github.com/taskmesh/taskmesh/queue"
	"github.com/taskmesh/taskmesh/task"
	"github.com/taskmesh/taskmesh/worker"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newDispatcher(t *testing.T, opts ...dispatcher.Option) *dispatcher.Dispatcher {
	t.Helper()
	base := []dispatcher.Option{
		dispatcher.WithLogger(quietLogger()),
		dispatcher.WithConfig(taskmesh.Config{
			MaxActive:       10,
			DrainInterval:   10 * time.Millisecond,
			MaxRetries:      3,
			ShutdownTimeout: 2 * time.Second,
			HealthInterval:  time.Minute,
		}),
	}
	return dispatcher.New(append(base, opts...)...)
}

func newWorker(t *testing.T, name string, caps []string, limit int, timeout time.Duration, h worker.Handler, opts ...worker.Option) *worker.Worker {
	t.Helper()
	w, err := worker.New(worker.Config{
		Name:             name,
		Capabilities:     caps,
		ConcurrencyLimit: limit,
		TaskTimeout:      timeout,
	}, h, quietLogger(), opts...)
	if err != nil {
		t.Fatalf("worker.New(%s) error = %v", name, err)
	}
	return w
}

func okHandler(_ context.Context, _ *task.Task) ([]byte, error) {
	return []byte(`done`), nil
}

// waitFor polls until the condition holds or the deadline passes.
func waitFor(t *testing.T, timeout time.Duration, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

// terminalRecord polls until the task reaches a terminal state and
// returns its archive record.
func terminalRecord(t *testing.T, d *dispatcher.Dispatcher, taskID id.TaskID, timeout time.Duration) *dispatcher.TaskStatus {
	t.Helper()
	var status *dispatcher.TaskStatus
	waitFor(t, timeout, "terminal state of "+taskID.String(), func() bool {
		st, err := d.TaskStatus(context.Background(), taskID)
		if err != nil {
			return false
		}
		if st.Record == nil {
			return false
		}
		status = st
		return true
	})
	return status
}

func TestSubmit_Validation(t *testing.T) {
	d := newDispatcher(t)

	if _, err := d.Submit(context.Background(), "", map[string]string{"a": "b"}); !errors.Is(err, taskmesh.ErrValidation) {
		t.Errorf("empty type error = %v, want ErrValidation", err)
	}
	if _, err := d.Submit(context.Background(), "report.build", nil); !errors.Is(err, taskmesh.ErrValidation) {
		t.Errorf("nil payload error = %v, want ErrValidation", err)
	}
	if _, err := d.Submit(context.Background(), "report.build", "x", task.WithPriority("sideways")); !errors.Is(err, taskmesh.ErrValidation) {
		t.Errorf("bad priority error = %v, want ErrValidation", err)
	}
}

func TestSubmit_NoCapableWorkerNeverQueued(t *testing.T) {
	d := newDispatcher(t)
	ctx := context.Background()

	if err := d.RegisterWorker(ctx, newWorker(t, "alpha", []string{"report.build"}, 1, time.Second, okHandler)); err != nil {
		t.Fatalf("RegisterWorker() error = %v", err)
	}

	receipt, err := d.Submit(ctx, "payment.charge", map[string]string{"amount": "10"})
	if !errors.Is(err, taskmesh.ErrNoCapableWorker) {
		t.Fatalf("Submit() error = %v, want ErrNoCapableWorker", err)
	}
	if receipt != nil {
		t.Error("rejected submission returned a receipt")
	}
	if depth := d.SystemStatus(ctx).QueueDepth; depth != 0 {
		t.Errorf("QueueDepth = %d, want 0: rejected task must never enter the queue", depth)
	}
	if total, _ := d.History().Store().Count(ctx, ""); total != 0 {
		t.Errorf("archive count = %d, want 0", total)
	}
}

func TestSubmit_ReturnsQueuePosition(t *testing.T) {
	d := newDispatcher(t)
	ctx := context.Background()

	if err := d.RegisterWorker(ctx, newWorker(t, "alpha", []string{"report.build"}, 1, time.Second, okHandler)); err != nil {
		t.Fatalf("RegisterWorker() error = %v", err)
	}

	first, err := d.Submit(ctx, "report.build", "a")
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if first.QueuePosition != 1 {
		t.Errorf("first QueuePosition = %d, want 1", first.QueuePosition)
	}

	second, err := d.Submit(ctx, "report.build", "b", task.WithPriority(task.PriorityUrgent))
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if second.QueuePosition != 1 {
		t.Errorf("urgent QueuePosition = %d, want 1 (jumps the normal task)", second.QueuePosition)
	}
}

func TestDispatcher_UrgentAssignedBeforeNormal(t *testing.T) {
	var mu sync.Mutex
	var order []string
	h := func(_ context.Context, tk *task.Task) ([]byte, error) {
		mu.Lock()
		order = append(order, tk.ID.String())
		mu.Unlock()
		return nil, nil
	}

	d := newDispatcher(t)
	ctx := context.Background()
	if err := d.RegisterWorker(ctx, newWorker(t, "alpha", []string{"report.build"}, 1, time.Second, h)); err != nil {
		t.Fatalf("RegisterWorker() error = %v", err)
	}

	normal, err := d.Submit(ctx, "report.build", "t1")
	if err != nil {
		t.Fatalf("Submit(normal) error = %v", err)
	}
	urgent, err := d.Submit(ctx, "report.build", "t2", task.WithPriority(task.PriorityUrgent))
	if err != nil {
		t.Fatalf("Submit(urgent) error = %v", err)
	}

	if err := d.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer d.Stop(ctx)

	terminalRecord(t, d, normal.TaskID, 2*time.Second)
	terminalRecord(t, d, urgent.TaskID, 2*time.Second)

	mu.Lock()
	defer mu.Unlock()
	if len(order) != 2 {
		t.Fatalf("executed %d tasks, want 2", len(order))
	}
	if order[0] != urgent.TaskID.String() {
		t.Errorf("first executed = %s, want the urgent task %s", order[0], urgent.TaskID)
	}
}

func TestDispatcher_SecondTaskWaitsForFreeSlot(t *testing.T) {
	release := make(chan struct{})
	h := func(ctx context.Context, _ *task.Task) ([]byte, error) {
		select {
		case <-release:
			return nil, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	d := newDispatcher(t)
	ctx := context.Background()
	if err := d.RegisterWorker(ctx, newWorker(t, "alpha", []string{"x"}, 1, 5*time.Second, h)); err != nil {
		t.Fatalf("RegisterWorker() error = %v", err)
	}

	first, err := d.Submit(ctx, "x", "1")
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	second, err := d.Submit(ctx, "x", "2")
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}

	if err := d.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	waitFor(t, time.Second, "first task assigned", func() bool {
		st, err := d.TaskStatus(ctx, first.TaskID)
		return err == nil && st.State == task.StatusAssigned
	})

	// Several drain ticks pass; the second task must stay queued at the
	// head without burning retries.
	time.Sleep(50 * time.Millisecond)
	st, err := d.TaskStatus(ctx, second.TaskID)
	if err != nil {
		t.Fatalf("TaskStatus() error = %v", err)
	}
	if st.State != task.StatusQueued {
		t.Fatalf("second task state = %s, want queued", st.State)
	}
	if st.QueuePosition != 1 {
		t.Errorf("second task position = %d, want 1", st.QueuePosition)
	}

	close(release)
	firstRec := terminalRecord(t, d, first.TaskID, 2*time.Second)
	secondRec := terminalRecord(t, d, second.TaskID, 2*time.Second)

	if firstRec.State != task.StatusCompleted || secondRec.State != task.StatusCompleted {
		t.Errorf("states = %s, %s; want both completed", firstRec.State, secondRec.State)
	}
	if secondRec.Record.RetryCount != 0 {
		t.Errorf("second task RetryCount = %d, want 0: waiting is not a retry", secondRec.Record.RetryCount)
	}
	d.Stop(ctx)
}

func TestDispatcher_TimeoutFailsWithinDeadline(t *testing.T) {
	slow := func(ctx context.Context, _ *task.Task) ([]byte, error) {
		select {
		case <-time.After(5 * time.Second):
			return nil, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	d := newDispatcher(t)
	ctx := context.Background()
	if err := d.RegisterWorker(ctx, newWorker(t, "slowpoke", []string{"slow.op"}, 1, 50*time.Millisecond, slow)); err != nil {
		t.Fatalf("RegisterWorker() error = %v", err)
	}
	if err := d.RegisterWorker(ctx, newWorker(t, "quick", []string{"quick.op"}, 1, time.Second, okHandler)); err != nil {
		t.Fatalf("RegisterWorker() error = %v", err)
	}

	if err := d.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer d.Stop(ctx)

	started := time.Now()
	slowReceipt, err := d.Submit(ctx, "slow.op", "payload", task.WithMaxRetries(0))
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}

	rec := terminalRecord(t, d, slowReceipt.TaskID, 2*time.Second)
	if rec.State != task.StatusFailed {
		t.Fatalf("state = %s, want failed", rec.State)
	}
	if !strings.Contains(rec.Record.Error, "timed out") {
		t.Errorf("record error = %q, want a timeout", rec.Record.Error)
	}
	if elapsed := time.Since(started); elapsed > time.Second {
		t.Errorf("timeout observed after %v, want well under a second", elapsed)
	}

	// The tick keeps processing other tasks unaffected.
	quickReceipt, err := d.Submit(ctx, "quick.op", "payload")
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	quickRec := terminalRecord(t, d, quickReceipt.TaskID, 2*time.Second)
	if quickRec.State != task.StatusCompleted {
		t.Errorf("quick task state = %s, want completed", quickRec.State)
	}
}

func TestDispatcher_RetryBudgetExhausted(t *testing.T) {
	var attempts atomic.Int32
	failing := func(_ context.Context, _ *task.Task) ([]byte, error) {
		attempts.Add(1)
		return nil, errors.New("flaky downstream")
	}

	d := newDispatcher(t)
	ctx := context.Background()
	if err := d.RegisterWorker(ctx, newWorker(t, "flaky", []string{"x"}, 1, time.Second, failing)); err != nil {
		t.Fatalf("RegisterWorker() error = %v", err)
	}
	if err := d.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer d.Stop(ctx)

	receipt, err := d.Submit(ctx, "x", "payload")
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}

	rec := terminalRecord(t, d, receipt.TaskID, 3*time.Second)
	if rec.State != task.StatusFailed {
		t.Fatalf("state = %s, want failed", rec.State)
	}
	if got := attempts.Load(); got != 4 {
		t.Errorf("attempts = %d, want 4 (initial + 3 retries)", got)
	}
	if rec.Record.RetryCount != 3 {
		t.Errorf("RetryCount = %d, want 3", rec.Record.RetryCount)
	}

	// The task is terminal; it is findable nowhere but the archive.
	if err := d.Cancel(ctx, receipt.TaskID); !errors.Is(err, taskmesh.ErrNotFound) {
		t.Errorf("Cancel(terminal) error = %v, want ErrNotFound", err)
	}
}

func TestDispatcher_CompletedTaskCarriesOutput(t *testing.T) {
	h := func(_ context.Context, _ *task.Task) ([]byte, error) {
		return []byte(`{"report":"ready"}`), nil
	}

	d := newDispatcher(t)
	ctx := context.Background()
	if err := d.RegisterWorker(ctx, newWorker(t, "alpha", []string{"report.build"}, 1, time.Second, h)); err != nil {
		t.Fatalf("RegisterWorker() error = %v", err)
	}
	if err := d.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer d.Stop(ctx)

	receipt, err := d.Submit(ctx, "report.build", map[string]string{"scope": "daily"})
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}

	rec := terminalRecord(t, d, receipt.TaskID, 2*time.Second)
	if rec.State != task.StatusCompleted {
		t.Fatalf("state = %s, want completed", rec.State)
	}
	if string(rec.Record.Output) != `{"report":"ready"}` {
		t.Errorf("Output = %s", rec.Record.Output)
	}
	if rec.Record.WorkerID.IsNil() {
		t.Error("record should carry the executing worker id")
	}
}

func TestDispatcher_TerminalStatusIdempotent(t *testing.T) {
	d := newDispatcher(t)
	ctx := context.Background()
	if err := d.RegisterWorker(ctx, newWorker(t, "alpha", []string{"x"}, 1, time.Second, okHandler)); err != nil {
		t.Fatalf("RegisterWorker() error = %v", err)
	}
	if err := d.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer d.Stop(ctx)

	receipt, err := d.Submit(ctx, "x", "payload")
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	terminalRecord(t, d, receipt.TaskID, 2*time.Second)

	first, err := d.TaskStatus(ctx, receipt.TaskID)
	if err != nil {
		t.Fatalf("TaskStatus() error = %v", err)
	}
	second, err := d.TaskStatus(ctx, receipt.TaskID)
	if err != nil {
		t.Fatalf("TaskStatus() error = %v", err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Error("repeated status queries on a terminal task should be identical")
	}
}

func TestDispatcher_CancelQueuedTask(t *testing.T) {
	d := newDispatcher(t)
	ctx := context.Background()
	if err := d.RegisterWorker(ctx, newWorker(t, "alpha", []string{"x"}, 1, time.Second, okHandler)); err != nil {
		t.Fatalf("RegisterWorker() error = %v", err)
	}

	// Not started: the task stays queued.
	receipt, err := d.Submit(ctx, "x", "payload")
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}

	st, err := d.TaskStatus(ctx, receipt.TaskID)
	if err != nil {
		t.Fatalf("TaskStatus() error = %v", err)
	}
	if st.State != task.StatusQueued || st.QueuePosition != 1 {
		t.Fatalf("status = %s pos %d, want queued pos 1", st.State, st.QueuePosition)
	}

	if err := d.Cancel(ctx, receipt.TaskID); err != nil {
		t.Fatalf("Cancel() error = %v", err)
	}

	after, err := d.TaskStatus(ctx, receipt.TaskID)
	if err != nil {
		t.Fatalf("TaskStatus() after cancel error = %v", err)
	}
	if after.State != task.StatusCancelled || after.Record == nil {
		t.Errorf("status after cancel = %+v, want archived cancelled record", after)
	}

	if err := d.Cancel(ctx, receipt.TaskID); !errors.Is(err, taskmesh.ErrNotFound) {
		t.Errorf("second Cancel() error = %v, want ErrNotFound", err)
	}
}

func TestDispatcher_CancelActiveTaskFails(t *testing.T) {
	release := make(chan struct{})
	h := func(ctx context.Context, _ *task.Task) ([]byte, error) {
		select {
		case <-release:
			return nil, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	d := newDispatcher(t)
	ctx := context.Background()
	if err := d.RegisterWorker(ctx, newWorker(t, "alpha", []string{"x"}, 1, 5*time.Second, h)); err != nil {
		t.Fatalf("RegisterWorker() error = %v", err)
	}
	if err := d.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	receipt, err := d.Submit(ctx, "x", "payload")
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	waitFor(t, time.Second, "task assigned", func() bool {
		st, err := d.TaskStatus(ctx, receipt.TaskID)
		return err == nil && st.State == task.StatusAssigned
	})

	if err := d.Cancel(ctx, receipt.TaskID); !errors.Is(err, taskmesh.ErrCannotCancelActive) {
		t.Errorf("Cancel(active) error = %v, want ErrCannotCancelActive", err)
	}

	close(release)
	terminalRecord(t, d, receipt.TaskID, 2*time.Second)
	d.Stop(ctx)
}

func TestDispatcher_RegisterWorkerRejectsDuplicates(t *testing.T) {
	d := newDispatcher(t)
	ctx := context.Background()

	w := newWorker(t, "alpha", []string{"x"}, 1, time.Second, okHandler)
	if err := d.RegisterWorker(ctx, w); err != nil {
		t.Fatalf("RegisterWorker() error = %v", err)
	}
	if err := d.RegisterWorker(ctx, w); !errors.Is(err, taskmesh.ErrWorkerExists) {
		t.Errorf("duplicate id error = %v, want ErrWorkerExists", err)
	}

	sameName := newWorker(t, "alpha", []string{"y"}, 1, time.Second, okHandler)
	if err := d.RegisterWorker(ctx, sameName); !errors.Is(err, taskmesh.ErrWorkerExists) {
		t.Errorf("duplicate name error = %v, want ErrWorkerExists", err)
	}
}

func TestDispatcher_PrefersDirectCapabilityMatch(t *testing.T) {
	d := newDispatcher(t)
	ctx := context.Background()

	direct := newWorker(t, "direct", []string{"report.build"}, 1, time.Second, okHandler)
	fuzzy, err := worker.New(worker.Config{
		Name:            "fuzzy",
		Specializations: []string{"report"},
	}, okHandler, quietLogger())
	if err != nil {
		t.Fatalf("worker.New(fuzzy) error = %v", err)
	}

	if err := d.RegisterWorker(ctx, direct); err != nil {
		t.Fatalf("RegisterWorker() error = %v", err)
	}
	if err := d.RegisterWorker(ctx, fuzzy); err != nil {
		t.Fatalf("RegisterWorker() error = %v", err)
	}
	if err := d.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer d.Stop(ctx)

	receipt, err := d.Submit(ctx, "report.build", "payload")
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	rec := terminalRecord(t, d, receipt.TaskID, 2*time.Second)
	if rec.Record.WorkerID.String() != direct.ID().String() {
		t.Errorf("executed by %s, want the direct-capability worker %s",
			rec.Record.WorkerID, direct.ID())
	}
}

func TestDispatcher_EqualScoresBreakOnSmallestID(t *testing.T) {
	d := newDispatcher(t)
	ctx := context.Background()

	a := newWorker(t, "twin-a", []string{"x"}, 1, time.Second, okHandler)
	b := newWorker(t, "twin-b", []string{"x"}, 1, time.Second, okHandler)
	expected := a
	if b.ID().String() < a.ID().String() {
		expected = b
	}

	if err := d.RegisterWorker(ctx, a); err != nil {
		t.Fatalf("RegisterWorker() error = %v", err)
	}
	if err := d.RegisterWorker(ctx, b); err != nil {
		t.Fatalf("RegisterWorker() error = %v", err)
	}
	if err := d.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer d.Stop(ctx)

	receipt, err := d.Submit(ctx, "x", "payload")
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	rec := terminalRecord(t, d, receipt.TaskID, 2*time.Second)
	if rec.Record.WorkerID.String() != expected.ID().String() {
		t.Errorf("executed by %s, want the smaller-id worker %s", rec.Record.WorkerID, expected.ID())
	}
}

func TestDispatcher_RouteNarrowsSelection(t *testing.T) {
	d := newDispatcher(t, dispatcher.WithRoutes(map[string]string{"report.": "plain"}))
	ctx := context.Background()

	// Without the route the specialist would win on score.
	plain := newWorker(t, "plain", []string{"report.build"}, 1, time.Second, okHandler)
	specialist, err := worker.New(worker.Config{
		Name:            "specialist",
		Capabilities:    []string{"report.build"},
		Specializations: []string{"report"},
	}, okHandler, quietLogger())
	if err != nil {
		t.Fatalf("worker.New(specialist) error = %v", err)
	}

	if err := d.RegisterWorker(ctx, plain); err != nil {
		t.Fatalf("RegisterWorker() error = %v", err)
	}
	if err := d.RegisterWorker(ctx, specialist); err != nil {
		t.Fatalf("RegisterWorker() error = %v", err)
	}
	if err := d.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer d.Stop(ctx)

	receipt, err := d.Submit(ctx, "report.build", "payload")
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	rec := terminalRecord(t, d, receipt.TaskID, 2*time.Second)
	if rec.Record.WorkerID.String() != plain.ID().String() {
		t.Errorf("executed by %s, want the routed worker %s", rec.Record.WorkerID, plain.ID())
	}
}

func TestDispatcher_TypeLimiterDefersAssignment(t *testing.T) {
	release := make(chan struct{})
	h := func(ctx context.Context, _ *task.Task) ([]byte, error) {
		select {
		case <-release:
			return nil, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	limiter := queue.NewLimiter(queue.Config{Type: "x", MaxActive: 1})
	d := newDispatcher(t, dispatcher.WithLimiter(limiter))
	ctx := context.Background()
	if err := d.RegisterWorker(ctx, newWorker(t, "wide", []string{"x"}, 5, 5*time.Second, h)); err != nil {
		t.Fatalf("RegisterWorker() error = %v", err)
	}
	if err := d.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	first, err := d.Submit(ctx, "x", "1")
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	second, err := d.Submit(ctx, "x", "2")
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}

	waitFor(t, time.Second, "first task assigned", func() bool {
		st, err := d.TaskStatus(ctx, first.TaskID)
		return err == nil && st.State == task.StatusAssigned
	})

	// The worker has free slots, but the type limit keeps the second
	// task queued.
	time.Sleep(50 * time.Millisecond)
	st, err := d.TaskStatus(ctx, second.TaskID)
	if err != nil {
		t.Fatalf("TaskStatus() error = %v", err)
	}
	if st.State != task.StatusQueued {
		t.Fatalf("second task state = %s, want queued under the type limit", st.State)
	}

	close(release)
	terminalRecord(t, d, first.TaskID, 2*time.Second)
	terminalRecord(t, d, second.TaskID, 2*time.Second)
	d.Stop(ctx)
}

func TestDispatcher_ResubmitFailedTask(t *testing.T) {
	var attempts atomic.Int32
	failing := func(_ context.Context, _ *task.Task) ([]byte, error) {
		attempts.Add(1)
		return nil, errors.New("downstream gone")
	}

	d := newDispatcher(t)
	ctx := context.Background()
	if err := d.RegisterWorker(ctx, newWorker(t, "flaky", []string{"x"}, 1, time.Second, failing)); err != nil {
		t.Fatalf("RegisterWorker() error = %v", err)
	}
	if err := d.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer d.Stop(ctx)

	receipt, err := d.Submit(ctx, "x", "payload", task.WithMaxRetries(0))
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	terminalRecord(t, d, receipt.TaskID, 2*time.Second)

	newID, err := d.Resubmit(ctx, receipt.TaskID)
	if err != nil {
		t.Fatalf("Resubmit() error = %v", err)
	}
	if newID.String() == receipt.TaskID.String() {
		t.Error("resubmission should mint a fresh task id")
	}
	terminalRecord(t, d, newID, 2*time.Second)

	original, err := d.History().Get(ctx, receipt.TaskID)
	if err != nil {
		t.Fatalf("History().Get() error = %v", err)
	}
	if original.ResubmitAt == nil {
		t.Error("original record should be marked resubmitted")
	}
}

func TestDispatcher_SystemStatusAndReport(t *testing.T) {
	d := newDispatcher(t)
	ctx := context.Background()
	if err := d.RegisterWorker(ctx, newWorker(t, "alpha", []string{"x"}, 4, time.Second, okHandler)); err != nil {
		t.Fatalf("RegisterWorker() error = %v", err)
	}
	if err := d.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer d.Stop(ctx)

	for range 3 {
		receipt, err := d.Submit(ctx, "x", "payload")
		if err != nil {
			t.Fatalf("Submit() error = %v", err)
		}
		terminalRecord(t, d, receipt.TaskID, 2*time.Second)
	}

	status := d.SystemStatus(ctx)
	if !status.Running {
		t.Error("Running = false, want true")
	}
	if status.TotalCapacity != 4 {
		t.Errorf("TotalCapacity = %d, want 4", status.TotalCapacity)
	}
	if len(status.Workers) != 1 || status.Workers[0].Name != "alpha" {
		t.Errorf("Workers = %+v", status.Workers)
	}

	report, err := d.PerformanceReport(ctx)
	if err != nil {
		t.Fatalf("PerformanceReport() error = %v", err)
	}
	if report.TasksCompleted != 3 {
		t.Errorf("TasksCompleted = %d, want 3", report.TasksCompleted)
	}
	if report.SuccessRate != 1.0 {
		t.Errorf("SuccessRate = %v, want 1.0", report.SuccessRate)
	}
	if report.ArchivedTotal != 3 {
		t.Errorf("ArchivedTotal = %d, want 3", report.ArchivedTotal)
	}
	if len(report.Workers) != 1 || len(report.Workers[0].Ledger) == 0 {
		t.Errorf("worker report = %+v, want a populated ledger", report.Workers)
	}
}

func TestDispatcher_SampleImplementsHealthSource(t *testing.T) {
	d := newDispatcher(t)
	ctx := context.Background()
	if err := d.RegisterWorker(ctx, newWorker(t, "alpha", []string{"x"}, 2, time.Second, okHandler)); err != nil {
		t.Fatalf("RegisterWorker() error = %v", err)
	}

	if _, err := d.Submit(ctx, "x", "payload"); err != nil {
		t.Fatalf("Submit() error = %v", err)
	}

	sample, err := d.Sample(ctx)
	if err != nil {
		t.Fatalf("Sample() error = %v", err)
	}
	if sample.QueueDepth != 1 {
		t.Errorf("QueueDepth = %d, want 1", sample.QueueDepth)
	}
	if sample.TotalCapacity != 2 {
		t.Errorf("TotalCapacity = %d, want 2", sample.TotalCapacity)
	}
	if len(sample.Workers) != 1 || sample.Workers[0].Name != "alpha" {
		t.Errorf("Workers = %+v", sample.Workers)
	}
}

func TestDispatcher_StopRejectsNewSubmissions(t *testing.T) {
	d := newDispatcher(t)
	ctx := context.Background()
	if err := d.RegisterWorker(ctx, newWorker(t, "alpha", []string{"x"}, 1, time.Second, okHandler)); err != nil {
		t.Fatalf("RegisterWorker() error = %v", err)
	}
	if err := d.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	receipt, err := d.Submit(ctx, "x", "payload")
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	terminalRecord(t, d, receipt.TaskID, 2*time.Second)

	if err := d.Stop(ctx); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	if _, err := d.Submit(ctx, "x", "payload"); !errors.Is(err, taskmesh.ErrDispatcherStopped) {
		t.Errorf("Submit() after Stop error = %v, want ErrDispatcherStopped", err)
	}
	if err := d.Stop(ctx); !errors.Is(err, taskmesh.ErrDispatcherStopped) {
		t.Errorf("second Stop() error = %v, want ErrDispatcherStopped", err)
	}
}
