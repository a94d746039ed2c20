package health

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/taskmesh/taskmesh/worker"
)

// Default monitor thresholds.
const (
	defaultInterval         = 15 * time.Second
	defaultLoadThreshold    = 0.9
	defaultSuccessRateFloor = 0.8
	defaultMinSampleSize    = 10
)

// WorkerSample is a single worker's contribution to a system sample.
type WorkerSample struct {
	WorkerID    string              `json:"worker_id"`
	Name        string              `json:"name"`
	InFlight    int                 `json:"in_flight"`
	Capacity    int                 `json:"capacity"`
	SuccessRate float64             `json:"success_rate"`
	TotalTasks  int64               `json:"total_tasks"`
	Status      worker.HealthStatus `json:"status"`
}

// SystemSample is a point-in-time picture of dispatcher load.
type SystemSample struct {
	At            time.Time      `json:"at"`
	QueueDepth    int            `json:"queue_depth"`
	ActiveTasks   int            `json:"active_tasks"`
	TotalCapacity int            `json:"total_capacity"`
	SystemLoad    float64        `json:"system_load"`
	Workers       []WorkerSample `json:"workers"`
}

// Source produces system samples. The dispatcher implements it.
type Source interface {
	Sample(ctx context.Context) (SystemSample, error)
}

// Monitor periodically samples a Source and logs threshold warnings.
type Monitor struct {
	source   Source
	logger   *slog.Logger
	interval time.Duration

	loadThreshold    float64
	successRateFloor float64
	minSampleSize    int64

	mu     sync.Mutex
	latest *SystemSample

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// MonitorOption configures a Monitor.
type MonitorOption func(*Monitor)

// WithInterval sets the sampling interval.
func WithInterval(d time.Duration) MonitorOption {
	return func(m *Monitor) { m.interval = d }
}

// WithLogger sets the logger used for warnings.
func WithLogger(logger *slog.Logger) MonitorOption {
	return func(m *Monitor) { m.logger = logger }
}

// WithLoadThreshold overrides the system load level above which the
// monitor warns.
func WithLoadThreshold(v float64) MonitorOption {
	return func(m *Monitor) { m.loadThreshold = v }
}

// WithSuccessRateFloor overrides the per-worker success rate below
// which the monitor warns, once the worker has a meaningful sample.
func WithSuccessRateFloor(v float64) MonitorOption {
	return func(m *Monitor) { m.successRateFloor = v }
}

// NewMonitor creates a monitor over the given source.
func NewMonitor(source Source, opts ...MonitorOption) *Monitor {
	m := &Monitor{
		source:           source,
		logger:           slog.Default(),
		interval:         defaultInterval,
		loadThreshold:    defaultLoadThreshold,
		successRateFloor: defaultSuccessRateFloor,
		minSampleSize:    defaultMinSampleSize,
		stopCh:           make(chan struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.interval <= 0 {
		m.interval = defaultInterval
	}
	return m
}

// Latest returns the most recent sample, or nil when none has been
// taken yet.
func (m *Monitor) Latest() *SystemSample {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.latest == nil {
		return nil
	}
	cp := *m.latest
	cp.Workers = append([]WorkerSample(nil), m.latest.Workers...)
	return &cp
}

// Check takes an immediate sample, records it and logs any warnings.
func (m *Monitor) Check(ctx context.Context) (SystemSample, error) {
	sample, err := m.source.Sample(ctx)
	if err != nil {
		return SystemSample{}, err
	}

	m.mu.Lock()
	m.latest = &sample
	m.mu.Unlock()

	m.warn(sample)
	return sample, nil
}

// Start launches the periodic sampling loop.
func (m *Monitor) Start(ctx context.Context) {
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()

		ticker := time.NewTicker(m.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-m.stopCh:
				return
			case <-ticker.C:
				if _, err := m.Check(ctx); err != nil {
					m.logger.Error("health sample failed", slog.Any("error", err))
				}
			}
		}
	}()
}

// Stop terminates the sampling loop and waits for it to exit.
func (m *Monitor) Stop() {
	m.stopOnce.Do(func() {
		close(m.stopCh)
	})
	m.wg.Wait()
}

func (m *Monitor) warn(sample SystemSample) {
	if sample.SystemLoad > m.loadThreshold {
		m.logger.Warn("system load above threshold",
			slog.Float64("load", sample.SystemLoad),
			slog.Int("active", sample.ActiveTasks),
			slog.Int("capacity", sample.TotalCapacity),
			slog.Int("queue_depth", sample.QueueDepth),
		)
	}

	for _, ws := range sample.Workers {
		if ws.TotalTasks >= m.minSampleSize && ws.SuccessRate < m.successRateFloor {
			m.logger.Warn("worker success rate below threshold",
				slog.String("worker", ws.Name),
				slog.String("worker_id", ws.WorkerID),
				slog.Float64("success_rate", ws.SuccessRate),
				slog.Int64("total_tasks", ws.TotalTasks),
			)
		}
		if ws.Status == worker.HealthDegraded {
			m.logger.Warn("worker degraded",
				slog.String("worker", ws.Name),
				slog.String("worker_id", ws.WorkerID),
			)
		}
	}
}
