package worker

import (
	"log/slog"
	"time"
)

// Health thresholds. A worker flags itself once its success rate drops
// below the floor over a meaningful sample, or when it has sat idle
// longer than the idle threshold.
const (
	successRateFloor = 0.8
	minSampleSize    = 10
	idleThreshold    = 5 * time.Minute
)

// HealthStatus classifies a worker's health sample.
type HealthStatus string

const (
	// HealthOK means the worker is operating within thresholds.
	HealthOK HealthStatus = "ok"
	// HealthDegraded means the worker's success rate fell below the floor.
	HealthDegraded HealthStatus = "degraded"
	// HealthIdle means the worker has not finished a task recently.
	HealthIdle HealthStatus = "idle"
)

// Snapshot is a point-in-time health sample of a single worker.
type Snapshot struct {
	WorkerID     string        `json:"worker_id"`
	Name         string        `json:"name"`
	Status       HealthStatus  `json:"status"`
	Uptime       time.Duration `json:"uptime"`
	InFlight     int           `json:"in_flight"`
	SuccessRate  float64       `json:"success_rate"`
	LastActivity time.Time     `json:"last_activity,omitempty"`
	Warnings     []string      `json:"warnings,omitempty"`
}

// Sample produces a health snapshot as of now.
func (w *Worker) Sample(now time.Time) Snapshot {
	w.mu.Lock()
	metrics := w.metrics
	inFlight := w.inFlight
	startedAt := w.startedAt
	w.mu.Unlock()

	snap := Snapshot{
		WorkerID:     w.id.String(),
		Name:         w.cfg.Name,
		Status:       HealthOK,
		Uptime:       now.Sub(startedAt),
		InFlight:     inFlight,
		SuccessRate:  metrics.SuccessRate(),
		LastActivity: metrics.LastActivity,
	}

	if metrics.TotalTasks() >= minSampleSize && metrics.SuccessRate() < successRateFloor {
		snap.Status = HealthDegraded
		snap.Warnings = append(snap.Warnings, "success rate below threshold")
	}

	idleSince := metrics.LastActivity
	if idleSince.IsZero() {
		idleSince = startedAt
	}
	if inFlight == 0 && now.Sub(idleSince) > idleThreshold {
		if snap.Status == HealthOK {
			snap.Status = HealthIdle
		}
		snap.Warnings = append(snap.Warnings, "worker idle")
	}

	return snap
}

// StartHealth launches the worker's periodic health sampling loop.
// It is a no-op when no health interval is configured.
func (w *Worker) StartHealth() {
	if w.healthInterval <= 0 {
		return
	}

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()

		ticker := time.NewTicker(w.healthInterval)
		defer ticker.Stop()

		for {
			select {
			case <-w.stopCh:
				return
			case now := <-ticker.C:
				snap := w.Sample(now.UTC())
				for _, warning := range snap.Warnings {
					w.logger.Warn("worker health warning",
						slog.String("worker", w.cfg.Name),
						slog.String("worker_id", w.id.String()),
						slog.String("warning", warning),
						slog.Float64("success_rate", snap.SuccessRate),
					)
				}
			}
		}
	}()
}

// Stop terminates the health loop and waits for it to exit.
func (w *Worker) Stop() {
	w.stopOnce.Do(func() {
		close(w.stopCh)
	})
	w.wg.Wait()
}
