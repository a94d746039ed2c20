package middleware

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/taskmesh/taskmesh"
	"github.com/taskmesh/taskmesh/task"
)

// Timeout returns middleware that enforces the worker's per-task execution
// deadline. The inner chain runs on its own goroutine racing a deadline
// context; when the deadline fires first the guard returns ErrTaskTimeout
// immediately.
//
// The deadline is threaded through the context, so a cooperative handler can
// observe ctx.Done() and stop early. A handler that ignores its context may
// keep running in the background; its eventual result is discarded.
func Timeout(d time.Duration, logger *slog.Logger) Middleware {
	return func(ctx context.Context, t *task.Task, next Handler) error {
		if d <= 0 {
			return next(ctx)
		}

		ctx, cancel := context.WithTimeout(ctx, d)
		defer cancel()

		// Buffered so an abandoned handler can still send and exit.
		done := make(chan error, 1)
		go func() {
			done <- next(ctx)
		}()

		select {
		case err := <-done:
			return err
		case <-ctx.Done():
			if !errors.Is(ctx.Err(), context.DeadlineExceeded) {
				// Parent cancellation (e.g. shutdown), not a timeout.
				return fmt.Errorf("%w: %v", taskmesh.ErrTaskExecution, ctx.Err())
			}
			logger.Warn("task deadline exceeded, abandoning handler",
				slog.String("task_type", t.Type),
				slog.String("task_id", t.ID.String()),
				slog.Duration("timeout", d),
			)
			return fmt.Errorf("%w: %s exceeded %s", taskmesh.ErrTaskTimeout, t.Type, d)
		}
	}
}
