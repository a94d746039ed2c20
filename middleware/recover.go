package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"

	"github.com/taskmesh/taskmesh"
	"github.com/taskmesh/taskmesh/task"
)

// Recover returns middleware that recovers from panics in the handler chain.
// Panics are converted to execution errors and logged with a stack trace, so
// a misbehaving domain handler can never take down the dispatcher loop.
func Recover(logger *slog.Logger) Middleware {
	return func(ctx context.Context, t *task.Task, next Handler) (retErr error) {
		defer func() {
			if r := recover(); r != nil {
				stack := string(debug.Stack())
				logger.Error("task handler panicked",
					slog.String("task_type", t.Type),
					slog.String("task_id", t.ID.String()),
					slog.Any("panic", r),
					slog.String("stack", stack),
				)
				retErr = fmt.Errorf("%w: panic in %s handler: %v", taskmesh.ErrTaskExecution, t.Type, r)
			}
		}()
		return next(ctx)
	}
}
