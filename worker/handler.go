package worker

import (
	"context"
	"fmt"

	"github.com/taskmesh/taskmesh"
	"github.com/taskmesh/taskmesh/codec"
	"github.com/taskmesh/taskmesh/task"
)

// Handler is the single seam between the scheduler core and all business
// logic. It receives the task and returns an encoded result or an error.
// Handlers must not touch dispatcher-owned state; faults are converted to
// structured failures at the worker boundary, never propagated raw.
type Handler func(ctx context.Context, t *task.Task) ([]byte, error)

// Typed wraps a handler over a concrete payload type T. The task's payload
// is decoded with the codec it was submitted with before the typed handler
// runs. Decode failures are validation errors, not execution failures.
func Typed[T any](fn func(ctx context.Context, payload T) ([]byte, error)) Handler {
	return func(ctx context.Context, t *task.Task) ([]byte, error) {
		var p T
		if len(t.Payload) > 0 {
			if err := codec.Get(t.Codec).Unmarshal(t.Payload, &p); err != nil {
				return nil, fmt.Errorf("%w: decode payload for %q: %v", taskmesh.ErrValidation, t.Type, err)
			}
		}
		return fn(ctx, p)
	}
}
