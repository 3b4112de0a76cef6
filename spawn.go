package fibers

import (
	"context"
	"fmt"

	"github.com/Swind/go-fibers/core"
)

// Handle is a TaskHandle whose result has a static type.
type Handle[T any] struct {
	core.TaskHandle
}

// Join waits for the task and returns its typed result.
func (h Handle[T]) Join(ctx context.Context) (T, error) {
	return JoinValue[T](ctx, h.TaskHandle)
}

// SpawnValue spawns fn on rt and returns a typed handle to its result.
func SpawnValue[T any](ctx context.Context, rt *Runtime, fn func(ctx context.Context) (T, error), opts ...SpawnOption) (Handle[T], error) {
	if fn == nil {
		return Handle[T]{}, ErrNilTask
	}
	h, err := rt.Spawn(ctx, func(ctx context.Context) (any, error) {
		return fn(ctx)
	}, opts...)
	if err != nil {
		return Handle[T]{}, err
	}
	return Handle[T]{TaskHandle: h}, nil
}

// JoinValue joins h and asserts its result to T. A nil result yields the
// zero T.
func JoinValue[T any](ctx context.Context, h TaskHandle) (T, error) {
	var zero T
	v, err := h.Join(ctx)
	if err != nil {
		return zero, err
	}
	if v == nil {
		return zero, nil
	}
	out, ok := v.(T)
	if !ok {
		return zero, fmt.Errorf("join %s: result is %T, not %T", h.ID(), v, zero)
	}
	return out, nil
}

// Go spawns fn as a task that produces no value.
func Go(ctx context.Context, rt *Runtime, fn func(ctx context.Context) error, opts ...SpawnOption) (TaskHandle, error) {
	if fn == nil {
		return TaskHandle{}, ErrNilTask
	}
	return rt.Spawn(ctx, func(ctx context.Context) (any, error) {
		return nil, fn(ctx)
	}, opts...)
}

// JoinAll joins every handle in order and returns the first error.
func JoinAll(ctx context.Context, handles ...TaskHandle) error {
	var first error
	for _, h := range handles {
		if _, err := h.Join(ctx); err != nil && first == nil {
			first = err
		}
	}
	return first
}
