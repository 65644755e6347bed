package runner

import (
	"context"
	"fmt"

	"golang.org/x/sync/semaphore"
)

type result[T any] struct {
	val T
	err error
}

// invoke runs fn according to mode. Suspending bodies are called on the current
// goroutine. Blocking bodies wait for a pool slot and run on their own goroutine;
// the caller stops waiting when ctx ends, but the slot is only freed once the body returns.
func invoke[T any](ctx context.Context, pool *semaphore.Weighted, blocking bool, fn func(context.Context) (T, error)) (T, error) {
	if !blocking {
		return guard(ctx, fn)
	}

	var zero T
	if err := pool.Acquire(ctx, 1); err != nil {
		return zero, err
	}

	done := make(chan result[T], 1)
	go func() {
		defer pool.Release(1)
		v, err := guard(ctx, fn)
		done <- result[T]{val: v, err: err}
	}()

	select {
	case res := <-done:
		return res.val, res.err
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

// guard converts a panic in fn into an error.
func guard[T any](ctx context.Context, fn func(context.Context) (T, error)) (v T, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic: %v", p)
		}
	}()
	return fn(ctx)
}
