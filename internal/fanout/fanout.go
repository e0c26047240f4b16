// Package fanout runs independent reads concurrently and joins their results.
package fanout

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"
)

// Task is a unit of work run concurrently with its siblings.
type Task func(ctx context.Context) error

// Join runs every task concurrently and waits for all of them. It returns the
// first error and cancels the remaining tasks; if timeout is positive the
// whole join is bounded by it. No task outlives the call.
func Join(ctx context.Context, timeout time.Duration, tasks ...Task) error {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	g, ctx := errgroup.WithContext(ctx)
	for _, task := range tasks {
		g.Go(func() error { return task(ctx) })
	}
	return g.Wait()
}

// Fetch wraps a value-producing function as a Task, storing the result in dst.
// dst must not be read until Join returns.
func Fetch[T any](dst *T, fn func(ctx context.Context) (T, error)) Task {
	return func(ctx context.Context) error {
		v, err := fn(ctx)
		if err != nil {
			return err
		}
		*dst = v
		return nil
	}
}
