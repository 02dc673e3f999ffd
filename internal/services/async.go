package services

import "context"

// Result carries the outcome of an asynchronous call.
type Result[T any] struct {
	Value T
	Err   error
}

// Async runs fn on its own goroutine and delivers the outcome on the
// returned channel, which receives exactly one value. A cancelled ctx is
// reported as the error when fn has not finished.
func Async[T any](ctx context.Context, fn func(context.Context) (T, error)) <-chan Result[T] {
	out := make(chan Result[T], 1)
	done := make(chan Result[T], 1)

	go func() {
		v, err := fn(ctx)
		done <- Result[T]{Value: v, Err: err}
	}()

	go func() {
		select {
		case r := <-done:
			out <- r
		case <-ctx.Done():
			out <- Result[T]{Err: ctx.Err()}
		}
	}()

	return out
}
