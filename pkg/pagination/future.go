package pagination

import (
	"context"
	"fmt"
	"sync"
)

// Future is a handle to a result that settles exactly once, either with a
// value or with an error. It is safe for concurrent use and may be waited
// on by any number of goroutines.
type Future[T any] struct {
	once  sync.Once
	ready chan struct{} // closed on settlement
	value T
	err   error
}

// NewFuture returns an unsettled future.
func NewFuture[T any]() *Future[T] {
	return &Future[T]{ready: make(chan struct{})}
}

// Resolved returns a future already settled with v.
func Resolved[T any](v T) *Future[T] {
	f := NewFuture[T]()
	f.Resolve(v)
	return f
}

// Rejected returns a future already settled with err.
func Rejected[T any](err error) *Future[T] {
	f := NewFuture[T]()
	f.Reject(err)
	return f
}

// Go runs fn on a new goroutine and returns a future for its result.
// A panic in fn rejects the future instead of crashing the process.
func Go[T any](fn func() (T, error)) *Future[T] {
	f := NewFuture[T]()
	go func() {
		defer func() {
			if r := recover(); r != nil {
				f.Reject(fmt.Errorf("pagination: panic: %v", r))
			}
		}()
		v, err := fn()
		if err != nil {
			f.Reject(err)
			return
		}
		f.Resolve(v)
	}()
	return f
}

// Resolve settles f with v. It reports whether this call settled f;
// later calls are ignored.
func (f *Future[T]) Resolve(v T) bool {
	return f.settle(v, nil)
}

// Reject settles f with err. It reports whether this call settled f.
func (f *Future[T]) Reject(err error) bool {
	var zero T
	return f.settle(zero, err)
}

func (f *Future[T]) settle(v T, err error) (settled bool) {
	f.once.Do(func() {
		f.value, f.err = v, err
		close(f.ready)
		settled = true
	})
	return settled
}

// Ready returns a channel that is closed once f has settled.
func (f *Future[T]) Ready() <-chan struct{} {
	return f.ready
}

// Settled reports whether f has settled.
func (f *Future[T]) Settled() bool {
	select {
	case <-f.ready:
		return true
	default:
		return false
	}
}

// Wait blocks until f settles or ctx is done. A settled result wins over a
// cancelled context.
func (f *Future[T]) Wait(ctx context.Context) (T, error) {
	select {
	case <-f.ready:
		return f.value, f.err
	default:
	}

	select {
	case <-f.ready:
		return f.value, f.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Result blocks until f settles and returns its outcome.
func (f *Future[T]) Result() (T, error) {
	<-f.ready
	return f.value, f.err
}
