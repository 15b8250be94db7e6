package authsdk

import (
	"context"
	"sync"
)

// future is a value resolved exactly once. Waiters block until it settles.
type future[T any] struct {
	once sync.Once
	done chan struct{}
	val  T
	err  error
}

func newFuture[T any]() *future[T] {
	return &future[T]{done: make(chan struct{})}
}

// resolve settles the future. Later calls are ignored.
func (f *future[T]) resolve(v T, err error) {
	f.once.Do(func() {
		f.val, f.err = v, err
		close(f.done)
	})
}

func (f *future[T]) wait(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		return f.val, f.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

func (f *future[T]) settled() bool {
	select {
	case <-f.done:
		return true
	default:
		return false
	}
}
