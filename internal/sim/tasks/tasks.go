package tasks

import (
	"runtime"
	"time"

	"github.com/alitto/pond/v2"
)

// NewPool returns a fixed-size worker pool. workers <= 0 means GOMAXPROCS.
func NewPool(workers int) pond.Pool {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	return pond.NewPool(workers)
}

// Task is a handle on work submitted to a pool. The result slot is written by the
// worker and read only after Join.
type Task[T any] struct {
	handle  pond.Task
	result  T
	elapsed time.Duration
}

// Spawn submits fn and returns its handle. There is no cancellation: fn always runs
// to completion.
func Spawn[T any](pool pond.Pool, fn func() T) *Task[T] {
	t := &Task[T]{}
	t.handle = pool.Submit(func() {
		start := time.Now()
		defer func() { t.elapsed = time.Since(start) }()
		t.result = fn()
	})
	return t
}

// Done reports whether the task has finished without blocking.
func (t *Task[T]) Done() bool {
	select {
	case <-t.handle.Done():
		return true
	default:
		return false
	}
}

// Join blocks until the task completes. A panic inside the task is returned as an
// error with the zero result.
func (t *Task[T]) Join() (T, time.Duration, error) {
	if err := t.handle.Wait(); err != nil {
		var zero T
		return zero, t.elapsed, err
	}
	return t.result, t.elapsed, nil
}
