// Package worker runs independent tasks, such as the processing of separate sweeps, with bounded concurrency.
// Errors of all tasks are collected; with fail fast the first error stops tasks that have not started yet.
package worker

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/xia2/xia2-go/internal/errors"
)

// Task is a unit of work. Its context is cancelled when the pool stops.
type Task func(ctx context.Context) error

// Option configures a Pool.
type Option func(*Pool)

// WithFailFast makes the first task error stop the pool.
func WithFailFast() Option {
	return func(wp *Pool) {
		wp.failFast = true
	}
}

// Pool manages concurrent task execution with a configurable number of workers.
type Pool struct {
	ctx       context.Context
	cancel    context.CancelFunc
	semaphore chan struct{}
	allErrors *errors.MultiError
	wg        sync.WaitGroup
	errorsMu  sync.Mutex
	active    atomic.Int32
	stopping  atomic.Bool
	failFast  bool
}

// NewWorkerPool creates a pool running at most maxWorkers tasks at a time. Tasks see a context derived from ctx.
func NewWorkerPool(ctx context.Context, maxWorkers int, opts ...Option) *Pool {
	if maxWorkers <= 0 {
		maxWorkers = 1
	}

	ctx, cancel := context.WithCancel(ctx)

	wp := &Pool{
		ctx:       ctx,
		cancel:    cancel,
		semaphore: make(chan struct{}, maxWorkers),
		allErrors: &errors.MultiError{},
	}

	for _, opt := range opts {
		opt(wp)
	}

	return wp
}

func (wp *Pool) appendError(err error) {
	wp.errorsMu.Lock()
	wp.allErrors = wp.allErrors.Append(err)
	wp.errorsMu.Unlock()

	if wp.failFast {
		wp.Stop()
	}
}

// Submit schedules task. It returns false when the pool is stopping and the task was dropped.
func (wp *Pool) Submit(task Task) bool {
	if wp.stopping.Load() {
		return false
	}

	wp.wg.Add(1)

	go func() {
		defer wp.wg.Done()

		select {
		case wp.semaphore <- struct{}{}:
		case <-wp.ctx.Done():
			return
		}

		defer func() { <-wp.semaphore }()

		// Stopped while waiting for a slot.
		if wp.ctx.Err() != nil {
			return
		}

		wp.active.Add(1)
		defer wp.active.Add(-1)

		if err := task(wp.ctx); err != nil {
			wp.appendError(err)
		}
	}()

	return true
}

// Wait blocks until every submitted task has returned or been dropped, and returns their errors.
func (wp *Pool) Wait() error {
	wp.wg.Wait()

	wp.errorsMu.Lock()
	defer wp.errorsMu.Unlock()

	return wp.allErrors.ErrorOrNil()
}

// Stop refuses new tasks and cancels the context of running ones. Tasks still waiting for a worker are dropped.
func (wp *Pool) Stop() {
	wp.stopping.Store(true)
	wp.cancel()
}

// GracefulStop refuses new tasks, waits for the submitted ones and releases the pool.
func (wp *Pool) GracefulStop() error {
	wp.stopping.Store(true)

	err := wp.Wait()
	wp.cancel()

	return err
}

// Active returns how many tasks are running.
func (wp *Pool) Active() int {
	return int(wp.active.Load())
}

// IsStopping returns whether the pool refuses new tasks.
func (wp *Pool) IsStopping() bool {
	return wp.stopping.Load()
}
