// Package apply runs long fixes off the caller's goroutine. Operations are
// executed one at a time in submission order, and exactly one continuation
// (success or failure) runs after each.
package apply

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
)

// ErrClosed is returned by Submit after Close.
var ErrClosed = errors.New("apply runner is closed")

// DefaultQueueSize is the number of operations that can wait for the worker.
const DefaultQueueSize = 16

// Config holds runner configuration
type Config struct {
	// QueueSize bounds pending operations; Submit blocks when full until
	// there is room, ctx is done or the runner is closed (default: 16).
	// A continuation that submits to a full queue waits for Close.
	QueueSize int

	// OnError receives errors raised by continuations (optional). Errors are
	// also delivered on Errors().
	OnError func(error)
}

// Runner executes submitted operations on a single worker goroutine.
type Runner struct {
	cfg   Config
	tasks chan func()
	errs  chan error
	quit  chan struct{}

	mu      sync.Mutex
	started bool
	closed  bool
	senders sync.WaitGroup
	wg      sync.WaitGroup
}

// NewRunner creates a runner. Call Start before submitting work.
func NewRunner(cfg *Config) (*Runner, error) {
	c := Config{QueueSize: DefaultQueueSize}
	if cfg != nil {
		c = *cfg
		if c.QueueSize == 0 {
			c.QueueSize = DefaultQueueSize
		}
	}
	if c.QueueSize < 0 {
		return nil, fmt.Errorf("queue size must be non-negative (got %d)", c.QueueSize)
	}

	return &Runner{
		cfg:   c,
		tasks: make(chan func(), c.QueueSize),
		errs:  make(chan error, c.QueueSize),
		quit:  make(chan struct{}),
	}, nil
}

// Start launches the worker. Calling Start more than once has no effect.
func (r *Runner) Start() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.started || r.closed {
		return
	}
	r.started = true

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		for task := range r.tasks {
			task()
		}
	}()
}

// Close stops accepting work and waits for queued operations to finish.
func (r *Runner) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	close(r.quit)
	r.mu.Unlock()

	// blocked submitters see quit; tasks is closed only once none is sending
	r.senders.Wait()
	close(r.tasks)
	r.wg.Wait()
	close(r.errs)
	return nil
}

// Errors returns continuation errors. The channel is closed by Close.
// Errors are dropped when nobody drains the channel and it is full.
func (r *Runner) Errors() <-chan error {
	return r.errs
}

func (r *Runner) enqueue(ctx context.Context, task func()) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return ErrClosed
	}
	if !r.started {
		r.mu.Unlock()
		return fmt.Errorf("apply runner not started")
	}
	r.senders.Add(1)
	r.mu.Unlock()
	defer r.senders.Done()

	select {
	case r.tasks <- task:
		return nil
	case <-r.quit:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Runner) reportError(err error) {
	slog.Warn("apply continuation failed", "error", err)
	if r.cfg.OnError != nil {
		r.cfg.OnError(err)
	}
	select {
	case r.errs <- err:
	default:
		slog.Warn("apply error channel full, dropping error", "error", err)
	}
}

// Future is the eventual result of a submitted operation.
type Future[T any] struct {
	done chan struct{}
	val  T
	err  error
}

// Done is closed once the operation and its continuation have run.
func (f *Future[T]) Done() <-chan struct{} {
	return f.done
}

// Wait blocks until the operation completes or ctx is done.
func (f *Future[T]) Wait(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		return f.val, f.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Submit queues op on r. After op returns, onSuccess or onFailure (either may
// be nil) runs on the worker goroutine. A panic in op is converted into an
// error and passed to onFailure. Errors returned by a continuation are
// surfaced through Config.OnError and Errors().
func Submit[T any](ctx context.Context, r *Runner, op func(ctx context.Context) (T, error), onSuccess func(T) error, onFailure func(error) error) (*Future[T], error) {
	if op == nil {
		return nil, fmt.Errorf("operation is required")
	}

	f := &Future[T]{done: make(chan struct{})}
	task := func() {
		defer close(f.done)

		f.val, f.err = safeCall(ctx, op)

		var contErr error
		if f.err == nil {
			if onSuccess != nil {
				contErr = safeContinue(func() error { return onSuccess(f.val) })
			}
		} else if onFailure != nil {
			contErr = safeContinue(func() error { return onFailure(f.err) })
		}
		if contErr != nil {
			r.reportError(contErr)
		}
	}

	if err := r.enqueue(ctx, task); err != nil {
		return nil, err
	}
	return f, nil
}

func safeCall[T any](ctx context.Context, op func(ctx context.Context) (T, error)) (val T, err error) {
	defer func() {
		if p := recover(); p != nil {
			slog.Debug("apply operation panicked", "panic", p, "stack", string(debug.Stack()))
			err = fmt.Errorf("operation panicked: %v", p)
		}
	}()
	return op(ctx)
}

func safeContinue(fn func() error) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("continuation panicked: %v", p)
		}
	}()
	if err := fn(); err != nil {
		return fmt.Errorf("continuation failed: %w", err)
	}
	return nil
}
