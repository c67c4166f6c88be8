// Package taskrun serializes the heavy pipeline operations. Exactly one
// task runs at a time; submitting while busy is rejected outright rather
// than queued, because a queued harvest behind a harvest is pure waste.
package taskrun

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
)

// ErrBusy means another task is still running.
var ErrBusy = errors.New("taskrun: busy")

// Progress is handed to the running task. Both callbacks are non-nil.
type Progress struct {
	Text func(string)
	Pct  func(int)
}

// Task is one unit of background work.
type Task func(ctx context.Context, p Progress) (any, error)

// Callbacks observe a task's lifecycle. Any field may be nil. OnResult
// fires only for a non-nil result; OnFinished always fires last.
type Callbacks struct {
	OnResult       func(any)
	OnError        func(error)
	OnFinished     func()
	OnProgressText func(string)
	OnProgressPct  func(int)
}

// Runner runs at most one task at a time.
type Runner struct {
	busy    atomic.Bool
	deliver func(func())
	logger  *slog.Logger
	wg      sync.WaitGroup
}

// Option configures a Runner.
type Option func(*Runner)

// WithDeliver routes callback invocations through fn, typically to hop
// onto a UI thread. Default is direct invocation on the task goroutine.
func WithDeliver(fn func(func())) Option {
	return func(r *Runner) { r.deliver = fn }
}

func New(logger *slog.Logger, opts ...Option) *Runner {
	r := &Runner{logger: logger}
	for _, o := range opts {
		o(r)
	}
	if r.logger == nil {
		r.logger = slog.Default()
	}
	if r.deliver == nil {
		r.deliver = func(fn func()) { fn() }
	}
	return r
}

// Busy reports whether a task is currently running.
func (r *Runner) Busy() bool {
	return r.busy.Load()
}

// Submit starts a task. It returns ErrBusy without side effects when a
// task is already running.
func (r *Runner) Submit(ctx context.Context, name string, task Task, cb Callbacks) error {
	if !r.busy.CompareAndSwap(false, true) {
		return ErrBusy
	}
	r.logger.Info("taskrun: starting", "task", name)

	p := Progress{
		Text: func(msg string) {
			if cb.OnProgressText != nil {
				r.deliver(func() { cb.OnProgressText(msg) })
			}
		},
		Pct: func(v int) {
			if cb.OnProgressPct != nil {
				r.deliver(func() { cb.OnProgressPct(v) })
			}
		},
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		result, err := r.run(ctx, name, task, p)

		// Clear before the callbacks so an OnFinished that submits the
		// next task is not rejected.
		r.busy.Store(false)

		if err != nil {
			r.logger.Error("taskrun: failed", "task", name, "error", err)
			if cb.OnError != nil {
				r.deliver(func() { cb.OnError(err) })
			}
		} else if result != nil && cb.OnResult != nil {
			r.deliver(func() { cb.OnResult(result) })
		}
		if cb.OnFinished != nil {
			r.deliver(cb.OnFinished)
		}
	}()
	return nil
}

// run executes the task, converting a panic into an error so a buggy
// task cannot take the process down or leave the runner busy forever.
func (r *Runner) run(ctx context.Context, name string, task Task, p Progress) (result any, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("taskrun: %s panicked: %v", name, rec)
		}
	}()
	return task(ctx, p)
}

// Wait blocks until the in-flight task, if any, has finished. Used on
// shutdown and in tests.
func (r *Runner) Wait() {
	r.wg.Wait()
}
