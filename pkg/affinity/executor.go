// Package affinity runs units of work on the single goroutine that is allowed
// to touch debugger engine state.
//
// Callers on any goroutine submit a function with Call and block until it has
// run on the executor goroutine. Units never overlap. A unit that has started
// always runs to completion; a caller whose context ends first gets the
// context error back while the unit finishes on its own.
package affinity

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/go-logr/logr"
)

// ErrStopped is returned for work submitted to an executor that is not running.
var ErrStopped = errors.New("executor stopped")

type unit struct {
	ctx context.Context
	run func()
}

// Executor is a single-worker queue.
type Executor struct {
	log   logr.Logger
	queue chan unit

	mu      sync.Mutex
	stopped bool
	done    chan struct{}
}

// New returns an executor whose queue holds up to backlog pending units.
func New(log logr.Logger, backlog int) *Executor {
	if backlog < 0 {
		backlog = 0
	}
	return &Executor{
		log:   log.WithName("affinity"),
		queue: make(chan unit, backlog),
		done:  make(chan struct{}),
	}
}

// Run executes submitted units one at a time until ctx is done. It must be
// called exactly once; the goroutine calling it becomes the privileged one.
func (e *Executor) Run(ctx context.Context) error {
	e.log.V(1).Info("executor started")
	defer func() {
		e.mu.Lock()
		e.stopped = true
		close(e.done)
		e.mu.Unlock()
		e.log.V(1).Info("executor stopped")
	}()
	for {
		select {
		case <-ctx.Done():
			return nil
		case u := <-e.queue:
			if u.ctx.Err() != nil {
				// The submitter gave up before the unit started.
				continue
			}
			u.run()
		}
	}
}

// Call runs fn on the executor and returns its result.
func Call[T any](ctx context.Context, e *Executor, fn func() (T, error)) (T, error) {
	var zero T
	type result struct {
		value T
		err   error
	}
	out := make(chan result, 1)
	u := unit{
		ctx: ctx,
		run: func() {
			var r result
			defer func() {
				if p := recover(); p != nil {
					r = result{err: fmt.Errorf("panic on executor: %v", p)}
					e.log.Error(r.err, "unit of work panicked")
				}
				out <- r
			}()
			r.value, r.err = fn()
		},
	}

	e.mu.Lock()
	if e.stopped {
		e.mu.Unlock()
		return zero, ErrStopped
	}
	e.mu.Unlock()

	select {
	case e.queue <- u:
	case <-e.done:
		return zero, ErrStopped
	case <-ctx.Done():
		return zero, ctx.Err()
	}

	select {
	case r := <-out:
		return r.value, r.err
	case <-e.done:
		// The unit may have been the last one to run.
		select {
		case r := <-out:
			return r.value, r.err
		default:
			return zero, ErrStopped
		}
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

// Do runs fn on the executor.
func Do(ctx context.Context, e *Executor, fn func() error) error {
	_, err := Call(ctx, e, func() (struct{}, error) {
		return struct{}{}, fn()
	})
	return err
}
