// Package deferred lets synchronous notification handlers signal that their
// work finishes asynchronously.
//
// A handler that is not done when it returns asks the dispatch's [Args] for a
// [Deferral] and completes it later. [Invoke] calls every handler in order and
// then waits, concurrently, for all deferrals the handlers requested.
package deferred

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
)

// ErrCancelled is returned when a wait ends because its context was done
// before the deferral completed.
var ErrCancelled = errors.New("deferral wait cancelled")

const (
	statePending int32 = iota
	stateCompleted
	stateCancelled
)

// Deferral is a one-shot signal a handler completes once its asynchronous
// work is done. It resolves exactly once, either completed or cancelled.
type Deferral struct {
	state atomic.Int32
	done  chan struct{}
}

func newDeferral() *Deferral {
	return &Deferral{done: make(chan struct{})}
}

// Complete marks the deferral as done. Calling it more than once, or after
// the deferral was cancelled, has no effect.
func (d *Deferral) Complete() {
	d.resolve(stateCompleted)
}

func (d *Deferral) resolve(state int32) bool {
	if !d.state.CompareAndSwap(statePending, state) {
		return false
	}
	close(d.done)
	return true
}

// Resolved reports whether the deferral was completed or cancelled.
func (d *Deferral) Resolved() bool { return d.state.Load() != statePending }

// Completed reports whether the deferral was completed rather than cancelled.
func (d *Deferral) Completed() bool { return d.state.Load() == stateCompleted }

// Done is closed once the deferral is resolved.
func (d *Deferral) Done() <-chan struct{} { return d.done }

// Wait blocks until the deferral is completed or ctx is done. When ctx wins,
// the deferral is resolved as cancelled and the returned error matches both
// ErrCancelled and the context error. A deferral that already completed is
// never turned into a cancellation.
func (d *Deferral) Wait(ctx context.Context) error {
	select {
	case <-d.done:
	case <-ctx.Done():
		d.resolve(stateCancelled)
	}

	if d.Completed() {
		return nil
	}
	return cancelledError(ctx)
}

func cancelledError(ctx context.Context) error {
	cause := context.Cause(ctx)
	if cause == nil {
		cause = context.Canceled
	}
	return fmt.Errorf("%w: %w", ErrCancelled, cause)
}
