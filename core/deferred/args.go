package deferred

import "sync"

// Args is the value handed to every handler of one deferred dispatch.
type Args[T any] struct {
	Payload T

	mu       sync.Mutex
	deferral *Deferral
}

// NewArgs wraps payload for a dispatch. The deferral slot starts empty.
func NewArgs[T any](payload T) *Args[T] {
	return &Args[T]{Payload: payload}
}

// Deferral returns the deferral attached to the args, creating it on first
// use. Every call before the dispatcher collects it returns the same
// instance.
func (a *Args[T]) Deferral() *Deferral {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.deferral == nil {
		a.deferral = newDeferral()
	}
	return a.deferral
}

// takeDeferral detaches and returns the current deferral, if any, so the next
// handler of the same dispatch starts with an empty slot.
func (a *Args[T]) takeDeferral() *Deferral {
	a.mu.Lock()
	defer a.mu.Unlock()

	deferral := a.deferral
	a.deferral = nil
	return deferral
}

// Close completes any deferral still attached to the args so nobody waits on
// it forever.
func (a *Args[T]) Close() error {
	if deferral := a.takeDeferral(); deferral != nil {
		deferral.Complete()
	}
	return nil
}
