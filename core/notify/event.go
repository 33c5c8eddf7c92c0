// Package notify provides multicast notification slots with explicit
// subscription handles.
//
// Handlers are invoked synchronously in subscription order. Emission works on
// a snapshot of the handler list, so handlers may subscribe or unsubscribe
// (including themselves) while being invoked.
package notify

import (
	"sync"
	"sync/atomic"
)

// Handler receives the sender of a notification together with its value.
type Handler[T any] func(sender any, value T)

type Event[T any] struct {
	mu     sync.RWMutex
	nextID uint64
	subs   []subscriber[T]
}

type subscriber[T any] struct {
	id      uint64
	handler Handler[T]
}

// Subscribe appends handler to the slot. A nil handler is ignored and yields
// a subscription that is already removed.
func (e *Event[T]) Subscribe(handler Handler[T]) *Subscription {
	if handler == nil {
		s := &Subscription{}
		s.removed.Store(true)
		return s
	}

	e.mu.Lock()
	e.nextID++
	id := e.nextID
	e.subs = append(e.subs, subscriber[T]{id: id, handler: handler})
	e.mu.Unlock()

	return &Subscription{remove: func() { e.remove(id) }}
}

func (e *Event[T]) remove(id uint64) {
	e.mu.Lock()
	defer e.mu.Unlock()

	for i, sub := range e.subs {
		if sub.id == id {
			// copy so that snapshots handed out earlier stay intact
			subs := make([]subscriber[T], 0, len(e.subs)-1)
			subs = append(subs, e.subs[:i]...)
			e.subs = append(subs, e.subs[i+1:]...)
			return
		}
	}
}

// Handlers returns a snapshot of the subscribed handlers in subscription order.
func (e *Event[T]) Handlers() []Handler[T] {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if len(e.subs) == 0 {
		return nil
	}

	handlers := make([]Handler[T], len(e.subs))
	for i, sub := range e.subs {
		handlers[i] = sub.handler
	}
	return handlers
}

func (e *Event[T]) Len() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.subs)
}

// Emit calls every subscribed handler with sender and value.
func (e *Event[T]) Emit(sender any, value T) {
	for _, handler := range e.Handlers() {
		handler(sender, value)
	}
}

// Subscription is the handle returned by Subscribe.
type Subscription struct {
	remove  func()
	removed atomic.Bool
}

// Unsubscribe removes the handler. Only the first call removes anything and
// reports true; later or concurrent calls are no-ops.
func (s *Subscription) Unsubscribe() bool {
	if s == nil || !s.removed.CompareAndSwap(false, true) {
		return false
	}

	if s.remove != nil {
		s.remove()
	}
	return true
}

func (s *Subscription) Active() bool { return s != nil && !s.removed.Load() }
