// Package event provides a small ordered observer primitive used for query
// notifications.
package event

import (
	"sync"
	"sync/atomic"
)

// Subscription is returned by Subscribe and removes the handler when cancelled.
type Subscription interface {
	Unsubscribe()
}

// SubscriptionFunc adapts a function to Subscription.
type SubscriptionFunc func()

// Unsubscribe calls f.
func (f SubscriptionFunc) Unsubscribe() { f() }

type handler[T any] struct {
	id uint64
	fn func(T)
}

// Emitter delivers values to its subscribers synchronously, in the order the
// subscribers registered. Emit never holds the internal lock while calling a
// handler, so handlers may subscribe, unsubscribe, or emit re-entrantly.
type Emitter[T any] struct {
	mu       sync.RWMutex
	nextID   uint64
	handlers []handler[T]
}

// Subscribe registers fn and returns a Subscription. Unsubscribe is idempotent.
func (e *Emitter[T]) Subscribe(fn func(T)) Subscription {
	e.mu.Lock()
	e.nextID++
	id := e.nextID
	e.handlers = append(e.handlers, handler[T]{id: id, fn: fn})
	e.mu.Unlock()

	var done atomic.Bool
	return SubscriptionFunc(func() {
		if done.Swap(true) {
			return
		}
		e.remove(id)
	})
}

func (e *Emitter[T]) remove(id uint64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for i, h := range e.handlers {
		if h.id == id {
			e.handlers = append(e.handlers[:i:i], e.handlers[i+1:]...)
			return
		}
	}
}

// Emit calls every handler registered at the time of the call with v.
func (e *Emitter[T]) Emit(v T) {
	e.mu.RLock()
	snapshot := e.handlers
	e.mu.RUnlock()

	for _, h := range snapshot {
		h.fn(v)
	}
}

// Len returns the number of registered handlers.
func (e *Emitter[T]) Len() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.handlers)
}

// Group collects subscriptions so they can be cancelled together. Once the
// group is unsubscribed, subscriptions added later are cancelled immediately.
type Group struct {
	mu     sync.Mutex
	subs   []Subscription
	closed bool
}

// Add records s in the group.
func (g *Group) Add(s Subscription) {
	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		s.Unsubscribe()
		return
	}
	g.subs = append(g.subs, s)
	g.mu.Unlock()
}

// Unsubscribe cancels every subscription in the group.
func (g *Group) Unsubscribe() {
	g.mu.Lock()
	subs := g.subs
	g.subs = nil
	g.closed = true
	g.mu.Unlock()

	for _, s := range subs {
		s.Unsubscribe()
	}
}
