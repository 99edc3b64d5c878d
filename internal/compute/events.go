package compute

import (
	"errors"
	"sync"

	"duck-query/internal/domain"
)

var _ domain.ProviderEvents = (*EventHub)(nil)

type handlerEntry[T any] struct {
	id uint64
	fn func(T) error
}

// handlerList is an ordered set of event handlers that may reject an event.
type handlerList[T any] struct {
	mu      sync.RWMutex
	next    uint64
	entries []handlerEntry[T]
}

func (l *handlerList[T]) add(fn func(T) error) func() {
	l.mu.Lock()
	l.next++
	id := l.next
	l.entries = append(l.entries, handlerEntry[T]{id: id, fn: fn})
	l.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			defer l.mu.Unlock()
			for i, e := range l.entries {
				if e.id == id {
					l.entries = append(l.entries[:i:i], l.entries[i+1:]...)
					return
				}
			}
		})
	}
}

func (l *handlerList[T]) emit(v T) error {
	l.mu.RLock()
	snapshot := l.entries
	l.mu.RUnlock()

	var errs []error
	for _, e := range snapshot {
		if err := e.fn(v); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (l *handlerList[T]) len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}

// EventHub implements the event half of domain.QueryProvider. Providers embed
// it and call the Emit methods from a single goroutine per owner so that
// subscribers observe events in emission order.
type EventHub struct {
	messages      handlerList[domain.MessageEvent]
	available     handlerList[domain.ResultSetEvent]
	updated       handlerList[domain.ResultSetEvent]
	batchStart    handlerList[domain.BatchStartEvent]
	batchComplete handlerList[domain.BatchCompleteEvent]
	queryComplete handlerList[domain.QueryCompleteEvent]
}

// OnMessage implements domain.ProviderEvents.
func (h *EventHub) OnMessage(fn func(domain.MessageEvent) error) func() {
	return h.messages.add(fn)
}

// OnResultSetAvailable implements domain.ProviderEvents.
func (h *EventHub) OnResultSetAvailable(fn func(domain.ResultSetEvent) error) func() {
	return h.available.add(fn)
}

// OnResultSetUpdated implements domain.ProviderEvents.
func (h *EventHub) OnResultSetUpdated(fn func(domain.ResultSetEvent) error) func() {
	return h.updated.add(fn)
}

// OnBatchStart implements domain.ProviderEvents.
func (h *EventHub) OnBatchStart(fn func(domain.BatchStartEvent) error) func() {
	return h.batchStart.add(fn)
}

// OnBatchComplete implements domain.ProviderEvents.
func (h *EventHub) OnBatchComplete(fn func(domain.BatchCompleteEvent) error) func() {
	return h.batchComplete.add(fn)
}

// OnQueryComplete implements domain.ProviderEvents.
func (h *EventHub) OnQueryComplete(fn func(domain.QueryCompleteEvent) error) func() {
	return h.queryComplete.add(fn)
}

// EmitMessage delivers a message event to every subscriber.
func (h *EventHub) EmitMessage(ev domain.MessageEvent) error { return h.messages.emit(ev) }

// EmitResultSetAvailable delivers a result-set-available event.
func (h *EventHub) EmitResultSetAvailable(ev domain.ResultSetEvent) error {
	return h.available.emit(ev)
}

// EmitResultSetUpdated delivers a result-set-updated event.
func (h *EventHub) EmitResultSetUpdated(ev domain.ResultSetEvent) error {
	return h.updated.emit(ev)
}

// EmitBatchStart delivers a batch-start event.
func (h *EventHub) EmitBatchStart(ev domain.BatchStartEvent) error { return h.batchStart.emit(ev) }

// EmitBatchComplete delivers a batch-complete event.
func (h *EventHub) EmitBatchComplete(ev domain.BatchCompleteEvent) error {
	return h.batchComplete.emit(ev)
}

// EmitQueryComplete delivers a query-complete event.
func (h *EventHub) EmitQueryComplete(ev domain.QueryCompleteEvent) error {
	return h.queryComplete.emit(ev)
}

// HandlerCount returns the total number of subscribed handlers across all streams.
func (h *EventHub) HandlerCount() int {
	return h.messages.len() + h.available.len() + h.updated.len() +
		h.batchStart.len() + h.batchComplete.len() + h.queryComplete.len()
}
