package query

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"

	"duck-query/internal/domain"
	"duck-query/internal/event"
)

// registration is one provider registered with the orchestrator together with
// the handlers subscribed to its event streams.
type registration struct {
	provider domain.QueryProvider
	active   atomic.Bool
	unsubs   []func()
	once     sync.Once
}

func (r *registration) teardown() {
	r.active.Store(false)
	r.once.Do(func() {
		for _, unsub := range r.unsubs {
			unsub()
		}
	})
}

// Orchestrator owns the document→Query registry and the provider registry,
// and routes each provider event to the Query named by its correlation key.
type Orchestrator struct {
	directory domain.ConnectionDirectory
	logger    *slog.Logger

	mu        sync.RWMutex
	queries   map[string]*Query
	providers map[string]*registration

	faults  event.Emitter[error]
	created event.Emitter[*Query]
}

// NewOrchestrator creates an orchestrator that resolves document owners
// through directory.
func NewOrchestrator(directory domain.ConnectionDirectory, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		directory: directory,
		logger:    logger,
		queries:   make(map[string]*Query),
		providers: make(map[string]*registration),
	}
}

// RegisterProvider records p under its identity and subscribes to its event
// streams. A provider already registered under the same identity is replaced:
// its subscriptions are revoked before the new registration starts routing
// events. Queries it was running are left in place and keep receiving events
// from the replacement. The returned function unsubscribes from p and removes
// the registration if it is still current.
func (o *Orchestrator) RegisterProvider(p domain.QueryProvider) (revoke func()) {
	id := p.ProviderID()
	// Events are dropped until reg is installed below.
	reg := &registration{provider: p}

	reg.unsubs = []func(){
		p.OnMessage(func(ev domain.MessageEvent) error {
			return o.dispatch(reg, "message", ev.OwnerURI, func(q *Query) error {
				q.handleMessages(ev.Messages)
				return nil
			})
		}),
		p.OnResultSetAvailable(func(ev domain.ResultSetEvent) error {
			return o.dispatch(reg, "result_set_available", ev.OwnerURI, func(q *Query) error {
				q.handleResultSetAvailable(ev.Summary)
				return nil
			})
		}),
		p.OnResultSetUpdated(func(ev domain.ResultSetEvent) error {
			return o.dispatch(reg, "result_set_updated", ev.OwnerURI, func(q *Query) error {
				return q.handleResultSetUpdated(ev.Summary)
			})
		}),
		p.OnBatchStart(func(ev domain.BatchStartEvent) error {
			return o.dispatch(reg, "batch_start", ev.OwnerURI, func(q *Query) error {
				q.handleBatchStart(ev.BatchIndex, ev.ExecutionStart)
				return nil
			})
		}),
		p.OnBatchComplete(func(ev domain.BatchCompleteEvent) error {
			return o.dispatch(reg, "batch_complete", ev.OwnerURI, func(q *Query) error {
				q.handleBatchComplete(ev.ExecutionEnd)
				return nil
			})
		}),
		p.OnQueryComplete(func(ev domain.QueryCompleteEvent) error {
			return o.dispatch(reg, "query_complete", ev.OwnerURI, func(q *Query) error {
				q.handleQueryComplete()
				return nil
			})
		}),
	}

	o.mu.Lock()
	previous := o.providers[id]
	if previous != nil {
		previous.teardown()
	}
	o.providers[id] = reg
	reg.active.Store(true)
	o.mu.Unlock()

	if previous != nil {
		o.logger.Info("provider replaced", "provider", id)
	} else {
		o.logger.Info("provider registered", "provider", id)
	}

	return func() {
		o.mu.Lock()
		if o.providers[id] == reg {
			delete(o.providers, id)
		}
		o.mu.Unlock()
		reg.teardown()
	}
}

// Providers returns the registered provider identities in sorted order.
func (o *Orchestrator) Providers() []string {
	o.mu.RLock()
	defer o.mu.RUnlock()
	ids := make([]string, 0, len(o.providers))
	for id := range o.providers {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Provider returns the provider registered under id.
func (o *Orchestrator) Provider(id string) (domain.QueryProvider, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	reg, ok := o.providers[id]
	if !ok {
		return nil, false
	}
	return reg.provider, true
}

// CreateOrGetQuery returns the Query for documentURI, creating it on first
// use. With forceNew a fresh Query replaces the registry entry; the previous
// instance stays usable through handles already held but no longer receives
// provider events.
func (o *Orchestrator) CreateOrGetQuery(documentURI string, forceNew bool) *Query {
	o.mu.Lock()
	if q, ok := o.queries[documentURI]; ok && !forceNew {
		o.mu.Unlock()
		return q
	}
	q := newQuery(documentURI, o, o.logger)
	o.queries[documentURI] = q
	o.mu.Unlock()

	o.created.Emit(q)
	return q
}

// Query returns the registered Query for documentURI.
func (o *Orchestrator) Query(documentURI string) (*Query, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	q, ok := o.queries[documentURI]
	return q, ok
}

// OnFault subscribes to protocol violations detected while routing provider events.
func (o *Orchestrator) OnFault(fn func(error)) event.Subscription {
	return o.faults.Subscribe(fn)
}

// OnQueryCreated subscribes to Query creation, including forced replacements.
func (o *Orchestrator) OnQueryCreated(fn func(*Query)) event.Subscription {
	return o.created.Subscribe(fn)
}

// Close revokes every provider registration.
func (o *Orchestrator) Close() {
	o.mu.Lock()
	regs := make([]*registration, 0, len(o.providers))
	for id, reg := range o.providers {
		regs = append(regs, reg)
		delete(o.providers, id)
	}
	o.mu.Unlock()

	for _, reg := range regs {
		reg.teardown()
	}
}

// resolveProvider returns the provider that owns documentURI according to the
// connection directory.
func (o *Orchestrator) resolveProvider(ctx context.Context, documentURI string) (domain.QueryProvider, error) {
	if o.directory == nil {
		return nil, domain.ErrNoProvider("no connection directory configured")
	}
	id, err := o.directory.ProviderID(ctx, documentURI)
	if err != nil {
		return nil, fmt.Errorf("resolve provider for %q: %w", documentURI, err)
	}
	if id == "" {
		return nil, domain.ErrNoProvider("no provider is associated with %q", documentURI)
	}

	o.mu.RLock()
	reg, ok := o.providers[id]
	o.mu.RUnlock()
	if !ok {
		return nil, domain.ErrNoProvider("provider %q for %q is not registered", id, documentURI)
	}
	return reg.provider, nil
}

// dispatch routes one provider event to the Query registered under ownerURI.
// Events from a registration that has been replaced or revoked are dropped.
// Unknown owners and handler rejections are protocol violations: they are
// logged, published to fault subscribers, and returned to the provider.
func (o *Orchestrator) dispatch(reg *registration, eventName, ownerURI string, handle func(*Query) error) error {
	if !reg.active.Load() {
		o.logger.Debug("dropping event from revoked provider",
			"provider", reg.provider.ProviderID(), "event", eventName, "owner_uri", ownerURI)
		return nil
	}

	providerID := reg.provider.ProviderID()

	o.mu.RLock()
	q, ok := o.queries[ownerURI]
	o.mu.RUnlock()
	if !ok {
		return o.fault(domain.ErrProtocol(providerID, ownerURI, "%s event for unknown query %q", eventName, ownerURI), eventName)
	}

	if err := handle(q); err != nil {
		var protoErr *domain.ProtocolError
		if errors.As(err, &protoErr) && protoErr.ProviderID == "" {
			protoErr.ProviderID = providerID
		}
		return o.fault(err, eventName)
	}
	return nil
}

func (o *Orchestrator) fault(err error, eventName string) error {
	attrs := []any{"event", eventName, "error", err}
	var protoErr *domain.ProtocolError
	if errors.As(err, &protoErr) {
		attrs = append(attrs, "provider", protoErr.ProviderID, "owner_uri", protoErr.OwnerURI)
	}
	o.logger.Error("provider event rejected", attrs...)
	o.faults.Emit(err)
	return err
}
