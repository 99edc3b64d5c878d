// Package query implements the per-document query state machine and the
// orchestrator that routes provider events to it.
package query

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"duck-query/internal/domain"
	"duck-query/internal/event"
)

// providerRouter resolves the provider that currently owns a document.
type providerRouter interface {
	resolveProvider(ctx context.Context, documentURI string) (domain.QueryProvider, error)
}

// Snapshot is a consistent copy of a query's observable state.
type Snapshot struct {
	DocumentURI string                    `json:"document_uri"`
	ProviderID  string                    `json:"provider_id,omitempty"`
	State       domain.ExecutionState     `json:"state"`
	Messages    []domain.Message          `json:"messages"`
	ResultSets  []domain.ResultSetSummary `json:"result_sets"`
	StartTime   *time.Time                `json:"start_time,omitempty"`
	EndTime     *time.Time                `json:"end_time,omitempty"`
}

// Query tracks the execution of the query associated with one document.
//
// State is mutated only by the Query's own operations and by the
// orchestrator's event dispatch. Notifications are delivered after the
// mutation that caused them, outside the Query's lock, so subscribers may read
// the Query or call back into it. State notifications are delivered in
// transition order, so the last one delivered always matches State(); a
// transition caused by a state subscriber is delivered after it returns.
type Query struct {
	uri    string
	router providerRouter
	logger *slog.Logger
	now    func() time.Time

	mu         sync.RWMutex
	state      domain.ExecutionState
	generation uint64
	providerID string
	messages   []domain.Message
	resultSets []*ResultSet
	byKey      map[domain.ResultSetKey]*ResultSet
	startTime  time.Time
	endTime    time.Time

	// pendingStates is appended under mu and drained by one goroutine at a time.
	notifyMu      sync.Mutex
	pendingStates []domain.ExecutionState
	notifying     bool

	stateChanged      event.Emitter[domain.ExecutionState]
	messagesAdded     event.Emitter[[]domain.Message]
	resultSetAdded    event.Emitter[*ResultSet]
	resultSetModified event.Emitter[*ResultSet]
	completed         event.Emitter[*Query]
}

func newQuery(uri string, router providerRouter, logger *slog.Logger) *Query {
	return &Query{
		uri:    uri,
		router: router,
		logger: logger.With("document", uri),
		now:    time.Now,
		byKey:  make(map[domain.ResultSetKey]*ResultSet),
	}
}

// DocumentURI returns the document identity, which is also the correlation
// key passed to providers.
func (q *Query) DocumentURI() string { return q.uri }

// State returns the current execution state.
func (q *Query) State() domain.ExecutionState {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.state
}

// ProviderID returns the provider that ran the most recent execution.
func (q *Query) ProviderID() string {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.providerID
}

// Messages returns a copy of the messages of the current execution.
func (q *Query) Messages() []domain.Message {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return append([]domain.Message(nil), q.messages...)
}

// ResultSets returns the result sets of the current execution in arrival order.
func (q *Query) ResultSets() []*ResultSet {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return append([]*ResultSet(nil), q.resultSets...)
}

// ResultSet looks up a result set of the current execution by identity.
func (q *Query) ResultSet(key domain.ResultSetKey) (*ResultSet, bool) {
	q.mu.RLock()
	defer q.mu.RUnlock()
	rs, ok := q.byKey[key]
	return rs, ok
}

// StartTime returns the execution start time. Until the provider reports the
// first batch start, the value is the time Execute was called.
func (q *Query) StartTime() (time.Time, bool) {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.startTime, !q.startTime.IsZero()
}

// EndTime returns the execution end time. It is unset while the query is
// executing, whatever the provider last reported.
func (q *Query) EndTime() (time.Time, bool) {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.state == domain.StateExecuting || q.endTime.IsZero() {
		return time.Time{}, false
	}
	return q.endTime, true
}

// Snapshot returns a consistent copy of the query's state.
func (q *Query) Snapshot() Snapshot {
	q.mu.RLock()
	defer q.mu.RUnlock()

	snap := Snapshot{
		DocumentURI: q.uri,
		ProviderID:  q.providerID,
		State:       q.state,
		Messages:    append([]domain.Message{}, q.messages...),
		ResultSets:  make([]domain.ResultSetSummary, 0, len(q.resultSets)),
	}
	for _, rs := range q.resultSets {
		snap.ResultSets = append(snap.ResultSets, rs.Summary())
	}
	if !q.startTime.IsZero() {
		start := q.startTime
		snap.StartTime = &start
	}
	if q.state != domain.StateExecuting && !q.endTime.IsZero() {
		end := q.endTime
		snap.EndTime = &end
	}
	return snap
}

// OnStateChange subscribes to execution state transitions.
func (q *Query) OnStateChange(fn func(domain.ExecutionState)) event.Subscription {
	return q.stateChanged.Subscribe(fn)
}

// OnMessage subscribes to appended messages. Each notification carries exactly
// the messages appended by one provider event.
func (q *Query) OnMessage(fn func([]domain.Message)) event.Subscription {
	return q.messagesAdded.Subscribe(fn)
}

// OnResultSetAvailable subscribes to newly announced result sets.
func (q *Query) OnResultSetAvailable(fn func(*ResultSet)) event.Subscription {
	return q.resultSetAdded.Subscribe(fn)
}

// OnResultSetUpdated subscribes to row count and completion changes.
func (q *Query) OnResultSetUpdated(fn func(*ResultSet)) event.Subscription {
	return q.resultSetModified.Subscribe(fn)
}

// OnQueryComplete subscribes to completion notifications.
func (q *Query) OnQueryComplete(fn func(*Query)) event.Subscription {
	return q.completed.Subscribe(fn)
}

// Execute starts a new execution on the document's provider. It fails with an
// InvalidOperationError while the query is executing and with a
// NoProviderError when no provider owns the document; neither failure changes
// any state. A provider rejection is recorded as an error message and leaves
// the query NOT_EXECUTING so it can be run again.
func (q *Query) Execute(ctx context.Context) error {
	if q.State() == domain.StateExecuting {
		return domain.ErrInvalidOperation("query for %q is already executing", q.uri)
	}

	provider, err := q.router.resolveProvider(ctx, q.uri)
	if err != nil {
		return err
	}

	q.mu.Lock()
	if q.state == domain.StateExecuting {
		q.mu.Unlock()
		return domain.ErrInvalidOperation("query for %q is already executing", q.uri)
	}
	q.generation++
	q.providerID = provider.ProviderID()
	q.messages = nil
	q.resultSets = nil
	q.byKey = make(map[domain.ResultSetKey]*ResultSet)
	q.endTime = time.Time{}
	q.startTime = q.now()
	q.state = domain.StateExecuting
	q.queueState(domain.StateExecuting)
	q.mu.Unlock()

	q.logger.Debug("query executing", "provider", provider.ProviderID())
	q.flushStates()

	if err := provider.RunQuery(ctx, q.uri); err != nil {
		q.logger.Warn("provider rejected query", "provider", provider.ProviderID(), "error", err)
		q.appendMessages([]domain.Message{{Text: err.Error(), IsError: true, Time: q.now()}})
		q.setState(domain.StateNotExecuting)
		return fmt.Errorf("run query: %w", err)
	}
	return nil
}

// Cancel asks the provider to stop, records the provider's status text as a
// message, and resets the state to NOT_EXECUTING without waiting for the
// provider to confirm completion.
func (q *Query) Cancel(ctx context.Context) error {
	provider, err := q.router.resolveProvider(ctx, q.uri)
	if err != nil {
		return err
	}

	status, err := provider.CancelQuery(ctx, q.uri)
	if err != nil {
		q.appendMessages([]domain.Message{{Text: err.Error(), IsError: true, Time: q.now()}})
		q.setState(domain.StateNotExecuting)
		return fmt.Errorf("cancel query: %w", err)
	}

	q.appendMessages([]domain.Message{{Text: status, Time: q.now()}})
	q.setState(domain.StateNotExecuting)
	return nil
}

// SetExecutionOptions forwards options to the document's provider. Options
// are validated against the provider's published option set when it has one.
func (q *Query) SetExecutionOptions(ctx context.Context, opts domain.ExecutionOptions) error {
	provider, err := q.router.resolveProvider(ctx, q.uri)
	if err != nil {
		return err
	}

	var known []domain.OptionSpec
	if d, ok := provider.(domain.OptionDescriber); ok {
		known = d.KnownOptions()
	}
	if err := domain.ValidateExecutionOptions(opts, known); err != nil {
		return err
	}
	if err := provider.SetExecutionOptions(ctx, q.uri, opts); err != nil {
		return fmt.Errorf("set execution options: %w", err)
	}
	return nil
}

func (q *Query) fetch(ctx context.Context, rs *ResultSet, offset, count int) (*domain.ResultSubset, error) {
	q.mu.RLock()
	stale := rs.generation != q.generation
	q.mu.RUnlock()
	if stale {
		return nil, domain.ErrNotFound("result set %s belongs to a previous execution of %q", rs.ID(), q.uri)
	}

	provider, err := q.router.resolveProvider(ctx, q.uri)
	if err != nil {
		return nil, err
	}
	return provider.FetchSubset(ctx, q.uri, domain.SubsetRequest{
		ResultIndex: rs.key.ResultIndex,
		BatchIndex:  rs.key.BatchIndex,
		StartIndex:  offset,
		RowCount:    count,
	})
}

// setState changes the state and notifies subscribers when it actually changed.
func (q *Query) setState(s domain.ExecutionState) {
	q.mu.Lock()
	if q.state != s {
		q.state = s
		q.queueState(s)
	}
	q.mu.Unlock()

	q.flushStates()
}

// queueState must be called with q.mu held, right after the transition to s.
func (q *Query) queueState(s domain.ExecutionState) {
	q.notifyMu.Lock()
	q.pendingStates = append(q.pendingStates, s)
	q.notifyMu.Unlock()
}

// flushStates delivers queued state notifications in order. If another call
// is already delivering, including a re-entrant one from a subscriber, the
// queued states are left to it.
func (q *Query) flushStates() {
	q.notifyMu.Lock()
	if q.notifying {
		q.notifyMu.Unlock()
		return
	}
	q.notifying = true
	for len(q.pendingStates) > 0 {
		s := q.pendingStates[0]
		q.pendingStates = q.pendingStates[1:]
		q.notifyMu.Unlock()
		q.stateChanged.Emit(s)
		q.notifyMu.Lock()
	}
	q.notifying = false
	q.notifyMu.Unlock()
}

func (q *Query) appendMessages(msgs []domain.Message) {
	if len(msgs) == 0 {
		return
	}
	appended := append([]domain.Message(nil), msgs...)

	q.mu.Lock()
	q.messages = append(q.messages, appended...)
	q.mu.Unlock()

	q.messagesAdded.Emit(appended)
}

// Provider event handlers, called only by the orchestrator's dispatch.

func (q *Query) handleMessages(msgs []domain.Message) {
	q.appendMessages(msgs)
}

func (q *Query) handleResultSetAvailable(s domain.ResultSetSummary) {
	q.mu.Lock()
	if existing, ok := q.byKey[s.Key()]; ok {
		q.mu.Unlock()
		// A repeated announcement updates the entry it names.
		existing.update(s)
		q.resultSetModified.Emit(existing)
		return
	}
	rs := newResultSet(q, q.generation, s)
	q.resultSets = append(q.resultSets, rs)
	q.byKey[rs.key] = rs
	q.mu.Unlock()

	q.resultSetAdded.Emit(rs)
}

func (q *Query) handleResultSetUpdated(s domain.ResultSetSummary) error {
	q.mu.RLock()
	rs, ok := q.byKey[s.Key()]
	q.mu.RUnlock()
	if !ok {
		return domain.ErrProtocol("", q.uri, "result set %s was updated before it was announced", s.Key())
	}

	rs.update(s)
	q.resultSetModified.Emit(rs)
	return nil
}

func (q *Query) handleBatchStart(batchIndex int, start time.Time) {
	if batchIndex != 0 {
		return
	}
	q.mu.Lock()
	q.startTime = start
	q.mu.Unlock()
}

func (q *Query) handleBatchComplete(end time.Time) {
	q.mu.Lock()
	q.endTime = end
	q.mu.Unlock()
}

func (q *Query) handleQueryComplete() {
	q.setState(domain.StateNotExecuting)
	q.logger.Debug("query complete")
	q.completed.Emit(q)
}
