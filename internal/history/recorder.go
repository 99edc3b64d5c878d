// Package history records the outline of every completed query execution and
// prunes old records on a schedule. Result rows are never persisted.
package history

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"duck-query/internal/domain"
	"duck-query/internal/event"
	"duck-query/internal/query"
)

const insertTimeout = 5 * time.Second

// Recorder writes one history entry per completed execution.
type Recorder struct {
	repo   domain.QueryHistoryRepository
	logger *slog.Logger
	now    func() time.Time
	subs   event.Group

	mu      sync.Mutex
	orch    *query.Orchestrator
	watched map[string]watchedQuery // by document URI
	closed  bool
}

type watchedQuery struct {
	query *query.Query
	sub   event.Subscription
}

// NewRecorder creates a Recorder writing to repo.
func NewRecorder(repo domain.QueryHistoryRepository, logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{
		repo:    repo,
		logger:  logger.With("component", "history-recorder"),
		now:     time.Now,
		watched: make(map[string]watchedQuery),
	}
}

// Attach subscribes to every query orch creates from now on.
func (r *Recorder) Attach(orch *query.Orchestrator) {
	r.mu.Lock()
	r.orch = orch
	r.mu.Unlock()
	r.subs.Add(orch.OnQueryCreated(r.Watch))
}

// Watch records each completion of q. At most one query per document is
// watched: a replacement drops the subscription of the query it replaced, and
// a query the attached orchestrator already replaced is ignored.
func (r *Recorder) Watch(q *query.Query) {
	uri := q.DocumentURI()

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	if r.orch != nil {
		if current, ok := r.orch.Query(uri); ok && current != q {
			return
		}
	}
	previous, ok := r.watched[uri]
	if ok && previous.query == q {
		return
	}
	if ok {
		previous.sub.Unsubscribe()
	}
	r.watched[uri] = watchedQuery{query: q, sub: q.OnQueryComplete(r.recordCompletion)}
}

func (r *Recorder) recordCompletion(q *query.Query) {
	ctx, cancel := context.WithTimeout(context.Background(), insertTimeout)
	defer cancel()
	if err := r.Record(ctx, q.Snapshot()); err != nil {
		r.logger.Warn("record query history failed", "document_uri", q.DocumentURI(), "error", err)
	}
}

// watching returns the number of queries with a completion subscription.
func (r *Recorder) watching() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.watched)
}

// Record stores the outline of snap.
func (r *Recorder) Record(ctx context.Context, snap query.Snapshot) error {
	entry := &domain.QueryHistoryEntry{
		ID:             domain.NewID(),
		DocumentURI:    snap.DocumentURI,
		ProviderID:     snap.ProviderID,
		StartedAt:      snap.StartTime,
		EndedAt:        snap.EndTime,
		MessageCount:   len(snap.Messages),
		ResultSetCount: len(snap.ResultSets),
		RecordedAt:     r.now(),
	}
	for _, m := range snap.Messages {
		if m.IsError {
			entry.HadErrors = true
			break
		}
	}
	if err := r.repo.Insert(ctx, entry); err != nil {
		return err
	}
	r.logger.Debug("recorded query history", "id", entry.ID, "document_uri", entry.DocumentURI,
		"result_sets", entry.ResultSetCount, "had_errors", entry.HadErrors)
	return nil
}

// Close stops recording.
func (r *Recorder) Close() {
	r.subs.Unsubscribe()

	r.mu.Lock()
	watched := r.watched
	r.watched = make(map[string]watchedQuery)
	r.closed = true
	r.mu.Unlock()
	for _, w := range watched {
		w.sub.Unsubscribe()
	}
}
