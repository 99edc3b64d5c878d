package flightsql

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"duck-query/internal/document"
	"duck-query/internal/domain"
	"duck-query/internal/query"
)

const (
	defaultSlots  = 64
	uriPrefix     = "flightsql://statement/"
	cancelTimeout = 5 * time.Second
)

// statement is the outcome of one executed Flight SQL statement. rs is nil
// when the statement produced no rows.
type statement struct {
	id   string
	slot int
	rs   *query.ResultSet
}

// handle is the opaque ticket payload: "<slot>:<id>".
func (s *statement) handle() string { return strconv.Itoa(s.slot) + ":" + s.id }

// statementRunner executes SQL text as documents named after a fixed ring of
// slots, so the orchestrator and providers hold at most one query per slot.
type statementRunner struct {
	orch   *query.Orchestrator
	docs   *document.Store
	logger *slog.Logger

	mu      sync.Mutex
	next    int
	results []*statement
}

func newStatementRunner(orch *query.Orchestrator, docs *document.Store, slots int, logger *slog.Logger) *statementRunner {
	if slots <= 0 {
		slots = defaultSlots
	}
	return &statementRunner{orch: orch, docs: docs, logger: logger, results: make([]*statement, slots)}
}

func slotURI(slot int) string { return uriPrefix + strconv.Itoa(slot) }

// acquire picks the next slot whose query is not executing.
func (r *statementRunner) acquire() (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for range len(r.results) {
		slot := r.next
		r.next = (r.next + 1) % len(r.results)
		if q, ok := r.orch.Query(slotURI(slot)); ok && q.State() == domain.StateExecuting {
			continue
		}
		r.results[slot] = nil
		return slot, nil
	}
	return 0, status.Error(codes.ResourceExhausted, "all statement slots are executing")
}

// run executes sqlText and waits for it to finish. A failing batch fails the
// statement; otherwise the last result set is kept for DoGet.
func (r *statementRunner) run(ctx context.Context, sqlText string) (*statement, error) {
	if strings.TrimSpace(sqlText) == "" {
		return nil, status.Error(codes.InvalidArgument, "query is required")
	}
	slot, err := r.acquire()
	if err != nil {
		return nil, err
	}
	uri := slotURI(slot)
	if _, err := r.docs.Put(uri, sqlText); err != nil {
		return nil, statusFromError(err)
	}

	q := r.orch.CreateOrGetQuery(uri, false)
	done := make(chan struct{}, 1)
	sub := q.OnQueryComplete(func(*query.Query) {
		select {
		case done <- struct{}{}:
		default:
		}
	})
	defer sub.Unsubscribe()

	if err := q.Execute(ctx); err != nil {
		return nil, statusFromError(err)
	}
	select {
	case <-done:
	case <-ctx.Done():
		cancelCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cancelTimeout)
		defer cancel()
		if err := q.Cancel(cancelCtx); err != nil {
			r.logger.Warn("cancel statement", "document", uri, "error", err)
		}
		// The slot is reusable only once the provider has stopped.
		select {
		case <-done:
		case <-cancelCtx.Done():
			r.logger.Warn("statement did not stop after cancel", "document", uri)
		}
		return nil, status.FromContextError(ctx.Err()).Err()
	}

	for _, m := range q.Messages() {
		if m.IsError {
			return nil, status.Error(codes.InvalidArgument, m.Text)
		}
	}

	st := &statement{id: uuid.NewString(), slot: slot}
	if sets := q.ResultSets(); len(sets) > 0 {
		st.rs = sets[len(sets)-1]
	}
	r.mu.Lock()
	r.results[slot] = st
	r.mu.Unlock()
	r.logger.Debug("statement executed", "document", uri, "has_rows", st.rs != nil)
	return st, nil
}

// lookup resolves a ticket handle. Handles of reused slots are expired.
func (r *statementRunner) lookup(handle string) (*statement, error) {
	slotText, id, ok := strings.Cut(handle, ":")
	slot, err := strconv.Atoi(slotText)
	if !ok || err != nil || slot < 0 || slot >= len(r.results) {
		return nil, status.Error(codes.InvalidArgument, "malformed statement handle")
	}
	r.mu.Lock()
	st := r.results[slot]
	r.mu.Unlock()
	if st == nil || st.id != id {
		return nil, status.Error(codes.NotFound, "statement results expired")
	}
	return st, nil
}

// statusFromError maps domain errors to gRPC status codes.
func statusFromError(err error) error {
	var (
		notFound   *domain.NotFoundError
		validation *domain.ValidationError
		conflict   *domain.ConflictError
		invalidOp  *domain.InvalidOperationError
		noProvider *domain.NoProviderError
	)
	switch {
	case errors.As(err, &notFound):
		return status.Error(codes.NotFound, err.Error())
	case errors.As(err, &validation):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.As(err, &conflict), errors.As(err, &invalidOp):
		return status.Error(codes.FailedPrecondition, err.Error())
	case errors.As(err, &noProvider):
		return status.Error(codes.Unavailable, err.Error())
	default:
		return status.Error(codes.Internal, fmt.Sprintf("statement failed: %v", err))
	}
}
