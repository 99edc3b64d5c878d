package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"duck-query/internal/domain"
	"duck-query/internal/event"
	"duck-query/internal/query"
)

// streamBuffer is the number of events a slow client may fall behind before
// its stream is closed with an "overflow" event.
const streamBuffer = 256

// Server-Sent Event names.
const (
	EventSnapshot           = "snapshot"
	EventState              = "state"
	EventMessages           = "messages"
	EventResultSetAvailable = "result_set_available"
	EventResultSetUpdated   = "result_set_updated"
	EventComplete           = "complete"
	EventReplaced           = "replaced"
	EventOverflow           = "overflow"
)

type sseEvent struct {
	name string
	data interface{}
}

// eventStream forwards notifications of the query bound to one document into a
// bounded channel. It follows replacement queries created for the document.
type eventStream struct {
	uri  string
	subs event.Group
	out  chan sseEvent

	mu       sync.Mutex
	overflow bool
	full     chan struct{}
}

func newEventStream(uri string) *eventStream {
	return &eventStream{uri: uri, out: make(chan sseEvent, streamBuffer), full: make(chan struct{})}
}

func (s *eventStream) send(ev sseEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.overflow {
		return
	}
	select {
	case s.out <- ev:
	default:
		s.overflow = true
		close(s.full)
	}
}

func (s *eventStream) watch(q *query.Query) {
	s.subs.Add(q.OnStateChange(func(st domain.ExecutionState) {
		s.send(sseEvent{EventState, map[string]interface{}{"state": st}})
	}))
	s.subs.Add(q.OnMessage(func(msgs []domain.Message) {
		s.send(sseEvent{EventMessages, map[string]interface{}{"messages": msgs}})
	}))
	s.subs.Add(q.OnResultSetAvailable(func(rs *query.ResultSet) {
		s.send(sseEvent{EventResultSetAvailable, rs.Summary()})
	}))
	s.subs.Add(q.OnResultSetUpdated(func(rs *query.ResultSet) {
		s.send(sseEvent{EventResultSetUpdated, rs.Summary()})
	}))
	s.subs.Add(q.OnQueryComplete(func(q *query.Query) {
		s.send(sseEvent{EventComplete, q.Snapshot()})
	}))
}

func writeEvent(w http.ResponseWriter, ev sseEvent) error {
	data, err := json.Marshal(ev.data)
	if err != nil {
		return fmt.Errorf("encode %s event: %w", ev.name, err)
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.name, data)
	return err
}

// streamEvents serves GET /v1/queries/events?document= as text/event-stream.
// The first event is a snapshot of the query; later events mirror the query's
// notifications until the client disconnects.
func (h *Handler) streamEvents(w http.ResponseWriter, r *http.Request) {
	uri, err := documentParam(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	q, err := h.lookupQuery(uri)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		h.writeError(w, r, fmt.Errorf("response writer does not support streaming"))
		return
	}

	stream := newEventStream(uri)
	defer stream.subs.Unsubscribe()
	stream.subs.Add(h.orch.OnQueryCreated(func(nq *query.Query) {
		if nq.DocumentURI() != uri {
			return
		}
		stream.watch(nq)
		stream.send(sseEvent{EventReplaced, nq.Snapshot()})
	}))
	stream.watch(q)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	if err := writeEvent(w, sseEvent{EventSnapshot, q.Snapshot()}); err != nil {
		return
	}
	flusher.Flush()

	heartbeat := time.NewTicker(h.heartbeat)
	defer heartbeat.Stop()
	for {
		select {
		case <-r.Context().Done():
			return
		case ev := <-stream.out:
			if err := writeEvent(w, ev); err != nil {
				h.logger.Debug("event stream write failed", "document_uri", uri, "error", err)
				return
			}
			flusher.Flush()
		case <-stream.full:
			_ = writeEvent(w, sseEvent{EventOverflow, map[string]interface{}{"dropped_after": streamBuffer}})
			flusher.Flush()
			h.logger.Warn("event stream overflow", "document_uri", uri)
			return
		case <-heartbeat.C:
			if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}
