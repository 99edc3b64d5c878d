package api

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"duck-query/internal/domain"
	"duck-query/internal/middleware"
)

type receivedEvent struct {
	name string
	data string
}

// readEvents parses a text/event-stream body into a channel, skipping comments.
func readEvents(t *testing.T, resp *http.Response) <-chan receivedEvent {
	t.Helper()
	out := make(chan receivedEvent, 64)
	go func() {
		defer close(out)
		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
		var ev receivedEvent
		for scanner.Scan() {
			line := scanner.Text()
			switch {
			case strings.HasPrefix(line, "event: "):
				ev.name = strings.TrimPrefix(line, "event: ")
			case strings.HasPrefix(line, "data: "):
				ev.data = strings.TrimPrefix(line, "data: ")
			case line == "" && ev.name != "":
				out <- ev
				ev = receivedEvent{}
			}
		}
	}()
	return out
}

func nextEvent(t *testing.T, events <-chan receivedEvent) receivedEvent {
	t.Helper()
	select {
	case ev, ok := <-events:
		require.True(t, ok, "stream closed")
		return ev
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for event")
		return receivedEvent{}
	}
}

func openStream(t *testing.T, env *apiEnv) <-chan receivedEvent {
	t.Helper()
	srv := httptest.NewServer(env.router)
	t.Cleanup(srv.Close)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/v1/queries/events?document="+testDoc, nil)
	require.NoError(t, err)
	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))
	return readEvents(t, resp)
}

func TestStreamEvents_Lifecycle(t *testing.T) {
	t.Parallel()
	env := newAPIEnv(t, nil, middleware.AuthConfig{})
	env.do(t, "POST", "/v1/queries", map[string]interface{}{"document": testDoc})

	events := openStream(t, env)
	first := nextEvent(t, events)
	assert.Equal(t, EventSnapshot, first.name)
	assert.Contains(t, first.data, `"state":"NOT_EXECUTING"`)

	q, _ := env.orch.Query(testDoc)
	require.NoError(t, q.Execute(context.Background()))
	ev := nextEvent(t, events)
	assert.Equal(t, EventState, ev.name)
	assert.JSONEq(t, `{"state":"EXECUTING"}`, ev.data)

	env.announceResultSet(t)
	ev = nextEvent(t, events)
	assert.Equal(t, EventResultSetAvailable, ev.name)
	ev = nextEvent(t, events)
	assert.Equal(t, EventResultSetUpdated, ev.name)
	var summary domain.ResultSetSummary
	require.NoError(t, json.Unmarshal([]byte(ev.data), &summary))
	assert.Equal(t, int64(3), summary.RowCount)
	assert.True(t, summary.Completed)

	require.NoError(t, env.provider.EmitMessage(domain.MessageEvent{OwnerURI: testDoc, Messages: []domain.Message{{Text: "(3 rows affected)"}}}))
	ev = nextEvent(t, events)
	assert.Equal(t, EventMessages, ev.name)
	assert.Contains(t, ev.data, "(3 rows affected)")

	require.NoError(t, env.provider.EmitQueryComplete(domain.QueryCompleteEvent{OwnerURI: testDoc}))
	ev = nextEvent(t, events)
	assert.Equal(t, EventState, ev.name)
	assert.JSONEq(t, `{"state":"NOT_EXECUTING"}`, ev.data)
	ev = nextEvent(t, events)
	assert.Equal(t, EventComplete, ev.name)
}

func TestStreamEvents_FollowsReplacement(t *testing.T) {
	t.Parallel()
	env := newAPIEnv(t, nil, middleware.AuthConfig{})
	env.do(t, "POST", "/v1/queries", map[string]interface{}{"document": testDoc})

	events := openStream(t, env)
	assert.Equal(t, EventSnapshot, nextEvent(t, events).name)

	env.do(t, "POST", "/v1/queries", map[string]interface{}{"document": "file:///unrelated.sql"})
	env.do(t, "POST", "/v1/queries", map[string]interface{}{"document": testDoc, "force_new": true})
	assert.Equal(t, EventReplaced, nextEvent(t, events).name)

	fresh, _ := env.orch.Query(testDoc)
	require.NoError(t, fresh.Execute(context.Background()))
	ev := nextEvent(t, events)
	assert.Equal(t, EventState, ev.name)
	assert.JSONEq(t, `{"state":"EXECUTING"}`, ev.data)
}

func TestStreamEvents_UnknownDocument(t *testing.T) {
	t.Parallel()
	env := newAPIEnv(t, nil, middleware.AuthConfig{})

	rec := env.do(t, "GET", "/v1/queries/events?document=file:///missing.sql", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestEventStream_Overflow(t *testing.T) {
	t.Parallel()
	s := newEventStream(testDoc)
	for i := 0; i < streamBuffer+5; i++ {
		s.send(sseEvent{EventMessages, i})
	}
	select {
	case <-s.full:
	default:
		t.Fatal("expected overflow signal")
	}
	assert.Len(t, s.out, streamBuffer)
}
