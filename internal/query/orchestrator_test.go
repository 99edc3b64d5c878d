package query

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"duck-query/internal/domain"
	"duck-query/internal/testutil"
)

func TestOrchestrator_CreateOrGetQueryReturnsSameInstance(t *testing.T) {
	t.Parallel()
	orch, _ := newTestOrchestrator(t)

	var created []*Query
	orch.OnQueryCreated(func(q *Query) { created = append(created, q) })

	first := orch.CreateOrGetQuery(docURI, false)
	second := orch.CreateOrGetQuery(docURI, false)
	assert.Same(t, first, second)
	assert.Len(t, created, 1)

	other := orch.CreateOrGetQuery("file:///work/other.sql", false)
	assert.NotSame(t, first, other)

	got, ok := orch.Query(docURI)
	require.True(t, ok)
	assert.Same(t, first, got)

	_, ok = orch.Query("file:///missing.sql")
	assert.False(t, ok)
}

func TestOrchestrator_ForceNewReplacesRegistryEntry(t *testing.T) {
	t.Parallel()
	orch, provider := newTestOrchestrator(t)

	old := orch.CreateOrGetQuery(docURI, false)
	fresh := orch.CreateOrGetQuery(docURI, true)
	require.NotSame(t, old, fresh)

	got, _ := orch.Query(docURI)
	assert.Same(t, fresh, got)

	require.NoError(t, provider.EmitMessage(domain.MessageEvent{OwnerURI: docURI, Messages: []domain.Message{{Text: "hello"}}}))
	assert.Len(t, fresh.Messages(), 1)
	assert.Empty(t, old.Messages(), "replaced instance no longer receives events")
	assert.Equal(t, docURI, old.DocumentURI())
}

func TestOrchestrator_RegisterProviderSubscribesToAllStreams(t *testing.T) {
	t.Parallel()
	orch := NewOrchestrator(&testutil.MockDirectory{Default: "local"}, slog.Default())
	provider := testutil.NewFakeProvider("local")

	revoke := orch.RegisterProvider(provider)
	assert.Equal(t, 6, provider.HandlerCount())
	assert.Equal(t, []string{"local"}, orch.Providers())

	got, ok := orch.Provider("local")
	require.True(t, ok)
	assert.Same(t, provider, got)

	revoke()
	assert.Equal(t, 0, provider.HandlerCount())
	assert.Empty(t, orch.Providers())

	revoke()
	assert.Equal(t, 0, provider.HandlerCount())
}

func TestOrchestrator_ReRegistrationRevokesPreviousProvider(t *testing.T) {
	t.Parallel()
	orch := NewOrchestrator(&testutil.MockDirectory{Default: "local"}, slog.Default())
	oldProvider := testutil.NewFakeProvider("local")
	newProvider := testutil.NewFakeProvider("local")

	revokeOld := orch.RegisterProvider(oldProvider)
	q := orch.CreateOrGetQuery(docURI, false)
	require.NoError(t, q.Execute(context.Background()))

	orch.RegisterProvider(newProvider)

	assert.Equal(t, 0, oldProvider.HandlerCount())
	assert.Equal(t, 6, newProvider.HandlerCount())

	// The old instance has no subscribers left, so nothing reaches the query.
	require.NoError(t, oldProvider.EmitMessage(domain.MessageEvent{OwnerURI: docURI, Messages: []domain.Message{{Text: "stale"}}}))
	assert.Empty(t, q.Messages())

	// The in-flight query is not aborted and completes through the replacement.
	assert.Equal(t, domain.StateExecuting, q.State())
	require.NoError(t, newProvider.EmitQueryComplete(domain.QueryCompleteEvent{OwnerURI: docURI}))
	assert.Equal(t, domain.StateNotExecuting, q.State())

	// Revoking the old registration leaves the replacement in place.
	revokeOld()
	got, ok := orch.Provider("local")
	require.True(t, ok)
	assert.Same(t, newProvider, got)
	assert.Equal(t, 6, newProvider.HandlerCount())

	require.NoError(t, q.Execute(context.Background()))
	assert.Equal(t, 0, oldProvider.RunCount())
	assert.Equal(t, 1, newProvider.RunCount())
}

// hookedProvider observes message subscriptions made by the orchestrator.
type hookedProvider struct {
	*testutil.FakeProvider
	onSubscribe   func(fn func(domain.MessageEvent) error)
	onUnsubscribe func()
}

func (p *hookedProvider) OnMessage(fn func(domain.MessageEvent) error) func() {
	if p.onSubscribe != nil {
		p.onSubscribe(fn)
	}
	unsub := p.FakeProvider.OnMessage(fn)
	return func() {
		if p.onUnsubscribe != nil {
			p.onUnsubscribe()
		}
		unsub()
	}
}

func TestOrchestrator_ReRegistrationTearsDownBeforeRouting(t *testing.T) {
	t.Parallel()
	orch := NewOrchestrator(&testutil.MockDirectory{Default: "local"}, slog.Default())

	var replacementHandler func(domain.MessageEvent) error
	replacement := &hookedProvider{
		FakeProvider: testutil.NewFakeProvider("local"),
		onSubscribe:  func(fn func(domain.MessageEvent) error) { replacementHandler = fn },
	}

	routedDuringTeardown := false
	original := &hookedProvider{FakeProvider: testutil.NewFakeProvider("local")}
	original.onUnsubscribe = func() {
		// While the original is torn down, the replacement must not route yet.
		result := make(chan error, 1)
		go func() {
			result <- replacementHandler(domain.MessageEvent{OwnerURI: docURI, Messages: []domain.Message{{Text: "early"}}})
		}()
		select {
		case err := <-result:
			assert.NoError(t, err)
		case <-time.After(200 * time.Millisecond):
			routedDuringTeardown = true
		}
	}

	orch.RegisterProvider(original)
	q := orch.CreateOrGetQuery(docURI, false)
	orch.RegisterProvider(replacement)

	assert.False(t, routedDuringTeardown, "replacement routed events before the original was torn down")
	assert.Empty(t, q.Messages())

	// Once installed, the replacement routes normally.
	require.NoError(t, replacement.EmitMessage(domain.MessageEvent{OwnerURI: docURI, Messages: []domain.Message{{Text: "now"}}}))
	require.Len(t, q.Messages(), 1)
	assert.Equal(t, "now", q.Messages()[0].Text)
}

func TestOrchestrator_EventsFromRevokedRegistrationAreDropped(t *testing.T) {
	t.Parallel()
	orch := NewOrchestrator(&testutil.MockDirectory{Default: "local"}, slog.Default())
	provider := testutil.NewFakeProvider("local")
	orch.RegisterProvider(provider)
	q := orch.CreateOrGetQuery(docURI, false)

	// A handler captured before re-registration still fires once; it must not
	// reach the query.
	var captured func(domain.MessageEvent) error
	reg := orch.providers["local"]
	captured = func(ev domain.MessageEvent) error {
		return orch.dispatch(reg, "message", ev.OwnerURI, func(q *Query) error {
			q.handleMessages(ev.Messages)
			return nil
		})
	}

	orch.RegisterProvider(testutil.NewFakeProvider("local"))

	require.NoError(t, captured(domain.MessageEvent{OwnerURI: docURI, Messages: []domain.Message{{Text: "late"}}}))
	assert.Empty(t, q.Messages())
}

func TestOrchestrator_UnknownOwnerIsProtocolError(t *testing.T) {
	t.Parallel()
	orch, provider := newTestOrchestrator(t)
	q := orch.CreateOrGetQuery(docURI, false)

	var faults []error
	orch.OnFault(func(err error) { faults = append(faults, err) })

	tests := []struct {
		name string
		emit func() error
	}{
		{"message", func() error {
			return provider.EmitMessage(domain.MessageEvent{OwnerURI: "file:///ghost.sql", Messages: []domain.Message{{Text: "x"}}})
		}},
		{"result_set_available", func() error {
			return provider.EmitResultSetAvailable(domain.ResultSetEvent{OwnerURI: "file:///ghost.sql"})
		}},
		{"result_set_updated", func() error {
			return provider.EmitResultSetUpdated(domain.ResultSetEvent{OwnerURI: "file:///ghost.sql"})
		}},
		{"batch_start", func() error {
			return provider.EmitBatchStart(domain.BatchStartEvent{OwnerURI: "file:///ghost.sql"})
		}},
		{"batch_complete", func() error {
			return provider.EmitBatchComplete(domain.BatchCompleteEvent{OwnerURI: "file:///ghost.sql"})
		}},
		{"query_complete", func() error {
			return provider.EmitQueryComplete(domain.QueryCompleteEvent{OwnerURI: "file:///ghost.sql"})
		}},
	}
	for _, tt := range tests {
		err := tt.emit()
		var protoErr *domain.ProtocolError
		require.True(t, errors.As(err, &protoErr), "%s: got %v", tt.name, err)
		assert.Equal(t, "local", protoErr.ProviderID)
		assert.Equal(t, "file:///ghost.sql", protoErr.OwnerURI)
	}

	assert.Len(t, faults, len(tests))
	assert.Empty(t, q.Messages())
	assert.Empty(t, q.ResultSets())
	_, hasStart := q.StartTime()
	assert.False(t, hasStart)
	_, ok := orch.Query("file:///ghost.sql")
	assert.False(t, ok, "unknown owners are not registered implicitly")
}

func TestOrchestrator_RoutesByCorrelationKey(t *testing.T) {
	t.Parallel()
	orch, provider := newTestOrchestrator(t)
	a := orch.CreateOrGetQuery("file:///a.sql", false)
	b := orch.CreateOrGetQuery("file:///b.sql", false)

	require.NoError(t, provider.EmitMessage(domain.MessageEvent{OwnerURI: "file:///b.sql", Messages: []domain.Message{{Text: "for b"}}}))

	assert.Empty(t, a.Messages())
	require.Len(t, b.Messages(), 1)
	assert.Equal(t, "for b", b.Messages()[0].Text)
}

func TestOrchestrator_ProvidersPerDocument(t *testing.T) {
	t.Parallel()
	directory := &testutil.MockDirectory{ProviderIDFn: func(_ context.Context, uri string) (string, error) {
		if uri == "file:///remote.sql" {
			return "remote", nil
		}
		return "local", nil
	}}
	orch := NewOrchestrator(directory, slog.Default())
	local := testutil.NewFakeProvider("local")
	remote := testutil.NewFakeProvider("remote")
	orch.RegisterProvider(local)
	orch.RegisterProvider(remote)

	require.NoError(t, orch.CreateOrGetQuery("file:///remote.sql", false).Execute(context.Background()))
	require.NoError(t, orch.CreateOrGetQuery("file:///local.sql", false).Execute(context.Background()))

	assert.Equal(t, []string{"file:///local.sql"}, local.RunCalls)
	assert.Equal(t, []string{"file:///remote.sql"}, remote.RunCalls)
	assert.Equal(t, []string{"local", "remote"}, orch.Providers())
}

func TestOrchestrator_Close(t *testing.T) {
	t.Parallel()
	orch := NewOrchestrator(&testutil.MockDirectory{Default: "local"}, nil)
	provider := testutil.NewFakeProvider("local")
	orch.RegisterProvider(provider)

	orch.Close()

	assert.Equal(t, 0, provider.HandlerCount())
	assert.Empty(t, orch.Providers())
}

func TestOrchestrator_ConcurrentDocuments(t *testing.T) {
	t.Parallel()
	orch, provider := newTestOrchestrator(t)
	provider.RunQueryFn = func(_ context.Context, owner string) error {
		go func() {
			_ = provider.EmitBatchStart(domain.BatchStartEvent{OwnerURI: owner})
			_ = provider.EmitResultSetAvailable(domain.ResultSetEvent{OwnerURI: owner, Summary: domain.ResultSetSummary{RowCount: 1}})
			_ = provider.EmitResultSetUpdated(domain.ResultSetEvent{OwnerURI: owner, Summary: domain.ResultSetSummary{RowCount: 3, Completed: true}})
			_ = provider.EmitQueryComplete(domain.QueryCompleteEvent{OwnerURI: owner})
		}()
		return nil
	}

	uris := []string{"file:///1.sql", "file:///2.sql", "file:///3.sql", "file:///4.sql"}
	var wg sync.WaitGroup
	done := make(chan string, len(uris))
	for _, uri := range uris {
		q := orch.CreateOrGetQuery(uri, false)
		q.OnQueryComplete(func(q *Query) { done <- q.DocumentURI() })
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, q.Execute(context.Background()))
		}()
	}
	wg.Wait()

	seen := map[string]bool{}
	for range uris {
		seen[<-done] = true
	}
	assert.Len(t, seen, len(uris))
	for _, uri := range uris {
		q, _ := orch.Query(uri)
		sets := q.ResultSets()
		require.Len(t, sets, 1)
		assert.Equal(t, int64(3), sets[0].RowCount())
		assert.Equal(t, domain.StateNotExecuting, q.State())
	}
}
