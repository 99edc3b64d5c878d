// Package testutil provides shared fakes of domain ports for tests across the
// codebase, in the spirit of net/http/httptest.
package testutil

import (
	"context"
	"sync"
	"time"

	"duck-query/internal/compute"
	"duck-query/internal/domain"
)

// === Query Provider Fake ===

// FakeProvider implements domain.QueryProvider. Calls are recorded; behaviour
// is overridden through the Fn fields. Events are pushed with the embedded
// EventHub's Emit methods.
type FakeProvider struct {
	compute.EventHub

	ID                    string
	Options               []domain.OptionSpec
	RunQueryFn            func(ctx context.Context, ownerURI string) error
	CancelQueryFn         func(ctx context.Context, ownerURI string) (string, error)
	FetchSubsetFn         func(ctx context.Context, ownerURI string, req domain.SubsetRequest) (*domain.ResultSubset, error)
	SetExecutionOptionsFn func(ctx context.Context, ownerURI string, opts domain.ExecutionOptions) error

	mu           sync.Mutex
	RunCalls     []string
	CancelCalls  []string
	FetchCalls   []domain.SubsetRequest
	OptionsCalls []domain.ExecutionOptions
}

// NewFakeProvider creates a FakeProvider registered under id.
func NewFakeProvider(id string) *FakeProvider {
	return &FakeProvider{ID: id}
}

// ProviderID implements domain.QueryProvider.
func (p *FakeProvider) ProviderID() string { return p.ID }

// KnownOptions implements domain.OptionDescriber.
func (p *FakeProvider) KnownOptions() []domain.OptionSpec { return p.Options }

// RunQuery implements domain.QueryProvider.
func (p *FakeProvider) RunQuery(ctx context.Context, ownerURI string) error {
	p.mu.Lock()
	p.RunCalls = append(p.RunCalls, ownerURI)
	p.mu.Unlock()
	if p.RunQueryFn != nil {
		return p.RunQueryFn(ctx, ownerURI)
	}
	return nil
}

// CancelQuery implements domain.QueryProvider.
func (p *FakeProvider) CancelQuery(ctx context.Context, ownerURI string) (string, error) {
	p.mu.Lock()
	p.CancelCalls = append(p.CancelCalls, ownerURI)
	p.mu.Unlock()
	if p.CancelQueryFn != nil {
		return p.CancelQueryFn(ctx, ownerURI)
	}
	return "Query cancelled by user.", nil
}

// FetchSubset implements domain.QueryProvider.
func (p *FakeProvider) FetchSubset(ctx context.Context, ownerURI string, req domain.SubsetRequest) (*domain.ResultSubset, error) {
	p.mu.Lock()
	p.FetchCalls = append(p.FetchCalls, req)
	p.mu.Unlock()
	if p.FetchSubsetFn != nil {
		return p.FetchSubsetFn(ctx, ownerURI, req)
	}
	return &domain.ResultSubset{}, nil
}

// SetExecutionOptions implements domain.QueryProvider.
func (p *FakeProvider) SetExecutionOptions(ctx context.Context, ownerURI string, opts domain.ExecutionOptions) error {
	p.mu.Lock()
	p.OptionsCalls = append(p.OptionsCalls, opts)
	p.mu.Unlock()
	if p.SetExecutionOptionsFn != nil {
		return p.SetExecutionOptionsFn(ctx, ownerURI, opts)
	}
	return nil
}

// RunCount returns how many times RunQuery was called.
func (p *FakeProvider) RunCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.RunCalls)
}

var _ domain.QueryProvider = (*FakeProvider)(nil)
var _ domain.OptionDescriber = (*FakeProvider)(nil)

// === Connection Directory Mock ===

// MockDirectory implements domain.ConnectionDirectory. Without ProviderIDFn
// every document resolves to Default.
type MockDirectory struct {
	Default      string
	ProviderIDFn func(ctx context.Context, documentURI string) (string, error)
}

// ProviderID implements domain.ConnectionDirectory.
func (m *MockDirectory) ProviderID(ctx context.Context, documentURI string) (string, error) {
	if m.ProviderIDFn != nil {
		return m.ProviderIDFn(ctx, documentURI)
	}
	return m.Default, nil
}

var _ domain.ConnectionDirectory = (*MockDirectory)(nil)

// === Document Binding Repository Mock ===

// MockBindingRepo is an in-memory domain.DocumentBindingRepository.
type MockBindingRepo struct {
	mu       sync.Mutex
	bindings map[string]domain.DocumentBinding
	GetErr   error
}

// Bind implements the interface method for testing.
func (m *MockBindingRepo) Bind(_ context.Context, documentURI, providerID string) (*domain.DocumentBinding, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.bindings == nil {
		m.bindings = make(map[string]domain.DocumentBinding)
	}
	now := time.Now()
	b := domain.DocumentBinding{DocumentURI: documentURI, ProviderID: providerID, CreatedAt: now, UpdatedAt: now}
	if existing, ok := m.bindings[documentURI]; ok {
		b.CreatedAt = existing.CreatedAt
	}
	m.bindings[documentURI] = b
	return &b, nil
}

// Unbind implements the interface method for testing.
func (m *MockBindingRepo) Unbind(_ context.Context, documentURI string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.bindings[documentURI]; !ok {
		return domain.ErrNotFound("binding for %q not found", documentURI)
	}
	delete(m.bindings, documentURI)
	return nil
}

// Get implements the interface method for testing.
func (m *MockBindingRepo) Get(_ context.Context, documentURI string) (*domain.DocumentBinding, error) {
	if m.GetErr != nil {
		return nil, m.GetErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.bindings[documentURI]
	if !ok {
		return nil, domain.ErrNotFound("binding for %q not found", documentURI)
	}
	return &b, nil
}

// List implements the interface method for testing.
func (m *MockBindingRepo) List(_ context.Context) ([]domain.DocumentBinding, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.DocumentBinding, 0, len(m.bindings))
	for _, b := range m.bindings {
		out = append(out, b)
	}
	return out, nil
}

var _ domain.DocumentBindingRepository = (*MockBindingRepo)(nil)

// === Query History Repository Mock ===

// MockHistoryRepo collects inserted history entries.
type MockHistoryRepo struct {
	mu             sync.Mutex
	Entries        []domain.QueryHistoryEntry
	InsertErr      error
	DeleteBeforeFn func(ctx context.Context, cutoff time.Time) (int64, error)
}

// Insert implements the interface method for testing.
func (m *MockHistoryRepo) Insert(_ context.Context, e *domain.QueryHistoryEntry) error {
	if m.InsertErr != nil {
		return m.InsertErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Entries = append(m.Entries, *e)
	return nil
}

// List implements the interface method for testing.
func (m *MockHistoryRepo) List(_ context.Context, filter domain.QueryHistoryFilter) ([]domain.QueryHistoryEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.QueryHistoryEntry
	for _, e := range m.Entries {
		if filter.DocumentURI == "" || e.DocumentURI == filter.DocumentURI {
			out = append(out, e)
		}
	}
	return out, nil
}

// DeleteBefore implements the interface method for testing.
func (m *MockHistoryRepo) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	if m.DeleteBeforeFn != nil {
		return m.DeleteBeforeFn(ctx, cutoff)
	}
	panic("unexpected call to MockHistoryRepo.DeleteBefore")
}

// Snapshot returns a copy of the collected entries.
func (m *MockHistoryRepo) Snapshot() []domain.QueryHistoryEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.QueryHistoryEntry(nil), m.Entries...)
}

var _ domain.QueryHistoryRepository = (*MockHistoryRepo)(nil)
