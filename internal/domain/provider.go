package domain

import (
	"context"
	"time"
)

// MessageEvent carries one or more messages for the query identified by OwnerURI.
type MessageEvent struct {
	OwnerURI string
	Messages []Message
}

// ResultSetEvent announces a new or updated result set.
type ResultSetEvent struct {
	OwnerURI string
	Summary  ResultSetSummary
}

// BatchStartEvent reports that a batch began executing.
type BatchStartEvent struct {
	OwnerURI       string
	BatchIndex     int
	ExecutionStart time.Time
}

// BatchCompleteEvent reports that a batch finished executing.
type BatchCompleteEvent struct {
	OwnerURI     string
	BatchIndex   int
	ExecutionEnd time.Time
	HasError     bool
}

// QueryCompleteEvent reports that every batch of a query has finished.
type QueryCompleteEvent struct {
	OwnerURI string
}

// ProviderEvents is the event side of the provider contract. Every On* call
// registers a handler and returns a function that removes it. Handlers return
// an error when the orchestrator rejects the event as a protocol violation;
// providers should log such errors and must keep emitting subsequent events.
type ProviderEvents interface {
	OnMessage(fn func(MessageEvent) error) (unsubscribe func())
	OnResultSetAvailable(fn func(ResultSetEvent) error) (unsubscribe func())
	OnResultSetUpdated(fn func(ResultSetEvent) error) (unsubscribe func())
	OnBatchStart(fn func(BatchStartEvent) error) (unsubscribe func())
	OnBatchComplete(fn func(BatchCompleteEvent) error) (unsubscribe func())
	OnQueryComplete(fn func(QueryCompleteEvent) error) (unsubscribe func())
}

// QueryProvider executes queries for documents and reports progress through
// ProviderEvents. The owner URI is the correlation key for every call and event.
type QueryProvider interface {
	ProviderEvents

	// ProviderID returns the identity the provider registers under.
	ProviderID() string
	// RunQuery starts executing the document's query. It returns once the
	// provider accepted the request; progress is reported through events.
	RunQuery(ctx context.Context, ownerURI string) error
	// CancelQuery asks the provider to stop and returns a status text.
	CancelQuery(ctx context.Context, ownerURI string) (string, error)
	// FetchSubset returns a window of rows from one result set.
	FetchSubset(ctx context.Context, ownerURI string, req SubsetRequest) (*ResultSubset, error)
	// SetExecutionOptions forwards options applied to subsequent runs.
	SetExecutionOptions(ctx context.Context, ownerURI string, opts ExecutionOptions) error
}

// OptionDescriber is implemented by providers that publish the execution
// options they understand.
type OptionDescriber interface {
	KnownOptions() []OptionSpec
}

// ConnectionDirectory maps a document to the identity of the provider that owns it.
// An empty identity with a nil error means the document has no provider.
type ConnectionDirectory interface {
	ProviderID(ctx context.Context, documentURI string) (string, error)
}

// DocumentBinding records which provider owns a document.
type DocumentBinding struct {
	DocumentURI string    `json:"document"`
	ProviderID  string    `json:"provider"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// DocumentBindingRepository persists document→provider bindings.
type DocumentBindingRepository interface {
	Bind(ctx context.Context, documentURI, providerID string) (*DocumentBinding, error)
	Unbind(ctx context.Context, documentURI string) error
	Get(ctx context.Context, documentURI string) (*DocumentBinding, error)
	List(ctx context.Context) ([]DocumentBinding, error)
}

// DocumentSource supplies the text of a document to providers.
type DocumentSource interface {
	Text(documentURI string) (string, bool)
}
