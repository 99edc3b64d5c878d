package domain

import (
	"context"
	"time"
)

// QueryHistoryEntry records one completed execution of a document query.
// Result rows are never persisted; only the execution outline is.
type QueryHistoryEntry struct {
	ID             string     `json:"id"`
	DocumentURI    string     `json:"document"`
	ProviderID     string     `json:"provider"`
	StartedAt      *time.Time `json:"started_at,omitempty"`
	EndedAt        *time.Time `json:"ended_at,omitempty"`
	MessageCount   int        `json:"message_count"`
	ResultSetCount int        `json:"result_set_count"`
	HadErrors      bool       `json:"had_errors"`
	RecordedAt     time.Time  `json:"recorded_at"`
}

// QueryHistoryFilter narrows history listings.
type QueryHistoryFilter struct {
	DocumentURI string
	Limit       int
}

// QueryHistoryRepository persists execution history.
type QueryHistoryRepository interface {
	Insert(ctx context.Context, e *QueryHistoryEntry) error
	List(ctx context.Context, filter QueryHistoryFilter) ([]QueryHistoryEntry, error)
	DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error)
}
