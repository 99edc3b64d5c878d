package compute

import (
	"encoding/base64"
	"strconv"
)

// Types in this file are the wire contract between the remote provider
// (internal/compute/remote.go) and the compute agent (internal/agent). Both
// sides compile against them so the contract stays in sync.

// Query lifecycle statuses.
const (
	QueryStatusQueued    = "QUEUED"
	QueryStatusRunning   = "RUNNING"
	QueryStatusSucceeded = "SUCCEEDED"
	QueryStatusFailed    = "FAILED"
	QueryStatusCanceled  = "CANCELED"
)

// MaxPageSize is the largest page the agent returns from FetchQueryResults.
const MaxPageSize = 5000

// Column describes one result column on the wire.
type Column struct {
	Name string `json:"name"`
	// Type is the DuckDB type name of the column.
	Type string `json:"type"`
}

// SubmitQueryRequest creates a query job on the compute agent.
type SubmitQueryRequest struct {
	SQL       string `json:"sql"`
	RequestID string `json:"request_id,omitempty"`
	// MaxRows caps the rows kept for the result; zero keeps all rows.
	MaxRows int64 `json:"max_rows,omitempty"`
}

// SubmitQueryResponse is returned when a query job is accepted.
type SubmitQueryResponse struct {
	QueryID   string `json:"query_id"`
	Status    string `json:"status"`
	RequestID string `json:"request_id,omitempty"`
}

// GetQueryStatusRequest asks for the lifecycle status of a job.
type GetQueryStatusRequest struct {
	QueryID string `json:"query_id"`
}

// QueryStatusResponse returns current lifecycle status.
type QueryStatusResponse struct {
	QueryID      string   `json:"query_id"`
	Status       string   `json:"status"`
	Columns      []Column `json:"columns,omitempty"`
	RowCount     int64    `json:"row_count,omitempty"`
	RowsAffected int64    `json:"rows_affected,omitempty"`
	HasResult    bool     `json:"has_result,omitempty"`
	Error        string   `json:"error,omitempty"`
	CompletedAt  string   `json:"completed_at,omitempty"`
	RequestID    string   `json:"request_id,omitempty"`
}

// Terminal reports whether the job has stopped.
func (r QueryStatusResponse) Terminal() bool {
	switch r.Status {
	case QueryStatusSucceeded, QueryStatusFailed, QueryStatusCanceled:
		return true
	default:
		return false
	}
}

// FetchQueryResultsRequest asks for one page of a succeeded job's rows.
type FetchQueryResultsRequest struct {
	QueryID    string `json:"query_id"`
	PageToken  string `json:"page_token,omitempty"`
	MaxResults int    `json:"max_results,omitempty"`
}

// ResultRow is one row of rendered cells. Nulls[i] marks Values[i] as NULL.
type ResultRow struct {
	Values []string `json:"values"`
	Nulls  []bool   `json:"nulls,omitempty"`
}

// FetchQueryResultsResponse returns a page of query results.
type FetchQueryResultsResponse struct {
	QueryID       string      `json:"query_id"`
	Columns       []Column    `json:"columns"`
	Rows          []ResultRow `json:"rows"`
	RowCount      int64       `json:"row_count"`
	NextPageToken string      `json:"next_page_token,omitempty"`
	RequestID     string      `json:"request_id,omitempty"`
}

// CancelQueryRequest asks the agent to stop a running job.
type CancelQueryRequest struct {
	QueryID string `json:"query_id"`
}

// DeleteQueryRequest asks the agent to stop a job and discard its results.
type DeleteQueryRequest struct {
	QueryID string `json:"query_id"`
}

// CancelQueryResponse is returned after cancel or delete requests.
type CancelQueryResponse struct {
	QueryID   string `json:"query_id"`
	Status    string `json:"status"`
	RequestID string `json:"request_id,omitempty"`
}

// HealthRequest is the empty health probe.
type HealthRequest struct{}

// HealthResponse reports agent liveness and job store metrics.
type HealthResponse struct {
	Status                string `json:"status"`
	UptimeSeconds         int    `json:"uptime_seconds"`
	DuckDBVersion         string `json:"duckdb_version,omitempty"`
	MaxMemoryGB           int    `json:"max_memory_gb,omitempty"`
	ActiveQueries         int64  `json:"active_queries"`
	QueuedJobs            int64  `json:"queued_jobs"`
	RunningJobs           int64  `json:"running_jobs"`
	CompletedJobs         int64  `json:"completed_jobs"`
	StoredJobs            int64  `json:"stored_jobs"`
	CleanedJobs           int64  `json:"cleaned_jobs"`
	QueryResultTTLSeconds int    `json:"query_result_ttl_seconds"`
}

// DecodePageToken converts opaque page token into an integer offset.
func DecodePageToken(token string) int {
	if token == "" {
		return 0
	}
	decoded, err := base64.StdEncoding.DecodeString(token)
	if err != nil {
		return 0
	}
	offset, err := strconv.Atoi(string(decoded))
	if err != nil || offset < 0 {
		return 0
	}
	return offset
}

// EncodePageToken converts a positive integer offset into an opaque token.
func EncodePageToken(offset int) string {
	if offset <= 0 {
		return ""
	}
	return base64.StdEncoding.EncodeToString([]byte(strconv.Itoa(offset)))
}
