package domain

import (
	"fmt"
	"time"
)

// ExecutionState is the lifecycle state of a document query.
type ExecutionState int

// Query execution states.
const (
	StateNotExecuting ExecutionState = iota
	StateExecuting
)

func (s ExecutionState) String() string {
	switch s {
	case StateExecuting:
		return "EXECUTING"
	default:
		return "NOT_EXECUTING"
	}
}

// MarshalText renders the state by name for JSON payloads.
func (s ExecutionState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Message is one informational or error line produced while executing a query.
type Message struct {
	Text       string    `json:"text"`
	IsError    bool      `json:"is_error"`
	Time       time.Time `json:"time,omitempty"`
	BatchIndex *int      `json:"batch_index,omitempty"`
}

// ColumnType is the semantic type of a result column, used by grids to pick a viewer.
type ColumnType string

// Semantic column types.
const (
	ColumnTypeUnknown ColumnType = "UNKNOWN"
	ColumnTypeXML     ColumnType = "XML"
	ColumnTypeJSON    ColumnType = "JSON"
)

// ColumnInfo describes one result column.
type ColumnInfo struct {
	Title string     `json:"title"`
	Type  ColumnType `json:"type"`
	// DataType is the provider's native type name, informational only.
	DataType string `json:"data_type,omitempty"`
}

// ResultSetKey identifies a result set within one execution of a query.
type ResultSetKey struct {
	BatchIndex  int
	ResultIndex int
}

func (k ResultSetKey) String() string {
	return fmt.Sprintf("%d:%d", k.BatchIndex, k.ResultIndex)
}

// ResultSetSummary is the shape of a result set as reported by a provider.
type ResultSetSummary struct {
	ResultIndex int          `json:"result_index"`
	BatchIndex  int          `json:"batch_index"`
	RowCount    int64        `json:"row_count"`
	Completed   bool         `json:"completed"`
	Columns     []ColumnInfo `json:"columns,omitempty"`
}

// Key returns the composite identity of the summarized result set.
func (s ResultSetSummary) Key() ResultSetKey {
	return ResultSetKey{BatchIndex: s.BatchIndex, ResultIndex: s.ResultIndex}
}

// SubsetRequest selects a window of rows from one result set.
type SubsetRequest struct {
	ResultIndex int `json:"result_index"`
	BatchIndex  int `json:"batch_index"`
	StartIndex  int `json:"start_index"`
	RowCount    int `json:"row_count"`
}

// CellValue is one rendered cell of a result row.
type CellValue struct {
	DisplayValue string `json:"display_value"`
	IsNull       bool   `json:"is_null"`
}

// ResultSubset is a window of rows returned by a provider.
type ResultSubset struct {
	RowCount int           `json:"row_count"`
	Rows     [][]CellValue `json:"rows"`
}
