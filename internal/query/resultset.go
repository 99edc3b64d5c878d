package query

import (
	"context"
	"sync"

	"duck-query/internal/domain"
)

// ResultSet is one result set produced by a query execution. Its columns are
// fixed at creation; RowCount and Completed grow as the provider reports
// progress. A ResultSet belongs to exactly one Query and one execution.
type ResultSet struct {
	query      *Query
	key        domain.ResultSetKey
	generation uint64
	columns    []domain.ColumnInfo

	mu        sync.RWMutex
	rowCount  int64
	completed bool
}

func newResultSet(q *Query, generation uint64, s domain.ResultSetSummary) *ResultSet {
	return &ResultSet{
		query:      q,
		key:        s.Key(),
		generation: generation,
		columns:    append([]domain.ColumnInfo(nil), s.Columns...),
		rowCount:   s.RowCount,
		completed:  s.Completed,
	}
}

// ID returns the composite "batch:result" identity.
func (r *ResultSet) ID() string { return r.key.String() }

// Key returns the composite identity.
func (r *ResultSet) Key() domain.ResultSetKey { return r.key }

// BatchIndex returns the index of the batch that produced the result set.
func (r *ResultSet) BatchIndex() int { return r.key.BatchIndex }

// ResultIndex returns the index of the result set within its batch.
func (r *ResultSet) ResultIndex() int { return r.key.ResultIndex }

// Columns returns a copy of the column descriptors.
func (r *ResultSet) Columns() []domain.ColumnInfo {
	return append([]domain.ColumnInfo(nil), r.columns...)
}

// RowCount returns the number of rows available so far.
func (r *ResultSet) RowCount() int64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.rowCount
}

// Completed reports whether the provider has produced every row.
func (r *ResultSet) Completed() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.completed
}

// Summary returns a point-in-time copy of the result set's shape.
func (r *ResultSet) Summary() domain.ResultSetSummary {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return domain.ResultSetSummary{
		ResultIndex: r.key.ResultIndex,
		BatchIndex:  r.key.BatchIndex,
		RowCount:    r.rowCount,
		Completed:   r.completed,
		Columns:     r.Columns(),
	}
}

// Fetch requests count rows starting at offset from the provider. It does not
// modify the result set.
func (r *ResultSet) Fetch(ctx context.Context, offset, count int) (*domain.ResultSubset, error) {
	return r.query.fetch(ctx, r, offset, count)
}

func (r *ResultSet) update(s domain.ResultSetSummary) {
	r.mu.Lock()
	r.rowCount = s.RowCount
	r.completed = s.Completed
	r.mu.Unlock()
}
