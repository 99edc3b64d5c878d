package repository

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"duck-query/internal/domain"
)

var _ domain.QueryHistoryRepository = (*QueryHistoryRepo)(nil)

const defaultHistoryLimit = 100

// QueryHistoryRepo stores execution history in SQLite.
type QueryHistoryRepo struct {
	writeDB *sql.DB
	readDB  *sql.DB
}

// NewQueryHistoryRepo creates a QueryHistoryRepo.
func NewQueryHistoryRepo(writeDB, readDB *sql.DB) *QueryHistoryRepo {
	return &QueryHistoryRepo{writeDB: writeDB, readDB: readDB}
}

// Insert stores one history entry, assigning an ID and RecordedAt when unset.
func (r *QueryHistoryRepo) Insert(ctx context.Context, e *domain.QueryHistoryEntry) error {
	if e == nil {
		return domain.ErrValidation("history entry is required")
	}
	if e.DocumentURI == "" {
		return domain.ErrValidation("document uri is required")
	}
	if e.ID == "" {
		e.ID = domain.NewID()
	}
	if e.RecordedAt.IsZero() {
		e.RecordedAt = time.Now()
	}
	e.RecordedAt = e.RecordedAt.UTC()

	_, err := r.writeDB.ExecContext(ctx, `
		INSERT INTO query_history (id, document_uri, provider_id, started_at, ended_at,
		                           message_count, result_set_count, had_errors, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, e.ID, e.DocumentURI, e.ProviderID, optionalTime(e.StartedAt), optionalTime(e.EndedAt),
		e.MessageCount, e.ResultSetCount, sqliteBool(e.HadErrors), e.RecordedAt)
	return mapDBError(historyRecord, err)
}

// List returns the newest entries first, optionally for one document.
func (r *QueryHistoryRepo) List(ctx context.Context, filter domain.QueryHistoryFilter) ([]domain.QueryHistoryEntry, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = defaultHistoryLimit
	}

	var (
		where []string
		args  []interface{}
	)
	if filter.DocumentURI != "" {
		where = append(where, "document_uri = ?")
		args = append(args, filter.DocumentURI)
	}
	query := `SELECT id, document_uri, provider_id, started_at, ended_at, message_count,
	                 result_set_count, had_errors, recorded_at
	          FROM query_history`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY recorded_at DESC, id DESC LIMIT ?"
	args = append(args, limit)

	rows, err := r.readDB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, mapDBError(historyRecord, err)
	}
	defer rows.Close() //nolint:errcheck

	var out []domain.QueryHistoryEntry
	for rows.Next() {
		var (
			e              domain.QueryHistoryEntry
			started, ended sql.NullTime
			hadErrors      int64
		)
		if err := rows.Scan(&e.ID, &e.DocumentURI, &e.ProviderID, &started, &ended,
			&e.MessageCount, &e.ResultSetCount, &hadErrors, &e.RecordedAt); err != nil {
			return nil, err
		}
		e.StartedAt = scannedTime(started)
		e.EndedAt = scannedTime(ended)
		e.HadErrors = hadErrors != 0
		e.RecordedAt = e.RecordedAt.UTC()
		out = append(out, e)
	}
	return out, rows.Err()
}

// DeleteBefore removes entries recorded before cutoff and returns how many
// were removed.
func (r *QueryHistoryRepo) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.writeDB.ExecContext(ctx, `DELETE FROM query_history WHERE recorded_at < ?`, cutoff.UTC())
	if err != nil {
		return 0, mapDBError(historyRecord, err)
	}
	return res.RowsAffected()
}
