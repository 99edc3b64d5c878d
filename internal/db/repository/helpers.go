// Package repository implements the SQLite stores behind document bindings
// and query history.
package repository

import (
	"database/sql"
	"errors"
	"strings"
	"time"

	"duck-query/internal/domain"
)

const (
	bindingRecord = "document binding"
	historyRecord = "history entry"
)

// mapDBError translates driver errors for a record kind into domain errors.
func mapDBError(record string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, sql.ErrNoRows):
		return domain.ErrNotFound("%s not found", record)
	case strings.Contains(err.Error(), "UNIQUE constraint failed"):
		return domain.ErrConflict("%s already exists", record)
	default:
		return err
	}
}

// sqliteBool stores flags as 0/1 INTEGER columns.
func sqliteBool(b bool) int64 {
	if b {
		return 1
	}
	return 0
}

// optionalTime maps an unset run timestamp to NULL.
func optionalTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

func scannedTime(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	utc := t.Time.UTC()
	return &utc
}
