package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"duck-query/internal/domain"
)

var _ domain.DocumentBindingRepository = (*DocumentBindingRepo)(nil)

// DocumentBindingRepo stores document→provider bindings in SQLite.
type DocumentBindingRepo struct {
	writeDB *sql.DB
	readDB  *sql.DB
	now     func() time.Time
}

// NewDocumentBindingRepo creates a DocumentBindingRepo. Pass the same pool
// twice when no read/write split is needed.
func NewDocumentBindingRepo(writeDB, readDB *sql.DB) *DocumentBindingRepo {
	return &DocumentBindingRepo{writeDB: writeDB, readDB: readDB, now: time.Now}
}

// Bind creates or replaces the binding of documentURI.
func (r *DocumentBindingRepo) Bind(ctx context.Context, documentURI, providerID string) (*domain.DocumentBinding, error) {
	if documentURI == "" {
		return nil, domain.ErrValidation("document uri is required")
	}
	if providerID == "" {
		return nil, domain.ErrValidation("provider id is required")
	}

	now := r.now().UTC()
	_, err := r.writeDB.ExecContext(ctx, `
		INSERT INTO document_bindings (document_uri, provider_id, created_at, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (document_uri) DO UPDATE SET provider_id = excluded.provider_id, updated_at = excluded.updated_at
	`, documentURI, providerID, now, now)
	if err != nil {
		return nil, mapDBError(bindingRecord, err)
	}
	return r.get(ctx, r.writeDB, documentURI)
}

// Unbind removes the binding of documentURI.
func (r *DocumentBindingRepo) Unbind(ctx context.Context, documentURI string) error {
	res, err := r.writeDB.ExecContext(ctx, `DELETE FROM document_bindings WHERE document_uri = ?`, documentURI)
	if err != nil {
		return mapDBError(bindingRecord, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return domain.ErrNotFound("document %q has no binding", documentURI)
	}
	return nil
}

// Get returns the binding of documentURI.
func (r *DocumentBindingRepo) Get(ctx context.Context, documentURI string) (*domain.DocumentBinding, error) {
	return r.get(ctx, r.readDB, documentURI)
}

// List returns every binding ordered by document URI.
func (r *DocumentBindingRepo) List(ctx context.Context) ([]domain.DocumentBinding, error) {
	rows, err := r.readDB.QueryContext(ctx, `
		SELECT document_uri, provider_id, created_at, updated_at
		FROM document_bindings ORDER BY document_uri
	`)
	if err != nil {
		return nil, mapDBError(bindingRecord, err)
	}
	defer rows.Close() //nolint:errcheck

	var out []domain.DocumentBinding
	for rows.Next() {
		var b domain.DocumentBinding
		if err := rows.Scan(&b.DocumentURI, &b.ProviderID, &b.CreatedAt, &b.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func (r *DocumentBindingRepo) get(ctx context.Context, db *sql.DB, documentURI string) (*domain.DocumentBinding, error) {
	var b domain.DocumentBinding
	err := db.QueryRowContext(ctx, `
		SELECT document_uri, provider_id, created_at, updated_at
		FROM document_bindings WHERE document_uri = ?
	`, documentURI).Scan(&b.DocumentURI, &b.ProviderID, &b.CreatedAt, &b.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound("document %q has no binding", documentURI)
	}
	if err != nil {
		return nil, mapDBError(bindingRecord, err)
	}
	return &b, nil
}
