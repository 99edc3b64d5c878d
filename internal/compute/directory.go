package compute

import (
	"context"
	"errors"
	"fmt"

	"duck-query/internal/domain"
)

var _ domain.ConnectionDirectory = (*Directory)(nil)

// Directory implements domain.ConnectionDirectory. It resolves a document to
// a provider identity.
// Resolution order: explicit binding → default provider → none.
type Directory struct {
	bindings        domain.DocumentBindingRepository
	defaultProvider string
}

// NewDirectory creates a Directory. A nil bindings repository or an empty
// default disables that resolution step.
func NewDirectory(bindings domain.DocumentBindingRepository, defaultProvider string) *Directory {
	return &Directory{bindings: bindings, defaultProvider: defaultProvider}
}

// ProviderID returns the provider identity owning documentURI, or "" when
// nothing is bound and no default is configured.
func (d *Directory) ProviderID(ctx context.Context, documentURI string) (string, error) {
	if d.bindings != nil {
		b, err := d.bindings.Get(ctx, documentURI)
		if err == nil && b != nil {
			return b.ProviderID, nil
		}
		var notFound *domain.NotFoundError
		if err != nil && !errors.As(err, &notFound) {
			return "", fmt.Errorf("lookup binding: %w", err)
		}
	}
	return d.defaultProvider, nil
}
