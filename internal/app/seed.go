package app

import (
	"context"
	"fmt"
	"log/slog"
	"slices"

	"duck-query/internal/config"
	"duck-query/internal/domain"
)

// seedBindings upserts the bindings from the bindings file. Bindings naming a
// provider that is not registered are still stored, since the provider may be
// configured later, but are reported.
func seedBindings(ctx context.Context, repo domain.DocumentBindingRepository, entries []config.BindingEntry, providers []string, logger *slog.Logger) error {
	for _, e := range entries {
		if !slices.Contains(providers, e.Provider) {
			logger.Warn("binding names an unregistered provider", "document_uri", e.Document, "provider", e.Provider)
		}
		if _, err := repo.Bind(ctx, e.Document, e.Provider); err != nil {
			return fmt.Errorf("seed binding %q: %w", e.Document, err)
		}
	}
	if len(entries) > 0 {
		logger.Info("seeded document bindings", "count", len(entries))
	}
	return nil
}
