// Package api exposes the query orchestrator over HTTP: document text,
// create-or-get of queries, execution control, result paging, a Server-Sent
// Events stream, provider bindings, and execution history.
package api

import (
	"log/slog"
	"net/http"
	"sort"
	"time"

	"github.com/go-chi/chi/v5"

	"duck-query/internal/document"
	"duck-query/internal/domain"
	"duck-query/internal/query"
)

const (
	defaultRowCount  = 100
	maxRowCount      = 10000
	defaultHeartbeat = 15 * time.Second
)

// Deps are the collaborators served by a Handler. History may be nil.
type Deps struct {
	Orchestrator *query.Orchestrator
	Documents    *document.Store
	Bindings     domain.DocumentBindingRepository
	History      domain.QueryHistoryRepository
	Logger       *slog.Logger
	// Heartbeat is the idle interval between SSE keep-alive comments.
	Heartbeat time.Duration
}

// Handler serves the HTTP API.
type Handler struct {
	orch      *query.Orchestrator
	docs      *document.Store
	bindings  domain.DocumentBindingRepository
	history   domain.QueryHistoryRepository
	logger    *slog.Logger
	heartbeat time.Duration
}

// NewHandler creates a Handler.
func NewHandler(d Deps) *Handler {
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}
	hb := d.Heartbeat
	if hb <= 0 {
		hb = defaultHeartbeat
	}
	return &Handler{
		orch:      d.Orchestrator,
		docs:      d.Documents,
		bindings:  d.Bindings,
		history:   d.History,
		logger:    logger.With("component", "api"),
		heartbeat: hb,
	}
}

// Mount registers the /v1 routes on r.
func (h *Handler) Mount(r chi.Router) {
	r.Post("/documents", h.putDocument)
	r.Get("/documents", h.getDocument)

	r.Route("/queries", func(r chi.Router) {
		r.Post("/", h.createOrGetQuery)
		r.Get("/", h.getQuery)
		r.Post("/execute", h.executeQuery)
		r.Post("/cancel", h.cancelQuery)
		r.Put("/options", h.setOptions)
		r.Get("/rows", h.fetchRows)
		r.Get("/events", h.streamEvents)
	})

	r.Get("/bindings", h.listBindings)
	r.Put("/bindings", h.putBinding)
	r.Delete("/bindings", h.deleteBinding)

	r.Get("/providers", h.listProviders)
	r.Get("/history", h.listHistory)
}

// ProviderInfo describes a registered provider.
type ProviderInfo struct {
	ID      string              `json:"id"`
	Options []domain.OptionSpec `json:"options,omitempty"`
}

func (h *Handler) providerInfos() []ProviderInfo {
	ids := h.orch.Providers()
	sort.Strings(ids)
	out := make([]ProviderInfo, 0, len(ids))
	for _, id := range ids {
		info := ProviderInfo{ID: id}
		if p, ok := h.orch.Provider(id); ok {
			if d, ok := p.(domain.OptionDescriber); ok {
				info.Options = d.KnownOptions()
			}
		}
		out = append(out, info)
	}
	return out
}

func (h *Handler) listProviders(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{"providers": h.providerInfos()})
}

// Health reports liveness and the registered provider identities.
func (h *Handler) Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "ok",
		"providers": h.orch.Providers(),
	})
}
