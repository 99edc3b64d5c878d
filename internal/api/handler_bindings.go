package api

import (
	"net/http"
	"strings"

	"duck-query/internal/domain"
)

type bindingRequest struct {
	Document string `json:"document"`
	Provider string `json:"provider"`
}

func (h *Handler) listBindings(w http.ResponseWriter, r *http.Request) {
	bindings, err := h.bindings.List(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if bindings == nil {
		bindings = []domain.DocumentBinding{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"bindings": bindings})
}

func (h *Handler) putBinding(w http.ResponseWriter, r *http.Request) {
	var req bindingRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	uri, err := requireDocument(req.Document)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	provider := strings.TrimSpace(req.Provider)
	if _, ok := h.orch.Provider(provider); !ok {
		h.writeError(w, r, domain.ErrValidation("provider %q is not registered", provider))
		return
	}
	b, err := h.bindings.Bind(r.Context(), uri, provider)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.logger.Info("document bound", "document_uri", uri, "provider", provider)
	writeJSON(w, http.StatusOK, b)
}

func (h *Handler) deleteBinding(w http.ResponseWriter, r *http.Request) {
	uri, err := documentParam(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if err := h.bindings.Unbind(r.Context(), uri); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
