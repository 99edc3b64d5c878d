package api

import (
	"net/http"
	"strings"

	"duck-query/internal/domain"
)

func (h *Handler) listHistory(w http.ResponseWriter, r *http.Request) {
	if h.history == nil {
		h.writeError(w, r, domain.ErrNotFound("query history is not enabled"))
		return
	}
	limit, err := intParam(r, "limit", 0)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	entries, err := h.history.List(r.Context(), domain.QueryHistoryFilter{
		DocumentURI: strings.TrimSpace(r.URL.Query().Get("document")),
		Limit:       limit,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if entries == nil {
		entries = []domain.QueryHistoryEntry{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"history": entries})
}
