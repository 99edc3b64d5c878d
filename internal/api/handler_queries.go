package api

import (
	"net/http"

	"duck-query/internal/domain"
	"duck-query/internal/query"
)

type createQueryRequest struct {
	Document string `json:"document"`
	ForceNew bool   `json:"force_new"`
}

type documentRequest struct {
	Document string `json:"document"`
}

type optionsRequest struct {
	Document string                  `json:"document"`
	Options  domain.ExecutionOptions `json:"options"`
}

// CancelResponse is returned by the cancel endpoint.
type CancelResponse struct {
	Query query.Snapshot `json:"query"`
}

func (h *Handler) lookupQuery(uri string) (*query.Query, error) {
	q, ok := h.orch.Query(uri)
	if !ok {
		return nil, domain.ErrNotFound("no query for document %q", uri)
	}
	return q, nil
}

func (h *Handler) createOrGetQuery(w http.ResponseWriter, r *http.Request) {
	var req createQueryRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	uri, err := requireDocument(req.Document)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	q := h.orch.CreateOrGetQuery(uri, req.ForceNew)
	writeJSON(w, http.StatusOK, q.Snapshot())
}

func (h *Handler) getQuery(w http.ResponseWriter, r *http.Request) {
	uri, err := documentParam(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	q, err := h.lookupQuery(uri)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, q.Snapshot())
}

// decodeDocumentQuery reads {document} from the body and resolves the query.
func (h *Handler) decodeDocumentQuery(w http.ResponseWriter, r *http.Request) (*query.Query, bool) {
	var req documentRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return nil, false
	}
	uri, err := requireDocument(req.Document)
	if err != nil {
		h.writeError(w, r, err)
		return nil, false
	}
	q, err := h.lookupQuery(uri)
	if err != nil {
		h.writeError(w, r, err)
		return nil, false
	}
	return q, true
}

func (h *Handler) executeQuery(w http.ResponseWriter, r *http.Request) {
	q, ok := h.decodeDocumentQuery(w, r)
	if !ok {
		return
	}
	if err := q.Execute(r.Context()); err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, q.Snapshot())
}

func (h *Handler) cancelQuery(w http.ResponseWriter, r *http.Request) {
	q, ok := h.decodeDocumentQuery(w, r)
	if !ok {
		return
	}
	if err := q.Cancel(r.Context()); err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, CancelResponse{Query: q.Snapshot()})
}

func (h *Handler) setOptions(w http.ResponseWriter, r *http.Request) {
	var req optionsRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	uri, err := requireDocument(req.Document)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	q, err := h.lookupQuery(uri)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if err := q.SetExecutionOptions(r.Context(), req.Options); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) fetchRows(w http.ResponseWriter, r *http.Request) {
	uri, err := documentParam(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	var key domain.ResultSetKey
	if key.BatchIndex, err = intParam(r, "batch", 0); err != nil {
		h.writeError(w, r, err)
		return
	}
	if key.ResultIndex, err = intParam(r, "result", 0); err != nil {
		h.writeError(w, r, err)
		return
	}
	offset, err := intParam(r, "offset", 0)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	count, err := intParam(r, "count", defaultRowCount)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if count > maxRowCount {
		count = maxRowCount
	}

	q, err := h.lookupQuery(uri)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	rs, ok := q.ResultSet(key)
	if !ok {
		h.writeError(w, r, domain.ErrNotFound("result set %s not found for document %q", key, uri))
		return
	}
	subset, err := rs.Fetch(r.Context(), offset, count)
	if err != nil {
		h.writeError(w, r, wrapf(err, "fetch result set %s", key))
		return
	}
	writeJSON(w, http.StatusOK, subset)
}
