package api

import (
	"net/http"
)

type putDocumentRequest struct {
	Document string `json:"document"`
	Text     string `json:"text"`
}

func (h *Handler) putDocument(w http.ResponseWriter, r *http.Request) {
	var req putDocumentRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	uri, err := requireDocument(req.Document)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	doc, err := h.docs.Put(uri, req.Text)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func (h *Handler) getDocument(w http.ResponseWriter, r *http.Request) {
	uri, err := documentParam(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	doc, err := h.docs.Get(uri)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}
