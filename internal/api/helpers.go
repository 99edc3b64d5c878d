package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"duck-query/internal/domain"
)

// maxBodyBytes bounds request bodies; document text is the largest payload.
const maxBodyBytes = 16 << 20

// Error is the JSON body of every failed request.
type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := httpStatusFromDomainError(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		h.logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		msg = "internal error"
	}
	writeJSON(w, status, Error{Code: status, Message: msg})
}

// decodeJSON reads a JSON body into dst. Unknown fields are rejected.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return domain.ErrValidation("request body is required")
		}
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return domain.ErrValidation("request body exceeds %d bytes", tooLarge.Limit)
		}
		return domain.ErrValidation("invalid request body: %v", err)
	}
	return nil
}

func documentParam(r *http.Request) (string, error) {
	uri := strings.TrimSpace(r.URL.Query().Get("document"))
	if uri == "" {
		return "", domain.ErrValidation("document query parameter is required")
	}
	return uri, nil
}

func requireDocument(uri string) (string, error) {
	uri = strings.TrimSpace(uri)
	if uri == "" {
		return "", domain.ErrValidation("document is required")
	}
	return uri, nil
}

// intParam parses an optional non-negative integer query parameter.
func intParam(r *http.Request, name string, def int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, domain.ErrValidation("%s must be an integer, got %q", name, raw)
	}
	if n < 0 {
		return 0, domain.ErrValidation("%s must be non-negative, got %d", name, n)
	}
	return n, nil
}

func wrapf(err error, format string, args ...interface{}) error {
	return fmt.Errorf(format+": %w", append(args, err)...)
}
