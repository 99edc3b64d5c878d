package api

import (
	"errors"
	"net/http"

	"duck-query/internal/domain"
)

// httpStatusFromDomainError maps domain errors to HTTP status codes.
func httpStatusFromDomainError(err error) int {
	var notFound *domain.NotFoundError
	var validation *domain.ValidationError
	var conflict *domain.ConflictError
	var invalidOp *domain.InvalidOperationError
	var noProvider *domain.NoProviderError
	var protocol *domain.ProtocolError

	switch {
	case errors.As(err, &notFound):
		return http.StatusNotFound
	case errors.As(err, &validation):
		return http.StatusBadRequest
	case errors.As(err, &conflict), errors.As(err, &invalidOp):
		return http.StatusConflict
	case errors.As(err, &noProvider):
		return http.StatusServiceUnavailable
	case errors.As(err, &protocol):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
