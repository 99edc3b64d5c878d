// Package domain defines core types, ports, and errors for query orchestration.
package domain

import "fmt"

// NotFoundError indicates a resource was not found.
type NotFoundError struct {
	Message string
}

func (e *NotFoundError) Error() string { return e.Message }

// ValidationError indicates invalid input.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

// ConflictError indicates a conflict (e.g., a provider already running a query for an owner).
type ConflictError struct {
	Message string
}

func (e *ConflictError) Error() string { return e.Message }

// InvalidOperationError indicates an operation that is not allowed in the
// current state, such as executing a query that is already executing.
type InvalidOperationError struct {
	Message string
}

func (e *InvalidOperationError) Error() string { return e.Message }

// NoProviderError indicates that no query provider could be resolved for a document.
type NoProviderError struct {
	Message string
}

func (e *NoProviderError) Error() string { return e.Message }

// ProtocolError indicates that a provider violated the event contract, for
// example by referencing a query or result set that was never announced.
type ProtocolError struct {
	ProviderID string
	OwnerURI   string
	Message    string
}

func (e *ProtocolError) Error() string {
	if e.ProviderID == "" {
		return "protocol violation: " + e.Message
	}
	return fmt.Sprintf("protocol violation from provider %q: %s", e.ProviderID, e.Message)
}

// ErrNotFound creates a NotFoundError with a formatted message.
func ErrNotFound(format string, args ...interface{}) *NotFoundError {
	return &NotFoundError{Message: fmt.Sprintf(format, args...)}
}

// ErrValidation creates a ValidationError with a formatted message.
func ErrValidation(format string, args ...interface{}) *ValidationError {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}

// ErrConflict creates a ConflictError with a formatted message.
func ErrConflict(format string, args ...interface{}) *ConflictError {
	return &ConflictError{Message: fmt.Sprintf(format, args...)}
}

// ErrInvalidOperation creates an InvalidOperationError with a formatted message.
func ErrInvalidOperation(format string, args ...interface{}) *InvalidOperationError {
	return &InvalidOperationError{Message: fmt.Sprintf(format, args...)}
}

// ErrNoProvider creates a NoProviderError with a formatted message.
func ErrNoProvider(format string, args ...interface{}) *NoProviderError {
	return &NoProviderError{Message: fmt.Sprintf(format, args...)}
}

// ErrProtocol creates a ProtocolError attributed to a provider and owner.
func ErrProtocol(providerID, ownerURI, format string, args ...interface{}) *ProtocolError {
	return &ProtocolError{
		ProviderID: providerID,
		OwnerURI:   ownerURI,
		Message:    fmt.Sprintf(format, args...),
	}
}
