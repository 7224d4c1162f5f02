// Package domain defines the bundle lifecycle, its audit records, and the
// error taxonomy shared by every pipeline component.
package domain

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorKind is the category of a pipeline error.
type ErrorKind string

const (
	// ErrorKindConfiguration aborts processing before any state is recorded.
	ErrorKindConfiguration ErrorKind = "configuration"

	// ErrorKindValidation is reported as an outcome and recorded as DISPOSITION.
	ErrorKindValidation ErrorKind = "validation"

	// ErrorKindTransport covers strategy construction and credential fetches.
	ErrorKindTransport ErrorKind = "transport"

	// ErrorKindDelivery covers network and HTTP failures while sending.
	ErrorKindDelivery ErrorKind = "delivery"

	// ErrorKindAudit covers state sink write failures. Swallowed everywhere
	// except a replay claim, which must be durable before sending.
	ErrorKindAudit ErrorKind = "audit"
)

// PipelineError is the error type returned by pipeline components.
type PipelineError struct {
	Kind    ErrorKind
	Message string
	Cause   error
}

// Error implements the error interface.
func (e *PipelineError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s error: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s error: %s", e.Kind, e.Message)
}

// Unwrap returns the underlying cause.
func (e *PipelineError) Unwrap() error {
	return e.Cause
}

// HTTPStatusCode maps the error kind to a status for inbound callers.
func (e *PipelineError) HTTPStatusCode() int {
	switch e.Kind {
	case ErrorKindConfiguration, ErrorKindValidation:
		return http.StatusBadRequest
	case ErrorKindTransport, ErrorKindDelivery:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// NewConfigurationError creates a configuration error.
func NewConfigurationError(format string, args ...any) *PipelineError {
	return &PipelineError{Kind: ErrorKindConfiguration, Message: fmt.Sprintf(format, args...)}
}

// NewValidationError creates a validation error.
func NewValidationError(message string, cause error) *PipelineError {
	return &PipelineError{Kind: ErrorKindValidation, Message: message, Cause: cause}
}

// NewTransportError creates a transport error.
func NewTransportError(message string, cause error) *PipelineError {
	return &PipelineError{Kind: ErrorKindTransport, Message: message, Cause: cause}
}

// NewDeliveryError creates a delivery error.
func NewDeliveryError(message string, cause error) *PipelineError {
	return &PipelineError{Kind: ErrorKindDelivery, Message: message, Cause: cause}
}

// NewAuditError creates an audit error.
func NewAuditError(message string, cause error) *PipelineError {
	return &PipelineError{Kind: ErrorKindAudit, Message: message, Cause: cause}
}

// KindOf returns the kind of the first PipelineError in err's chain, or "".
func KindOf(err error) ErrorKind {
	var pe *PipelineError
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return ""
}

// IsConfigurationError reports whether err should abort request processing.
func IsConfigurationError(err error) bool {
	return KindOf(err) == ErrorKindConfiguration
}

// RootCause returns the innermost error of err's Unwrap chain, or nil when
// err wraps nothing.
func RootCause(err error) error {
	if err == nil {
		return nil
	}
	var root error
	for cause := errors.Unwrap(err); cause != nil; cause = errors.Unwrap(cause) {
		root = cause
	}
	return root
}

// MostSpecificCause returns the root cause, or err itself when it has none.
func MostSpecificCause(err error) error {
	if root := RootCause(err); root != nil {
		return root
	}
	return err
}
