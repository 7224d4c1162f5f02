package domain

import (
	"fmt"
	"net/http"
	"strings"
)

// DeliveryStatus classifies one forwarding attempt.
type DeliveryStatus string

const (
	DeliverySuccess DeliveryStatus = "SUCCESS"
	DeliveryFailure DeliveryStatus = "FAILURE"
	DeliveryError   DeliveryStatus = "ERROR"
	DeliveryTimeout DeliveryStatus = "TIMEOUT"
)

// DeliveryResult is the outcome of sending a payload to the scoring system.
// It is consumed by the state recorder right after the attempt.
type DeliveryResult struct {
	Status         DeliveryStatus
	StatusCode     int
	Body           []byte
	ResponseStatus string // the response body's "status" field, when present
	Err            error
}

// Succeeded reports whether the scoring system accepted the payload.
func (r *DeliveryResult) Succeeded() bool {
	return r != nil && r.Status == DeliverySuccess
}

// IsSuccessStatus reports whether a response status field means acceptance.
func IsSuccessStatus(status string) bool {
	return strings.EqualFold(status, "Success")
}

// HTTPStatusError reports a non-2xx response from the scoring system. It
// keeps enough of the response for the failure record.
type HTTPStatusError struct {
	StatusCode int
	Status     string
	Body       []byte
	Header     http.Header
}

// Error implements the error interface.
func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("scoring system returned %s", e.Status)
}
