package delivery

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"

	"github.com/tjfontaine/bundle-gateway/internal/core/domain"
)

// Classify turns one scoring response, or the error that replaced it, into a
// DeliveryResult. Only a 2xx response whose body carries status "Success"
// (any case) counts as delivered.
func Classify(resp *http.Response, body []byte, err error) *domain.DeliveryResult {
	if err != nil {
		if isTimeout(err) {
			return &domain.DeliveryResult{
				Status: domain.DeliveryTimeout,
				Err:    domain.NewDeliveryError("scoring request timed out", err),
			}
		}
		return &domain.DeliveryResult{
			Status: domain.DeliveryError,
			Err:    domain.NewDeliveryError("scoring request failed", err),
		}
	}

	result := &domain.DeliveryResult{
		StatusCode:     resp.StatusCode,
		Body:           body,
		ResponseStatus: responseStatus(body),
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		result.Status = domain.DeliveryFailure
		result.Err = domain.NewDeliveryError("scoring request rejected", &domain.HTTPStatusError{
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
			Body:       body,
			Header:     resp.Header.Clone(),
		})
		return result
	}

	if domain.IsSuccessStatus(result.ResponseStatus) {
		result.Status = domain.DeliverySuccess
		return result
	}

	result.Status = domain.DeliveryFailure
	result.Err = domain.NewDeliveryError(fmt.Sprintf("scoring system reported status %q", result.ResponseStatus), nil)
	return result
}

func responseStatus(body []byte) string {
	var envelope struct {
		Status any `json:"status"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return ""
	}
	switch v := envelope.Status.(type) {
	case string:
		return v
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
