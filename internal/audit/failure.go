package audit

import (
	"encoding/json"
	"errors"

	"github.com/tjfontaine/bundle-gateway/internal/core/domain"
)

// FailureDetail builds the stored payload for a failed delivery.
func FailureDetail(err error, baseURL, tenantID string) map[string]any {
	detail := map[string]any{
		"dataLakeApiBaseURL": baseURL,
		"error":              err.Error(),
		"message":            failureMessage(err),
		"tenantId":           tenantID,
	}
	if root := domain.RootCause(err); root != nil {
		detail["rootCause"] = root.Error()
	}
	detail["mostSpecificCause"] = domain.MostSpecificCause(err).Error()

	var httpErr *domain.HTTPStatusError
	if errors.As(err, &httpErr) {
		detail["responseBody"] = string(httpErr.Body)
		detail["statusCode"] = httpErr.StatusCode
		detail["statusText"] = httpErr.Status
		if len(httpErr.Header) > 0 {
			detail["headers"] = httpErr.Header
		}
		var resp struct {
			BundleID string `json:"bundle_id"`
		}
		if json.Unmarshal(httpErr.Body, &resp) == nil && resp.BundleID != "" {
			detail["bundleId"] = resp.BundleID
		}
	}
	return detail
}

func failureMessage(err error) string {
	var pe *domain.PipelineError
	if errors.As(err, &pe) {
		return pe.Message
	}
	return err.Error()
}
