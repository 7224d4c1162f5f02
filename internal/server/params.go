package server

import (
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/tjfontaine/bundle-gateway/internal/processing"
)

// Inbound headers.
const (
	HeaderTenantID            = "X-TechBD-Tenant-ID"
	HeaderInteractionID       = "X-TechBD-Interaction-ID"
	HeaderCorrelationID       = "X-Correlation-ID"
	HeaderSourceType          = "X-TechBD-Source-Type"
	HeaderGroupInteractionID  = "X-TechBD-Group-Interaction-ID"
	HeaderMasterInteractionID = "X-TechBD-Master-Interaction-ID"
	HeaderSeverityLevel       = "X-TechBD-Validation-Severity-Level"
	HeaderTransportStrategy   = "X-TechBD-mTLS-Strategy"
	HeaderOverrideRequestURI  = "X-TechBD-Override-Request-URI"
	HeaderHealthCheck         = "X-TechBD-HealthCheck"
	HeaderDataLakeAPIURL      = "X-TechBD-DataLake-API-URL"
	HeaderDataLakeContentType = "X-TechBD-DataLake-API-Content-Type"
	HeaderProvenance          = "X-TechBD-Provenance"
	HeaderUserName            = "X-TechBD-User-Name"
	HeaderUserID              = "X-TechBD-User-ID"
	HeaderUserRole            = "X-TechBD-User-Role"
	HeaderElaboration         = "X-TechBD-Elaboration"
)

var headerParams = []struct {
	header string
	param  string
}{
	{HeaderTenantID, processing.ParamTenantID},
	{HeaderInteractionID, processing.ParamInteractionID},
	{HeaderCorrelationID, processing.ParamCorrelationID},
	{HeaderSourceType, processing.ParamSourceType},
	{HeaderGroupInteractionID, processing.ParamGroupInteractionID},
	{HeaderMasterInteractionID, processing.ParamMasterInteractionID},
	{HeaderSeverityLevel, processing.ParamValidationSeverityLevel},
	{HeaderTransportStrategy, processing.ParamTransportStrategy},
	{HeaderOverrideRequestURI, processing.ParamRequestURIToBeOverridden},
	{HeaderHealthCheck, processing.ParamHealthCheck},
	{HeaderDataLakeAPIURL, processing.ParamCustomDataLakeAPI},
	{HeaderDataLakeContentType, processing.ParamDataLakeAPIContentType},
	{HeaderProvenance, processing.ParamProvenance},
	{HeaderUserName, processing.ParamUserName},
	{HeaderUserID, processing.ParamUserID},
	{HeaderUserRole, processing.ParamUserRole},
	{HeaderElaboration, processing.ParamElaboration},
	{"User-Agent", processing.ParamUserAgent},
}

// RequestParams maps request headers to pipeline parameters. Absent headers
// leave no key.
func RequestParams(r *http.Request) map[string]string {
	params := make(map[string]string, len(headerParams)+1)
	for _, hp := range headerParams {
		if v := strings.TrimSpace(r.Header.Get(hp.header)); v != "" {
			params[hp.param] = v
		}
	}
	params[processing.ParamRequestURI] = r.URL.Path
	return params
}

// BundleParams is RequestParams plus a generated interaction id when the
// caller sent neither an interaction nor a correlation id.
func BundleParams(r *http.Request) map[string]string {
	params := RequestParams(r)
	if params[processing.ParamInteractionID] == "" && params[processing.ParamCorrelationID] == "" {
		params[processing.ParamInteractionID] = newInteractionID()
	}
	if _, ok := params[processing.ParamProvenance]; !ok {
		params[processing.ParamProvenance] = "HTTP " + r.Method + " " + r.URL.Path
	}
	return params
}

// Interaction ids are time-ordered so audit rows sort by arrival.
func newInteractionID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}
