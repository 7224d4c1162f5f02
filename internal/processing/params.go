package processing

// Request parameter keys. The HTTP layer and the replay CLI populate a map
// keyed by these names; nothing else in the pipeline reads raw headers.
const (
	ParamInteractionID             = "INTERACTION_ID"
	ParamTenantID                  = "TENANT_ID"
	ParamCorrelationID             = "CORRELATION_ID"
	ParamSourceType                = "SOURCE_TYPE"
	ParamGroupInteractionID        = "GROUP_INTERACTION_ID"
	ParamMasterInteractionID       = "MASTER_INTERACTION_ID"
	ParamHealthCheck               = "HEALTH_CHECK"
	ParamTransportStrategy         = "MTLS_STRATEGY"
	ParamCustomDataLakeAPI         = "CUSTOM_DATA_LAKE_API"
	ParamDataLakeAPIContentType    = "DATA_LAKE_API_CONTENT_TYPE"
	ParamValidationSeverityLevel   = "VALIDATION_SEVERITY_LEVEL"
	ParamProvenance                = "PROVENANCE"
	ParamRequestURI                = "REQUEST_URI"
	ParamRequestURIToBeOverridden  = "REQUEST_URI_TO_BE_OVERRIDDEN"
	ParamUserName                  = "USER_NAME"
	ParamUserID                    = "USER_ID"
	ParamUserRole                  = "USER_ROLE"
	ParamElaboration               = "ELABORATION"
	ParamUserAgent                 = "USER_AGENT"
	ParamObservabilityFinishMetric = "X-Observability-Metric-Interaction-Finish-Time"
)

// Defaults for user metadata when the caller supplies none.
const (
	DefaultUserName = "API_USER"
	DefaultUserID   = "N/A"
	DefaultUserRole = "API_ROLE"
)

// Validation-only request URIs.
const (
	ValidateURI      = "/Bundle/$validate"
	ValidateURISlash = "/Bundle/$validate/"
)
