// Package processing assembles the immutable per-request context that every
// pipeline stage reads from.
package processing

import (
	"encoding/json"
	"maps"
	"strings"

	"github.com/tjfontaine/bundle-gateway/internal/core/domain"
)

// Context is the per-request processing context. It is never mutated after
// Assemble returns; derived contexts are new values.
type Context struct {
	interaction   domain.Interaction
	correlationID string
	requestURI    string
	uriOverride   string
	healthCheck   string
	strategyHint  string
	baseURL       string
	contentType   string
	severityLevel string
	provenance    string
	replay        bool
	params        map[string]string
}

// Assemble builds a Context from request parameters and the raw payload.
// The payload is only inspected for a top-level bundle id.
func Assemble(params map[string]string, payload []byte) (*Context, error) {
	interactionID := strings.TrimSpace(params[ParamInteractionID])
	correlationID := strings.TrimSpace(params[ParamCorrelationID])
	if correlationID != "" {
		interactionID = correlationID
	}
	if interactionID == "" {
		return nil, domain.NewConfigurationError("missing required parameter %s", ParamInteractionID)
	}

	tenantID := strings.TrimSpace(params[ParamTenantID])
	if tenantID == "" {
		return nil, domain.NewConfigurationError("missing required parameter %s", ParamTenantID)
	}

	return &Context{
		interaction: domain.Interaction{
			InteractionID:       interactionID,
			TenantID:            tenantID,
			GroupInteractionID:  params[ParamGroupInteractionID],
			MasterInteractionID: params[ParamMasterInteractionID],
			SourceType:          domain.ParseSourceType(params[ParamSourceType]),
			BundleID:            ExtractBundleID(payload),
		},
		correlationID: correlationID,
		requestURI:    params[ParamRequestURI],
		uriOverride:   params[ParamRequestURIToBeOverridden],
		healthCheck:   params[ParamHealthCheck],
		strategyHint:  strings.TrimSpace(params[ParamTransportStrategy]),
		baseURL:       strings.TrimSpace(params[ParamCustomDataLakeAPI]),
		contentType:   strings.TrimSpace(params[ParamDataLakeAPIContentType]),
		severityLevel: strings.TrimSpace(params[ParamValidationSeverityLevel]),
		provenance:    params[ParamProvenance],
		params:        maps.Clone(params),
	}, nil
}

// ExtractBundleID returns the payload's top-level "id", or "" when the
// payload is not a JSON object or has no string id.
func ExtractBundleID(payload []byte) string {
	if len(payload) == 0 {
		return ""
	}
	var top struct {
		ID any `json:"id"`
	}
	if err := json.Unmarshal(payload, &top); err != nil {
		return ""
	}
	id, _ := top.ID.(string)
	return id
}

// WithReplay returns a copy of c flagged as a replay.
func (c *Context) WithReplay() *Context {
	cp := *c
	cp.params = maps.Clone(c.params)
	cp.replay = true
	return &cp
}

func (c *Context) Interaction() domain.Interaction { return c.interaction }
func (c *Context) InteractionID() string           { return c.interaction.InteractionID }
func (c *Context) TenantID() string                { return c.interaction.TenantID }
func (c *Context) SourceType() domain.SourceType   { return c.interaction.SourceType }
func (c *Context) BundleID() string                { return c.interaction.BundleID }
func (c *Context) CorrelationID() string           { return c.correlationID }
func (c *Context) StrategyHint() string            { return c.strategyHint }
func (c *Context) BaseURLOverride() string         { return c.baseURL }
func (c *Context) ContentType() string             { return c.contentType }
func (c *Context) SeverityLevel() string           { return c.severityLevel }
func (c *Context) Provenance() string              { return c.provenance }
func (c *Context) IsReplay() bool                  { return c.replay }

// RequestURI is the interaction key recorded with each state: the override
// when one was supplied, otherwise the inbound request URI.
func (c *Context) RequestURI() string {
	if c.uriOverride != "" {
		return c.uriOverride
	}
	return c.requestURI
}

// IsHealthCheck reports a case-insensitive "true" health-check flag.
// Health checks are validated but leave no state records.
func (c *Context) IsHealthCheck() bool {
	return strings.EqualFold(strings.TrimSpace(c.healthCheck), "true")
}

// IsValidationOnly reports whether the caller asked for validation without
// forwarding.
func (c *Context) IsValidationOnly() bool {
	return c.requestURI == ValidateURI || c.requestURI == ValidateURISlash
}

// Params returns a copy of the request parameters.
func (c *Context) Params() map[string]string {
	return maps.Clone(c.params)
}

// User returns the caller identity with defaults applied. The session id is
// left blank; the state recorder assigns one per write.
func (c *Context) User() domain.UserInfo {
	return domain.UserInfo{
		Name: valueOr(c.params[ParamUserName], DefaultUserName),
		ID:   valueOr(c.params[ParamUserID], DefaultUserID),
		Role: valueOr(c.params[ParamUserRole], DefaultUserRole),
	}
}

// Elaboration returns the caller-supplied elaboration JSON, or nil when it is
// absent or malformed.
func (c *Context) Elaboration() json.RawMessage {
	raw := strings.TrimSpace(c.params[ParamElaboration])
	if raw == "" || !json.Valid([]byte(raw)) {
		return nil
	}
	return json.RawMessage(raw)
}

func valueOr(v, fallback string) string {
	if strings.TrimSpace(v) == "" {
		return fallback
	}
	return v
}
