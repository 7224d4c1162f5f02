// Package validation adapts content validators to the pipeline's Validator
// contract.
package validation

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/tjfontaine/bundle-gateway/internal/core/domain"
	"github.com/tjfontaine/bundle-gateway/internal/core/ports"
)

// Issue codes reported by Precheck.
const (
	CodeStructure = "structure"
	CodeRequired  = "required"
	CodeInvalid   = "invalid"
)

// Precheck rejects payloads that cannot be a profiled FHIR bundle before any
// external validator is called.
type Precheck struct{}

// NewPrecheck creates the structural precheck.
func NewPrecheck() *Precheck { return &Precheck{} }

func (p *Precheck) Name() string { return "precheck" }

func (p *Precheck) Validate(ctx context.Context, req *ports.ValidationRequest) (*domain.ValidationOutcome, error) {
	var bundle map[string]any
	if err := json.Unmarshal(req.Payload, &bundle); err != nil || bundle == nil {
		return fatal(req, CodeStructure, "payload is not a JSON object"), nil
	}
	if rt, _ := bundle["resourceType"].(string); rt != "Bundle" {
		return fatal(req, CodeInvalid, "resourceType must be Bundle"), nil
	}
	if !hasProfile(bundle) {
		return fatal(req, CodeRequired, "Bundle.meta.profile is missing or empty"), nil
	}
	return &domain.ValidationOutcome{
		ResourceType: "OperationOutcome",
		SessionID:    req.InteractionID,
		Valid:        true,
	}, nil
}

func hasProfile(bundle map[string]any) bool {
	meta, ok := bundle["meta"].(map[string]any)
	if !ok {
		return false
	}
	switch profile := meta["profile"].(type) {
	case []any:
		for _, p := range profile {
			if s, ok := p.(string); ok && strings.TrimSpace(s) != "" {
				return true
			}
		}
	case string:
		return strings.TrimSpace(profile) != ""
	}
	return false
}

func fatal(req *ports.ValidationRequest, code, msg string) *domain.ValidationOutcome {
	o := domain.FatalOutcome(req.InteractionID, code, msg)
	return &o
}

var _ ports.Validator = (*Precheck)(nil)
