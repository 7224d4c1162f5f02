// Package ports defines the contracts between the bundle pipeline and its
// external collaborators.
package ports

import (
	"context"

	"github.com/tjfontaine/bundle-gateway/internal/core/domain"
)

// ValidationRequest carries what a validator needs to judge a payload.
type ValidationRequest struct {
	Payload       []byte
	InteractionID string
	TenantID      string
	SourceType    domain.SourceType
	Provenance    string
	Params        map[string]string
}

// Validator runs content validation on a bundle.
// A non-nil error means validation could not run at all; findings are
// reported through the outcome.
type Validator interface {
	// Name identifies the validator in logs.
	Name() string

	// Validate judges the payload.
	Validate(ctx context.Context, req *ValidationRequest) (*domain.ValidationOutcome, error)
}
