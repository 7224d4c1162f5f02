package validation

import (
	"context"
	"fmt"

	"github.com/tjfontaine/bundle-gateway/internal/core/domain"
	"github.com/tjfontaine/bundle-gateway/internal/core/ports"
)

// Chain runs validators in order and merges their findings. An invalid
// outcome stops the chain; later validators never see a payload an earlier
// one rejected.
type Chain struct {
	validators []ports.Validator
}

// NewChain creates a chain, skipping nil validators.
func NewChain(validators ...ports.Validator) *Chain {
	c := &Chain{}
	for _, v := range validators {
		if v != nil {
			c.validators = append(c.validators, v)
		}
	}
	return c
}

func (c *Chain) Name() string { return "chain" }

func (c *Chain) Validate(ctx context.Context, req *ports.ValidationRequest) (*domain.ValidationOutcome, error) {
	merged := &domain.ValidationOutcome{
		ResourceType: "OperationOutcome",
		SessionID:    req.InteractionID,
		Valid:        true,
	}
	for _, v := range c.validators {
		out, err := v.Validate(ctx, req)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", v.Name(), err)
		}
		if out == nil {
			continue
		}
		merged.Issues = append(merged.Issues, out.Issues...)
		merged.Disposition = append(merged.Disposition, out.Disposition...)
		if out.Version != "" {
			merged.Version = out.Version
		}
		if !out.Valid {
			merged.Valid = false
			break
		}
	}
	return merged, nil
}

var _ ports.Validator = (*Chain)(nil)
