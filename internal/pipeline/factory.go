package pipeline

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/tjfontaine/bundle-gateway/internal/adapters/validation"
	"github.com/tjfontaine/bundle-gateway/internal/core/ports"
	"github.com/tjfontaine/bundle-gateway/internal/disposition"
	"github.com/tjfontaine/bundle-gateway/internal/pkg/config"
	"github.com/tjfontaine/bundle-gateway/internal/transport"
)

const defaultWebhookTimeout = 30 * time.Second

// NewSettingsFromConfig builds the reloadable part of the pipeline.
func NewSettingsFromConfig(cfg *config.Config, secrets ports.SecretStore, clients transport.ClientFactory, logger *slog.Logger) (*Settings, error) {
	registry, err := transport.NewRegistryFromConfig(cfg.Transport, secrets, clients)
	if err != nil {
		return nil, fmt.Errorf("transport: %w", err)
	}
	return &Settings{
		Registry:  registry,
		Processor: disposition.NewProcessor(cfg.Validation.SeverityLevel, logger),
		Validator: NewValidatorFromConfig(cfg.Validation),
	}, nil
}

// NewValidatorFromConfig returns the external validator chain, or nil when
// no validator endpoint is configured.
func NewValidatorFromConfig(cfg config.ValidationConfig) ports.Validator {
	if cfg.Webhook.URL == "" {
		return nil
	}
	return validation.NewChain(validation.NewWebhookValidator(validation.WebhookConfig{
		URL:     cfg.Webhook.URL,
		Timeout: config.Duration(cfg.Webhook.Timeout, defaultWebhookTimeout),
		Retries: cfg.Webhook.Retries,
		Backoff: config.Duration(cfg.Webhook.Backoff, validation.DefaultRetryBackoff),
		Headers: cfg.Webhook.Headers,
	}))
}
