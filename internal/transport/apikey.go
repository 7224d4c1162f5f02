package transport

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/tjfontaine/bundle-gateway/internal/core/domain"
	"github.com/tjfontaine/bundle-gateway/internal/core/ports"
)

// APIKeyConfig names the header and the secret holding its value.
type APIKeyConfig struct {
	HeaderName string
	SecretName string
}

// APIKey adds an API key header. The key is read from the secret store on
// every send and never cached.
type APIKey struct {
	cfg     APIKeyConfig
	secrets ports.SecretStore
	clients ClientFactory
}

// NewAPIKey creates the API-key strategy.
func NewAPIKey(cfg APIKeyConfig, secrets ports.SecretStore, clients ClientFactory) *APIKey {
	return &APIKey{cfg: cfg, secrets: secrets, clients: clients}
}

func (s *APIKey) Name() string { return NameAPIKeyAuth }

// Validate checks that the header and secret names are configured.
func (s *APIKey) Validate() error {
	if strings.TrimSpace(s.cfg.HeaderName) == "" {
		return domain.NewConfigurationError("%s: transport.api_key.header_name is not configured", NameAPIKeyAuth)
	}
	if strings.TrimSpace(s.cfg.SecretName) == "" {
		return domain.NewConfigurationError("%s: transport.api_key.secret_name is not configured", NameAPIKeyAuth)
	}
	if s.secrets == nil {
		return domain.NewConfigurationError("%s: no secret store configured", NameAPIKeyAuth)
	}
	return nil
}

// Execute returns a plain client plus an authorizer that fetches the key at
// send time.
func (s *APIKey) Execute(ctx context.Context, req *Request) Result {
	if err := s.Validate(); err != nil {
		return Result{Strategy: NameAPIKeyAuth, Failure: err}
	}
	return Result{
		Strategy:  NameAPIKeyAuth,
		Client:    s.clients(nil),
		Authorize: s.authorize,
	}
}

func (s *APIKey) authorize(ctx context.Context, req *http.Request) error {
	key, err := s.secrets.Get(ctx, s.cfg.SecretName)
	if err != nil {
		return domain.NewTransportError(fmt.Sprintf("%s: fetch API key %s", NameAPIKeyAuth, s.cfg.SecretName), err)
	}
	if strings.TrimSpace(key) == "" {
		return domain.NewTransportError(fmt.Sprintf("%s: API key secret %s is empty", NameAPIKeyAuth, s.cfg.SecretName), nil)
	}
	req.Header.Set(s.cfg.HeaderName, key)
	return nil
}

var _ Strategy = (*APIKey)(nil)
