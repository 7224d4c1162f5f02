package transport

import (
	"fmt"

	"github.com/tjfontaine/bundle-gateway/internal/core/ports"
	"github.com/tjfontaine/bundle-gateway/internal/pkg/config"
)

// Aliases accepted for strategy names used by existing callers.
const (
	AliasNoMTLS     = "no-mTls"
	AliasAWSSecrets = "aws-secrets"
)

// NewRegistryFromConfig registers the built-in strategies and applies the
// configured defaults.
func NewRegistryFromConfig(cfg config.TransportConfig, secrets ports.SecretStore, clients ClientFactory) (*Registry, error) {
	r := NewRegistry()

	if err := r.Register(NewNoAuth(clients), AliasNoMTLS); err != nil {
		return nil, err
	}
	if err := r.Register(NewMutualTLS(MutualTLSConfig{
		CertSecret: cfg.MTLS.CertSecret,
		KeySecret:  cfg.MTLS.KeySecret,
		CASecret:   cfg.MTLS.CASecret,
	}, secrets, clients), AliasAWSSecrets); err != nil {
		return nil, err
	}
	if err := r.Register(NewAPIKey(APIKeyConfig{
		HeaderName: cfg.APIKey.HeaderName,
		SecretName: cfg.APIKey.SecretName,
	}, secrets, clients)); err != nil {
		return nil, err
	}

	if cfg.DefaultStrategy != "" {
		if _, err := r.Lookup(cfg.DefaultStrategy); err != nil {
			return nil, fmt.Errorf("transport.default_strategy: %w", err)
		}
		r.SetDefault(cfg.DefaultStrategy)
	}
	for tenant, name := range cfg.Tenants {
		if _, err := r.Lookup(name); err != nil {
			return nil, fmt.Errorf("transport.tenants.%s: %w", tenant, err)
		}
		r.SetTenantDefault(tenant, name)
	}

	return r, nil
}
