package transport

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"strings"

	"github.com/tjfontaine/bundle-gateway/internal/core/domain"
	"github.com/tjfontaine/bundle-gateway/internal/core/ports"
)

// MutualTLSConfig names the secrets holding client certificate material.
type MutualTLSConfig struct {
	CertSecret string
	KeySecret  string
	CASecret   string // optional PEM bundle of trusted server CAs
}

// MutualTLS presents a client certificate fetched from the secret store.
type MutualTLS struct {
	cfg     MutualTLSConfig
	secrets ports.SecretStore
	clients ClientFactory
}

// NewMutualTLS creates the mutual-TLS strategy.
func NewMutualTLS(cfg MutualTLSConfig, secrets ports.SecretStore, clients ClientFactory) *MutualTLS {
	return &MutualTLS{cfg: cfg, secrets: secrets, clients: clients}
}

func (s *MutualTLS) Name() string { return NameMutualTLS }

// Validate checks that the secret names are configured.
func (s *MutualTLS) Validate() error {
	if strings.TrimSpace(s.cfg.CertSecret) == "" {
		return domain.NewConfigurationError("%s: transport.mtls.cert_secret is not configured", NameMutualTLS)
	}
	if strings.TrimSpace(s.cfg.KeySecret) == "" {
		return domain.NewConfigurationError("%s: transport.mtls.key_secret is not configured", NameMutualTLS)
	}
	if s.secrets == nil {
		return domain.NewConfigurationError("%s: no secret store configured", NameMutualTLS)
	}
	return nil
}

// Execute fetches the key pair and returns a client presenting it.
func (s *MutualTLS) Execute(ctx context.Context, req *Request) Result {
	if err := s.Validate(); err != nil {
		return Result{Strategy: NameMutualTLS, Failure: err}
	}

	cert, err := s.secrets.Get(ctx, s.cfg.CertSecret)
	if err != nil {
		return failed(NameMutualTLS, "fetch client certificate "+s.cfg.CertSecret, err)
	}
	key, err := s.secrets.Get(ctx, s.cfg.KeySecret)
	if err != nil {
		return failed(NameMutualTLS, "fetch client key "+s.cfg.KeySecret, err)
	}
	if strings.TrimSpace(cert) == "" || strings.TrimSpace(key) == "" {
		return failed(NameMutualTLS, "client certificate or key is empty", nil)
	}

	pair, err := tls.X509KeyPair([]byte(cert), []byte(key))
	if err != nil {
		return failed(NameMutualTLS, "parse client key pair", err)
	}

	tlsConfig := &tls.Config{
		Certificates: []tls.Certificate{pair},
		MinVersion:   tls.VersionTLS12,
	}

	if s.cfg.CASecret != "" {
		ca, err := s.secrets.Get(ctx, s.cfg.CASecret)
		if err != nil {
			return failed(NameMutualTLS, "fetch CA bundle "+s.cfg.CASecret, err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM([]byte(ca)) {
			return failed(NameMutualTLS, "CA bundle contains no certificates", nil)
		}
		tlsConfig.RootCAs = pool
	}

	return Result{Strategy: NameMutualTLS, Client: s.clients(tlsConfig)}
}

var _ Strategy = (*MutualTLS)(nil)
