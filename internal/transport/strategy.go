// Package transport selects and builds the authenticated HTTP transport used
// to forward bundles to the scoring system.
//
// Strategies are registered by name in a Registry. Adding a variant means
// registering another Strategy; the selector never changes.
package transport

import (
	"context"
	"crypto/tls"
	"net/http"
	"time"

	"github.com/tjfontaine/bundle-gateway/internal/core/domain"
	"github.com/tjfontaine/bundle-gateway/internal/pkg/safehttp"
)

// Registered strategy names.
const (
	NameNoAuth     = "no-auth"
	NameMutualTLS  = "mtls-secrets"
	NameAPIKeyAuth = "with-api-key-auth"
)

// Request is the per-call input to a strategy. Strategies keep no per-call
// state; everything a call needs arrives here.
type Request struct {
	BaseURL     string
	ContentType string
	Payload     []byte
	Interaction domain.Interaction
	Replay      bool
}

// AuthorizeFunc decorates an outgoing request just before it is sent.
type AuthorizeFunc func(ctx context.Context, req *http.Request) error

// Result is what a strategy hands back: a ready client, or why it could not
// build one.
type Result struct {
	Strategy  string
	Client    *http.Client
	Authorize AuthorizeFunc
	Failure   error
}

// OK reports whether the strategy produced a usable client.
func (r Result) OK() bool {
	return r.Failure == nil && r.Client != nil
}

func failed(name, message string, cause error) Result {
	return Result{Strategy: name, Failure: domain.NewTransportError(name+": "+message, cause)}
}

// Strategy builds an authenticated client for one delivery.
type Strategy interface {
	// Name is the registry key.
	Name() string

	// Validate checks the strategy's own configuration without touching the
	// network or the secret store.
	Validate() error

	// Execute builds the client. It never returns an error; failures are
	// reported through Result.Failure.
	Execute(ctx context.Context, req *Request) Result
}

// ClientFactory builds the HTTP client a strategy returns.
type ClientFactory func(tlsConfig *tls.Config) *http.Client

// DefaultClientFactory returns clients over safehttp transports.
func DefaultClientFactory(timeout time.Duration, blockPrivate bool) ClientFactory {
	return func(tlsConfig *tls.Config) *http.Client {
		return safehttp.NewClient(timeout, safehttp.Options{
			TLSConfig:    tlsConfig,
			BlockPrivate: blockPrivate,
		})
	}
}
