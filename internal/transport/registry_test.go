package transport

import (
	"context"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/tjfontaine/bundle-gateway/internal/core/domain"
	"github.com/tjfontaine/bundle-gateway/internal/pkg/config"
)

func testClients() ClientFactory {
	return DefaultClientFactory(5*time.Second, false)
}

func TestRegistryLookupAndAliases(t *testing.T) {
	r, err := NewRegistryFromConfig(config.TransportConfig{}, newFakeSecrets(nil), testClients())
	if err != nil {
		t.Fatalf("NewRegistryFromConfig() error = %v", err)
	}

	want := []string{NameAPIKeyAuth, NameMutualTLS, NameNoAuth}
	got := r.Names()
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("Names() = %v, want %v", got, want)
	}

	tests := []struct {
		name string
		want string
	}{
		{NameNoAuth, NameNoAuth},
		{AliasNoMTLS, NameNoAuth},
		{NameMutualTLS, NameMutualTLS},
		{AliasAWSSecrets, NameMutualTLS},
		{NameAPIKeyAuth, NameAPIKeyAuth},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := r.Lookup(tt.name)
			if err != nil {
				t.Fatalf("Lookup(%q) error = %v", tt.name, err)
			}
			if s.Name() != tt.want {
				t.Errorf("Lookup(%q) = %s, want %s", tt.name, s.Name(), tt.want)
			}
		})
	}
}

func TestRegistryUnknownStrategy(t *testing.T) {
	r, err := NewRegistryFromConfig(config.TransportConfig{}, nil, testClients())
	if err != nil {
		t.Fatal(err)
	}

	_, err = r.Select("carrier-pigeon", "T1")
	if err == nil {
		t.Fatal("expected error for unknown strategy")
	}
	if !domain.IsConfigurationError(err) {
		t.Errorf("expected configuration error, got %v", err)
	}
	for _, name := range r.Names() {
		if !strings.Contains(err.Error(), name) {
			t.Errorf("error %q does not list %s", err, name)
		}
	}
}

func TestRegistryResolveOrder(t *testing.T) {
	r, err := NewRegistryFromConfig(config.TransportConfig{
		DefaultStrategy: NameMutualTLS,
		Tenants:         map[string]string{"qe1": NameAPIKeyAuth},
	}, nil, testClients())
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name   string
		hint   string
		tenant string
		want   string
	}{
		{"explicit hint wins", NameNoAuth, "QE1", NameNoAuth},
		{"tenant default", "", "QE1", NameAPIKeyAuth},
		{"global default", "", "OTHER", NameMutualTLS},
		{"blank hint ignored", "   ", "OTHER", NameMutualTLS},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := r.Resolve(tt.hint, tt.tenant); got != tt.want {
				t.Errorf("Resolve(%q, %q) = %q, want %q", tt.hint, tt.tenant, got, tt.want)
			}
		})
	}

	if got := NewRegistry().Resolve("", "T1"); got != NameNoAuth {
		t.Errorf("empty registry resolves to %q, want %q", got, NameNoAuth)
	}
}

func TestRegistryRejectsDuplicates(t *testing.T) {
	r := NewRegistry()
	if err := r.Register(NewNoAuth(testClients()), AliasNoMTLS); err != nil {
		t.Fatal(err)
	}
	if err := r.Register(NewNoAuth(testClients())); err == nil {
		t.Error("expected duplicate name to fail")
	}
	if err := r.Register(NewAPIKey(APIKeyConfig{}, nil, testClients()), AliasNoMTLS); err == nil {
		t.Error("expected duplicate alias to fail")
	}
}

func TestNewRegistryFromConfigRejectsUnknownDefault(t *testing.T) {
	_, err := NewRegistryFromConfig(config.TransportConfig{DefaultStrategy: "bogus"}, nil, testClients())
	if err == nil || !strings.Contains(err.Error(), "transport.default_strategy") {
		t.Errorf("expected default strategy error, got %v", err)
	}
}

func TestNoAuthExecute(t *testing.T) {
	res := NewNoAuth(testClients()).Execute(context.Background(), &Request{BaseURL: "http://scoring.test"})
	if !res.OK() {
		t.Fatalf("Execute() failed: %v", res.Failure)
	}
	if res.Authorize != nil {
		t.Error("no-auth should not decorate requests")
	}
	if res.Client.Timeout != 5*time.Second {
		t.Errorf("client timeout = %v", res.Client.Timeout)
	}
	if tr, ok := res.Client.Transport.(*http.Transport); ok && tr.TLSClientConfig != nil && len(tr.TLSClientConfig.Certificates) > 0 {
		t.Error("no-auth client should not present certificates")
	}
}
