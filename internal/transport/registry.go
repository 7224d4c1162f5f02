package transport

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/tjfontaine/bundle-gateway/internal/core/domain"
)

// Registry maps strategy names to strategies and resolves which one an
// interaction uses. It is read-only once built and safe for concurrent use.
type Registry struct {
	mu             sync.RWMutex
	strategies     map[string]Strategy
	aliases        map[string]string
	defaultName    string
	tenantDefaults map[string]string
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		strategies:     make(map[string]Strategy),
		aliases:        make(map[string]string),
		tenantDefaults: make(map[string]string),
	}
}

// Register adds a strategy under its name and any aliases.
func (r *Registry) Register(s Strategy, aliases ...string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := s.Name()
	if name == "" {
		return fmt.Errorf("strategy name cannot be empty")
	}
	if _, exists := r.strategies[name]; exists {
		return fmt.Errorf("strategy %q already registered", name)
	}
	for _, alias := range aliases {
		if _, exists := r.strategies[alias]; exists {
			return fmt.Errorf("alias %q collides with a registered strategy", alias)
		}
		if target, exists := r.aliases[alias]; exists {
			return fmt.Errorf("alias %q already points at %q", alias, target)
		}
	}

	r.strategies[name] = s
	for _, alias := range aliases {
		r.aliases[alias] = name
	}
	return nil
}

// SetDefault sets the strategy used when neither the request nor the tenant
// names one.
func (r *Registry) SetDefault(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.defaultName = strings.TrimSpace(name)
}

// SetTenantDefault sets a tenant's default strategy. Tenant ids match
// case-insensitively.
func (r *Registry) SetTenantDefault(tenantID, name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tenantDefaults[strings.ToLower(tenantID)] = strings.TrimSpace(name)
}

// Names returns registered strategy names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.namesLocked()
}

func (r *Registry) namesLocked() []string {
	names := make([]string, 0, len(r.strategies))
	for name := range r.strategies {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Lookup returns the strategy registered under name or one of its aliases.
func (r *Registry) Lookup(name string) (Strategy, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if target, ok := r.aliases[name]; ok {
		name = target
	}
	s, ok := r.strategies[name]
	if !ok {
		return nil, domain.NewConfigurationError("unknown transport strategy: %s (registered strategies: %v)", name, r.namesLocked())
	}
	return s, nil
}

// Resolve picks the strategy name for a request: explicit hint, then the
// tenant default, then the global default, then no-auth.
func (r *Registry) Resolve(hint, tenantID string) string {
	if hint = strings.TrimSpace(hint); hint != "" {
		return hint
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	if name := r.tenantDefaults[strings.ToLower(tenantID)]; name != "" {
		return name
	}
	if r.defaultName != "" {
		return r.defaultName
	}
	return NameNoAuth
}

// Select resolves and looks up the strategy for a request. Unknown names are
// configuration errors listing the registered strategies.
func (r *Registry) Select(hint, tenantID string) (Strategy, error) {
	return r.Lookup(r.Resolve(hint, tenantID))
}

// ValidateAll runs every strategy's configuration check.
func (r *Registry) ValidateAll() error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, name := range r.namesLocked() {
		if err := r.strategies[name].Validate(); err != nil {
			return err
		}
	}
	return nil
}
