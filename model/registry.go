package model

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/funcn-ai/funcn-sub000/core"
)

// ErrDuplicateProvider indicates an attempt to register the same provider twice.
var ErrDuplicateProvider = errors.New("provider already registered")

// Registry maps provider names to adapters. It is safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	adapters map[string]Adapter
}

// NewRegistry constructs a registry pre-populated with adapters keyed by
// their Info().Provider.
func NewRegistry(adapters ...Adapter) *Registry {
	r := &Registry{adapters: make(map[string]Adapter)}
	for _, a := range adapters {
		_ = r.Register(a.Info().Provider, a)
	}
	return r
}

// Register adds an adapter under name.
func (r *Registry) Register(name string, a Adapter) error {
	if a == nil {
		return errors.New("adapter must not be nil")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.adapters[name]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateProvider, name)
	}
	r.adapters[name] = a

	return nil
}

// Replace registers a, overwriting any adapter already registered under name.
func (r *Registry) Replace(name string, a Adapter) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.adapters[name] = a
}

// Lookup returns the adapter for name or a ConfigurationError.
func (r *Registry) Lookup(name string) (Adapter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	a, ok := r.adapters[name]
	if !ok {
		return nil, core.NewConfigurationError("provider", fmt.Sprintf("unknown provider %q", name))
	}

	return a, nil
}

// Capabilities returns the capability descriptor of the named provider.
func (r *Registry) Capabilities(name string) (Capabilities, error) {
	a, err := r.Lookup(name)
	if err != nil {
		return Capabilities{}, err
	}
	return a.Capabilities(), nil
}

// Providers lists registered provider names in sorted order.
func (r *Registry) Providers() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.adapters))
	for name := range r.adapters {
		names = append(names, name)
	}
	sort.Strings(names)

	return names
}
