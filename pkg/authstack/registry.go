package authstack

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Registry holds the provisioning engines a manager can deploy with. An
// engine is either registered ready-made or built on first use by its
// factory, once the AWS settings are known.
type Registry struct {
	mu        sync.RWMutex
	providers map[ProviderName]Provider
	factories map[ProviderName]ProviderFactory
}

// DefaultRegistry is filled by the engine packages' init functions.
var DefaultRegistry = NewRegistry()

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		providers: make(map[ProviderName]Provider),
		factories: make(map[ProviderName]ProviderFactory),
	}
}

// Register adds a ready-made engine, typically one wired with fake clients.
func (r *Registry) Register(p Provider) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := p.Name()
	if _, exists := r.providers[name]; exists {
		return ErrConflict("engine", string(name), "already registered")
	}
	r.providers[name] = p
	return nil
}

// RegisterFactory adds a factory that builds the engine on first use.
func (r *Registry) RegisterFactory(name ProviderName, f ProviderFactory) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.factories[name]; exists {
		return ErrConflict("engine factory", string(name), "already registered")
	}
	r.factories[name] = f
	return nil
}

// Get returns an engine that has already been built.
func (r *Registry) Get(name ProviderName) (Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, exists := r.providers[name]
	if !exists {
		return nil, ErrNotFound("engine", string(name))
	}
	return p, nil
}

// GetOrCreate returns the named engine, building it with config if needed.
// The factory runs at most once per engine.
func (r *Registry) GetOrCreate(ctx context.Context, name ProviderName, config map[string]interface{}) (Provider, error) {
	r.mu.RLock()
	p, exists := r.providers[name]
	r.mu.RUnlock()
	if exists {
		return p, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if p, exists = r.providers[name]; exists {
		return p, nil
	}

	factory, exists := r.factories[name]
	if !exists {
		return nil, ErrNotFound("engine", string(name)).
			WithHint("Available engines: " + joinNames(r.namesLocked()))
	}

	p, err := factory.Create(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("set up %s engine: %w", name, err)
	}
	r.providers[name] = p
	return p, nil
}

// GetProvisioner returns the named engine if it can deploy, validate and
// destroy stacks.
func (r *Registry) GetProvisioner(ctx context.Context, name ProviderName, config map[string]interface{}) (Provisioner, error) {
	p, err := r.GetOrCreate(ctx, name, config)
	if err != nil {
		return nil, err
	}

	pv, ok := p.(Provisioner)
	if !ok {
		return nil, ErrUnsupported(name, CapabilityDeploy)
	}
	return pv, nil
}

// List returns every known engine name, built or not, sorted.
func (r *Registry) List() []ProviderName {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.namesLocked()
}

func (r *Registry) namesLocked() []ProviderName {
	seen := make(map[ProviderName]bool, len(r.providers)+len(r.factories))
	for name := range r.providers {
		seen[name] = true
	}
	for name := range r.factories {
		seen[name] = true
	}

	names := make([]ProviderName, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool { return names[i] < names[j] })
	return names
}

func joinNames(names []ProviderName) string {
	if len(names) == 0 {
		return "none"
	}
	s := make([]string, len(names))
	for i, n := range names {
		s[i] = string(n)
	}
	return strings.Join(s, ", ")
}

// ProviderInfo is one row of the `providers` listing.
type ProviderInfo struct {
	Name          ProviderName
	Capabilities  []Capability
	Instantiated  bool
	IsProvisioner bool
}

// Describe reports every known engine. Engines still waiting on their
// factory report no capabilities.
func (r *Registry) Describe() []ProviderInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := r.namesLocked()
	infos := make([]ProviderInfo, 0, len(names))
	for _, name := range names {
		info := ProviderInfo{Name: name}
		if p, ok := r.providers[name]; ok {
			info.Instantiated = true
			info.Capabilities = p.Capabilities()
			_, info.IsProvisioner = p.(Provisioner)
		}
		infos = append(infos, info)
	}
	return infos
}

// RegisterFactory adds an engine factory to DefaultRegistry.
func RegisterFactory(name ProviderName, f ProviderFactory) error {
	return DefaultRegistry.RegisterFactory(name, f)
}

// HasCapability reports whether caps contains c.
func HasCapability(caps []Capability, c Capability) bool {
	for _, have := range caps {
		if have == c {
			return true
		}
	}
	return false
}
