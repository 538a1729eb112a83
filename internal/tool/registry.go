package tool

import (
	"sort"
	"sync"

	apperrors "ChainAgent/internal/errors"
)

// Registry maps tool names to the providers that serve them. Registration is
// fail-fast: a duplicate tool name is a wiring bug, not a runtime condition.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]Provider   // provider key -> provider
	tools     map[string]Descriptor // tool name -> descriptor
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		providers: make(map[string]Provider),
		tools:     make(map[string]Descriptor),
	}
}

// Register adds a provider and all of its tools.
func (r *Registry) Register(p Provider) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.providers[p.Key()]; exists {
		return apperrors.New(apperrors.CodeInitialization, "duplicate tool provider",
			apperrors.WithMetadata("provider", p.Key()))
	}
	descriptors := p.Descriptors()
	for _, d := range descriptors {
		if _, exists := r.tools[d.Name]; exists {
			return apperrors.New(apperrors.CodeInitialization, "duplicate tool name",
				apperrors.WithMetadata("tool", d.Name))
		}
	}
	r.providers[p.Key()] = p
	for _, d := range descriptors {
		d.Provider = p.Key()
		r.tools[d.Name] = d
	}
	return nil
}

// Resolve finds the descriptor and owning provider for a tool name.
func (r *Registry) Resolve(name string) (Descriptor, Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	d, ok := r.tools[name]
	if !ok {
		return Descriptor{}, nil, apperrors.New(apperrors.CodeToolNotFound, "",
			apperrors.WithMetadata("tool", name))
	}
	return d, r.providers[d.Provider], nil
}

// List returns every registered descriptor sorted by name, for advertising to
// the model.
func (r *Registry) List() []Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Descriptor, 0, len(r.tools))
	for _, d := range r.tools {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
