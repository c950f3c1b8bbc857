package provider

import (
	"sort"

	"github.com/rs/zerolog"
)

// Registry holds the active adapter set, built once at startup. Providers
// without credentials are excluded and never consulted.
type Registry struct {
	adapters map[string]Adapter
	order    []string
}

// NewRegistry constructs adapters for every spec that carries a credential.
func NewRegistry(specs []Spec, logger zerolog.Logger) *Registry {
	r := &Registry{adapters: make(map[string]Adapter, len(specs))}
	for _, spec := range specs {
		if !spec.Config.Available() {
			logger.Info().Str("provider", spec.Config.Name).Msg("provider skipped, no credential")
			continue
		}
		r.add(NewRESTAdapter(spec, logger))
	}
	return r
}

// NewRegistryFromAdapters builds a registry from prebuilt adapters. Intended
// for tests injecting doubles behind the same interface.
func NewRegistryFromAdapters(adapters ...Adapter) *Registry {
	r := &Registry{adapters: make(map[string]Adapter, len(adapters))}
	for _, a := range adapters {
		if a == nil || !a.Available() {
			continue
		}
		r.add(a)
	}
	return r
}

func (r *Registry) add(a Adapter) {
	name := a.Name()
	if _, exists := r.adapters[name]; !exists {
		r.order = append(r.order, name)
	}
	r.adapters[name] = a
}

// Get returns the adapter registered under name.
func (r *Registry) Get(name string) (Adapter, bool) {
	a, ok := r.adapters[name]
	return a, ok
}

// Configs returns the active provider descriptors in registration order.
func (r *Registry) Configs() []Config {
	configs := make([]Config, 0, len(r.order))
	for _, name := range r.order {
		configs = append(configs, r.adapters[name].Config())
	}
	return configs
}

// Names returns the sorted names of the active providers.
func (r *Registry) Names() []string {
	names := make([]string, len(r.order))
	copy(names, r.order)
	sort.Strings(names)
	return names
}

// Len reports the number of active providers.
func (r *Registry) Len() int { return len(r.adapters) }
