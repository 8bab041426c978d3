package engine

import (
	"errors"
	"fmt"
	"sort"
)

// Factory builds one Strategy instance.
type Factory func(ctx Context, params Params) (Strategy, error)

// DefaultsFunc returns the default parameter set for a strategy.
type DefaultsFunc func() Params

// Registry maps strategy names to their factories and defaults.
type Registry struct {
	entries map[string]registryEntry
}

type registryEntry struct {
	factory  Factory
	defaults DefaultsFunc
}

var errDuplicateStrategy = errors.New("engine: duplicate strategy name")

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]registryEntry)}
}

// Register adds a factory and its defaults for the given strategy name.
func (r *Registry) Register(name string, factory Factory, defaults DefaultsFunc) error {
	if name == "" {
		return errors.New("engine: empty strategy name")
	}

	if factory == nil {
		return errors.New("engine: nil factory")
	}

	if _, exists := r.entries[name]; exists {
		return fmt.Errorf("%w: %s", errDuplicateStrategy, name)
	}

	r.entries[name] = registryEntry{factory: factory, defaults: defaults}

	return nil
}

// MustRegister is like Register but panics on error.
func (r *Registry) MustRegister(name string, factory Factory, defaults DefaultsFunc) {
	err := r.Register(name, factory, defaults)
	if err != nil {
		panic("engine registry: " + err.Error())
	}
}

// Lookup returns the factory for the given strategy name, or nil.
func (r *Registry) Lookup(name string) Factory {
	return r.entries[name].factory
}

// Names returns all registered strategy names in sorted order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.entries))
	for name := range r.entries {
		names = append(names, name)
	}

	sort.Strings(names)

	return names
}

// Defaults returns the default parameter set for every registered strategy.
func (r *Registry) Defaults() map[string]Params {
	out := make(map[string]Params, len(r.entries))

	for name, entry := range r.entries {
		if entry.defaults != nil {
			out[name] = entry.defaults()
		} else {
			out[name] = Params{}
		}
	}

	return out
}
