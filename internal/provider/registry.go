package provider

import (
	"errors"
	"fmt"
)

// ErrNotRegistered is returned when a lock references a provider name that
// was not registered at startup.
var ErrNotRegistered = errors.New("provider not registered")

// Registry is a named lookup of adapters. It is populated once at process
// start and treated as immutable afterwards; the orchestration service only
// ever resolves from it.
type Registry struct {
	adapters map[string]Adapter
}

// NewRegistry builds a registry from the given adapters, keyed by Name().
// A later adapter with the same name replaces an earlier one.
func NewRegistry(adapters ...Adapter) *Registry {
	r := &Registry{adapters: make(map[string]Adapter, len(adapters))}
	for _, a := range adapters {
		r.adapters[a.Name()] = a
	}
	return r
}

// Resolve returns the adapter registered under name.
func (r *Registry) Resolve(name string) (Adapter, error) {
	a, ok := r.adapters[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotRegistered, name)
	}
	return a, nil
}

// Names returns the registered adapter names.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.adapters))
	for name := range r.adapters {
		names = append(names, name)
	}
	return names
}
