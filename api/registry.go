package api

import "fmt"

// Registry holds every API a bus instance serves or calls into, keyed by
// canonical name.
type Registry struct {
	apis map[string]*API
}

// NewRegistry returns an empty API registry.
func NewRegistry() *Registry {
	return &Registry{apis: make(map[string]*API)}
}

// Add registers api under its own name, replacing any previous API
// registered under that name.
func (r *Registry) Add(a *API) {
	r.apis[a.Name()] = a
}

// Get resolves name to its bound API.
func (r *Registry) Get(name string) (*API, error) {
	a, ok := r.apis[name]
	if !ok {
		return nil, fmt.Errorf("api %q is not registered", name)
	}
	return a, nil
}

// Names returns every registered API's canonical name. Order is
// unspecified.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.apis))
	for name := range r.apis {
		names = append(names, name)
	}
	return names
}
