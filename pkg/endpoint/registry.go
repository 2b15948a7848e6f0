package endpoint

import (
	"errors"
	"fmt"
	"sort"
)

// ErrUnknownSpec is returned when a spec name is not registered.
var ErrUnknownSpec = errors.New("unknown spec")

// Registry is an immutable set of specs keyed by name.
type Registry struct {
	specs map[string]Spec
	names []string
}

// NewRegistry validates specs and indexes them by name.
func NewRegistry(specs ...Spec) (*Registry, error) {
	r := &Registry{specs: make(map[string]Spec, len(specs))}
	for _, s := range specs {
		if err := s.Validate(); err != nil {
			return nil, err
		}
		if _, dup := r.specs[s.Name]; dup {
			return nil, fmt.Errorf("duplicate spec %s", s.Name)
		}
		r.specs[s.Name] = s.clone()
		r.names = append(r.names, s.Name)
	}
	sort.Strings(r.names)
	return r, nil
}

// Lookup returns a copy of the named spec.
func (r *Registry) Lookup(name string) (Spec, error) {
	s, ok := r.specs[name]
	if !ok {
		return Spec{}, fmt.Errorf("%w: %s", ErrUnknownSpec, name)
	}
	return s.clone(), nil
}

// Names returns the registered names in sorted order.
func (r *Registry) Names() []string {
	out := make([]string, len(r.names))
	copy(out, r.names)
	return out
}

// Len returns the number of registered specs.
func (r *Registry) Len() int {
	return len(r.specs)
}
