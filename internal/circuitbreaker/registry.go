package circuitbreaker

import (
	"sort"
	"sync"
)

// Registry owns the breakers for all named dependencies of a process.
// Repeated lookups for the same name return the same instance, so every
// call site for a dependency shares its failure history. The registry is
// constructed once at process start and passed to components explicitly;
// there is no package-level instance.
type Registry struct {
	mu       sync.Mutex
	defaults Config
	breakers map[string]*Breaker
}

// NewRegistry creates a registry whose breakers use the given defaults.
func NewRegistry(defaults Config) *Registry {
	return &Registry{
		defaults: defaults,
		breakers: make(map[string]*Breaker),
	}
}

// Get returns the breaker for the named dependency, creating it lazily on
// first use with the registry defaults.
func (r *Registry) Get(name string) *Breaker {
	r.mu.Lock()
	defer r.mu.Unlock()

	if b, ok := r.breakers[name]; ok {
		return b
	}
	b := New(name, r.defaults)
	r.breakers[name] = b
	return b
}

// Reset administratively closes the named breaker. Returns false if no
// breaker exists under that name.
func (r *Registry) Reset(name string) bool {
	r.mu.Lock()
	b, ok := r.breakers[name]
	r.mu.Unlock()

	if !ok {
		return false
	}
	b.Reset()
	return true
}

// Names returns the sorted names of all breakers created so far.
func (r *Registry) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	names := make([]string, 0, len(r.breakers))
	for name := range r.breakers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
