package provider

import (
	"fmt"
	"sort"
	"sync"
)

// Registry is a thread-safe registry of provider adapters. It maintains
// a per-domain index in registration order; the router consults it when
// building fallback chains.
type Registry struct {
	mu        sync.RWMutex
	adapters  map[string]Adapter
	domainIdx map[string][]string // domain → provider names (registration order)
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		adapters:  make(map[string]Adapter),
		domainIdx: make(map[string][]string),
	}
}

// Register adds an adapter. Duplicate registrations overwrite the
// previous entry without duplicating the domain index.
func (r *Registry) Register(a Adapter) error {
	info := a.Info()
	if info.Name == "" {
		return fmt.Errorf("adapter name cannot be empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	_, replacing := r.adapters[info.Name]
	r.adapters[info.Name] = a

	if replacing {
		return nil
	}
	for _, domain := range info.Domains {
		r.domainIdx[domain] = append(r.domainIdx[domain], info.Name)
	}
	return nil
}

// Get returns an adapter by name.
func (r *Registry) Get(name string) (Adapter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	a, ok := r.adapters[name]
	if !ok {
		return nil, &ErrNotRegistered{Name: name}
	}
	return a, nil
}

// Has reports whether the named adapter is registered.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.adapters[name]
	return ok
}

// List returns info about all registered adapters, sorted by name.
func (r *Registry) List() []Info {
	r.mu.RLock()
	defer r.mu.RUnlock()

	infos := make([]Info, 0, len(r.adapters))
	for _, a := range r.adapters {
		infos = append(infos, a.Info())
	}
	sort.Slice(infos, func(i, j int) bool {
		return infos[i].Name < infos[j].Name
	})
	return infos
}

// ProvidersFor returns the names of registered adapters serving the
// given domain, in registration order.
func (r *Registry) ProvidersFor(domain string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := r.domainIdx[domain]
	out := make([]string, len(names))
	copy(out, names)
	return out
}
