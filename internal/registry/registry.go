// Package registry is the Service Registry of spec.md §4.10: a single
// name → instance map owned by main, idempotent Register, and a
// Deregister that marks an entry not-ready without removing it so
// in-flight callers can still drain against it.
package registry

import "sync"

type entry struct {
	instance any
	ready    bool
}

// Registry is a concurrency-safe name → instance map. The zero value is
// not usable; construct with New.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]*entry
}

// New builds an empty Registry.
func New() *Registry {
	return &Registry{entries: make(map[string]*entry)}
}

// Register adds or replaces the instance under name and marks it ready.
// Calling Register twice for the same name is not an error — the second
// call simply replaces the instance, keeping registration idempotent.
func (r *Registry) Register(name string, instance any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[name] = &entry{instance: instance, ready: true}
}

// Deregister marks name as not-ready without removing it, so a lookup
// during drain still resolves to the same instance.
func (r *Registry) Deregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.entries[name]; ok {
		e.ready = false
	}
}

// Get returns the instance registered under name and whether it exists.
func (r *Registry) Get(name string) (any, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[name]
	if !ok {
		return nil, false
	}
	return e.instance, true
}

// Ready reports whether name is registered and has not been deregistered.
func (r *Registry) Ready(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[name]
	return ok && e.ready
}

// Names returns every registered name, ready or not.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.entries))
	for name := range r.entries {
		names = append(names, name)
	}
	return names
}
