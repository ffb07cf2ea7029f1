package component

import (
	"sort"
	"sync"
)

// Registry maps component ids to components.
//
// Components are never evicted: they stay until Remove is called, so an
// application that creates components per request must remove them itself.
type Registry struct {
	mu         sync.RWMutex
	components map[string]*Component
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{components: make(map[string]*Component)}
}

// Put inserts c under its id, replacing any previous component with that id.
// It reports whether a component was replaced.
func (r *Registry) Put(c *Component) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, replaced := r.components[c.ID()]
	r.components[c.ID()] = c
	return replaced
}

// Add inserts c only if its id is free and reports whether it did.
func (r *Registry) Add(c *Component) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.components[c.ID()]; ok {
		return false
	}
	r.components[c.ID()] = c
	return true
}

// Get returns the component with id.
func (r *Registry) Get(id string) (*Component, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.components[id]
	return c, ok
}

// Remove deletes the component with id and reports whether it existed.
func (r *Registry) Remove(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.components[id]
	delete(r.components, id)
	return ok
}

// Len returns the number of registered components.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.components)
}

// IDs returns the registered ids in sorted order.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	ids := make([]string, 0, len(r.components))
	for id := range r.components {
		ids = append(ids, id)
	}
	r.mu.RUnlock()
	sort.Strings(ids)
	return ids
}

// All returns a snapshot of the registered components, sorted by id.
func (r *Registry) All() []*Component {
	r.mu.RLock()
	out := make([]*Component, 0, len(r.components))
	for _, c := range r.components {
		out = append(out, c)
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID() < out[j].ID() })
	return out
}
