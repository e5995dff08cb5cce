package lifecycle

import (
	"fmt"
	"sort"
	"sync"
)

// Registry holds one Machine per application.
type Registry struct {
	mu       sync.RWMutex
	machines map[string]*Machine
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{machines: make(map[string]*Machine)}
}

// Create registers a fresh machine. Application ids are never reused.
func (r *Registry) Create(applicationID string) (*Machine, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.machines[applicationID]; exists {
		return nil, fmt.Errorf("application %s already registered", applicationID)
	}
	m := New(applicationID)
	r.machines[applicationID] = m
	return m, nil
}

// Get returns the machine for applicationID.
func (r *Registry) Get(applicationID string) (*Machine, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.machines[applicationID]
	return m, ok
}

// IDs returns all registered application ids, sorted.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.machines))
	for id := range r.machines {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Len returns the number of registered applications.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.machines)
}
