package vecdb

import (
	"fmt"
	"sort"
	"sync"

	"github.com/hupe1980/vecdb/collection"
)

// Registry is the process-wide set of live collections. It is explicit
// state: create one (or let Connect do it) and pass it around instead of
// relying on a package-level singleton.
type Registry struct {
	mu          sync.RWMutex
	collections map[string]*collection.Collection
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		collections: make(map[string]*collection.Collection),
	}
}

// Add registers a collection under its name.
func (r *Registry) Add(c *collection.Collection) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.collections[c.Name()]; ok {
		return fmt.Errorf("%q: %w", c.Name(), ErrAlreadyExists)
	}
	r.collections[c.Name()] = c
	return nil
}

// Get returns the named collection or ErrNotFound.
func (r *Registry) Get(name string) (*collection.Collection, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.collections[name]
	if !ok {
		return nil, fmt.Errorf("collection %q: %w", name, ErrNotFound)
	}
	return c, nil
}

// Has reports whether the named collection exists.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.collections[name]
	return ok
}

// Drop removes the named collection, releasing its loaded index.
// Idempotent: dropping an absent name is a no-op.
func (r *Registry) Drop(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if c, ok := r.collections[name]; ok {
		c.Release()
		delete(r.collections, name)
	}
}

// Names returns all collection names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.collections))
	for name := range r.collections {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
