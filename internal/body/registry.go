package body

import (
	"sort"
	"sync"

	"github.com/san-kum/physlink/internal/dynamo"
)

// Registry caches entries for one engine connection. Entries are immutable;
// anything that can change body metadata on the engine side must go through
// Remove or Invalidate.
type Registry struct {
	mu      sync.RWMutex
	entries map[dynamo.BodyID]*Entry
	// generation counts invalidations so callers can detect stale reads.
	generation uint64
}

func NewRegistry() *Registry {
	return &Registry{entries: make(map[dynamo.BodyID]*Entry)}
}

func (r *Registry) Get(id dynamo.BodyID) (*Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[id]
	return e, ok
}

func (r *Registry) Put(e *Entry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[e.ID] = e
}

func (r *Registry) Remove(id dynamo.BodyID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.entries, id)
}

// Invalidate drops every entry. Called after reset and snapshot restore.
func (r *Registry) Invalidate() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = make(map[dynamo.BodyID]*Entry)
	r.generation++
}

func (r *Registry) Generation() uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.generation
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// IDs returns the cached body ids in ascending order.
func (r *Registry) IDs() []dynamo.BodyID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]dynamo.BodyID, 0, len(r.entries))
	for id := range r.entries {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
