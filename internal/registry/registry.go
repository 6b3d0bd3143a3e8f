// Package registry implements the process-wide BenchmarkedRequestClient
// mapping: a typed `id → BRC` map behind a mutex, IDs minted as monotonic
// opaque positive integers rather than relying on object identity.
package registry

import (
	"sync"

	"github.com/lerian-labs/icvsb-gateway/internal/apperr"
	"github.com/lerian-labs/icvsb-gateway/internal/brc"
)

// Registry holds the only strong reference to each BRC; removing a BRC from it is the sole termination path.
type Registry struct {
	mu      sync.RWMutex
	clients map[int64]*brc.Client
	nextID  int64
}

// New returns an empty Registry.
func New() *Registry {
	return &Registry{clients: make(map[int64]*brc.Client)}
}

// Register mints a new opaque ID, assigns it to client, and stores it.
func (r *Registry) Register(client *brc.Client) int64 {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.nextID++
	client.ID = r.nextID
	r.clients[r.nextID] = client

	return r.nextID
}

// Get returns the BRC with the given id.
func (r *Registry) Get(id int64) (*brc.Client, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.clients[id]
	if !ok {
		return nil, apperr.ErrUnknownBRC
	}

	return c, nil
}

// Remove deletes the BRC with the given id, if present, stopping its
// scheduler task.
func (r *Registry) Remove(id int64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if c, ok := r.clients[id]; ok {
		c.Stop()
		delete(r.clients, id)
	}
}

// Len reports how many BRCs are currently registered.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.clients)
}
