// Package venue holds the registry of liquidity venue adapters. Venues are
// registered once at wiring time and looked up by (name, chain id), so adding
// a venue is a config entry plus a constructor call, not a new type hierarchy.
package venue

import (
	"fmt"
	"sort"
	"sync"

	"github.com/jmcalloway/dexarb/internal/domain"
)

// Registry is a read-mostly index of venue clients keyed by (name, chain id).
type Registry struct {
	mu      sync.RWMutex
	clients map[string]domain.VenueClient
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{clients: make(map[string]domain.VenueClient)}
}

func key(name string, chainID int64) string {
	return fmt.Sprintf("%s@%d", name, chainID)
}

// Register adds a client. Registering the same (name, chain id) twice is a
// wiring bug and returns an error rather than silently replacing.
func (r *Registry) Register(c domain.VenueClient) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	k := key(c.Name(), c.ChainID())
	if _, ok := r.clients[k]; ok {
		return fmt.Errorf("venue: %w: %s", domain.ErrAlreadyExists, k)
	}
	r.clients[k] = c
	return nil
}

// Get returns the client for (name, chainID), or ErrNotFound.
func (r *Registry) Get(name string, chainID int64) (domain.VenueClient, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.clients[key(name, chainID)]
	if !ok {
		return nil, fmt.Errorf("venue: %w: %s", domain.ErrNotFound, key(name, chainID))
	}
	return c, nil
}

// ForChain returns every client registered for the chain, sorted by name so
// scan order is deterministic.
func (r *Registry) ForChain(chainID int64) []domain.VenueClient {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.VenueClient, 0, len(r.clients))
	for _, c := range r.clients {
		if c.ChainID() == chainID {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name() < out[j].Name() })
	return out
}

// Len returns the number of registered clients.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.clients)
}
