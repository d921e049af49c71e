// internal/realtime/registry.go
package realtime

import (
	"sync"

	"github.com/samber/lo"
)

// registration ties a live connection to the identity that opened it.
type registration struct {
	identity string
	conn     Connection
}

// Registry maps connection ids to identities and back. A connection id is present
// exactly while its transport session is open.
type Registry struct {
	mu         sync.RWMutex
	conns      map[string]registration           // connID -> registration
	identities map[string]map[string]Connection // identity -> connID -> conn
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		conns:      make(map[string]registration),
		identities: make(map[string]map[string]Connection),
	}
}

// Register records conn as owned by identity. Registering the same connection id
// twice replaces the earlier entry.
func (r *Registry) Register(identity string, conn Connection) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if prev, ok := r.conns[conn.ID()]; ok {
		r.detach(prev.identity, conn.ID())
	}
	r.conns[conn.ID()] = registration{identity: identity, conn: conn}
	owned := r.identities[identity]
	if owned == nil {
		owned = make(map[string]Connection)
		r.identities[identity] = owned
	}
	owned[conn.ID()] = conn
}

// Unregister removes the connection and returns the identity it belonged to.
// The second result is false when the connection was not registered.
func (r *Registry) Unregister(connID string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	reg, ok := r.conns[connID]
	if !ok {
		return "", false
	}
	delete(r.conns, connID)
	r.detach(reg.identity, connID)
	return reg.identity, true
}

// detach must be called with r.mu held.
func (r *Registry) detach(identity, connID string) {
	owned := r.identities[identity]
	delete(owned, connID)
	if len(owned) == 0 {
		delete(r.identities, identity)
	}
}

// IdentityOf returns the identity owning connID.
func (r *Registry) IdentityOf(connID string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	reg, ok := r.conns[connID]
	return reg.identity, ok
}

// ConnectionCount returns how many live connections identity owns.
func (r *Registry) ConnectionCount(identity string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.identities[identity])
}

// ConnectionsOf returns a snapshot of every live connection owned by the given
// identities. Unknown identities are skipped.
func (r *Registry) ConnectionsOf(identities ...string) []Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var conns []Connection
	for _, identity := range identities {
		conns = append(conns, lo.Values(r.identities[identity])...)
	}
	return conns
}

// All returns a snapshot of every registered connection.
func (r *Registry) All() []Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return lo.MapToSlice(r.conns, func(_ string, reg registration) Connection {
		return reg.conn
	})
}

// Count returns the number of live connections.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}
