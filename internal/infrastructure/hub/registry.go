package hub

import "sync"

// Registry is the set of live connections keyed by id. Writes happen from the
// hub loop and Stop; the lock lets status endpoints read concurrently.
type Registry struct {
	mu    sync.RWMutex
	conns map[string]Connection
}

func NewRegistry() *Registry {
	return &Registry{conns: make(map[string]Connection)}
}

// Add stores conn, replacing any previous entry with the same id.
func (r *Registry) Add(conn Connection) {
	r.mu.Lock()
	r.conns[conn.ID()] = conn
	r.mu.Unlock()
}

// Remove deletes id and reports the removed connection. Removing an unknown
// id is a no-op.
func (r *Registry) Remove(id string) (Connection, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	conn, ok := r.conns[id]
	if ok {
		delete(r.conns, id)
	}
	return conn, ok
}

func (r *Registry) Get(id string) (Connection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conn, ok := r.conns[id]
	return conn, ok
}

// Snapshot returns the current connections in no particular order.
func (r *Registry) Snapshot() []Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conns := make([]Connection, 0, len(r.conns))
	for _, conn := range r.conns {
		conns = append(conns, conn)
	}
	return conns
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

// RemoveClosed drops every connection that reports IsClosed and returns their ids.
func (r *Registry) RemoveClosed() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	var removed []string
	for id, conn := range r.conns {
		if conn.IsClosed() {
			delete(r.conns, id)
			removed = append(removed, id)
		}
	}
	return removed
}

// Clear forgets every connection and returns them so the caller can close them.
func (r *Registry) Clear() []Connection {
	r.mu.Lock()
	conns := make([]Connection, 0, len(r.conns))
	for _, conn := range r.conns {
		conns = append(conns, conn)
	}
	r.conns = make(map[string]Connection)
	r.mu.Unlock()

	return conns
}
