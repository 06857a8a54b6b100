package registry

import (
	"sync"

	"slidecast/pkg/interfaces"
	"slidecast/pkg/protocol"
)

// Binding records what game/role/user a connection represents. It is the
// single source of truth for authorization decisions in the router.
type Binding struct {
	GameID int64
	Role   protocol.Role
	UserID int64
}

// Registry tracks connection bindings and the per-game room indexes used for
// fan-out. A connection has at most one binding at a time.
type Registry struct {
	mu       sync.RWMutex
	bindings map[string]Binding                     // connID -> binding
	rooms    map[int64]map[string]interfaces.Conn   // gameID -> connID -> conn
	teachers map[int64]map[string]interfaces.Conn   // gameID -> connID -> conn, teacher bindings only
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		bindings: make(map[string]Binding),
		rooms:    make(map[int64]map[string]interfaces.Conn),
		teachers: make(map[int64]map[string]interfaces.Conn),
	}
}

// Bind records conn as bound to b, replacing any previous binding the
// connection held.
func (r *Registry) Bind(conn interfaces.Conn, b Binding) {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := conn.ID()
	if old, ok := r.bindings[id]; ok {
		r.removeFromIndexes(id, old)
	}

	r.bindings[id] = b

	if r.rooms[b.GameID] == nil {
		r.rooms[b.GameID] = make(map[string]interfaces.Conn)
	}
	r.rooms[b.GameID][id] = conn

	if b.Role == protocol.RoleTeacher {
		if r.teachers[b.GameID] == nil {
			r.teachers[b.GameID] = make(map[string]interfaces.Conn)
		}
		r.teachers[b.GameID][id] = conn
	}
}

// Unbind removes the binding for connID and returns it. Idempotent.
func (r *Registry) Unbind(connID string) (Binding, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	b, ok := r.bindings[connID]
	if !ok {
		return Binding{}, false
	}
	delete(r.bindings, connID)
	r.removeFromIndexes(connID, b)
	return b, true
}

// removeFromIndexes drops connID from the room and teacher indexes for b,
// cleaning up empty per-game maps. Caller holds the lock.
func (r *Registry) removeFromIndexes(connID string, b Binding) {
	if room, ok := r.rooms[b.GameID]; ok {
		delete(room, connID)
		if len(room) == 0 {
			delete(r.rooms, b.GameID)
		}
	}
	if teachers, ok := r.teachers[b.GameID]; ok {
		delete(teachers, connID)
		if len(teachers) == 0 {
			delete(r.teachers, b.GameID)
		}
	}
}

// Binding returns the binding for connID.
func (r *Registry) Binding(connID string) (Binding, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	b, ok := r.bindings[connID]
	return b, ok
}

// Room returns every connection currently bound to gameID.
func (r *Registry) Room(gameID int64) []interfaces.Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()

	room := r.rooms[gameID]
	conns := make([]interfaces.Conn, 0, len(room))
	for _, conn := range room {
		conns = append(conns, conn)
	}
	return conns
}

// Teachers returns the connections bound to gameID with the teacher role.
func (r *Registry) Teachers(gameID int64) []interfaces.Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()

	teachers := r.teachers[gameID]
	conns := make([]interfaces.Conn, 0, len(teachers))
	for _, conn := range teachers {
		conns = append(conns, conn)
	}
	return conns
}

// Stats returns registry counters for the HTTP stats surface.
func (r *Registry) Stats() map[string]int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return map[string]int{
		"total_connections": len(r.bindings),
		"active_rooms":      len(r.rooms),
	}
}
