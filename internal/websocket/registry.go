package websocket

import "sync"

// Registry tracks which student connections follow which teacher. Pure
// connection bookkeeping; the sync clients attached to each connection
// do the actual work.
type Registry struct {
	mu          sync.RWMutex
	connections map[string]*Connection            // connID -> Connection
	byTeacher   map[string]map[string]*Connection // teacherID -> connID -> Connection
}

// NewRegistry creates an empty connection registry.
func NewRegistry() *Registry {
	return &Registry{
		connections: make(map[string]*Connection),
		byTeacher:   make(map[string]map[string]*Connection),
	}
}

// Register adds a connection to the registry.
func (r *Registry) Register(conn *Connection) error {
	if conn == nil {
		return ErrNilConnection
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.connections[conn.ID()] = conn
	teacherID := conn.TeacherID()
	if r.byTeacher[teacherID] == nil {
		r.byTeacher[teacherID] = make(map[string]*Connection)
	}
	r.byTeacher[teacherID][conn.ID()] = conn
	return nil
}

// Unregister removes a connection. Idempotent, and only removes the
// exact instance that was registered so a stale cleanup cannot evict a
// replacement connection.
func (r *Registry) Unregister(conn *Connection) {
	if conn == nil {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	registered, exists := r.connections[conn.ID()]
	if !exists || registered != conn {
		return
	}

	delete(r.connections, conn.ID())
	teacherID := conn.TeacherID()
	if conns, ok := r.byTeacher[teacherID]; ok {
		delete(conns, conn.ID())
		if len(conns) == 0 {
			delete(r.byTeacher, teacherID)
		}
	}
}

// TeacherConnections returns every student connection following a
// teacher's row.
func (r *Registry) TeacherConnections(teacherID string) []*Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conns := make([]*Connection, 0, len(r.byTeacher[teacherID]))
	for _, conn := range r.byTeacher[teacherID] {
		conns = append(conns, conn)
	}
	return conns
}

// Stats reports connection counts for the health endpoint.
func (r *Registry) Stats() map[string]int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return map[string]int{
		"total_connections": len(r.connections),
		"watched_teachers":  len(r.byTeacher),
	}
}

// CloseAll closes every registered connection and clears the registry.
// Used during shutdown, after the HTTP server has stopped accepting
// upgrades.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	conns := make([]*Connection, 0, len(r.connections))
	for _, conn := range r.connections {
		conns = append(conns, conn)
	}
	r.connections = make(map[string]*Connection)
	r.byTeacher = make(map[string]map[string]*Connection)
	r.mu.Unlock()

	for _, conn := range conns {
		conn.Close()
	}
}
