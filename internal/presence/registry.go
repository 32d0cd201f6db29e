// Package presence tracks which live connection belongs to which user and
// which rooms each connection has joined. State is process-local.
package presence

import (
	"sync"

	"github.com/google/uuid"
)

// ConnID identifies one live connection.
type ConnID string

// Registry maps a user to their single current connection. The latest
// registration wins.
type Registry struct {
	mu     sync.RWMutex
	byUser map[uuid.UUID]ConnID
	byConn map[ConnID]uuid.UUID
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		byUser: make(map[uuid.UUID]ConnID),
		byConn: make(map[ConnID]uuid.UUID),
	}
}

// Register maps user to conn and returns the connection it displaced, if any.
func (r *Registry) Register(user uuid.UUID, conn ConnID) (replaced ConnID, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	// A connection re-registering as another user drops its old mapping.
	if prevUser, had := r.byConn[conn]; had && prevUser != user {
		if r.byUser[prevUser] == conn {
			delete(r.byUser, prevUser)
		}
	}
	replaced, ok = r.byUser[user]
	if ok && replaced != conn {
		delete(r.byConn, replaced)
	} else {
		ok = false
	}
	r.byUser[user] = conn
	r.byConn[conn] = user
	return replaced, ok
}

// Deregister removes conn. A stale connection never removes a newer mapping.
func (r *Registry) Deregister(conn ConnID) (uuid.UUID, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	user, ok := r.byConn[conn]
	if !ok {
		return uuid.Nil, false
	}
	delete(r.byConn, conn)
	if r.byUser[user] == conn {
		delete(r.byUser, user)
	}
	return user, true
}

// ConnectionFor returns the user's current connection.
func (r *Registry) ConnectionFor(user uuid.UUID) (ConnID, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.byUser[user]
	return c, ok
}

// UserFor returns the user registered on conn.
func (r *Registry) UserFor(conn ConnID) (uuid.UUID, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	u, ok := r.byConn[conn]
	return u, ok
}

// Len is the number of registered users.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byUser)
}
