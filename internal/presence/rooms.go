package presence

import "sync"

// Rooms tracks room membership per connection.
type Rooms struct {
	mu     sync.RWMutex
	rooms  map[string]map[ConnID]struct{}
	byConn map[ConnID]map[string]struct{}
}

// NewRooms creates an empty tracker.
func NewRooms() *Rooms {
	return &Rooms{
		rooms:  make(map[string]map[ConnID]struct{}),
		byConn: make(map[ConnID]map[string]struct{}),
	}
}

// Join adds conn to room. first is true when the room had no connections before.
func (t *Rooms) Join(conn ConnID, room string) (first bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	members, ok := t.rooms[room]
	if !ok {
		members = make(map[ConnID]struct{})
		t.rooms[room] = members
		first = true
	}
	members[conn] = struct{}{}

	joined, ok := t.byConn[conn]
	if !ok {
		joined = make(map[string]struct{})
		t.byConn[conn] = joined
	}
	joined[room] = struct{}{}
	return first
}

// Leave removes conn from room. emptied is true when the room has no connections left.
func (t *Rooms) Leave(conn ConnID, room string) (emptied bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.leaveLocked(conn, room)
}

func (t *Rooms) leaveLocked(conn ConnID, room string) bool {
	members, ok := t.rooms[room]
	if !ok {
		return false
	}
	if _, in := members[conn]; !in {
		return false
	}
	delete(members, conn)
	if joined := t.byConn[conn]; joined != nil {
		delete(joined, room)
		if len(joined) == 0 {
			delete(t.byConn, conn)
		}
	}
	if len(members) == 0 {
		delete(t.rooms, room)
		return true
	}
	return false
}

// Drop removes conn from every room and returns the rooms that became empty.
func (t *Rooms) Drop(conn ConnID) []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	var emptied []string
	for room := range t.byConn[conn] {
		if t.leaveLocked(conn, room) {
			emptied = append(emptied, room)
		}
	}
	delete(t.byConn, conn)
	return emptied
}

// Connections returns a snapshot of the connections in room.
func (t *Rooms) Connections(room string) []ConnID {
	t.mu.RLock()
	defer t.mu.RUnlock()

	members := t.rooms[room]
	out := make([]ConnID, 0, len(members))
	for c := range members {
		out = append(out, c)
	}
	return out
}

// In reports whether conn has joined room.
func (t *Rooms) In(conn ConnID, room string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	_, ok := t.byConn[conn][room]
	return ok
}
