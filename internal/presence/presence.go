package presence

import "github.com/google/uuid"

// Presence combines the user registry with room tracking.
type Presence struct {
	Users *Registry
	Rooms *Rooms
}

// New creates an empty Presence.
func New() *Presence {
	return &Presence{Users: NewRegistry(), Rooms: NewRooms()}
}

// IsPresent reports whether the user's current connection has joined room.
func (p *Presence) IsPresent(user uuid.UUID, room string) bool {
	conn, ok := p.Users.ConnectionFor(user)
	if !ok {
		return false
	}
	return p.Rooms.In(conn, room)
}

// ConnectionFor returns the user's current connection.
func (p *Presence) ConnectionFor(user uuid.UUID) (ConnID, bool) {
	return p.Users.ConnectionFor(user)
}

// Disconnect forgets conn entirely and returns rooms that became empty.
func (p *Presence) Disconnect(conn ConnID) []string {
	p.Users.Deregister(conn)
	return p.Rooms.Drop(conn)
}
