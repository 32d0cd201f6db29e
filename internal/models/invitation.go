package models

import (
	"time"

	"github.com/google/uuid"
)

// Invitation is a time-bound, email-addressed offer to join a space.
// Joined is terminal and Expired is never set once Joined is true.
type Invitation struct {
	ID             uuid.UUID `json:"id"`
	SpaceID        uuid.UUID `json:"collab"`
	RecipientEmail string    `json:"recipient"`
	Sent           bool      `json:"sent"`
	Expired        bool      `json:"expired"`
	Joined         bool      `json:"joined"`
	CreatedAt      time.Time `json:"createdAt"`
}

// Open reports whether the invitation can still be accepted.
func (i Invitation) Open() bool {
	return !i.Expired && !i.Joined
}

// ExpiresAt returns when the invitation lapses for the given TTL.
func (i Invitation) ExpiresAt(ttl time.Duration) time.Time {
	return i.CreatedAt.Add(ttl)
}
