package models

import (
	"time"

	"github.com/google/uuid"
)

// Membership is the active link between a user and a space.
type Membership struct {
	UserID    uuid.UUID `json:"user"`
	SpaceID   uuid.UUID `json:"collab"`
	CreatedAt time.Time `json:"createdAt"`
}

// ParticipantStatus is a user's standing relative to a space.
type ParticipantStatus string

const (
	StatusMember  ParticipantStatus = "member"
	StatusLeft    ParticipantStatus = "left"
	StatusRemoved ParticipantStatus = "removed"
)

// PastParticipant records a user who left or was removed from a space. Only
// the current row for a (user, space) pair affects state; it is deleted when
// the user is re-added.
type PastParticipant struct {
	ID        uuid.UUID         `json:"id"`
	UserID    uuid.UUID         `json:"user"`
	SpaceID   uuid.UUID         `json:"collab"`
	Status    ParticipantStatus `json:"status"`
	LeftAt    *time.Time        `json:"leftAt,omitempty"`
	RemovedAt *time.Time        `json:"removedAt,omitempty"`
	RemovedBy *uuid.UUID        `json:"removedBy,omitempty"`
	CreatedAt time.Time         `json:"createdAt"`
}

// Cutoff is the last moment whose messages the participant may still read.
func (p *PastParticipant) Cutoff() *time.Time {
	if p.LeftAt != nil {
		return p.LeftAt
	}
	return p.RemovedAt
}
