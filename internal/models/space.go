package models

import (
	"time"

	"github.com/google/uuid"
)

// Visibility controls who may join a space without an invitation.
type Visibility string

const (
	VisibilityPublic  Visibility = "public"
	VisibilityPrivate Visibility = "private"
)

// Valid reports whether v is a known visibility.
func (v Visibility) Valid() bool {
	return v == VisibilityPublic || v == VisibilityPrivate
}

// Space is a collaboration group ("collab") with members and a chat room.
// OwnerID is fixed for the life of the space.
type Space struct {
	ID            uuid.UUID  `json:"id"`
	Name          string     `json:"name"`
	Bio           string     `json:"bio"`
	OwnerID       uuid.UUID  `json:"owner"`
	Visibility    Visibility `json:"visibility"`
	Avatar        string     `json:"avatar"`
	IsDeleted     bool       `json:"isDeleted"`
	LastMessageID *uuid.UUID `json:"lastMessage,omitempty"`
	CreatedAt     time.Time  `json:"createdAt"`
	UpdatedAt     time.Time  `json:"updatedAt"`
}

// Ref returns the compact space reference embedded in events and notifications.
func (s *Space) Ref() SpaceRef {
	return SpaceRef{ID: s.ID, Name: s.Name, Avatar: s.Avatar}
}

// Room is the realtime room name for the space's chat.
func (s *Space) Room() string {
	return s.ID.String()
}

// QuotedName is the space name in quotes, cut to 25 characters, as used in
// notification texts.
func (s *Space) QuotedName() string {
	const max = 25
	r := []rune(s.Name)
	if len(r) <= max {
		return `"` + s.Name + `"`
	}
	return `"` + string(r[:max]) + `..."`
}

// SpaceRef is the {id,name,avatar} triple used on the wire.
type SpaceRef struct {
	ID     uuid.UUID `json:"id"`
	Name   string    `json:"name"`
	Avatar string    `json:"avatar"`
}

// SpaceDetail is a space with the viewer-relative fields of the detail view.
type SpaceDetail struct {
	Space
	MemberCount int  `json:"memberCount"`
	Joined      bool `json:"joined"`
}

// SpaceSummary is one row of a user's space list: current memberships and
// spaces they left or were removed from.
type SpaceSummary struct {
	Space
	MemberCount        int               `json:"memberCount"`
	IsCurrentMember    bool              `json:"isCurrentMember"`
	Status             ParticipantStatus `json:"status"`
	LeftAt             *time.Time        `json:"leftAt,omitempty"`
	UnreadMessageCount int               `json:"unreadMessageCount"`
}
