package models

import (
	"time"

	"github.com/google/uuid"
)

// AttachmentType is the media kind of a message attachment.
type AttachmentType string

const (
	AttachmentImage AttachmentType = "image"
	AttachmentVideo AttachmentType = "video"
)

// Attachment references an uploaded file.
type Attachment struct {
	FileName string         `json:"fileName"`
	Type     AttachmentType `json:"type"`
}

// Message is a chat message in a space. Immutable once created.
type Message struct {
	ID          uuid.UUID    `json:"id"`
	SpaceID     uuid.UUID    `json:"collab"`
	UserID      uuid.UUID    `json:"user"`
	Content     string       `json:"content"`
	Attachments []Attachment `json:"attachments"`
	CreatedAt   time.Time    `json:"createdAt"`
}

// ReadStatus tracks whether one member has seen one message.
type ReadStatus struct {
	MessageID uuid.UUID `json:"message"`
	UserID    uuid.UUID `json:"user"`
	SpaceID   uuid.UUID `json:"collab"`
	Read      bool      `json:"read"`
}

// MessagePage is one page of a space's history, newest first.
type MessagePage struct {
	Messages   []Message `json:"messages"`
	TotalPages int       `json:"totalPages"`
}
