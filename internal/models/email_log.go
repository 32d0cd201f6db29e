package models

import (
	"time"

	"github.com/google/uuid"
)

// EmailTypeInvitation is the only mail the service sends.
const EmailTypeInvitation = "invitation"

// EmailLogStatus for delivery.
const (
	EmailLogStatusSent    = "sent"
	EmailLogStatusFailed  = "failed"
	EmailLogStatusSkipped = "skipped"
)

// EmailLog records one delivery attempt of an outbound email.
type EmailLog struct {
	ID             uuid.UUID  `json:"id"`
	SpaceID        uuid.UUID  `json:"collab"`
	InvitationID   *uuid.UUID `json:"invitation,omitempty"`
	EmailType      string     `json:"emailType"`
	RecipientEmail string     `json:"recipient"`
	Subject        string     `json:"subject,omitempty"`
	Status         string     `json:"status"`
	Attempt        int        `json:"attempt"`
	SentAt         *time.Time `json:"sentAt,omitempty"`
	ErrorMessage   string     `json:"error,omitempty"`
	CreatedAt      time.Time  `json:"createdAt"`
}
