package models

import (
	"time"

	"github.com/google/uuid"
)

// ActingUser is the denormalized profile of whoever triggered a notification.
type ActingUser struct {
	ID           uuid.UUID `json:"id"`
	FirstName    string    `json:"firstName"`
	LastName     string    `json:"lastName"`
	ProfileImage string    `json:"profileImage"`
}

// Notification is the durable record kept for every personal notification,
// whether or not it was delivered live.
type Notification struct {
	ID         uuid.UUID  `json:"id"`
	Title      string     `json:"title"`
	Body       string     `json:"body"`
	ClickURL   string     `json:"clickUrl"`
	Read       bool       `json:"read"`
	UserID     uuid.UUID  `json:"user"`
	ActingUser ActingUser `json:"actingUser"`
	Space      *SpaceRef  `json:"collab,omitempty"`
	CreatedAt  time.Time  `json:"createdAt"`
}

// NotificationPage is one page of a user's notifications.
type NotificationPage struct {
	Items      []Notification `json:"items"`
	Total      int            `json:"total"`
	Page       int            `json:"page"`
	Limit      int            `json:"limit"`
	TotalPages int            `json:"totalPages"`
}
