package models

import (
	"strings"

	"github.com/google/uuid"
)

// User is the slice of a user profile this service reads.
type User struct {
	ID           uuid.UUID `json:"id"`
	Email        string    `json:"email"`
	FirstName    string    `json:"firstName"`
	LastName     string    `json:"lastName"`
	ProfileImage string    `json:"profileImage"`
}

// FullName joins first and last name.
func (u *User) FullName() string {
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}

// Acting converts the user into the notification actingUser shape.
func (u *User) Acting() ActingUser {
	return ActingUser{ID: u.ID, FirstName: u.FirstName, LastName: u.LastName, ProfileImage: u.ProfileImage}
}
