package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func lookup(inv Invitation) Invitation { return inv }

func TestInvitationOpen(t *testing.T) {
	tests := []struct {
		name string
		inv  Invitation
		want bool
	}{
		{"fresh", Invitation{}, true},
		{"expired", Invitation{Expired: true}, false},
		{"joined", Invitation{Joined: true}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Called on a function result, the way store lookups are used.
			assert.Equal(t, tt.want, lookup(tt.inv).Open())
			assert.Equal(t, tt.want, (&tt.inv).Open())
		})
	}
}

func TestInvitationExpiresAt(t *testing.T) {
	created := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	got := lookup(Invitation{CreatedAt: created}).ExpiresAt(time.Hour)
	assert.Equal(t, created.Add(time.Hour), got)
}
