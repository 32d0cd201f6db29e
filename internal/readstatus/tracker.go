// Package readstatus keeps one read flag per (message, recipient).
package readstatus

import (
	"context"

	"github.com/google/uuid"

	"github.com/collabspace/backend/internal/apperr"
	"github.com/collabspace/backend/internal/models"
	"github.com/collabspace/backend/internal/store"
)

// Tracker records and queries read state.
type Tracker struct {
	store store.Store
}

// New creates a Tracker.
func New(st store.Store) *Tracker {
	return &Tracker{store: st}
}

// OnMessageCreated inserts an unread row for every member except the author.
// It runs on tx so the rows commit together with the message.
func (t *Tracker) OnMessageCreated(ctx context.Context, tx store.Queries, msg *models.Message, memberIDs []uuid.UUID) error {
	rows := make([]models.ReadStatus, 0, len(memberIDs))
	seen := make(map[uuid.UUID]struct{}, len(memberIDs))
	for _, id := range memberIDs {
		if id == msg.UserID {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		rows = append(rows, models.ReadStatus{MessageID: msg.ID, UserID: id, SpaceID: msg.SpaceID})
	}
	return apperr.Transient("insert read statuses", tx.InsertReadStatuses(ctx, rows))
}

// MarkAllRead flips every unread row of the user in the space and returns how many changed.
func (t *Tracker) MarkAllRead(ctx context.Context, spaceID, userID uuid.UUID) (int64, error) {
	n, err := t.store.MarkAllRead(ctx, spaceID, userID)
	if err != nil {
		return 0, apperr.Transient("mark all read", err)
	}
	return n, nil
}

// UnreadCount is the number of unread messages for the user in the space.
func (t *Tracker) UnreadCount(ctx context.Context, spaceID, userID uuid.UUID) (int, error) {
	n, err := t.store.CountUnread(ctx, spaceID, userID)
	if err != nil {
		return 0, apperr.Transient("count unread", err)
	}
	return n, nil
}
