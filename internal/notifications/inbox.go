package notifications

import (
	"context"

	"github.com/google/uuid"

	"github.com/collabspace/backend/internal/apperr"
	"github.com/collabspace/backend/internal/models"
	"github.com/collabspace/backend/internal/store"
)

const (
	defaultLimit = 20
	maxLimit     = 100
)

// Inbox is the read side of a user's notifications.
type Inbox struct {
	store store.NotificationQueries
}

// NewInbox creates an Inbox.
func NewInbox(st store.NotificationQueries) *Inbox {
	return &Inbox{store: st}
}

// List returns one page of the user's notifications, newest first. page is 1-based.
func (i *Inbox) List(ctx context.Context, userID uuid.UUID, page, limit int) (*models.NotificationPage, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = defaultLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}
	items, total, err := i.store.ListNotifications(ctx, userID, limit, (page-1)*limit)
	if err != nil {
		return nil, apperr.Transient("list notifications", err)
	}
	return &models.NotificationPage{
		Items:      items,
		Total:      total,
		Page:       page,
		Limit:      limit,
		TotalPages: (total + limit - 1) / limit,
	}, nil
}

// UnreadCount is the number of unread notifications.
func (i *Inbox) UnreadCount(ctx context.Context, userID uuid.UUID) (int, error) {
	n, err := i.store.CountUnreadNotifications(ctx, userID)
	if err != nil {
		return 0, apperr.Transient("count unread notifications", err)
	}
	return n, nil
}

// MarkRead marks one of the user's notifications read.
func (i *Inbox) MarkRead(ctx context.Context, userID, id uuid.UUID) (*models.Notification, error) {
	n, err := i.store.MarkNotificationRead(ctx, id, userID)
	if err != nil {
		return nil, apperr.Transient("mark notification read", err)
	}
	if n == nil {
		return nil, apperr.NotFound("notification not found")
	}
	return n, nil
}

// MarkAllRead marks every notification of the user read.
func (i *Inbox) MarkAllRead(ctx context.Context, userID uuid.UUID) (int64, error) {
	n, err := i.store.MarkAllNotificationsRead(ctx, userID)
	if err != nil {
		return 0, apperr.Transient("mark all notifications read", err)
	}
	return n, nil
}
