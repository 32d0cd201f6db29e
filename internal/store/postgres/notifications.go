package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/collabspace/backend/internal/models"
)

const notificationColumns = `id, user_id, title, body, click_url, read,
	actor_id, actor_first_name, actor_last_name, actor_image,
	space_id, space_name, space_avatar, created_at`

func scanNotification(row interface{ Scan(dest ...any) error }, n *models.Notification) error {
	var (
		actorID     *uuid.UUID
		spaceID     *uuid.UUID
		spaceName   *string
		spaceAvatar *string
	)
	if err := row.Scan(&n.ID, &n.UserID, &n.Title, &n.Body, &n.ClickURL, &n.Read,
		&actorID, &n.ActingUser.FirstName, &n.ActingUser.LastName, &n.ActingUser.ProfileImage,
		&spaceID, &spaceName, &spaceAvatar, &n.CreatedAt); err != nil {
		return err
	}
	if actorID != nil {
		n.ActingUser.ID = *actorID
	}
	if spaceID != nil {
		ref := &models.SpaceRef{ID: *spaceID}
		if spaceName != nil {
			ref.Name = *spaceName
		}
		if spaceAvatar != nil {
			ref.Avatar = *spaceAvatar
		}
		n.Space = ref
	}
	return nil
}

func (q *queries) InsertNotification(ctx context.Context, n *models.Notification) error {
	var (
		actorID     *uuid.UUID
		spaceID     *uuid.UUID
		spaceName   *string
		spaceAvatar *string
	)
	if n.ActingUser.ID != uuid.Nil {
		actorID = &n.ActingUser.ID
	}
	if n.Space != nil {
		spaceID, spaceName, spaceAvatar = &n.Space.ID, &n.Space.Name, &n.Space.Avatar
	}
	const sql = `INSERT INTO notifications (user_id, title, body, click_url, read,
			actor_id, actor_first_name, actor_last_name, actor_image, space_id, space_name, space_avatar)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING id, created_at`
	err := q.db.QueryRow(ctx, sql, n.UserID, n.Title, n.Body, n.ClickURL, n.Read,
		actorID, n.ActingUser.FirstName, n.ActingUser.LastName, n.ActingUser.ProfileImage,
		spaceID, spaceName, spaceAvatar).Scan(&n.ID, &n.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert notification: %w", err)
	}
	return nil
}

func (q *queries) ListNotifications(ctx context.Context, userID uuid.UUID, limit, offset int) ([]models.Notification, int, error) {
	var total int
	if err := q.db.QueryRow(ctx, `SELECT COUNT(*) FROM notifications WHERE user_id = $1`, userID).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count notifications: %w", err)
	}
	rows, err := q.db.Query(ctx, `SELECT `+notificationColumns+` FROM notifications
		WHERE user_id = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`, userID, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list notifications: %w", err)
	}
	defer rows.Close()

	list := []models.Notification{}
	for rows.Next() {
		var n models.Notification
		if err := scanNotification(rows, &n); err != nil {
			return nil, 0, fmt.Errorf("scan notification: %w", err)
		}
		list = append(list, n)
	}
	return list, total, rows.Err()
}

func (q *queries) CountUnreadNotifications(ctx context.Context, userID uuid.UUID) (int, error) {
	var n int
	if err := q.db.QueryRow(ctx, `SELECT COUNT(*) FROM notifications WHERE user_id = $1 AND NOT read`, userID).Scan(&n); err != nil {
		return 0, fmt.Errorf("count unread notifications: %w", err)
	}
	return n, nil
}

func (q *queries) MarkNotificationRead(ctx context.Context, id, userID uuid.UUID) (*models.Notification, error) {
	sql := `UPDATE notifications SET read = TRUE WHERE id = $1 AND user_id = $2 RETURNING ` + notificationColumns
	var n models.Notification
	if err := scanNotification(q.db.QueryRow(ctx, sql, id, userID), &n); err != nil {
		if noRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("mark notification read: %w", err)
	}
	return &n, nil
}

func (q *queries) MarkAllNotificationsRead(ctx context.Context, userID uuid.UUID) (int64, error) {
	tag, err := q.db.Exec(ctx, `UPDATE notifications SET read = TRUE WHERE user_id = $1 AND NOT read`, userID)
	if err != nil {
		return 0, fmt.Errorf("mark all notifications read: %w", err)
	}
	return tag.RowsAffected(), nil
}
