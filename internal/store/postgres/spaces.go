package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/collabspace/backend/internal/models"
)

const spaceColumns = `id, name, bio, owner_id, visibility, avatar, is_deleted, last_message_id, created_at, updated_at`

func scanSpace(row interface{ Scan(dest ...any) error }, s *models.Space) error {
	return row.Scan(&s.ID, &s.Name, &s.Bio, &s.OwnerID, &s.Visibility, &s.Avatar, &s.IsDeleted, &s.LastMessageID, &s.CreatedAt, &s.UpdatedAt)
}

func (q *queries) CreateSpace(ctx context.Context, s *models.Space) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	const sql = `INSERT INTO spaces (id, name, bio, owner_id, visibility, avatar)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at, updated_at`
	if err := q.db.QueryRow(ctx, sql, s.ID, s.Name, s.Bio, s.OwnerID, s.Visibility, s.Avatar).
		Scan(&s.CreatedAt, &s.UpdatedAt); err != nil {
		return fmt.Errorf("insert space: %w", err)
	}
	return nil
}

func (q *queries) GetSpace(ctx context.Context, id uuid.UUID) (*models.Space, error) {
	return q.getSpace(ctx, `SELECT `+spaceColumns+` FROM spaces WHERE id = $1`, id)
}

func (q *queries) LockSpace(ctx context.Context, id uuid.UUID) (*models.Space, error) {
	return q.getSpace(ctx, `SELECT `+spaceColumns+` FROM spaces WHERE id = $1 FOR UPDATE`, id)
}

func (q *queries) getSpace(ctx context.Context, sql string, id uuid.UUID) (*models.Space, error) {
	var s models.Space
	if err := scanSpace(q.db.QueryRow(ctx, sql, id), &s); err != nil {
		if noRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get space: %w", err)
	}
	return &s, nil
}

func (q *queries) UpdateSpace(ctx context.Context, s *models.Space) error {
	const sql = `UPDATE spaces SET name = $2, bio = $3, visibility = $4, avatar = $5, updated_at = NOW()
		WHERE id = $1 RETURNING updated_at`
	if err := q.db.QueryRow(ctx, sql, s.ID, s.Name, s.Bio, s.Visibility, s.Avatar).Scan(&s.UpdatedAt); err != nil {
		if noRows(err) {
			return nil
		}
		return fmt.Errorf("update space: %w", err)
	}
	return nil
}

func (q *queries) MarkSpaceDeleted(ctx context.Context, id uuid.UUID) error {
	if _, err := q.db.Exec(ctx, `UPDATE spaces SET is_deleted = TRUE, updated_at = NOW() WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete space: %w", err)
	}
	return nil
}

func (q *queries) SetLastMessage(ctx context.Context, spaceID, messageID uuid.UUID) error {
	const sql = `UPDATE spaces SET last_message_id = $2, updated_at = NOW() WHERE id = $1`
	if _, err := q.db.Exec(ctx, sql, spaceID, messageID); err != nil {
		return fmt.Errorf("set last message: %w", err)
	}
	return nil
}

func (q *queries) GetSpaceDetail(ctx context.Context, spaceID, viewerID uuid.UUID) (*models.SpaceDetail, error) {
	const sql = `SELECT ` + spaceColumns + `,
		(SELECT COUNT(*) FROM memberships m WHERE m.space_id = s.id),
		EXISTS (SELECT 1 FROM memberships m WHERE m.space_id = s.id AND m.user_id = $2)
		FROM spaces s WHERE s.id = $1`
	var d models.SpaceDetail
	s := &d.Space
	err := q.db.QueryRow(ctx, sql, spaceID, viewerID).Scan(&s.ID, &s.Name, &s.Bio, &s.OwnerID, &s.Visibility, &s.Avatar,
		&s.IsDeleted, &s.LastMessageID, &s.CreatedAt, &s.UpdatedAt, &d.MemberCount, &d.Joined)
	if err != nil {
		if noRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get space detail: %w", err)
	}
	return &d, nil
}

// ListUserSpaces returns every live space the user belongs to or has a past row in.
func (q *queries) ListUserSpaces(ctx context.Context, userID uuid.UUID) ([]models.SpaceSummary, error) {
	const sql = `SELECT s.id, s.name, s.bio, s.owner_id, s.visibility, s.avatar, s.is_deleted, s.last_message_id, s.created_at, s.updated_at,
		(SELECT COUNT(*) FROM memberships mc WHERE mc.space_id = s.id),
		m.user_id IS NOT NULL,
		COALESCE(p.status, 'member'),
		COALESCE(p.left_at, p.removed_at),
		(SELECT COUNT(*) FROM message_read_statuses r WHERE r.space_id = s.id AND r.user_id = $1 AND NOT r.read)
		FROM spaces s
		LEFT JOIN memberships m ON m.space_id = s.id AND m.user_id = $1
		LEFT JOIN past_participants p ON p.space_id = s.id AND p.user_id = $1
		WHERE NOT s.is_deleted AND (m.user_id IS NOT NULL OR p.id IS NOT NULL)
		ORDER BY s.updated_at DESC`
	rows, err := q.db.Query(ctx, sql, userID)
	if err != nil {
		return nil, fmt.Errorf("list user spaces: %w", err)
	}
	defer rows.Close()

	var list []models.SpaceSummary
	for rows.Next() {
		var sum models.SpaceSummary
		s := &sum.Space
		if err := rows.Scan(&s.ID, &s.Name, &s.Bio, &s.OwnerID, &s.Visibility, &s.Avatar, &s.IsDeleted, &s.LastMessageID,
			&s.CreatedAt, &s.UpdatedAt, &sum.MemberCount, &sum.IsCurrentMember, &sum.Status, &sum.LeftAt, &sum.UnreadMessageCount); err != nil {
			return nil, fmt.Errorf("scan user space: %w", err)
		}
		list = append(list, sum)
	}
	return list, rows.Err()
}
