package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/collabspace/backend/internal/models"
)

func (q *queries) ListMemberIDs(ctx context.Context, spaceID uuid.UUID) ([]uuid.UUID, error) {
	return q.listIDs(ctx, `SELECT user_id FROM memberships WHERE space_id = $1 ORDER BY created_at`, spaceID)
}

func (q *queries) ListCurrentPastIDs(ctx context.Context, spaceID uuid.UUID) ([]uuid.UUID, error) {
	return q.listIDs(ctx, `SELECT user_id FROM past_participants WHERE space_id = $1`, spaceID)
}

func (q *queries) listIDs(ctx context.Context, sql string, args ...any) ([]uuid.UUID, error) {
	rows, err := q.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("list ids: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[uuid.UUID])
	if err != nil {
		return nil, fmt.Errorf("collect ids: %w", err)
	}
	return ids, nil
}

func (q *queries) IsMember(ctx context.Context, spaceID, userID uuid.UUID) (bool, error) {
	var ok bool
	err := q.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM memberships WHERE space_id = $1 AND user_id = $2)`, spaceID, userID).Scan(&ok)
	if err != nil {
		return false, fmt.Errorf("is member: %w", err)
	}
	return ok, nil
}

func (q *queries) InsertMemberships(ctx context.Context, spaceID uuid.UUID, userIDs []uuid.UUID, at time.Time) error {
	if len(userIDs) == 0 {
		return nil
	}
	const sql = `INSERT INTO memberships (user_id, space_id, created_at)
		SELECT u, $1, $3 FROM UNNEST($2::uuid[]) AS u
		ON CONFLICT (user_id, space_id) DO NOTHING`
	if _, err := q.db.Exec(ctx, sql, spaceID, userIDs, at); err != nil {
		return fmt.Errorf("insert memberships: %w", err)
	}
	return nil
}

func (q *queries) DeleteMemberships(ctx context.Context, spaceID uuid.UUID, userIDs []uuid.UUID) error {
	if len(userIDs) == 0 {
		return nil
	}
	if _, err := q.db.Exec(ctx, `DELETE FROM memberships WHERE space_id = $1 AND user_id = ANY($2)`, spaceID, userIDs); err != nil {
		return fmt.Errorf("delete memberships: %w", err)
	}
	return nil
}

func (q *queries) GetCurrentPast(ctx context.Context, spaceID, userID uuid.UUID) (*models.PastParticipant, error) {
	const sql = `SELECT id, user_id, space_id, status, left_at, removed_at, removed_by, created_at
		FROM past_participants WHERE space_id = $1 AND user_id = $2`
	var p models.PastParticipant
	err := q.db.QueryRow(ctx, sql, spaceID, userID).Scan(&p.ID, &p.UserID, &p.SpaceID, &p.Status, &p.LeftAt, &p.RemovedAt, &p.RemovedBy, &p.CreatedAt)
	if err != nil {
		if noRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get past participant: %w", err)
	}
	return &p, nil
}

// InsertPastParticipants upserts, replacing any earlier row for the same (user, space).
func (q *queries) InsertPastParticipants(ctx context.Context, rows []models.PastParticipant) error {
	if len(rows) == 0 {
		return nil
	}
	const sql = `INSERT INTO past_participants (user_id, space_id, status, left_at, removed_at, removed_by)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (user_id, space_id) DO UPDATE
		SET status = EXCLUDED.status, left_at = EXCLUDED.left_at, removed_at = EXCLUDED.removed_at,
			removed_by = EXCLUDED.removed_by, created_at = NOW()`
	batch := &pgx.Batch{}
	for _, p := range rows {
		batch.Queue(sql, p.UserID, p.SpaceID, p.Status, p.LeftAt, p.RemovedAt, p.RemovedBy)
	}
	if err := q.sendBatch(ctx, batch); err != nil {
		return fmt.Errorf("insert past participants: %w", err)
	}
	return nil
}

func (q *queries) DeletePastParticipants(ctx context.Context, spaceID uuid.UUID, userIDs []uuid.UUID) error {
	if len(userIDs) == 0 {
		return nil
	}
	if _, err := q.db.Exec(ctx, `DELETE FROM past_participants WHERE space_id = $1 AND user_id = ANY($2)`, spaceID, userIDs); err != nil {
		return fmt.Errorf("delete past participants: %w", err)
	}
	return nil
}

func (q *queries) sendBatch(ctx context.Context, b *pgx.Batch) error {
	return q.db.SendBatch(ctx, b).Close()
}
