package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/collabspace/backend/internal/models"
)

const invitationColumns = `id, space_id, recipient_email, sent, expired, joined, created_at`

func scanInvitation(row interface{ Scan(dest ...any) error }, inv *models.Invitation) error {
	return row.Scan(&inv.ID, &inv.SpaceID, &inv.RecipientEmail, &inv.Sent, &inv.Expired, &inv.Joined, &inv.CreatedAt)
}

func (q *queries) InsertInvitation(ctx context.Context, inv *models.Invitation) error {
	const sql = `INSERT INTO invitations (space_id, recipient_email, created_at)
		VALUES ($1, $2, COALESCE($3::timestamptz, NOW()))
		RETURNING id, created_at`
	var createdAt *time.Time
	if !inv.CreatedAt.IsZero() {
		createdAt = &inv.CreatedAt
	}
	if err := q.db.QueryRow(ctx, sql, inv.SpaceID, inv.RecipientEmail, createdAt).Scan(&inv.ID, &inv.CreatedAt); err != nil {
		return fmt.Errorf("insert invitation: %w", err)
	}
	return nil
}

func (q *queries) GetInvitation(ctx context.Context, id uuid.UUID) (*models.Invitation, error) {
	return q.getInvitation(ctx, `SELECT `+invitationColumns+` FROM invitations WHERE id = $1`, id)
}

func (q *queries) LockInvitation(ctx context.Context, id uuid.UUID) (*models.Invitation, error) {
	return q.getInvitation(ctx, `SELECT `+invitationColumns+` FROM invitations WHERE id = $1 FOR UPDATE`, id)
}

func (q *queries) LockLatestInvitation(ctx context.Context, spaceID uuid.UUID, email string) (*models.Invitation, error) {
	const sql = `SELECT ` + invitationColumns + ` FROM invitations
		WHERE space_id = $1 AND LOWER(recipient_email) = LOWER($2)
		ORDER BY created_at DESC LIMIT 1 FOR UPDATE`
	return q.getInvitation(ctx, sql, spaceID, email)
}

func (q *queries) getInvitation(ctx context.Context, sql string, args ...any) (*models.Invitation, error) {
	var inv models.Invitation
	if err := scanInvitation(q.db.QueryRow(ctx, sql, args...), &inv); err != nil {
		if noRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get invitation: %w", err)
	}
	return &inv, nil
}

func (q *queries) ListInvitations(ctx context.Context, spaceID uuid.UUID) ([]models.Invitation, error) {
	rows, err := q.db.Query(ctx, `SELECT `+invitationColumns+` FROM invitations WHERE space_id = $1 ORDER BY created_at DESC`, spaceID)
	if err != nil {
		return nil, fmt.Errorf("list invitations: %w", err)
	}
	defer rows.Close()

	var list []models.Invitation
	for rows.Next() {
		var inv models.Invitation
		if err := scanInvitation(rows, &inv); err != nil {
			return nil, fmt.Errorf("scan invitation: %w", err)
		}
		list = append(list, inv)
	}
	return list, rows.Err()
}

func (q *queries) DeleteInvitations(ctx context.Context, spaceID uuid.UUID, email string) error {
	const sql = `DELETE FROM invitations WHERE space_id = $1 AND LOWER(recipient_email) = LOWER($2)`
	if _, err := q.db.Exec(ctx, sql, spaceID, email); err != nil {
		return fmt.Errorf("delete invitations: %w", err)
	}
	return nil
}

func (q *queries) DeleteInvitationsExcept(ctx context.Context, spaceID uuid.UUID, keep []string) error {
	lowered := make([]string, len(keep))
	for i, e := range keep {
		lowered[i] = toLower(e)
	}
	const sql = `DELETE FROM invitations WHERE space_id = $1 AND NOT (LOWER(recipient_email) = ANY($2::text[]))`
	if _, err := q.db.Exec(ctx, sql, spaceID, lowered); err != nil {
		return fmt.Errorf("delete stale invitations: %w", err)
	}
	return nil
}

func (q *queries) MarkInvitationSent(ctx context.Context, id uuid.UUID) error {
	return q.setInvitationFlag(ctx, `UPDATE invitations SET sent = TRUE WHERE id = $1`, id)
}

// MarkInvitationExpired never flips a joined invitation.
func (q *queries) MarkInvitationExpired(ctx context.Context, id uuid.UUID) error {
	return q.setInvitationFlag(ctx, `UPDATE invitations SET expired = TRUE WHERE id = $1 AND NOT joined`, id)
}

func (q *queries) MarkInvitationJoined(ctx context.Context, id uuid.UUID) error {
	return q.setInvitationFlag(ctx, `UPDATE invitations SET joined = TRUE WHERE id = $1 AND NOT expired`, id)
}

func (q *queries) setInvitationFlag(ctx context.Context, sql string, id uuid.UUID) error {
	if _, err := q.db.Exec(ctx, sql, id); err != nil {
		return fmt.Errorf("update invitation: %w", err)
	}
	return nil
}

func (q *queries) ListExpirableInvitations(ctx context.Context, cutoff time.Time) ([]uuid.UUID, error) {
	const sql = `SELECT id FROM invitations WHERE NOT expired AND NOT joined AND created_at <= $1 ORDER BY created_at`
	rows, err := q.db.Query(ctx, sql, cutoff)
	if err != nil {
		return nil, fmt.Errorf("list expirable invitations: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[uuid.UUID])
	if err != nil {
		return nil, fmt.Errorf("collect expirable invitations: %w", err)
	}
	return ids, nil
}
