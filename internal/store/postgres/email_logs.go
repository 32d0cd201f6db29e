package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/collabspace/backend/internal/models"
)

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func (q *queries) InsertEmailLog(ctx context.Context, l *models.EmailLog) error {
	const sql = `INSERT INTO email_logs
		(space_id, invitation_id, email_type, recipient_email, subject, status, attempt, sent_at, error_message)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id, created_at`
	err := q.db.QueryRow(ctx, sql,
		l.SpaceID, l.InvitationID, l.EmailType, l.RecipientEmail, nullable(l.Subject),
		l.Status, l.Attempt, l.SentAt, nullable(l.ErrorMessage),
	).Scan(&l.ID, &l.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert email log: %w", err)
	}
	return nil
}

func (q *queries) ListEmailLogs(ctx context.Context, spaceID uuid.UUID) ([]models.EmailLog, error) {
	const sql = `SELECT id, space_id, invitation_id, email_type, recipient_email, subject, status, attempt, sent_at, error_message, created_at
		FROM email_logs
		WHERE space_id = $1
		ORDER BY created_at DESC`
	rows, err := q.db.Query(ctx, sql, spaceID)
	if err != nil {
		return nil, fmt.Errorf("list email logs: %w", err)
	}
	defer rows.Close()

	var list []models.EmailLog
	for rows.Next() {
		var el models.EmailLog
		var subject, errMsg *string
		if err := rows.Scan(&el.ID, &el.SpaceID, &el.InvitationID, &el.EmailType, &el.RecipientEmail, &subject,
			&el.Status, &el.Attempt, &el.SentAt, &errMsg, &el.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan email log: %w", err)
		}
		if subject != nil {
			el.Subject = *subject
		}
		if errMsg != nil {
			el.ErrorMessage = *errMsg
		}
		list = append(list, el)
	}
	return list, rows.Err()
}
