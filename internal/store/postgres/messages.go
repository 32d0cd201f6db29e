package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/collabspace/backend/internal/models"
)

// InsertMessage stores m with the id and timestamp the caller chose, so
// leave cutoffs stamped by the same clock compare consistently. Missing
// values fall back to a fresh id and NOW().
func (q *queries) InsertMessage(ctx context.Context, m *models.Message) error {
	args, err := messageInsertArgs(m)
	if err != nil {
		return err
	}
	const sql = `INSERT INTO messages (id, space_id, user_id, content, attachments, created_at)
		VALUES ($1, $2, $3, $4, $5, COALESCE($6::timestamptz, NOW()))
		RETURNING created_at`
	if err := q.db.QueryRow(ctx, sql, args...).Scan(&m.CreatedAt); err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	return nil
}

func messageInsertArgs(m *models.Message) ([]any, error) {
	attachments, err := json.Marshal(nonNilAttachments(m.Attachments))
	if err != nil {
		return nil, fmt.Errorf("encode attachments: %w", err)
	}
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	var createdAt *time.Time
	if !m.CreatedAt.IsZero() {
		createdAt = &m.CreatedAt
	}
	return []any{m.ID, m.SpaceID, m.UserID, m.Content, attachments, createdAt}, nil
}

func nonNilAttachments(a []models.Attachment) []models.Attachment {
	if a == nil {
		return []models.Attachment{}
	}
	return a
}

func scanMessage(row interface{ Scan(dest ...any) error }, m *models.Message) error {
	var raw []byte
	if err := row.Scan(&m.ID, &m.SpaceID, &m.UserID, &m.Content, &raw, &m.CreatedAt); err != nil {
		return err
	}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &m.Attachments); err != nil {
			return fmt.Errorf("decode attachments: %w", err)
		}
	}
	m.Attachments = nonNilAttachments(m.Attachments)
	return nil
}

func (q *queries) GetMessage(ctx context.Context, id uuid.UUID) (*models.Message, error) {
	const sql = `SELECT id, space_id, user_id, content, attachments, created_at FROM messages WHERE id = $1`
	var m models.Message
	if err := scanMessage(q.db.QueryRow(ctx, sql, id), &m); err != nil {
		if noRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get message: %w", err)
	}
	return &m, nil
}

func (q *queries) DeleteMessage(ctx context.Context, id uuid.UUID) error {
	if _, err := q.db.Exec(ctx, `DELETE FROM messages WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete message: %w", err)
	}
	return nil
}

func (q *queries) ListMessages(ctx context.Context, spaceID uuid.UUID, cutoff *time.Time, limit, offset int) ([]models.Message, int, error) {
	const filter = ` FROM messages WHERE space_id = $1 AND ($2::timestamptz IS NULL OR created_at <= $2)`
	var total int
	if err := q.db.QueryRow(ctx, `SELECT COUNT(*)`+filter, spaceID, cutoff).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count messages: %w", err)
	}

	rows, err := q.db.Query(ctx, `SELECT id, space_id, user_id, content, attachments, created_at`+filter+
		` ORDER BY created_at DESC LIMIT $3 OFFSET $4`, spaceID, cutoff, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	list := []models.Message{}
	for rows.Next() {
		var m models.Message
		if err := scanMessage(rows, &m); err != nil {
			return nil, 0, fmt.Errorf("scan message: %w", err)
		}
		list = append(list, m)
	}
	return list, total, rows.Err()
}

func (q *queries) InsertReadStatuses(ctx context.Context, rows []models.ReadStatus) error {
	if len(rows) == 0 {
		return nil
	}
	_, err := q.db.CopyFrom(ctx,
		pgx.Identifier{"message_read_statuses"},
		[]string{"message_id", "user_id", "space_id", "read"},
		pgx.CopyFromSlice(len(rows), func(i int) ([]any, error) {
			r := rows[i]
			return []any{r.MessageID, r.UserID, r.SpaceID, r.Read}, nil
		}),
	)
	if err != nil {
		return fmt.Errorf("insert read statuses: %w", err)
	}
	return nil
}

func (q *queries) MarkAllRead(ctx context.Context, spaceID, userID uuid.UUID) (int64, error) {
	const sql = `UPDATE message_read_statuses SET read = TRUE WHERE space_id = $1 AND user_id = $2 AND NOT read`
	tag, err := q.db.Exec(ctx, sql, spaceID, userID)
	if err != nil {
		return 0, fmt.Errorf("mark all read: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (q *queries) CountUnread(ctx context.Context, spaceID, userID uuid.UUID) (int, error) {
	const sql = `SELECT COUNT(*) FROM message_read_statuses WHERE space_id = $1 AND user_id = $2 AND NOT read`
	var n int
	if err := q.db.QueryRow(ctx, sql, spaceID, userID).Scan(&n); err != nil {
		return 0, fmt.Errorf("count unread: %w", err)
	}
	return n, nil
}
