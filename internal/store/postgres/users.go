package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/collabspace/backend/internal/models"
)

func toLower(s string) string { return strings.ToLower(strings.TrimSpace(s)) }

func (q *queries) GetUser(ctx context.Context, id uuid.UUID) (*models.User, error) {
	const sql = `SELECT id, email, first_name, last_name, profile_image FROM users WHERE id = $1`
	var u models.User
	if err := q.db.QueryRow(ctx, sql, id).Scan(&u.ID, &u.Email, &u.FirstName, &u.LastName, &u.ProfileImage); err != nil {
		if noRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get user: %w", err)
	}
	return &u, nil
}

func (q *queries) ListUsersByEmail(ctx context.Context, emails []string) ([]models.User, error) {
	if len(emails) == 0 {
		return nil, nil
	}
	lowered := make([]string, len(emails))
	for i, e := range emails {
		lowered[i] = toLower(e)
	}
	const sql = `SELECT id, email, first_name, last_name, profile_image FROM users WHERE LOWER(email) = ANY($1::text[])`
	rows, err := q.db.Query(ctx, sql, lowered)
	if err != nil {
		return nil, fmt.Errorf("list users by email: %w", err)
	}
	defer rows.Close()

	var list []models.User
	for rows.Next() {
		var u models.User
		if err := rows.Scan(&u.ID, &u.Email, &u.FirstName, &u.LastName, &u.ProfileImage); err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		list = append(list, u)
	}
	return list, rows.Err()
}

func (q *queries) ExistingUserIDs(ctx context.Context, ids []uuid.UUID) ([]uuid.UUID, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := q.db.Query(ctx, `SELECT id FROM users WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, fmt.Errorf("list existing users: %w", err)
	}
	found, err := pgx.CollectRows(rows, pgx.RowTo[uuid.UUID])
	if err != nil {
		return nil, fmt.Errorf("scan user id: %w", err)
	}
	return found, nil
}
