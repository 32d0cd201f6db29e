// Package emaillogs keeps the delivery log of outbound invitation emails.
package emaillogs

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/collabspace/backend/internal/apperr"
	"github.com/collabspace/backend/internal/models"
	"github.com/collabspace/backend/internal/store"
)

// Repository records and lists email deliveries.
type Repository struct {
	store store.EmailLogQueries
	now   func() time.Time
}

// NewRepository creates an email logs repository.
func NewRepository(st store.EmailLogQueries) *Repository {
	return &Repository{store: st, now: time.Now}
}

// Record appends a delivery outcome. A nil sendErr marks the entry sent.
func (r *Repository) Record(ctx context.Context, entry models.EmailLog, sendErr error) error {
	if entry.EmailType == "" {
		entry.EmailType = models.EmailTypeInvitation
	}
	switch {
	case sendErr != nil:
		entry.Status = models.EmailLogStatusFailed
		entry.ErrorMessage = sendErr.Error()
	case entry.Status == "":
		at := r.now()
		entry.Status = models.EmailLogStatusSent
		entry.SentAt = &at
	}
	return apperr.Transient("insert email log", r.store.InsertEmailLog(ctx, &entry))
}

// ListBySpace returns the space's email log, newest first.
func (r *Repository) ListBySpace(ctx context.Context, spaceID uuid.UUID) ([]models.EmailLog, error) {
	logs, err := r.store.ListEmailLogs(ctx, spaceID)
	if err != nil {
		return nil, apperr.Transient("list email logs", err)
	}
	if logs == nil {
		logs = []models.EmailLog{}
	}
	return logs, nil
}
