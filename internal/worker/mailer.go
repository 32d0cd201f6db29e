package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/collabspace/backend/internal/apperr"
	"github.com/collabspace/backend/internal/mail"
	"github.com/collabspace/backend/internal/models"
	"github.com/collabspace/backend/pkg/queue"
)

// dequeueTimeout bounds each blocking pop so Run notices cancellation.
const dequeueTimeout = 5 * time.Second

// JobSource is the job queue. *queue.Queue implements it.
type JobSource interface {
	Dequeue(ctx context.Context, timeout time.Duration, queues ...string) (*queue.Job, error)
	Retry(ctx context.Context, job *queue.Job) error
}

// Invitations reads and updates invitation state. *invitations.Service implements it.
type Invitations interface {
	Get(ctx context.Context, id uuid.UUID) (*models.Invitation, error)
	MarkSent(ctx context.Context, id uuid.UUID) error
	TTL() time.Duration
}

// DeliveryLog records send outcomes. *emaillogs.Repository implements it.
type DeliveryLog interface {
	Record(ctx context.Context, entry models.EmailLog, sendErr error) error
}

// InvitationMailer consumes invitation email jobs: render, send, mark the
// invitation sent. Failed jobs are retried and end up in the DLQ.
type InvitationMailer struct {
	jobs    JobSource
	sender  mail.Sender
	invites Invitations
	log     DeliveryLog
	appURL  string
	backoff time.Duration
	logger  *zap.Logger
}

// NewInvitationMailer creates an invitation mail processor. log may be nil.
func NewInvitationMailer(jobs JobSource, sender mail.Sender, invites Invitations, log DeliveryLog, appURL string, logger *zap.Logger) *InvitationMailer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &InvitationMailer{
		jobs:    jobs,
		sender:  sender,
		invites: invites,
		log:     log,
		appURL:  appURL,
		backoff: queue.RetryBackoff,
		logger:  logger,
	}
}

// Process executes one invitation email job. Invitations that are gone,
// expired, joined or already sent are skipped without error.
func (m *InvitationMailer) Process(ctx context.Context, job *queue.Job) error {
	var payload queue.InvitationEmailPayload
	if err := job.Decode(queue.JobTypeInvitationEmail, &payload); err != nil {
		return err
	}

	inv, err := m.invites.Get(ctx, payload.InvitationID)
	if errors.Is(err, apperr.ErrNotFound) {
		m.logger.Info("invitation gone, email skipped", zap.String("invitation_id", payload.InvitationID.String()))
		return nil
	}
	if err != nil {
		return err
	}
	if !inv.Open() || inv.Sent {
		m.logger.Info("invitation email skipped",
			zap.String("invitation_id", inv.ID.String()),
			zap.Bool("expired", inv.Expired),
			zap.Bool("joined", inv.Joined),
			zap.Bool("sent", inv.Sent))
		if !inv.Sent {
			m.record(ctx, payload, "", models.EmailLogStatusSkipped, job.Attempt, nil)
		}
		return nil
	}

	msg, err := mail.InvitationMessage(mail.Invitation{
		To:        payload.RecipientEmail,
		Inviter:   payload.InviterName,
		SpaceID:   payload.SpaceID,
		SpaceName: payload.SpaceName,
		AppURL:    m.appURL,
		ExpiresIn: m.invites.TTL().String(),
	})
	if err != nil {
		return err
	}

	sendErr := m.sender.Send(ctx, msg)
	m.record(ctx, payload, msg.Subject, "", job.Attempt, sendErr)
	if sendErr != nil {
		return fmt.Errorf("send invitation: %w", sendErr)
	}
	if err := m.invites.MarkSent(ctx, inv.ID); err != nil {
		// The mail went out; retrying would send it twice.
		m.logger.Error("mark invitation sent failed", zap.String("invitation_id", inv.ID.String()), zap.Error(err))
	}
	m.logger.Info("invitation email sent", zap.String("invitation_id", inv.ID.String()), zap.String("to", payload.RecipientEmail))
	return nil
}

func (m *InvitationMailer) record(ctx context.Context, p queue.InvitationEmailPayload, subject, status string, attempt int, sendErr error) {
	if m.log == nil {
		return
	}
	id := p.InvitationID
	entry := models.EmailLog{
		SpaceID:        p.SpaceID,
		InvitationID:   &id,
		EmailType:      models.EmailTypeInvitation,
		RecipientEmail: p.RecipientEmail,
		Subject:        subject,
		Status:         status,
		Attempt:        attempt,
	}
	if err := m.log.Record(ctx, entry, sendErr); err != nil {
		m.logger.Warn("email log write failed", zap.Error(err))
	}
}

// Run starts the worker loop: dequeue, process, retry on error.
func (m *InvitationMailer) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			m.logger.Info("invitation mailer stopping")
			return
		default:
		}

		job, err := m.jobs.Dequeue(ctx, dequeueTimeout, queue.QueueEmails)
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			m.logger.Warn("dequeue error", zap.Error(err))
			sleep(ctx, m.backoff)
			continue
		}
		if job == nil {
			continue
		}

		m.logger.Debug("processing job", zap.String("job_id", job.ID), zap.String("type", string(job.Type)))
		if err := m.Process(ctx, job); err != nil {
			m.logger.Error("job failed", zap.String("job_id", job.ID), zap.Int("attempt", job.Attempt), zap.Error(err))
			if reErr := m.jobs.Retry(context.WithoutCancel(ctx), job); reErr != nil {
				m.logger.Error("retry enqueue failed", zap.Error(reErr))
			}
			sleep(ctx, m.backoff)
		}
	}
}

func sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
