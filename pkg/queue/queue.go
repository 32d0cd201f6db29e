package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	// QueueEmails is the Redis list key for outbound email jobs.
	QueueEmails = "worker:emails"
	// QueueDLQ is the dead-letter queue for jobs that exhausted their retries.
	QueueDLQ = "worker:dlq"
	// MaxRetries is the number of attempts before a job moves to the DLQ.
	MaxRetries = 3
	// RetryBackoff is the delay between retries.
	RetryBackoff = 10 * time.Second
)

// JobType identifies the job kind.
type JobType string

const (
	JobTypeInvitationEmail JobType = "invitation_email"
)

// InvitationEmailPayload asks the mail worker to deliver one collab invitation.
type InvitationEmailPayload struct {
	InvitationID   uuid.UUID `json:"invitation_id"`
	SpaceID        uuid.UUID `json:"space_id"`
	SpaceName      string    `json:"space_name"`
	InviterName    string    `json:"inviter_name"`
	RecipientEmail string    `json:"recipient_email"`
}

// Job is a generic job envelope. Queue records where the job came from so a
// retry goes back to the same list.
type Job struct {
	ID        string          `json:"id"`
	Type      JobType         `json:"type"`
	Queue     string          `json:"queue"`
	Payload   json.RawMessage `json:"payload"`
	Attempt   int             `json:"attempt"`
	CreatedAt time.Time       `json:"created_at"`
}

// NewJob wraps payload in an envelope bound for queueName.
func NewJob(t JobType, queueName string, payload any) (*Job, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	return &Job{
		ID:        uuid.New().String(),
		Type:      t,
		Queue:     queueName,
		Payload:   body,
		CreatedAt: time.Now(),
	}, nil
}

// Decode unmarshals the job payload into v after checking the type.
func (j *Job) Decode(want JobType, v any) error {
	if j.Type != want {
		return fmt.Errorf("unexpected job type %q, want %q", j.Type, want)
	}
	if err := json.Unmarshal(j.Payload, v); err != nil {
		return fmt.Errorf("unmarshal payload: %w", err)
	}
	return nil
}

// nextQueue is where a failed job goes after its attempt counter is bumped.
func nextQueue(job *Job) string {
	if job.Attempt >= MaxRetries {
		return QueueDLQ
	}
	if job.Queue == "" {
		return QueueEmails
	}
	return job.Queue
}

// Queue enqueues and dequeues jobs via Redis lists.
type Queue struct {
	client *redis.Client
	logger *zap.Logger
}

// NewQueue creates a new Redis-backed job queue.
func NewQueue(client *redis.Client, logger *zap.Logger) *Queue {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Queue{client: client, logger: logger}
}

func (q *Queue) push(ctx context.Context, key string, job *Job) error {
	raw, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}
	if err := q.client.RPush(ctx, key, raw).Err(); err != nil {
		return fmt.Errorf("rpush: %w", err)
	}
	return nil
}

// EnqueueInvitationEmail enqueues an invitation email job.
func (q *Queue) EnqueueInvitationEmail(ctx context.Context, payload InvitationEmailPayload) error {
	job, err := NewJob(JobTypeInvitationEmail, QueueEmails, payload)
	if err != nil {
		return err
	}
	if err := q.push(ctx, QueueEmails, job); err != nil {
		return err
	}
	q.logger.Debug("enqueued invitation email", zap.String("job_id", job.ID), zap.String("invitation_id", payload.InvitationID.String()))
	return nil
}

// Dequeue blocks up to timeout for a job on any of queues. A nil job with nil
// error means the wait timed out or the entry was unreadable.
func (q *Queue) Dequeue(ctx context.Context, timeout time.Duration, queues ...string) (*Job, error) {
	result, err := q.client.BLPop(ctx, timeout, queues...).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}
	if len(result) < 2 {
		return nil, nil
	}
	var job Job
	if err := json.Unmarshal([]byte(result[1]), &job); err != nil {
		q.logger.Warn("invalid job payload", zap.String("raw", result[1]), zap.Error(err))
		return nil, nil
	}
	if job.Queue == "" {
		job.Queue = result[0]
	}
	return &job, nil
}

// Retry re-enqueues a job with incremented attempt. Once attempt reaches
// MaxRetries the job goes to the DLQ instead.
func (q *Queue) Retry(ctx context.Context, job *Job) error {
	job.Attempt++
	target := nextQueue(job)
	if err := q.push(ctx, target, job); err != nil {
		q.logger.Error("retry push failed", zap.Error(err), zap.String("job_id", job.ID), zap.String("queue", target))
		return err
	}
	if target == QueueDLQ {
		q.logger.Warn("job moved to DLQ", zap.String("job_id", job.ID), zap.Int("attempt", job.Attempt))
		return nil
	}
	q.logger.Info("job retried", zap.String("job_id", job.ID), zap.Int("attempt", job.Attempt))
	return nil
}
