// Package invitations manages time-bound email invitations to private
// collabs. Each invitation gets a one-shot expiry job on the scheduler; the
// hourly Sweep catches any job lost to a restart.
package invitations

import (
	"context"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/collabspace/backend/internal/apperr"
	"github.com/collabspace/backend/internal/models"
	"github.com/collabspace/backend/internal/store"
	"github.com/collabspace/backend/pkg/queue"
	"github.com/collabspace/backend/pkg/scheduler"
)

// DefaultTTL is how long an invitation stays open.
const DefaultTTL = time.Hour

// Scheduler runs delayed actions. *scheduler.Scheduler implements it.
type Scheduler interface {
	Schedule(key string, at time.Time, run scheduler.Action)
}

// EmailQueue hands invitation emails to the mail worker.
type EmailQueue interface {
	EnqueueInvitationEmail(ctx context.Context, payload queue.InvitationEmailPayload) error
}

// Service creates, expires and sends invitations.
type Service struct {
	store    store.Store
	sched    Scheduler
	emails   EmailQueue
	validate *validator.Validate
	logger   *zap.Logger
	now      func() time.Time
	ttl      time.Duration
}

// Options configures a Service. Zero values fall back to defaults.
type Options struct {
	TTL    time.Duration
	Now    func() time.Time
	Logger *zap.Logger
}

// New creates a Service. emails may be nil, in which case Send only records invitations.
func New(st store.Store, sched Scheduler, emails EmailQueue, opts Options) *Service {
	s := &Service{
		store:    st,
		sched:    sched,
		emails:   emails,
		validate: validator.New(),
		logger:   opts.Logger,
		now:      opts.Now,
		ttl:      opts.TTL,
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.ttl <= 0 {
		s.ttl = DefaultTTL
	}
	return s
}

// TTL returns the configured invitation lifetime.
func (s *Service) TTL() time.Duration { return s.ttl }

func normalize(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func expiryKey(id uuid.UUID) string {
	return "invitation-expiry:" + id.String()
}

// Create replaces every earlier invitation for (space, email) with a fresh
// open one and schedules its expiry.
func (s *Service) Create(ctx context.Context, spaceID uuid.UUID, email string) (*models.Invitation, error) {
	email = normalize(email)
	if err := s.validate.Var(email, "required,email"); err != nil {
		return nil, apperr.Validation("invalid email: " + email)
	}

	inv := &models.Invitation{SpaceID: spaceID, RecipientEmail: email, CreatedAt: s.now()}
	err := s.store.InTx(ctx, func(tx store.Queries) error {
		if err := tx.DeleteInvitations(ctx, spaceID, email); err != nil {
			return apperr.Transient("delete previous invitations", err)
		}
		return apperr.Transient("insert invitation", tx.InsertInvitation(ctx, inv))
	})
	if err != nil {
		return nil, apperr.Transient("create invitation", err)
	}

	if s.sched != nil {
		id := inv.ID
		s.sched.Schedule(expiryKey(id), inv.ExpiresAt(s.ttl), func(ctx context.Context) error {
			_, err := s.Expire(ctx, id)
			return err
		})
	}
	s.logger.Info("invitation created", zap.String("space_id", spaceID.String()), zap.String("invitation_id", inv.ID.String()))
	return inv, nil
}

// Expire marks an open invitation expired. Missing, joined or already expired
// invitations are left alone and report false.
func (s *Service) Expire(ctx context.Context, invitationID uuid.UUID) (bool, error) {
	expired := false
	err := s.store.InTx(ctx, func(tx store.Queries) error {
		inv, err := tx.LockInvitation(ctx, invitationID)
		if err != nil {
			return apperr.Transient("lock invitation", err)
		}
		if inv == nil || !inv.Open() {
			return nil
		}
		if err := tx.MarkInvitationExpired(ctx, invitationID); err != nil {
			return apperr.Transient("mark invitation expired", err)
		}
		expired = true
		return nil
	})
	if err != nil {
		return false, apperr.Transient("expire invitation", err)
	}
	if expired {
		s.logger.Info("invitation expired", zap.String("invitation_id", invitationID.String()))
	}
	return expired, nil
}

// Sweep expires every open invitation older than the TTL and returns how many
// it changed.
func (s *Service) Sweep(ctx context.Context) (int, error) {
	ids, err := s.store.ListExpirableInvitations(ctx, s.now().Add(-s.ttl))
	if err != nil {
		return 0, apperr.Transient("list expirable invitations", err)
	}
	n := 0
	for _, id := range ids {
		ok, err := s.Expire(ctx, id)
		if err != nil {
			s.logger.Warn("sweep: expire failed", zap.String("invitation_id", id.String()), zap.Error(err))
			continue
		}
		if ok {
			n++
		}
	}
	if n > 0 {
		s.logger.Info("invitation sweep", zap.Int("expired", n))
	}
	return n, nil
}

// Send invites every address that is not already a member and has no open
// invitation, then queues one email per new invitation. Invalid addresses
// fail the whole call before anything is written.
func (s *Service) Send(ctx context.Context, space *models.Space, emails []string) ([]models.Invitation, error) {
	targets, err := s.cleanEmails(emails)
	if err != nil {
		return nil, err
	}
	if len(targets) == 0 {
		return nil, nil
	}

	skip := make(map[string]struct{})
	users, err := s.store.ListUsersByEmail(ctx, targets)
	if err != nil {
		return nil, apperr.Transient("lookup users", err)
	}
	for _, u := range users {
		member, err := s.store.IsMember(ctx, space.ID, u.ID)
		if err != nil {
			return nil, apperr.Transient("check membership", err)
		}
		if member {
			skip[normalize(u.Email)] = struct{}{}
		}
	}
	existing, err := s.store.ListInvitations(ctx, space.ID)
	if err != nil {
		return nil, apperr.Transient("list invitations", err)
	}
	for _, inv := range existing {
		if inv.Open() {
			skip[normalize(inv.RecipientEmail)] = struct{}{}
		}
	}

	inviter := ""
	if owner, err := s.store.GetUser(ctx, space.OwnerID); err == nil && owner != nil {
		inviter = owner.FullName()
	}

	var created []models.Invitation
	for _, email := range targets {
		if _, ok := skip[email]; ok {
			continue
		}
		inv, err := s.Create(ctx, space.ID, email)
		if err != nil {
			return created, err
		}
		created = append(created, *inv)
		s.enqueue(ctx, space, inviter, inv)
	}
	return created, nil
}

func (s *Service) enqueue(ctx context.Context, space *models.Space, inviter string, inv *models.Invitation) {
	if s.emails == nil {
		return
	}
	err := s.emails.EnqueueInvitationEmail(ctx, queue.InvitationEmailPayload{
		InvitationID:   inv.ID,
		SpaceID:        space.ID,
		SpaceName:      space.Name,
		InviterName:    inviter,
		RecipientEmail: inv.RecipientEmail,
	})
	if err != nil {
		s.logger.Error("enqueue invitation email failed", zap.String("invitation_id", inv.ID.String()), zap.Error(err))
	}
}

// Sync makes emails the full invited list: invitations for addresses no
// longer listed are deleted, then the rest go through Send.
func (s *Service) Sync(ctx context.Context, space *models.Space, emails []string) ([]models.Invitation, error) {
	targets, err := s.cleanEmails(emails)
	if err != nil {
		return nil, err
	}
	if err := s.store.DeleteInvitationsExcept(ctx, space.ID, targets); err != nil {
		return nil, apperr.Transient("delete stale invitations", err)
	}
	return s.Send(ctx, space, targets)
}

// Validate checks every address without touching the store.
func (s *Service) Validate(emails []string) error {
	_, err := s.cleanEmails(emails)
	return err
}

func (s *Service) cleanEmails(emails []string) ([]string, error) {
	seen := make(map[string]struct{}, len(emails))
	out := make([]string, 0, len(emails))
	for _, e := range emails {
		e = normalize(e)
		if e == "" {
			continue
		}
		if _, dup := seen[e]; dup {
			continue
		}
		if err := s.validate.Var(e, "email"); err != nil {
			return nil, apperr.Validation("invalid email: " + e)
		}
		seen[e] = struct{}{}
		out = append(out, e)
	}
	return out, nil
}

// ListBySpace returns the invitations of a space, newest first.
func (s *Service) ListBySpace(ctx context.Context, spaceID uuid.UUID) ([]models.Invitation, error) {
	list, err := s.store.ListInvitations(ctx, spaceID)
	if err != nil {
		return nil, apperr.Transient("list invitations", err)
	}
	if list == nil {
		list = []models.Invitation{}
	}
	return list, nil
}

// Get returns an invitation, or NotFound.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*models.Invitation, error) {
	inv, err := s.store.GetInvitation(ctx, id)
	if err != nil {
		return nil, apperr.Transient("get invitation", err)
	}
	if inv == nil {
		return nil, apperr.NotFound("invitation not found")
	}
	return inv, nil
}

// MarkSent records that the invitation email went out.
func (s *Service) MarkSent(ctx context.Context, invitationID uuid.UUID) error {
	return apperr.Transient("mark invitation sent", s.store.MarkInvitationSent(ctx, invitationID))
}
