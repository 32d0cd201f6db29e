package invitations

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/collabspace/backend/internal/apperr"
	"github.com/collabspace/backend/internal/membership"
	"github.com/collabspace/backend/internal/models"
	"github.com/collabspace/backend/internal/store/memstore"
	"github.com/collabspace/backend/pkg/queue"
	"github.com/collabspace/backend/pkg/scheduler"
)

type fakeQueue struct {
	mu   sync.Mutex
	jobs []queue.InvitationEmailPayload
	err  error
}

func (q *fakeQueue) EnqueueInvitationEmail(_ context.Context, p queue.InvitationEmailPayload) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return q.err
	}
	q.jobs = append(q.jobs, p)
	return nil
}

// dropScheduler forgets every job, standing in for a process restart.
type dropScheduler struct{}

func (dropScheduler) Schedule(string, time.Time, scheduler.Action) {}

type fixture struct {
	st    *memstore.Store
	sched *scheduler.Scheduler
	q     *fakeQueue
	svc   *Service
	lc    *membership.Lifecycle
	space *models.Space
	owner models.User
	clock time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		st:    memstore.New(),
		q:     &fakeQueue{},
		clock: time.Date(2024, 5, 10, 8, 0, 0, 0, time.UTC),
	}
	now := func() time.Time { return f.clock }
	f.sched = scheduler.New(nil, now)
	f.svc = New(f.st, f.sched, f.q, Options{Now: now})
	f.lc = membership.New(f.st, nil, now)

	f.owner = models.User{ID: uuid.New(), Email: "owner@example.com", FirstName: "Ada", LastName: "Lovelace"}
	f.st.PutUser(f.owner)
	f.space = &models.Space{Name: "Research", OwnerID: f.owner.ID, Visibility: models.VisibilityPrivate}
	require.NoError(t, f.st.CreateSpace(context.Background(), f.space))
	_, err := f.lc.AddMembers(context.Background(), f.space.ID, []uuid.UUID{f.owner.ID})
	require.NoError(t, err)
	return f
}

func (f *fixture) invitation(t *testing.T, email string) models.Invitation {
	t.Helper()
	invs := f.st.InvitationsFor(f.space.ID, email)
	require.Len(t, invs, 1)
	return invs[0]
}

func TestCreateValidatesEmail(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Create(context.Background(), f.space.ID, "not-an-email")
	assert.ErrorIs(t, err, apperr.ErrValidation)
}

func TestScheduledExpiry(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	inv, err := f.svc.Create(ctx, f.space.ID, " Guest@Example.com ")
	require.NoError(t, err)
	assert.Equal(t, "guest@example.com", inv.RecipientEmail)
	assert.Equal(t, 1, f.sched.Pending())

	assert.Equal(t, 0, f.sched.RunDue(ctx, f.clock.Add(59*time.Minute)))
	assert.True(t, f.invitation(t, inv.RecipientEmail).Open())

	assert.Equal(t, 1, f.sched.RunDue(ctx, f.clock.Add(time.Hour)))
	got := f.invitation(t, inv.RecipientEmail)
	assert.True(t, got.Expired)
	assert.False(t, got.Joined)
}

func TestAcceptedInvitationSurvivesExpiry(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	inv, err := f.svc.Create(ctx, f.space.ID, "guest@example.com")
	require.NoError(t, err)

	f.clock = f.clock.Add(30 * time.Minute)
	require.NoError(t, f.lc.AcceptInvite(ctx, uuid.New(), inv.RecipientEmail, f.space.ID))

	f.sched.RunDue(ctx, f.clock.Add(time.Hour))
	f.clock = f.clock.Add(2 * time.Hour)
	n, err := f.svc.Sweep(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	got := f.invitation(t, inv.RecipientEmail)
	assert.True(t, got.Joined)
	assert.False(t, got.Expired)
}

func TestSweepRecoversLostTimers(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.svc = New(f.st, dropScheduler{}, f.q, Options{Now: func() time.Time { return f.clock }})

	inv, err := f.svc.Create(ctx, f.space.ID, "late@example.com")
	require.NoError(t, err)

	f.clock = f.clock.Add(59 * time.Minute)
	n, err := f.svc.Sweep(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	f.clock = f.clock.Add(2 * time.Minute)
	n, err = f.svc.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.True(t, f.invitation(t, inv.RecipientEmail).Expired)

	n, err = f.svc.Sweep(ctx)
	require.NoError(t, err)
	assert.Zero(t, n, "sweep is idempotent")
}

func TestExpireThenAcceptFails(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	inv, err := f.svc.Create(ctx, f.space.ID, "guest@example.com")
	require.NoError(t, err)

	ok, err := f.svc.Expire(ctx, inv.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = f.svc.Expire(ctx, inv.ID)
	require.NoError(t, err)
	assert.False(t, ok)

	err = f.lc.AcceptInvite(ctx, uuid.New(), inv.RecipientEmail, f.space.ID)
	assert.ErrorIs(t, err, apperr.ErrExpiredState)
}

func TestExpireMissingInvitation(t *testing.T) {
	f := newFixture(t)
	ok, err := f.svc.Expire(context.Background(), uuid.New())
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestReinviteAfterExpiry(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	first, err := f.svc.Create(ctx, f.space.ID, "guest@example.com")
	require.NoError(t, err)
	_, err = f.svc.Expire(ctx, first.ID)
	require.NoError(t, err)

	f.clock = f.clock.Add(3 * time.Hour)
	second, err := f.svc.Create(ctx, f.space.ID, "guest@example.com")
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, second.ID)

	got := f.invitation(t, "guest@example.com")
	assert.Equal(t, second.ID, got.ID)
	assert.True(t, got.Open())
	assert.False(t, got.Sent)

	// The stale timer for the first invitation must not touch the new one.
	f.sched.RunDue(ctx, first.CreatedAt.Add(time.Hour))
	assert.True(t, f.invitation(t, "guest@example.com").Open())

	require.NoError(t, f.lc.AcceptInvite(ctx, uuid.New(), "guest@example.com", f.space.ID))
}

func TestSendSkipsMembersAndOpenInvitations(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	member := models.User{ID: uuid.New(), Email: "member@example.com"}
	f.st.PutUser(member)
	_, err := f.lc.AddMembers(ctx, f.space.ID, []uuid.UUID{member.ID})
	require.NoError(t, err)
	_, err = f.svc.Create(ctx, f.space.ID, "pending@example.com")
	require.NoError(t, err)

	created, err := f.svc.Send(ctx, f.space, []string{
		"member@example.com", "pending@example.com", "new@example.com", "NEW@example.com", "",
	})
	require.NoError(t, err)
	require.Len(t, created, 1)
	assert.Equal(t, "new@example.com", created[0].RecipientEmail)

	require.Len(t, f.q.jobs, 1)
	job := f.q.jobs[0]
	assert.Equal(t, created[0].ID, job.InvitationID)
	assert.Equal(t, "Research", job.SpaceName)
	assert.Equal(t, "Ada Lovelace", job.InviterName)
}

func TestSendRejectsInvalidAddress(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Send(context.Background(), f.space, []string{"ok@example.com", "bad"})
	assert.ErrorIs(t, err, apperr.ErrValidation)
	assert.Empty(t, f.st.InvitationsFor(f.space.ID, "ok@example.com"))
}

func TestSendReinvitesExpired(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	inv, err := f.svc.Create(ctx, f.space.ID, "guest@example.com")
	require.NoError(t, err)
	_, err = f.svc.Expire(ctx, inv.ID)
	require.NoError(t, err)

	created, err := f.svc.Send(ctx, f.space, []string{"guest@example.com"})
	require.NoError(t, err)
	require.Len(t, created, 1)
	assert.True(t, f.invitation(t, "guest@example.com").Open())
}

func TestSendQueueFailureKeepsInvitation(t *testing.T) {
	f := newFixture(t)
	f.q.err = errors.New("redis down")
	created, err := f.svc.Send(context.Background(), f.space, []string{"guest@example.com"})
	require.NoError(t, err)
	assert.Len(t, created, 1)
}

func TestSyncDropsUnlisted(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.svc.Create(ctx, f.space.ID, "keep@example.com")
	require.NoError(t, err)
	_, err = f.svc.Create(ctx, f.space.ID, "drop@example.com")
	require.NoError(t, err)

	created, err := f.svc.Sync(ctx, f.space, []string{"keep@example.com", "add@example.com"})
	require.NoError(t, err)
	require.Len(t, created, 1)
	assert.Equal(t, "add@example.com", created[0].RecipientEmail)

	list, err := f.svc.ListBySpace(ctx, f.space.ID)
	require.NoError(t, err)
	var emails []string
	for _, inv := range list {
		emails = append(emails, inv.RecipientEmail)
	}
	assert.ElementsMatch(t, []string{"keep@example.com", "add@example.com"}, emails)
}

func TestMarkSent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	inv, err := f.svc.Create(ctx, f.space.ID, "guest@example.com")
	require.NoError(t, err)
	require.NoError(t, f.svc.MarkSent(ctx, inv.ID))
	assert.True(t, f.invitation(t, "guest@example.com").Sent)
}

func TestConcurrentAcceptAndExpire(t *testing.T) {
	for i := 0; i < 20; i++ {
		f := newFixture(t)
		ctx := context.Background()
		inv, err := f.svc.Create(ctx, f.space.ID, "race@example.com")
		require.NoError(t, err)

		var wg sync.WaitGroup
		var acceptErr error
		wg.Add(2)
		go func() { defer wg.Done(); acceptErr = f.lc.AcceptInvite(ctx, uuid.New(), inv.RecipientEmail, f.space.ID) }()
		go func() { defer wg.Done(); _, _ = f.svc.Expire(ctx, inv.ID) }()
		wg.Wait()

		got := f.invitation(t, inv.RecipientEmail)
		assert.False(t, got.Expired && got.Joined, "invitation cannot be both expired and joined")
		if acceptErr == nil {
			assert.True(t, got.Joined)
			assert.False(t, got.Expired)
		} else {
			assert.ErrorIs(t, acceptErr, apperr.ErrExpiredState)
			assert.True(t, got.Expired)
		}
	}
}
