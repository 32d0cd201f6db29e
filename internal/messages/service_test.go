package messages

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/collabspace/backend/internal/apperr"
	"github.com/collabspace/backend/internal/membership"
	"github.com/collabspace/backend/internal/models"
	"github.com/collabspace/backend/internal/notifications"
	"github.com/collabspace/backend/internal/presence"
	"github.com/collabspace/backend/internal/readstatus"
	"github.com/collabspace/backend/internal/realtime"
	"github.com/collabspace/backend/internal/store/memstore"
)

type push struct {
	user uuid.UUID
	ev   realtime.Event
}

type roomSend struct {
	room    string
	ev      realtime.Event
	exclude presence.ConnID
}

type recorder struct {
	mu     sync.Mutex
	pushes []push
	rooms  []roomSend
}

func (r *recorder) SendToUser(userID uuid.UUID, ev realtime.Event) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pushes = append(r.pushes, push{userID, ev})
	return true
}

func (r *recorder) BroadcastToRoom(room string, ev realtime.Event, exclude presence.ConnID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rooms = append(r.rooms, roomSend{room, ev, exclude})
}

type fixture struct {
	st       *memstore.Store
	presence *presence.Presence
	out      *recorder
	router   *notifications.Router
	lc       *membership.Lifecycle
	svc      *Service
	clock    time.Time
	owner    models.User
	bob      models.User
	carol    models.User
	space    *models.Space
}

func newFixture(t *testing.T, visibility models.Visibility) *fixture {
	t.Helper()
	f := &fixture{
		st:       memstore.New(),
		presence: presence.New(),
		out:      &recorder{},
		clock:    time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	now := func() time.Time {
		f.clock = f.clock.Add(time.Second)
		return f.clock
	}
	f.router = notifications.NewRouter(f.st, f.out, f.presence, nil)
	f.lc = membership.New(f.st, nil, now)
	f.svc = NewService(f.st, f.lc, readstatus.New(f.st), f.router, nil, now)

	f.owner = models.User{ID: uuid.New(), FirstName: "Ada", LastName: "Lovelace"}
	f.bob = models.User{ID: uuid.New(), FirstName: "Bob", LastName: "Stone"}
	f.carol = models.User{ID: uuid.New(), FirstName: "Carol", LastName: "King"}
	for _, u := range []models.User{f.owner, f.bob, f.carol} {
		f.st.PutUser(u)
	}

	ctx := context.Background()
	f.space = &models.Space{Name: "Research", OwnerID: f.owner.ID, Visibility: visibility}
	require.NoError(t, f.st.CreateSpace(ctx, f.space))
	_, err := f.lc.AddMembers(ctx, f.space.ID, []uuid.UUID{f.owner.ID, f.bob.ID, f.carol.ID})
	require.NoError(t, err)
	return f
}

func (f *fixture) flush(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, f.router.Flush(ctx))
}

func (f *fixture) post(t *testing.T, author uuid.UUID, content string) *models.Message {
	t.Helper()
	msg, err := f.svc.Create(context.Background(), author, CreateInput{SpaceID: f.space.ID, Content: content})
	require.NoError(t, err)
	return msg
}

func TestCreateFansOut(t *testing.T) {
	f := newFixture(t, models.VisibilityPrivate)

	f.presence.Users.Register(f.owner.ID, "c-owner")
	f.presence.Rooms.Join("c-owner", f.space.Room())
	f.presence.Users.Register(f.bob.ID, "c-bob")
	f.presence.Rooms.Join("c-bob", f.space.Room())

	msg := f.post(t, f.owner.ID, "hello")
	f.flush(t)

	require.Len(t, f.out.rooms, 1)
	assert.Equal(t, f.space.Room(), f.out.rooms[0].room)
	assert.Equal(t, presence.ConnID("c-owner"), f.out.rooms[0].exclude)
	assert.Equal(t, realtime.EventNewMessage, realtime.Name(f.out.rooms[0].ev))

	// Bob is viewing the room, Carol is not.
	require.Len(t, f.out.pushes, 1)
	assert.Equal(t, f.carol.ID, f.out.pushes[0].user)
	ev, ok := f.out.pushes[0].ev.(realtime.NotifyMembersPayload)
	require.True(t, ok)
	assert.Equal(t, `Ada Lovelace sent a message in "Research"`, ev.Message)
	assert.Equal(t, f.space.ID, ev.Collab.ID)
	assert.Equal(t, f.owner.ID, ev.Sender.ID)

	assert.Empty(t, f.st.Notifications(f.owner.ID))
	for _, u := range []uuid.UUID{f.bob.ID, f.carol.ID} {
		recs := f.st.Notifications(u)
		require.Len(t, recs, 1)
		assert.Equal(t, "New Message", recs[0].Title)
		assert.Equal(t, f.space.ID.String(), recs[0].ClickURL)
	}

	rows := f.st.ReadStatuses(msg.ID)
	assert.Len(t, rows, 2)
	sp, err := f.st.GetSpace(context.Background(), f.space.ID)
	require.NoError(t, err)
	require.NotNil(t, sp.LastMessageID)
	assert.Equal(t, msg.ID, *sp.LastMessageID)
}

func TestCreateAttachmentNotice(t *testing.T) {
	f := newFixture(t, models.VisibilityPublic)
	f.space.Name = "A very long collab name that keeps going"
	require.NoError(t, f.st.UpdateSpace(context.Background(), f.space))

	_, err := f.svc.Create(context.Background(), f.bob.ID, CreateInput{
		SpaceID:     f.space.ID,
		Attachments: []models.Attachment{{FileName: "a.png", Type: models.AttachmentImage}},
	})
	require.NoError(t, err)
	f.flush(t)

	recs := f.st.Notifications(f.carol.ID)
	require.Len(t, recs, 1)
	assert.Equal(t, `Bob Stone sent a attachment in "A very long collab name t..."`, recs[0].Body)
}

func TestCreateRejects(t *testing.T) {
	f := newFixture(t, models.VisibilityPublic)
	ctx := context.Background()
	outsider := uuid.New()

	tests := []struct {
		name   string
		author uuid.UUID
		in     CreateInput
		want   error
	}{
		{"empty", f.bob.ID, CreateInput{SpaceID: f.space.ID, Content: "  "}, apperr.ErrValidation},
		{"bad attachment", f.bob.ID, CreateInput{SpaceID: f.space.ID, Attachments: []models.Attachment{{FileName: "x", Type: "pdf"}}}, apperr.ErrValidation},
		{"missing space", f.bob.ID, CreateInput{SpaceID: uuid.New(), Content: "hi"}, apperr.ErrNotFound},
		{"non member", outsider, CreateInput{SpaceID: f.space.ID, Content: "hi"}, apperr.ErrForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			writes := f.st.Writes()
			_, err := f.svc.Create(ctx, tt.author, tt.in)
			assert.ErrorIs(t, err, tt.want)
			assert.Equal(t, writes, f.st.Writes())
		})
	}
	assert.Empty(t, f.out.rooms)
}

func TestCreateAfterLeaveIsForbidden(t *testing.T) {
	f := newFixture(t, models.VisibilityPublic)
	ctx := context.Background()
	require.NoError(t, f.lc.Leave(ctx, f.bob.ID, f.space.ID))

	_, err := f.svc.Create(ctx, f.bob.ID, CreateInput{SpaceID: f.space.ID, Content: "hi"})
	assert.ErrorIs(t, err, apperr.ErrForbidden)
}

func TestCreateInDeletedSpace(t *testing.T) {
	f := newFixture(t, models.VisibilityPublic)
	require.NoError(t, f.st.MarkSpaceDeleted(context.Background(), f.space.ID))

	_, err := f.svc.Create(context.Background(), f.bob.ID, CreateInput{SpaceID: f.space.ID, Content: "hi"})
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestListCutoffForPastParticipant(t *testing.T) {
	f := newFixture(t, models.VisibilityPrivate)
	ctx := context.Background()

	first := f.post(t, f.owner.ID, "one")
	second := f.post(t, f.owner.ID, "two")
	require.NoError(t, f.lc.Leave(ctx, f.bob.ID, f.space.ID))
	f.post(t, f.owner.ID, "three")

	page, err := f.svc.List(ctx, f.bob.ID, f.space.ID, 1, 10)
	require.NoError(t, err)
	require.Len(t, page.Messages, 2)
	assert.Equal(t, second.ID, page.Messages[0].ID)
	assert.Equal(t, first.ID, page.Messages[1].ID)

	page, err = f.svc.List(ctx, f.carol.ID, f.space.ID, 1, 2)
	require.NoError(t, err)
	assert.Len(t, page.Messages, 2)
	assert.Equal(t, 2, page.TotalPages)
}

func TestListAccess(t *testing.T) {
	ctx := context.Background()

	private := newFixture(t, models.VisibilityPrivate)
	_, err := private.svc.List(ctx, uuid.New(), private.space.ID, 1, 10)
	assert.ErrorIs(t, err, apperr.ErrForbidden)

	public := newFixture(t, models.VisibilityPublic)
	public.post(t, public.owner.ID, "hi")
	page, err := public.svc.List(ctx, uuid.New(), public.space.ID, 1, 10)
	require.NoError(t, err)
	assert.Len(t, page.Messages, 1)

	_, err = public.svc.List(ctx, public.bob.ID, uuid.New(), 1, 10)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestDelete(t *testing.T) {
	f := newFixture(t, models.VisibilityPublic)
	ctx := context.Background()

	byBob := f.post(t, f.bob.ID, "bob")
	assert.ErrorIs(t, f.svc.Delete(ctx, f.carol.ID, byBob.ID), apperr.ErrForbidden)
	require.NoError(t, f.svc.Delete(ctx, f.owner.ID, byBob.ID))

	byCarol := f.post(t, f.carol.ID, "carol")
	require.NoError(t, f.svc.Delete(ctx, f.carol.ID, byCarol.ID))
	assert.ErrorIs(t, f.svc.Delete(ctx, f.carol.ID, byCarol.ID), apperr.ErrNotFound)
}

func TestUnreadLifecycle(t *testing.T) {
	f := newFixture(t, models.VisibilityPublic)
	ctx := context.Background()

	f.post(t, f.owner.ID, "one")
	f.post(t, f.owner.ID, "two")

	n, err := f.svc.UnreadCount(ctx, f.bob.ID, f.space.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	n, err = f.svc.UnreadCount(ctx, f.owner.ID, f.space.ID)
	require.NoError(t, err)
	assert.Zero(t, n)

	marked, err := f.svc.MarkAllRead(ctx, f.bob.ID, f.space.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), marked)
	n, err = f.svc.UnreadCount(ctx, f.bob.ID, f.space.ID)
	require.NoError(t, err)
	assert.Zero(t, n)
}
