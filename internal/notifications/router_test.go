package notifications

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/collabspace/backend/internal/models"
	"github.com/collabspace/backend/internal/presence"
	"github.com/collabspace/backend/internal/realtime"
	"github.com/collabspace/backend/internal/store/memstore"
)

type sent struct {
	user uuid.UUID
	name string
}

type broadcast struct {
	room    string
	name    string
	exclude presence.ConnID
}

type fakeDeliverer struct {
	mu         sync.Mutex
	sent       []sent
	broadcasts []broadcast
}

func (d *fakeDeliverer) SendToUser(userID uuid.UUID, ev realtime.Event) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.sent = append(d.sent, sent{user: userID, name: realtime.Name(ev)})
	return true
}

func (d *fakeDeliverer) BroadcastToRoom(room string, ev realtime.Event, exclude presence.ConnID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.broadcasts = append(d.broadcasts, broadcast{room: room, name: realtime.Name(ev), exclude: exclude})
}

func (d *fakeDeliverer) sentTo() []uuid.UUID {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]uuid.UUID, 0, len(d.sent))
	for _, s := range d.sent {
		out = append(out, s.user)
	}
	return out
}

func flush(t *testing.T, r *Router) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, r.Flush(ctx))
}

func TestNotifyMembersSkipsSenderAndPresentMembers(t *testing.T) {
	st := memstore.New()
	p := presence.New()
	out := &fakeDeliverer{}
	r := NewRouter(st, out, p, nil)

	sender, viewing, away, offline := uuid.New(), uuid.New(), uuid.New(), uuid.New()
	room := uuid.New().String()

	p.Users.Register(viewing, "c-viewing")
	p.Rooms.Join("c-viewing", room)
	p.Users.Register(away, "c-away")
	p.Rooms.Join("c-away", "elsewhere")

	record := models.Notification{Title: "New Message", Body: "hi"}
	r.NotifyMembers(context.Background(), []uuid.UUID{sender, viewing, away, offline, away}, sender, record, realtime.NotifyMembersPayload{Message: "hi"}, room)
	flush(t, r)

	assert.ElementsMatch(t, []uuid.UUID{away, offline}, out.sentTo())
	assert.Empty(t, st.Notifications(sender))
	assert.Len(t, st.Notifications(viewing), 1)
	assert.Len(t, st.Notifications(away), 1)
	assert.Len(t, st.Notifications(offline), 1)
	assert.Equal(t, "New Message", st.Notifications(offline)[0].Title)
}

func TestNotifyUserStoresAndPushes(t *testing.T) {
	st := memstore.New()
	out := &fakeDeliverer{}
	r := NewRouter(st, out, presence.New(), nil)

	user := uuid.New()
	r.NotifyUser(context.Background(), user, models.Notification{Title: "New Collab"}, realtime.NotificationPayload{Type: realtime.NotificationNewCollab})
	flush(t, r)

	require.Len(t, st.Notifications(user), 1)
	assert.Equal(t, user, st.Notifications(user)[0].UserID)
	require.Len(t, out.sent, 1)
	assert.Equal(t, realtime.EventNotification, out.sent[0].name)
}

func TestPersistRetriesThenGivesUp(t *testing.T) {
	st := memstore.New()
	st.FailNotifications = errors.New("db down")
	out := &fakeDeliverer{}
	r := NewRouter(st, out, presence.New(), nil, WithRetry(3, time.Millisecond))

	user := uuid.New()
	r.NotifyUser(context.Background(), user, models.Notification{Title: "x"}, realtime.NotificationPayload{})
	flush(t, r)

	assert.Equal(t, 3, st.NotificationAttempts())
	assert.Empty(t, st.Notifications(user))
	assert.Len(t, out.sent, 1, "live push does not depend on persistence")
}

func TestPersistSurvivesCanceledContext(t *testing.T) {
	st := memstore.New()
	r := NewRouter(st, &fakeDeliverer{}, presence.New(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	user := uuid.New()
	r.NotifyUser(ctx, user, models.Notification{Title: "x"}, realtime.NotificationPayload{})
	flush(t, r)

	assert.Len(t, st.Notifications(user), 1)
}

func TestBroadcastExceptUser(t *testing.T) {
	p := presence.New()
	out := &fakeDeliverer{}
	r := NewRouter(memstore.New(), out, p, nil)

	user := uuid.New()
	p.Users.Register(user, "c1")
	r.BroadcastExceptUser("room", realtime.PongPayload{}, user)
	r.BroadcastExceptUser("room", realtime.PongPayload{}, uuid.New())

	require.Len(t, out.broadcasts, 2)
	assert.Equal(t, presence.ConnID("c1"), out.broadcasts[0].exclude)
	assert.Equal(t, presence.ConnID(""), out.broadcasts[1].exclude)
}

func TestFlushHonorsContext(t *testing.T) {
	st := memstore.New()
	st.FailNotifications = errors.New("db down")
	r := NewRouter(st, &fakeDeliverer{}, presence.New(), nil, WithRetry(2, time.Second))
	r.NotifyUser(context.Background(), uuid.New(), models.Notification{}, realtime.NotificationPayload{})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, r.Flush(ctx), context.DeadlineExceeded)
}
