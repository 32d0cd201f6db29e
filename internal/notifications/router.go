// Package notifications routes events to live connections and keeps the
// durable notification record for every personal notification.
package notifications

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/collabspace/backend/internal/models"
	"github.com/collabspace/backend/internal/presence"
	"github.com/collabspace/backend/internal/realtime"
	"github.com/collabspace/backend/internal/store"
)

const (
	defaultAttempts = 3
	defaultBackoff  = 200 * time.Millisecond
)

// Deliverer pushes events to live connections. *realtime.Hub implements it.
type Deliverer interface {
	SendToUser(userID uuid.UUID, ev realtime.Event) bool
	BroadcastToRoom(room string, ev realtime.Event, exclude presence.ConnID)
}

// PresenceView answers who is connected and where. *presence.Presence implements it.
type PresenceView interface {
	IsPresent(user uuid.UUID, room string) bool
	ConnectionFor(user uuid.UUID) (presence.ConnID, bool)
}

// Router fans notifications out. Live pushes happen inline and never block;
// record persistence runs on background goroutines, is retried, and is only
// ever logged on failure.
type Router struct {
	records  store.NotificationQueries
	out      Deliverer
	presence PresenceView
	logger   *zap.Logger
	attempts int
	backoff  time.Duration
	wg       sync.WaitGroup
}

// RouterOption customizes a Router.
type RouterOption func(*Router)

// WithRetry sets the number of persistence attempts and the linear backoff step.
func WithRetry(attempts int, backoff time.Duration) RouterOption {
	return func(r *Router) {
		r.attempts = attempts
		r.backoff = backoff
	}
}

// NewRouter creates a Router.
func NewRouter(records store.NotificationQueries, out Deliverer, p PresenceView, logger *zap.Logger, opts ...RouterOption) *Router {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Router{
		records:  records,
		out:      out,
		presence: p,
		logger:   logger,
		attempts: defaultAttempts,
		backoff:  defaultBackoff,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.attempts < 1 {
		r.attempts = 1
	}
	return r
}

// NotifyUser stores record for userID and pushes ev if the user is connected.
func (r *Router) NotifyUser(ctx context.Context, userID uuid.UUID, record models.Notification, ev realtime.NotificationPayload) {
	record.UserID = userID
	r.persist(ctx, record)
	r.out.SendToUser(userID, ev)
}

// NotifyMembers stores a record for every member except the sender and pushes
// ev to those not currently viewing room.
func (r *Router) NotifyMembers(ctx context.Context, memberIDs []uuid.UUID, senderID uuid.UUID, record models.Notification, ev realtime.NotifyMembersPayload, room string) {
	seen := make(map[uuid.UUID]struct{}, len(memberIDs))
	for _, id := range memberIDs {
		if id == senderID {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}

		rec := record
		rec.UserID = id
		r.persist(ctx, rec)

		if r.presence.IsPresent(id, room) {
			continue
		}
		r.out.SendToUser(id, ev)
	}
}

// BroadcastToRoom sends ev to everyone in room except the exclude connection.
func (r *Router) BroadcastToRoom(room string, ev realtime.Event, exclude presence.ConnID) {
	r.out.BroadcastToRoom(room, ev, exclude)
}

// BroadcastExceptUser sends ev to room, skipping the user's current connection.
func (r *Router) BroadcastExceptUser(room string, ev realtime.Event, userID uuid.UUID) {
	conn, _ := r.presence.ConnectionFor(userID)
	r.out.BroadcastToRoom(room, ev, conn)
}

func (r *Router) persist(ctx context.Context, record models.Notification) {
	ctx = context.WithoutCancel(ctx)
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		var err error
		for attempt := 1; attempt <= r.attempts; attempt++ {
			rec := record
			if err = r.records.InsertNotification(ctx, &rec); err == nil {
				return
			}
			if attempt < r.attempts {
				time.Sleep(time.Duration(attempt) * r.backoff)
			}
		}
		r.logger.Error("notification record dropped",
			zap.String("user_id", record.UserID.String()),
			zap.String("title", record.Title),
			zap.Int("attempts", r.attempts),
			zap.Error(err))
	}()
}

// Flush waits for in-flight persistence or until ctx is done.
func (r *Router) Flush(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
