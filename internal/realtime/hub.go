package realtime

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/collabspace/backend/internal/presence"
)

const (
	// PingInterval and PongWait are used for heartbeat, in seconds.
	PingInterval = 30
	PongWait     = 60
	// DefaultSendBuffer is the per-connection outbound queue length.
	DefaultSendBuffer = 256
)

// RoomAuthorizer decides whether a user may join a room.
type RoomAuthorizer func(ctx context.Context, userID uuid.UUID, room string) error

// RoomPublisher forwards a room broadcast to other instances.
type RoomPublisher interface {
	PublishRoom(ctx context.Context, room string, msg WSMessage, exclude presence.ConnID) error
}

// RoomSubscriber delivers broadcasts published by other instances.
type RoomSubscriber interface {
	SubscribeRoom(room string, handler func(msg WSMessage, exclude presence.ConnID)) (cancel func(), err error)
}

// Hub owns the live connections of this process. Room membership and the
// user -> connection mapping live in presence; the hub only adds the send
// channels on top.
type Hub struct {
	mu         sync.RWMutex
	roomMu     sync.Mutex // orders room transitions with their subscription changes
	clients    map[presence.ConnID]*Client
	subs       map[string]func()
	presence   *presence.Presence
	logger     *zap.Logger
	pub        RoomPublisher
	sub        RoomSubscriber
	authorize  RoomAuthorizer
	sendBuffer int
}

// HubOptions configures optional hub behavior.
type HubOptions struct {
	Publisher  RoomPublisher
	Subscriber RoomSubscriber
	Authorize  RoomAuthorizer
	SendBuffer int
}

// NewHub creates a hub backed by p.
func NewHub(p *presence.Presence, logger *zap.Logger, opts HubOptions) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.SendBuffer <= 0 {
		opts.SendBuffer = DefaultSendBuffer
	}
	return &Hub{
		clients:    make(map[presence.ConnID]*Client),
		subs:       make(map[string]func()),
		presence:   p,
		logger:     logger,
		pub:        opts.Publisher,
		sub:        opts.Subscriber,
		authorize:  opts.Authorize,
		sendBuffer: opts.SendBuffer,
	}
}

// Presence returns the presence state the hub maintains.
func (h *Hub) Presence() *presence.Presence { return h.presence }

func (h *Hub) attach(c *Client) {
	h.mu.Lock()
	h.clients[c.ID] = c
	h.mu.Unlock()
	h.logger.Debug("client connected", zap.String("conn_id", string(c.ID)))
}

// detach forgets the connection and drops subscriptions for rooms it emptied.
func (h *Hub) detach(c *Client) {
	h.mu.Lock()
	delete(h.clients, c.ID)
	h.mu.Unlock()

	h.roomMu.Lock()
	for _, room := range h.presence.Disconnect(c.ID) {
		h.unsubscribe(room)
	}
	h.roomMu.Unlock()
	h.logger.Debug("client disconnected", zap.String("conn_id", string(c.ID)))
}

func (h *Hub) register(c *Client) {
	if old, replaced := h.presence.Users.Register(c.UserID, c.ID); replaced {
		h.logger.Debug("user connection replaced",
			zap.String("user_id", c.UserID.String()),
			zap.String("old_conn_id", string(old)),
			zap.String("conn_id", string(c.ID)))
	}
}

// SetAuthorizer sets the room join check after construction, for services
// that themselves depend on the hub.
func (h *Hub) SetAuthorizer(fn RoomAuthorizer) {
	h.mu.Lock()
	h.authorize = fn
	h.mu.Unlock()
}

func (h *Hub) joinRoom(ctx context.Context, c *Client, room string) error {
	h.mu.RLock()
	authorize := h.authorize
	h.mu.RUnlock()
	if authorize != nil {
		if err := authorize(ctx, c.UserID, room); err != nil {
			return err
		}
	}
	h.roomMu.Lock()
	defer h.roomMu.Unlock()
	if first := h.presence.Rooms.Join(c.ID, room); first {
		h.subscribe(room)
	}
	return nil
}

func (h *Hub) leaveRoom(c *Client, room string) {
	h.roomMu.Lock()
	defer h.roomMu.Unlock()
	if emptied := h.presence.Rooms.Leave(c.ID, room); emptied {
		h.unsubscribe(room)
	}
}

func (h *Hub) subscribe(room string) {
	if h.sub == nil {
		return
	}
	cancel, err := h.sub.SubscribeRoom(room, func(msg WSMessage, exclude presence.ConnID) {
		h.broadcastLocal(room, msg, exclude)
	})
	if err != nil {
		h.logger.Warn("room subscribe failed", zap.String("room", room), zap.Error(err))
		return
	}
	h.mu.Lock()
	if prev, ok := h.subs[room]; ok {
		prev()
	}
	h.subs[room] = cancel
	h.mu.Unlock()
}

func (h *Hub) unsubscribe(room string) {
	h.mu.Lock()
	cancel, ok := h.subs[room]
	delete(h.subs, room)
	h.mu.Unlock()
	if ok {
		cancel()
	}
}

func (h *Hub) client(id presence.ConnID) *Client {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.clients[id]
}

// enqueue never blocks; a full buffer drops the message.
func (h *Hub) enqueue(c *Client, msg WSMessage) bool {
	select {
	case c.send <- msg:
		return true
	default:
		h.logger.Warn("send buffer full, dropping event", zap.String("conn_id", string(c.ID)), zap.String("event", msg.Event))
		return false
	}
}

// SendToUser pushes ev to the user's current connection. It reports false
// when the user has no live connection on this instance.
func (h *Hub) SendToUser(userID uuid.UUID, ev Event) bool {
	conn, ok := h.presence.ConnectionFor(userID)
	if !ok {
		return false
	}
	c := h.client(conn)
	if c == nil {
		return false
	}
	msg, err := Encode(ev)
	if err != nil {
		h.logger.Error("encode event failed", zap.Error(err))
		return false
	}
	return h.enqueue(c, msg)
}

// BroadcastToRoom sends ev to every connection in room except exclude, and
// forwards it to other instances when a publisher is configured.
func (h *Hub) BroadcastToRoom(room string, ev Event, exclude presence.ConnID) {
	msg, err := Encode(ev)
	if err != nil {
		h.logger.Error("encode event failed", zap.Error(err))
		return
	}
	h.broadcastLocal(room, msg, exclude)
	if h.pub != nil {
		if err := h.pub.PublishRoom(context.Background(), room, msg, exclude); err != nil {
			h.logger.Warn("room publish failed", zap.String("room", room), zap.Error(err))
		}
	}
}

// BroadcastToRoomExceptUser is BroadcastToRoom excluding the user's current connection.
func (h *Hub) BroadcastToRoomExceptUser(room string, ev Event, userID uuid.UUID) {
	conn, _ := h.presence.ConnectionFor(userID)
	h.BroadcastToRoom(room, ev, conn)
}

func (h *Hub) broadcastLocal(room string, msg WSMessage, exclude presence.ConnID) {
	for _, id := range h.presence.Rooms.Connections(room) {
		if id == exclude {
			continue
		}
		if c := h.client(id); c != nil {
			h.enqueue(c, msg)
		}
	}
}

// ConnectionCount is the number of open connections.
func (h *Hub) ConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close cancels every Redis subscription.
func (h *Hub) Close() {
	h.mu.Lock()
	subs := h.subs
	h.subs = make(map[string]func())
	h.mu.Unlock()
	for _, cancel := range subs {
		cancel()
	}
}
