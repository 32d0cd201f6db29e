package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/collabspace/backend/internal/presence"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // allow all origins in dev; restrict in production
	},
}

// TokenValidator resolves a bearer token to the caller's user id.
type TokenValidator func(token string) (uuid.UUID, error)

// Client is one WebSocket connection. UserID comes from the connect token;
// the connection only counts as the user's live connection after register.
type Client struct {
	ID     presence.ConnID
	UserID uuid.UUID
	hub    *Hub
	conn   *websocket.Conn
	send   chan WSMessage
	done   chan struct{}
	logger *zap.Logger
}

// ServeWs handles the WebSocket upgrade and runs the client loop.
func ServeWs(hub *Hub, logger *zap.Logger, validate TokenValidator) gin.HandlerFunc {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(c *gin.Context) {
		token := c.Query("token")
		if token == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "token required"})
			return
		}
		userID, err := validate(token)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			logger.Warn("websocket upgrade failed", zap.Error(err))
			return
		}

		client := &Client{
			ID:     presence.ConnID(uuid.New().String()),
			UserID: userID,
			hub:    hub,
			conn:   conn,
			send:   make(chan WSMessage, hub.sendBuffer),
			done:   make(chan struct{}),
			logger: logger,
		}
		hub.attach(client)
		go client.writePump()
		client.readPump(c.Request.Context())
	}
}

func (c *Client) reply(ev Event) {
	msg, err := Encode(ev)
	if err != nil {
		return
	}
	c.hub.enqueue(c, msg)
}

func (c *Client) fail(op, message string) {
	c.reply(ErrorPayload{Op: op, Message: message})
}

func (c *Client) readPump(ctx context.Context) {
	defer func() {
		c.hub.detach(c)
		close(c.done)
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(65536)
	_ = c.conn.SetReadDeadline(time.Now().Add(PongWait * time.Second))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(PongWait * time.Second))
		return nil
	})

	for {
		var msg WSMessage
		if err := c.conn.ReadJSON(&msg); err != nil {
			break
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(PongWait * time.Second))
		c.handle(ctx, msg)
	}
}

func (c *Client) handle(ctx context.Context, msg WSMessage) {
	switch msg.Event {
	case OpRegister:
		var req registerRequest
		_ = json.Unmarshal(msg.Data, &req)
		if req.UserID != "" && req.UserID != c.UserID.String() {
			c.fail(msg.Event, "userId does not match token")
			return
		}
		c.hub.register(c)
	case OpJoinRoom:
		room, ok := c.room(msg)
		if !ok {
			return
		}
		if err := c.hub.joinRoom(ctx, c, room); err != nil {
			c.fail(msg.Event, err.Error())
		}
	case OpLeaveRoom:
		if room, ok := c.room(msg); ok {
			c.hub.leaveRoom(c, room)
		}
	case OpSendMessage:
		var req sendMessageRequest
		if err := json.Unmarshal(msg.Data, &req); err != nil || req.Room == "" {
			c.fail(msg.Event, "room required")
			return
		}
		if !c.hub.presence.Rooms.In(c.ID, req.Room) {
			c.fail(msg.Event, "join the room first")
			return
		}
		c.hub.BroadcastToRoom(req.Room, RelayedMessagePayload{Message: req.Message, SenderID: c.UserID}, c.ID)
	case OpPing:
		c.reply(PongPayload{ID: string(c.ID)})
	default:
		c.fail(msg.Event, "unknown operation")
	}
}

// room accepts {"room": "..."} or a bare JSON string.
func (c *Client) room(msg WSMessage) (string, bool) {
	var req roomRequest
	if err := json.Unmarshal(msg.Data, &req); err != nil || req.Room == "" {
		var bare string
		if json.Unmarshal(msg.Data, &bare) != nil || bare == "" {
			c.fail(msg.Event, "room required")
			return "", false
		}
		return bare, true
	}
	return req.Room, true
}

func (c *Client) writePump() {
	ticker := time.NewTicker(PingInterval * time.Second)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case <-c.done:
			_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		case msg := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteJSON(msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
