package realtime

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/collabspace/backend/internal/models"
)

// Server -> client event names.
const (
	EventNewMessage    = "newMessage"
	EventNotification  = "notification"
	EventNotifyMembers = "notifyMembers"
	EventPong          = "pong"
	EventError         = "error"
)

// Client -> server operations.
const (
	OpRegister    = "register"
	OpJoinRoom    = "joinRoom"
	OpLeaveRoom   = "leaveRoom"
	OpSendMessage = "sendMessage"
	OpPing        = "ping"
)

// Notification types carried in NotificationPayload.Type.
const (
	NotificationNewCollab = "newCollab"
)

// WSMessage is the WebSocket message envelope.
type WSMessage struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Event is a server-to-client payload. The set is closed: only types in this
// file implement it.
type Event interface {
	eventName() string
}

// NewMessagePayload is broadcast to a room when a message is created.
type NewMessagePayload struct {
	ID          uuid.UUID           `json:"id"`
	User        uuid.UUID           `json:"user"`
	Collab      uuid.UUID           `json:"collab"`
	Content     string              `json:"content"`
	Attachments []models.Attachment `json:"attachments"`
	CreatedAt   time.Time           `json:"createdAt"`
}

func (NewMessagePayload) eventName() string { return EventNewMessage }

// NewMessageEvent builds the room broadcast for msg.
func NewMessageEvent(msg *models.Message) NewMessagePayload {
	attachments := msg.Attachments
	if attachments == nil {
		attachments = []models.Attachment{}
	}
	return NewMessagePayload{
		ID:          msg.ID,
		User:        msg.UserID,
		Collab:      msg.SpaceID,
		Content:     msg.Content,
		Attachments: attachments,
		CreatedAt:   msg.CreatedAt,
	}
}

// RelayedMessagePayload is a client-originated sendMessage relayed to the
// rest of the room.
type RelayedMessagePayload struct {
	Message  json.RawMessage `json:"message"`
	SenderID uuid.UUID       `json:"senderId"`
}

func (RelayedMessagePayload) eventName() string { return EventNewMessage }

// NotificationPayload is a personal push to one user.
type NotificationPayload struct {
	Type    string             `json:"type"`
	Message string             `json:"message"`
	Collab  *models.SpaceRef   `json:"collab,omitempty"`
	User    models.ActingUser  `json:"user"`
	AddedBy *models.ActingUser `json:"addedBy,omitempty"`
}

func (NotificationPayload) eventName() string { return EventNotification }

// NotifyMembersPayload tells a member who is not viewing the room about a new message.
type NotifyMembersPayload struct {
	Message     string              `json:"message"`
	Content     string              `json:"content"`
	Attachments []models.Attachment `json:"attachments"`
	Collab      models.SpaceRef     `json:"collab"`
	Sender      models.ActingUser   `json:"sender"`
}

func (NotifyMembersPayload) eventName() string { return EventNotifyMembers }

// PongPayload answers ping with the connection id.
type PongPayload struct {
	ID string `json:"id"`
}

func (PongPayload) eventName() string { return EventPong }

// ErrorPayload reports a rejected client operation.
type ErrorPayload struct {
	Op      string `json:"op,omitempty"`
	Message string `json:"message"`
}

func (ErrorPayload) eventName() string { return EventError }

// Name returns the wire name of ev.
func Name(ev Event) string { return ev.eventName() }

// Encode wraps ev in the wire envelope.
func Encode(ev Event) (WSMessage, error) {
	data, err := json.Marshal(ev)
	if err != nil {
		return WSMessage{}, fmt.Errorf("marshal %s: %w", ev.eventName(), err)
	}
	return WSMessage{Event: ev.eventName(), Data: data}, nil
}

// Client -> server payloads.

type registerRequest struct {
	UserID string `json:"userId"`
}

type roomRequest struct {
	Room string `json:"room"`
}

type sendMessageRequest struct {
	Room    string          `json:"room"`
	Message json.RawMessage `json:"message"`
}
