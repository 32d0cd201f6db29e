package realtime

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/collabspace/backend/internal/models"
)

func decodeData(t *testing.T, ev Event) (string, map[string]any) {
	t.Helper()
	msg, err := Encode(ev)
	require.NoError(t, err)
	var data map[string]any
	require.NoError(t, json.Unmarshal(msg.Data, &data))
	return msg.Event, data
}

func TestNewMessageWireKeys(t *testing.T) {
	msg := &models.Message{
		ID:        uuid.New(),
		SpaceID:   uuid.New(),
		UserID:    uuid.New(),
		Content:   "hello",
		CreatedAt: time.Now(),
	}
	name, data := decodeData(t, NewMessageEvent(msg))
	assert.Equal(t, "newMessage", name)
	for _, k := range []string{"id", "user", "collab", "content", "attachments"} {
		assert.Contains(t, data, k)
	}
	assert.Equal(t, []any{}, data["attachments"], "attachments encode as an empty list, not null")
}

func TestNotificationWireKeys(t *testing.T) {
	ref := models.SpaceRef{ID: uuid.New(), Name: "Design", Avatar: "a.png"}
	name, data := decodeData(t, NotificationPayload{
		Type:    NotificationNewCollab,
		Message: "added you",
		Collab:  &ref,
		User:    models.ActingUser{ID: uuid.New(), FirstName: "Ada"},
	})
	assert.Equal(t, "notification", name)
	assert.Equal(t, "newCollab", data["type"])
	assert.Contains(t, data, "collab")
	assert.Contains(t, data, "user")
	assert.NotContains(t, data, "addedBy")
}

func TestNotifyMembersWireKeys(t *testing.T) {
	name, data := decodeData(t, NotifyMembersPayload{
		Message: "Ada sent a message",
		Collab:  models.SpaceRef{ID: uuid.New()},
	})
	assert.Equal(t, "notifyMembers", name)
	for _, k := range []string{"message", "content", "attachments", "collab", "sender"} {
		assert.Contains(t, data, k)
	}
	collab := data["collab"].(map[string]any)
	assert.ElementsMatch(t, []string{"id", "name", "avatar"}, keys(collab))
}

func keys(m map[string]any) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}

func TestRedisPayloadIgnoresOwnInstance(t *testing.T) {
	a := &RedisPubSub{instance: "a"}
	b := &RedisPubSub{instance: "b"}
	msg, err := Encode(PongPayload{ID: "x"})
	require.NoError(t, err)

	raw, err := a.encode(msg, "conn-1")
	require.NoError(t, err)

	_, _, ok := a.decode(string(raw))
	assert.False(t, ok, "own messages are dropped")

	got, exclude, ok := b.decode(string(raw))
	require.True(t, ok)
	assert.Equal(t, msg.Event, got.Event)
	assert.JSONEq(t, string(msg.Data), string(got.Data))
	assert.EqualValues(t, "conn-1", exclude)

	_, _, ok = b.decode("not json")
	assert.False(t, ok)
}
