package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/collabspace/backend/internal/presence"
)

const (
	channelPrefix  = "collab:"
	publishTimeout = 5 * time.Second
)

// redisPayload is the message published to Redis for cross-instance broadcast.
type redisPayload struct {
	Origin  string          `json:"origin"`
	Exclude string          `json:"exclude,omitempty"`
	Event   string          `json:"event"`
	Data    json.RawMessage `json:"data"`
	At      int64           `json:"at"`
}

// RedisPubSub bridges room broadcasts between instances. Each instance tags
// what it publishes and ignores its own messages on the way back.
type RedisPubSub struct {
	client   *redis.Client
	logger   *zap.Logger
	instance string
}

// NewRedisPubSub creates a Redis pub/sub bridge for room events.
func NewRedisPubSub(client *redis.Client, logger *zap.Logger) *RedisPubSub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisPubSub{client: client, logger: logger, instance: uuid.New().String()}
}

func roomChannel(room string) string { return channelPrefix + room }

func (r *RedisPubSub) encode(msg WSMessage, exclude presence.ConnID) ([]byte, error) {
	return json.Marshal(redisPayload{
		Origin:  r.instance,
		Exclude: string(exclude),
		Event:   msg.Event,
		Data:    msg.Data,
		At:      time.Now().Unix(),
	})
}

// decode returns ok=false for malformed payloads and for this instance's own messages.
func (r *RedisPubSub) decode(raw string) (WSMessage, presence.ConnID, bool) {
	var p redisPayload
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return WSMessage{}, "", false
	}
	if p.Origin == r.instance {
		return WSMessage{}, "", false
	}
	return WSMessage{Event: p.Event, Data: p.Data}, presence.ConnID(p.Exclude), true
}

// PublishRoom publishes msg on the room's channel.
func (r *RedisPubSub) PublishRoom(ctx context.Context, room string, msg WSMessage, exclude presence.ConnID) error {
	body, err := r.encode(msg, exclude)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()
	return r.client.Publish(ctx, roomChannel(room), body).Err()
}

// SubscribeRoom subscribes to a room's channel and calls handler for every
// message another instance publishes. The returned cancel stops it.
func (r *RedisPubSub) SubscribeRoom(room string, handler func(msg WSMessage, exclude presence.ConnID)) (cancel func(), err error) {
	ctx, cancelCtx := context.WithCancel(context.Background())
	pubsub := r.client.Subscribe(ctx, roomChannel(room))
	if _, err = pubsub.Receive(ctx); err != nil {
		cancelCtx()
		_ = pubsub.Close()
		return nil, fmt.Errorf("subscribe: %w", err)
	}
	ch := pubsub.Channel()
	go func() {
		defer pubsub.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case m, ok := <-ch:
				if !ok {
					return
				}
				msg, exclude, ok := r.decode(m.Payload)
				if !ok {
					continue
				}
				handler(msg, exclude)
			}
		}
	}()
	return cancelCtx, nil
}
