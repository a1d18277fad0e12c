package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	channelPrefix = "guild:status:"
	eventTTL      = 5 * time.Second
)

// redisPayload is the message published to Redis for cross-instance broadcast.
type redisPayload struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
	At    int64           `json:"at"`
}

// RedisPubSub implements RedisPublisher and RedisSubscriber using Redis pub/sub.
type RedisPubSub struct {
	client *redis.Client
	logger *zap.Logger
}

// NewRedisPubSub creates a Redis pub/sub bridge for guild events.
func NewRedisPubSub(client *redis.Client, logger *zap.Logger) *RedisPubSub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisPubSub{client: client, logger: logger}
}

func guildChannel(guildID string) string { return channelPrefix + guildID }

// PublishGuildEvent publishes an event to the guild's Redis channel.
func (r *RedisPubSub) PublishGuildEvent(ctx context.Context, guildID, event string, payload []byte) error {
	body, err := json.Marshal(redisPayload{Event: event, Data: payload, At: time.Now().Unix()})
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, eventTTL)
	defer cancel()
	if err := r.client.Publish(ctx, guildChannel(guildID), body).Err(); err != nil {
		return fmt.Errorf("publish guild event: %w", err)
	}
	return nil
}

// SubscribeGuild subscribes to a guild's Redis channel and calls handler for
// each message. Returns a cancel function to stop the subscription.
func (r *RedisPubSub) SubscribeGuild(guildID string, handler func(event string, payload []byte)) (cancel func(), err error) {
	ctx, cancelCtx := context.WithCancel(context.Background())
	pubsub := r.client.Subscribe(ctx, guildChannel(guildID))
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
			case msg, ok := <-ch:
				if !ok {
					return
				}
				p, err := decodePayload(msg.Payload)
				if err != nil {
					r.logger.Debug("skip malformed guild event", zap.String("guild_id", guildID), zap.Error(err))
					continue
				}
				handler(p.Event, p.Data)
			}
		}
	}()
	return cancelCtx, nil
}

func decodePayload(raw string) (redisPayload, error) {
	var p redisPayload
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return p, err
	}
	if p.Event == "" {
		return p, fmt.Errorf("missing event name")
	}
	return p, nil
}
