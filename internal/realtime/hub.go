package realtime

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/sbi-steve/backend/internal/session"
)

const (
	// PingInterval and PongWait are used for heartbeat.
	PingInterval = 30
	PongWait     = 60
)

// Events sent to dashboard clients.
const (
	EventHello  = "hello"
	EventStatus = "status"
	EventPong   = "pong"
)

// StatusEvent carries one session view for a guild.
type StatusEvent struct {
	GuildID   string       `json:"guild_id"`
	ChannelID string       `json:"channel_id,omitempty"`
	View      session.View `json:"view"`
	At        time.Time    `json:"at"`
}

// SnapshotFunc returns what a client receives on connect for a guild.
type SnapshotFunc func(guildID string) any

// Hub maintains guild_id -> set of dashboard connections and broadcasts
// session status to them. With Redis configured, events go through pub/sub so
// every instance's clients see every guild.
type Hub struct {
	// guildID -> map[clientID]*Client
	guilds   map[string]map[string]*Client
	subs     map[string]func() // cancel Redis subscription per guild
	mu       sync.RWMutex
	logger   *zap.Logger
	redis    RedisPublisher
	redisSub RedisSubscriber
	snapshot SnapshotFunc
	now      func() time.Time
}

// RedisPublisher publishes guild events for cross-instance broadcast.
type RedisPublisher interface {
	PublishGuildEvent(ctx context.Context, guildID, event string, payload []byte) error
}

// RedisSubscriber subscribes to guild channels and invokes handler for incoming events.
type RedisSubscriber interface {
	SubscribeGuild(guildID string, handler func(event string, payload []byte)) (cancel func(), err error)
}

// NewHub creates a new WebSocket hub. redisPub and redisSub may be nil for a
// single instance.
func NewHub(logger *zap.Logger, redisPub RedisPublisher, redisSub RedisSubscriber) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		guilds:   make(map[string]map[string]*Client),
		subs:     make(map[string]func()),
		logger:   logger,
		redis:    redisPub,
		redisSub: redisSub,
		now:      time.Now,
	}
}

// SetSnapshot sets the function that builds the hello payload.
func (h *Hub) SetSnapshot(fn SnapshotFunc) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.snapshot = fn
}

// Register adds a client to a guild room. Starts the Redis subscription for
// the guild on its first client.
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	if h.guilds[c.GuildID] == nil {
		h.guilds[c.GuildID] = make(map[string]*Client)
		if h.redisSub != nil {
			guildID := c.GuildID
			cancel, err := h.redisSub.SubscribeGuild(guildID, func(event string, payload []byte) {
				h.BroadcastToGuild(guildID, event, json.RawMessage(payload))
			})
			if err != nil {
				h.logger.Warn("subscribe guild events", zap.String("guild_id", guildID), zap.Error(err))
			} else {
				h.subs[guildID] = cancel
			}
		}
	}
	h.guilds[c.GuildID][c.ID] = c
	snapshot := h.snapshot
	h.mu.Unlock()

	if snapshot != nil {
		h.SendToClient(c.GuildID, c.ID, EventHello, snapshot(c.GuildID))
	}
	h.logger.Debug("client joined guild feed", zap.String("client_id", c.ID), zap.String("guild_id", c.GuildID))
}

// Unregister removes a client. Cancels the Redis subscription when the last
// client of a guild leaves.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	if m, ok := h.guilds[c.GuildID]; ok {
		delete(m, c.ID)
		if len(m) == 0 {
			delete(h.guilds, c.GuildID)
			if cancel, ok := h.subs[c.GuildID]; ok {
				cancel()
				delete(h.subs, c.GuildID)
			}
		}
	}
	h.mu.Unlock()
	h.logger.Debug("client left guild feed", zap.String("client_id", c.ID), zap.String("guild_id", c.GuildID))
}

// BroadcastToGuild sends a message to all local clients of a guild.
func (h *Hub) BroadcastToGuild(guildID string, event string, payload any) {
	data, ok := encode(payload)
	if !ok {
		return
	}
	msg := WSMessage{Event: event, Data: data}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, c := range h.guilds[guildID] {
		select {
		case c.send <- msg:
		default:
			// buffer full, skip
		}
	}
}

// SendToClient sends a message to a single client.
func (h *Hub) SendToClient(guildID, clientID string, event string, payload any) {
	data, ok := encode(payload)
	if !ok {
		return
	}
	h.mu.RLock()
	c, found := h.guilds[guildID][clientID]
	h.mu.RUnlock()
	if !found || c == nil {
		return
	}
	select {
	case c.send <- WSMessage{Event: event, Data: data}:
	default:
	}
}

// ClientCount returns the number of connected clients for a guild.
func (h *Hub) ClientCount(guildID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.guilds[guildID])
}

// Publish implements session.Notifier. With Redis the event is only published,
// and the subscriber callback performs the broadcast once for all instances
// including this one.
func (h *Hub) Publish(ctx context.Context, target session.Target, v session.View) (session.MessageRef, error) {
	ev := StatusEvent{GuildID: target.TenantID.String(), ChannelID: target.ChannelID, View: v, At: h.now()}
	ref := session.MessageRef{TenantID: target.TenantID, ChannelID: target.ChannelID}
	if h.redis == nil {
		h.BroadcastToGuild(ev.GuildID, EventStatus, ev)
		return ref, nil
	}
	data, err := json.Marshal(ev)
	if err != nil {
		return ref, err
	}
	return ref, h.redis.PublishGuildEvent(ctx, ev.GuildID, EventStatus, data)
}

// Update implements session.Notifier. Dashboards render the latest status, so
// an update is another status event.
func (h *Hub) Update(ctx context.Context, ref session.MessageRef, v session.View) error {
	_, err := h.Publish(ctx, session.Target{TenantID: ref.TenantID, ChannelID: ref.ChannelID}, v)
	return err
}

func encode(payload any) (json.RawMessage, bool) {
	switch v := payload.(type) {
	case json.RawMessage:
		return v, true
	case []byte:
		return v, true
	default:
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, false
		}
		return data, true
	}
}
