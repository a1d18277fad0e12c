package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/sbi-steve/backend/internal/auth"
	"github.com/sbi-steve/backend/internal/models"
	"github.com/sbi-steve/backend/internal/session"
)

func testClient(hub *Hub, guildID, id string) *Client {
	return &Client{ID: id, GuildID: guildID, hub: hub, send: make(chan WSMessage, 8)}
}

func recv(t *testing.T, c *Client) WSMessage {
	t.Helper()
	select {
	case m := <-c.send:
		return m
	case <-time.After(time.Second):
		t.Fatal("no message")
		return WSMessage{}
	}
}

func TestHubPublishLocal(t *testing.T) {
	hub := NewHub(zaptest.NewLogger(t), nil, nil)
	a := testClient(hub, "g1", "a")
	other := testClient(hub, "g2", "b")
	hub.Register(a)
	hub.Register(other)
	assert.Equal(t, 1, hub.ClientCount("g1"))

	ref, err := hub.Publish(context.Background(), session.Target{TenantID: "g1", ChannelID: "t1"}, session.NotRecordingView())
	require.NoError(t, err)
	assert.Equal(t, session.TenantID("g1"), ref.TenantID)

	msg := recv(t, a)
	assert.Equal(t, EventStatus, msg.Event)
	var ev StatusEvent
	require.NoError(t, json.Unmarshal(msg.Data, &ev))
	assert.Equal(t, "g1", ev.GuildID)
	assert.Equal(t, "Not Recording", ev.View.Title)
	assert.Empty(t, other.send, "other guilds see nothing")

	require.NoError(t, hub.Update(context.Background(), ref, session.AlreadyActiveView()))
	msg = recv(t, a)
	require.NoError(t, json.Unmarshal(msg.Data, &ev))
	assert.Equal(t, "Already Recording", ev.View.Title)

	hub.Unregister(a)
	assert.Equal(t, 0, hub.ClientCount("g1"))
}

func TestHubHelloSnapshot(t *testing.T) {
	hub := NewHub(nil, nil, nil)
	hub.SetSnapshot(func(guildID string) any { return map[string]string{"guild": guildID} })
	c := testClient(hub, "g1", "a")
	hub.Register(c)

	msg := recv(t, c)
	assert.Equal(t, EventHello, msg.Event)
	assert.JSONEq(t, `{"guild":"g1"}`, string(msg.Data))
}

type fakeBroker struct {
	mu        sync.Mutex
	published []string
	handlers  map[string]func(string, []byte)
	cancelled []string
	subErr    error
}

func (b *fakeBroker) PublishGuildEvent(_ context.Context, guildID, event string, payload []byte) error {
	b.mu.Lock()
	b.published = append(b.published, guildID+"/"+event)
	h := b.handlers[guildID]
	b.mu.Unlock()
	if h != nil {
		h(event, payload)
	}
	return nil
}

func (b *fakeBroker) SubscribeGuild(guildID string, handler func(string, []byte)) (func(), error) {
	if b.subErr != nil {
		return nil, b.subErr
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.handlers == nil {
		b.handlers = map[string]func(string, []byte){}
	}
	b.handlers[guildID] = handler
	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		b.cancelled = append(b.cancelled, guildID)
		delete(b.handlers, guildID)
	}, nil
}

func TestHubPublishesThroughRedis(t *testing.T) {
	broker := &fakeBroker{}
	hub := NewHub(zaptest.NewLogger(t), broker, broker)
	a := testClient(hub, "g1", "a")
	b := testClient(hub, "g1", "b")
	hub.Register(a)
	hub.Register(b)

	_, err := hub.Publish(context.Background(), session.Target{TenantID: "g1"}, session.NotRecordingView())
	require.NoError(t, err)
	assert.Equal(t, []string{"g1/status"}, broker.published)

	// Delivered once, via the subscription.
	assert.Equal(t, EventStatus, recv(t, a).Event)
	assert.Equal(t, EventStatus, recv(t, b).Event)
	assert.Empty(t, a.send)

	hub.Unregister(a)
	assert.Empty(t, broker.cancelled)
	hub.Unregister(b)
	assert.Equal(t, []string{"g1"}, broker.cancelled)
}

func TestHubSubscribeFailureStillRegisters(t *testing.T) {
	broker := &fakeBroker{subErr: errors.New("redis down")}
	hub := NewHub(zaptest.NewLogger(t), nil, broker)
	hub.Register(testClient(hub, "g1", "a"))
	assert.Equal(t, 1, hub.ClientCount("g1"))
}

func TestDecodePayload(t *testing.T) {
	p, err := decodePayload(`{"event":"status","data":{"x":1},"at":1}`)
	require.NoError(t, err)
	assert.Equal(t, "status", p.Event)
	assert.JSONEq(t, `{"x":1}`, string(p.Data))

	_, err = decodePayload(`{"data":{}}`)
	require.Error(t, err)
	_, err = decodePayload(`nope`)
	require.Error(t, err)
}

func TestServeWs(t *testing.T) {
	gin.SetMode(gin.TestMode)
	jwtSvc := auth.NewJWTService("secret", 1)
	viewer, err := jwtSvc.Generate("u1", models.RoleViewer, []string{"g1"})
	require.NoError(t, err)

	hub := NewHub(zaptest.NewLogger(t), nil, nil)
	hub.SetSnapshot(func(string) any { return []session.Snapshot{} })
	r := gin.New()
	r.GET("/ws", ServeWs(hub, zaptest.NewLogger(t), jwtSvc.Validate))
	srv := httptest.NewServer(r)
	defer srv.Close()
	base := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"

	_, resp, err := websocket.DefaultDialer.Dial(base+"?guild_id=g2&token="+viewer, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, 403, resp.StatusCode)

	_, resp, err = websocket.DefaultDialer.Dial(base+"?guild_id=g1&token=bad", nil)
	require.Error(t, err)
	assert.Equal(t, 401, resp.StatusCode)

	conn, _, err := websocket.DefaultDialer.Dial(base+"?guild_id=g1&token="+viewer, nil)
	require.NoError(t, err)
	defer conn.Close()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))

	var hello WSMessage
	require.NoError(t, conn.ReadJSON(&hello))
	assert.Equal(t, EventHello, hello.Event)

	_, err = hub.Publish(context.Background(), session.Target{TenantID: "g1"}, session.NotRecordingView())
	require.NoError(t, err)
	var status WSMessage
	require.NoError(t, conn.ReadJSON(&status))
	assert.Equal(t, EventStatus, status.Event)

	require.NoError(t, conn.WriteJSON(WSMessage{Event: "ping"}))
	var pong WSMessage
	require.NoError(t, conn.ReadJSON(&pong))
	assert.Equal(t, EventPong, pong.Event)
}
