package discord

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/sbi-steve/backend/internal/session"
)

func TestVoiceConnect(t *testing.T) {
	link := newFakeLink("g1")
	v := &Voice{
		join:      func(g, c string) (*voiceConn, error) { return link.conn, nil },
		keepalive: 5 * time.Millisecond,
		logger:    zaptest.NewLogger(t),
	}

	conn, err := v.Connect(context.Background(), "g1", "voice-1")
	require.NoError(t, err)
	assert.Equal(t, "g1", conn.GuildID())
	assert.Equal(t, "voice-1", conn.ChannelID())

	select {
	case frame := <-link.send:
		assert.Equal(t, silenceFrame, frame)
	case <-time.After(time.Second):
		t.Fatal("no keepalive frame sent")
	}

	require.NoError(t, v.Disconnect(conn))
	require.NoError(t, v.Disconnect(conn))
	assert.Equal(t, 1, link.discs)
}

func TestVoiceConnectError(t *testing.T) {
	v := &Voice{
		join:   func(g, c string) (*voiceConn, error) { return nil, errors.New("no permission") },
		logger: zaptest.NewLogger(t),
	}
	_, err := v.Connect(context.Background(), "g1", "voice-1")
	require.ErrorIs(t, err, session.ErrConnection)
}

func TestVoiceConnectTimeoutDisconnectsLateJoin(t *testing.T) {
	link := newFakeLink("g1")
	release := make(chan struct{})
	v := &Voice{
		join: func(g, c string) (*voiceConn, error) {
			<-release
			return link.conn, nil
		},
		logger: zaptest.NewLogger(t),
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := v.Connect(ctx, "g1", "voice-1")
	require.ErrorIs(t, err, session.ErrConnectionTimeout)

	close(release)
	require.Eventually(t, func() bool {
		select {
		case <-link.conn.stop:
			return true
		default:
			return false
		}
	}, time.Second, time.Millisecond)
}

func TestVoiceDisconnectForeignConnection(t *testing.T) {
	v := &Voice{logger: zaptest.NewLogger(t)}
	require.Error(t, v.Disconnect(otherConn{}))
}
