package discord

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"

	"github.com/sbi-steve/backend/internal/session"
)

// silenceFrame is an Opus frame of silence.
var silenceFrame = []byte{0xF8, 0xFF, 0xFE}

// voiceConn is a joined voice channel. It implements session.Connection.
type voiceConn struct {
	guildID   string
	channelID string

	recv       <-chan *discordgo.Packet
	send       chan<- []byte
	onSpeaking func(func(ssrc uint32, userID string))
	disconnect func() error

	stop    chan struct{}
	wg      sync.WaitGroup
	once    sync.Once
	discErr error
}

func (c *voiceConn) GuildID() string   { return c.guildID }
func (c *voiceConn) ChannelID() string { return c.channelID }

// wrapVoiceConnection adapts a discordgo voice connection.
func wrapVoiceConnection(vc *discordgo.VoiceConnection, guildID, channelID string) *voiceConn {
	return &voiceConn{
		guildID:   guildID,
		channelID: channelID,
		recv:      vc.OpusRecv,
		send:      vc.OpusSend,
		onSpeaking: func(fn func(uint32, string)) {
			vc.AddHandler(func(_ *discordgo.VoiceConnection, vs *discordgo.VoiceSpeakingUpdate) {
				fn(uint32(vs.SSRC), vs.UserID)
			})
		},
		disconnect: vc.Disconnect,
		stop:       make(chan struct{}),
	}
}

// keepalive sends a silent frame every interval so the receive socket is not
// dropped while nobody speaks.
func (c *voiceConn) keepalive(interval time.Duration, logger *zap.Logger) {
	if c.send == nil || interval <= 0 {
		return
	}
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-c.stop:
				return
			case <-ticker.C:
				select {
				case c.send <- silenceFrame:
				case <-c.stop:
					return
				default:
					logger.Debug("keepalive frame skipped, send queue full", zap.String("guild_id", c.guildID))
				}
			}
		}
	}()
}

func (c *voiceConn) close() error {
	c.once.Do(func() {
		close(c.stop)
		c.wg.Wait()
		if c.disconnect != nil {
			c.discErr = c.disconnect()
		}
	})
	return c.discErr
}

type joinFunc func(guildID, channelID string) (*voiceConn, error)

// Voice joins and leaves voice channels. It implements session.VoiceTransport.
type Voice struct {
	join      joinFunc
	keepalive time.Duration
	logger    *zap.Logger
}

// NewVoice creates a voice transport over s. A keepalive interval of zero
// disables silent frames.
func NewVoice(s *discordgo.Session, keepalive time.Duration, logger *zap.Logger) *Voice {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Voice{
		join: func(guildID, channelID string) (*voiceConn, error) {
			vc, err := s.ChannelVoiceJoin(guildID, channelID, false, false)
			if err != nil {
				if vc != nil {
					_ = vc.Disconnect()
				}
				return nil, err
			}
			return wrapVoiceConnection(vc, guildID, channelID), nil
		},
		keepalive: keepalive,
		logger:    logger,
	}
}

// Connect joins channelID. discordgo's join is not cancellable, so it runs on
// its own goroutine; a join that completes after ctx expired is disconnected.
func (v *Voice) Connect(ctx context.Context, guildID, channelID string) (session.Connection, error) {
	type result struct {
		conn *voiceConn
		err  error
	}
	ch := make(chan result, 1)
	go func() {
		conn, err := v.join(guildID, channelID)
		ch <- result{conn, err}
	}()

	select {
	case r := <-ch:
		if r.err != nil {
			return nil, fmt.Errorf("%w: %v", session.ErrConnection, r.err)
		}
		r.conn.keepalive(v.keepalive, v.logger)
		v.logger.Info("voice connected", zap.String("guild_id", guildID), zap.String("channel_id", channelID))
		return r.conn, nil
	case <-ctx.Done():
		go func() {
			r := <-ch
			if r.conn != nil {
				if err := r.conn.close(); err != nil {
					v.logger.Warn("disconnect late voice join", zap.String("guild_id", guildID), zap.Error(err))
				}
			}
		}()
		return nil, fmt.Errorf("%w: %v", session.ErrConnectionTimeout, ctx.Err())
	}
}

// Disconnect leaves the voice channel. Repeated calls return the first result.
func (v *Voice) Disconnect(conn session.Connection) error {
	c, ok := conn.(*voiceConn)
	if !ok {
		return fmt.Errorf("disconnect: unexpected connection type %T", conn)
	}
	err := c.close()
	if err != nil {
		return fmt.Errorf("voice disconnect: %w", err)
	}
	v.logger.Info("voice disconnected", zap.String("guild_id", c.guildID))
	return nil
}
