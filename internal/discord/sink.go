package discord

import (
	"bytes"
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/bwmarrin/discordgo"
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v3/pkg/media/oggwriter"
	"go.uber.org/zap"

	"github.com/sbi-steve/backend/internal/session"
)

const (
	opusSampleRate = 48000
	opusChannels   = 2
	encodingOgg    = "ogg"
)

// track is one SSRC's Ogg/Opus stream.
type track struct {
	buf     bytes.Buffer
	w       *oggwriter.OggWriter
	packets int
}

// capture records every speaker on one voice connection.
type capture struct {
	conn   *voiceConn
	mu     sync.Mutex
	users  map[uint32]string
	tracks map[uint32]*track
	// order keeps SSRCs in first-heard order so a speaker's streams concatenate in sequence.
	order  []uint32

	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}
	logger   *zap.Logger
}

// Sink writes received Opus packets into per-speaker Ogg files held in
// memory. It implements session.AudioSink.
type Sink struct {
	logger *zap.Logger
}

// NewSink creates an audio sink.
func NewSink(logger *zap.Logger) *Sink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sink{logger: logger}
}

// BeginCapture starts reading packets from conn.
func (s *Sink) BeginCapture(conn session.Connection) (session.CaptureRef, error) {
	vc, ok := conn.(*voiceConn)
	if !ok {
		return nil, fmt.Errorf("begin capture: unexpected connection type %T", conn)
	}
	if vc.recv == nil {
		return nil, fmt.Errorf("begin capture: connection has no receive channel")
	}
	c := &capture{
		conn:   vc,
		users:  make(map[uint32]string),
		tracks: make(map[uint32]*track),
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
		logger: s.logger.With(zap.String("guild_id", vc.guildID)),
	}
	if vc.onSpeaking != nil {
		vc.onSpeaking(c.setUser)
	}
	go c.run()
	return c, nil
}

// StopCapture stops reading and returns one buffer per identified speaker.
// Audio from SSRCs never mapped to a user is dropped.
func (s *Sink) StopCapture(ctx context.Context, ref session.CaptureRef) ([]session.AudioBuffer, error) {
	c, ok := ref.(*capture)
	if !ok {
		return nil, fmt.Errorf("stop capture: unexpected ref type %T", ref)
	}
	c.stopOnce.Do(func() { close(c.stop) })
	select {
	case <-c.done:
	case <-ctx.Done():
		return nil, fmt.Errorf("stop capture: %w", ctx.Err())
	}
	return c.buffers(), nil
}

func (c *capture) run() {
	defer close(c.done)
	for {
		select {
		case <-c.stop:
			// Flush whatever is already queued.
			for {
				select {
				case p := <-c.conn.recv:
					c.write(p)
				default:
					return
				}
			}
		case p := <-c.conn.recv:
			c.write(p)
		}
	}
}

func (c *capture) setUser(ssrc uint32, userID string) {
	if userID == "" {
		return
	}
	c.mu.Lock()
	c.users[ssrc] = userID
	c.mu.Unlock()
}

func (c *capture) write(p *discordgo.Packet) {
	if p == nil || len(p.Opus) == 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	t, ok := c.tracks[p.SSRC]
	if !ok {
		t = &track{}
		w, err := oggwriter.NewWith(&t.buf, opusSampleRate, opusChannels)
		if err != nil {
			c.logger.Warn("open ogg track", zap.Uint32("ssrc", p.SSRC), zap.Error(err))
			return
		}
		t.w = w
		c.tracks[p.SSRC] = t
		c.order = append(c.order, p.SSRC)
	}
	err := t.w.WriteRTP(&rtp.Packet{
		Header: rtp.Header{
			Version:        2,
			SequenceNumber: p.Sequence,
			Timestamp:      p.Timestamp,
			SSRC:           p.SSRC,
		},
		Payload: p.Opus,
	})
	if err != nil {
		c.logger.Debug("drop opus packet", zap.Uint32("ssrc", p.SSRC), zap.Error(err))
		return
	}
	t.packets++
}

func (c *capture) buffers() []session.AudioBuffer {
	c.mu.Lock()
	defer c.mu.Unlock()

	byUser := make(map[string]*bytes.Buffer)
	for _, ssrc := range c.order {
		t := c.tracks[ssrc]
		if err := t.w.Close(); err != nil {
			c.logger.Warn("close ogg track", zap.Uint32("ssrc", ssrc), zap.Error(err))
		}
		if t.packets == 0 {
			continue
		}
		user, ok := c.users[ssrc]
		if !ok {
			c.logger.Warn("dropping audio from unidentified speaker", zap.Uint32("ssrc", ssrc), zap.Int("packets", t.packets))
			continue
		}
		b, ok := byUser[user]
		if !ok {
			b = &bytes.Buffer{}
			byUser[user] = b
		}
		// Chained Ogg streams are valid, so a speaker who rejoined keeps one file.
		b.Write(t.buf.Bytes())
	}

	out := make([]session.AudioBuffer, 0, len(byUser))
	for user, b := range byUser {
		out = append(out, session.AudioBuffer{SpeakerID: user, Data: b.Bytes(), Encoding: encodingOgg})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SpeakerID < out[j].SpeakerID })
	c.tracks = map[uint32]*track{}
	c.order = nil
	return out
}
