package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.uber.org/zap/zaptest"

	"github.com/sbi-steve/backend/internal/models"
)

type fakeConn struct {
	guildID, channelID string
}

func (c *fakeConn) GuildID() string   { return c.guildID }
func (c *fakeConn) ChannelID() string { return c.channelID }

type fakeVoice struct {
	mu          sync.Mutex
	connectErr  error
	gate        chan struct{} // when set, Connect waits for it or ctx
	connects    int
	disconnects map[*fakeConn]int
}

func newFakeVoice() *fakeVoice {
	return &fakeVoice{disconnects: make(map[*fakeConn]int)}
}

func (v *fakeVoice) Connect(ctx context.Context, guildID, channelID string) (Connection, error) {
	v.mu.Lock()
	v.connects++
	gate, err := v.gate, v.connectErr
	v.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %v", ErrConnectionTimeout, ctx.Err())
		}
	}
	if err != nil {
		return nil, err
	}
	return &fakeConn{guildID: guildID, channelID: channelID}, nil
}

func (v *fakeVoice) Disconnect(conn Connection) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.disconnects[conn.(*fakeConn)]++
	return nil
}

func (v *fakeVoice) connectCount() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.connects
}

func (v *fakeVoice) totalDisconnects() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	n := 0
	for _, c := range v.disconnects {
		n += c
	}
	return n
}

type fakeSink struct {
	mu         sync.Mutex
	beginErr   error
	beginPanic string
	stopErr    error
	panicMsg   string
	buffers  map[string][]AudioBuffer // by guild
	begins   int
	stops    int
}

func newFakeSink() *fakeSink {
	return &fakeSink{buffers: make(map[string][]AudioBuffer)}
}

func (s *fakeSink) BeginCapture(conn Connection) (CaptureRef, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.beginPanic != "" {
		panic(s.beginPanic)
	}
	if s.beginErr != nil {
		return nil, s.beginErr
	}
	s.begins++
	return conn.GuildID(), nil
}

func (s *fakeSink) StopCapture(_ context.Context, ref CaptureRef) ([]AudioBuffer, error) {
	s.mu.Lock()
	s.stops++
	panicMsg, err := s.panicMsg, s.stopErr
	bufs := s.buffers[ref.(string)]
	s.mu.Unlock()
	if panicMsg != "" {
		panic(panicMsg)
	}
	return bufs, err
}

func (s *fakeSink) setBuffers(guildID string, bufs ...AudioBuffer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.buffers[guildID] = bufs
}

func (s *fakeSink) stopCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stops
}

type storedBlob struct {
	guildID, name, contentType string
	size                       int
}

type fakeStore struct {
	mu        sync.Mutex
	createErr error
	updateErr error
	blobErr   error
	meetings  map[uuid.UUID]models.Meeting
	creates   int
	updates   int
	deletes   []uuid.UUID
	blobs     []storedBlob
}

func newFakeStore() *fakeStore {
	return &fakeStore{meetings: make(map[uuid.UUID]models.Meeting)}
}

func (s *fakeStore) CreateMeeting(_ context.Context, m *models.Meeting) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.createErr != nil {
		return s.createErr
	}
	s.creates++
	m.ID = uuid.New()
	s.meetings[m.ID] = *m
	return nil
}

func (s *fakeStore) UpdateMeeting(_ context.Context, m *models.Meeting) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.updates++
	if s.updateErr != nil {
		return s.updateErr
	}
	s.meetings[m.ID] = *m
	return nil
}

func (s *fakeStore) DeleteMeeting(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deletes = append(s.deletes, id)
	delete(s.meetings, id)
	return nil
}

func (s *fakeStore) StoreBlob(_ context.Context, guildID, name, contentType string, data []byte) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.blobErr != nil {
		return "", s.blobErr
	}
	s.blobs = append(s.blobs, storedBlob{guildID: guildID, name: name, contentType: contentType, size: len(data)})
	return "recordings/" + guildID + "/" + name, nil
}

func (s *fakeStore) setCreateErr(err error) {
	s.mu.Lock()
	s.createErr = err
	s.mu.Unlock()
}

func (s *fakeStore) snapshot() (creates, updates int, deletes []uuid.UUID, blobs []storedBlob, meetings []models.Meeting) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range s.meetings {
		meetings = append(meetings, m)
	}
	return s.creates, s.updates, append([]uuid.UUID(nil), s.deletes...), append([]storedBlob(nil), s.blobs...), meetings
}

type notification struct {
	target Target
	ref    MessageRef
	view   View
	update bool
}

type fakeNotifier struct {
	mu         sync.Mutex
	publishErr error
	seq        int
	sent       []notification
}

func (n *fakeNotifier) Publish(_ context.Context, target Target, v View) (MessageRef, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.publishErr != nil {
		return MessageRef{}, n.publishErr
	}
	n.seq++
	ref := MessageRef{TenantID: target.TenantID, ChannelID: target.ChannelID, MessageID: fmt.Sprintf("msg-%d", n.seq)}
	n.sent = append(n.sent, notification{target: target, ref: ref, view: v})
	return ref, nil
}

func (n *fakeNotifier) Update(_ context.Context, ref MessageRef, v View) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, notification{ref: ref, view: v, update: true})
	return nil
}

func (n *fakeNotifier) all() []notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]notification(nil), n.sent...)
}

// titled returns every notification whose view has the given title.
func (n *fakeNotifier) titled(title string) []notification {
	var out []notification
	for _, s := range n.all() {
		if s.view.Title == title {
			out = append(out, s)
		}
	}
	return out
}

type fakeTranscriber struct {
	err   error
	calls chan TranscriptionRequest
}

func newFakeTranscriber(err error) *fakeTranscriber {
	return &fakeTranscriber{err: err, calls: make(chan TranscriptionRequest, 8)}
}

func (t *fakeTranscriber) Transcribe(_ context.Context, req TranscriptionRequest) error {
	t.calls <- req
	return t.err
}

type harness struct {
	voice    *fakeVoice
	sink     *fakeSink
	store    *fakeStore
	notifier *fakeNotifier
	ts       *fakeTranscriber
	spans    *tracetest.SpanRecorder
	metrics  *sdkmetric.ManualReader
	mgr      *Manager
}

func testConfig() Config {
	return Config{
		MaxDuration:     time.Hour,
		StatusInterval:  time.Hour,
		ConnectTimeout:  time.Second,
		DrainTimeout:    time.Second,
		FinalizeTimeout: 5 * time.Second,
	}
}

func newHarness(t *testing.T, mutate func(*Config)) *harness {
	t.Helper()
	cfg := testConfig()
	if mutate != nil {
		mutate(&cfg)
	}
	h := &harness{
		voice:    newFakeVoice(),
		sink:     newFakeSink(),
		store:    newFakeStore(),
		notifier: &fakeNotifier{},
		ts:       newFakeTranscriber(nil),
		spans:    tracetest.NewSpanRecorder(),
		metrics:  sdkmetric.NewManualReader(),
	}
	mgr, err := NewManager(cfg, Deps{
		Voice:          h.voice,
		Sink:           h.sink,
		Store:          h.store,
		Notifier:       h.notifier,
		Transcriber:    h.ts,
		MeterProvider:  sdkmetric.NewMeterProvider(sdkmetric.WithReader(h.metrics)),
		TracerProvider: sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(h.spans)),
	}, zaptest.NewLogger(t))
	require.NoError(t, err)
	h.mgr = mgr
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = mgr.Shutdown(ctx)
	})
	return h
}

func startReq(guild string) StartRequest {
	return StartRequest{
		TenantID:       TenantID(guild),
		VoiceChannelID: "voice-" + guild,
		TextChannelID:  "text-" + guild,
		RequestedBy:    "user-1",
	}
}

func audio(speaker string, n int) AudioBuffer {
	return AudioBuffer{SpeakerID: speaker, Data: make([]byte, n), Encoding: "ogg"}
}

var errBoom = errors.New("boom")
