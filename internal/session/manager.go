package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"

	"github.com/sbi-steve/backend/internal/models"
)

// Config holds session lifecycle timings.
type Config struct {
	MaxDuration     time.Duration
	StatusInterval  time.Duration
	ConnectTimeout  time.Duration
	DrainTimeout    time.Duration
	FinalizeTimeout time.Duration
}

func (c Config) validate() error {
	if c.MaxDuration <= 0 || c.StatusInterval <= 0 || c.ConnectTimeout <= 0 || c.DrainTimeout <= 0 || c.FinalizeTimeout <= 0 {
		return fmt.Errorf("session config: all durations must be positive: %+v", c)
	}
	return nil
}

// Deps are the collaborators a Manager drives. Transcriber is optional.
type Deps struct {
	Voice          VoiceTransport
	Sink           AudioSink
	Store          MeetingStore
	Notifier       Notifier
	Transcriber    Transcriber
	MeterProvider  metric.MeterProvider
	TracerProvider trace.TracerProvider
	Now            func() time.Time
}

// StartRequest asks for a recording in a guild.
type StartRequest struct {
	TenantID       TenantID
	VoiceChannelID string // empty when the caller is not in voice
	TextChannelID  string
	RequestedBy    string
}

// Manager owns every guild's recording lifecycle. Manual stops, the max
// duration timer and voice disconnects all converge on RequestStop, which
// finalizes each session exactly once.
type Manager struct {
	cfg      Config
	registry *Registry
	voice    VoiceTransport
	sink     AudioSink
	store    MeetingStore
	notifier Notifier
	ts       Transcriber
	reporter *StatusReporter
	metrics  *metrics
	tracer   trace.Tracer
	now      func() time.Time
	logger   *zap.Logger

	// mu guards closed. Starts and background goroutines are only added
	// while it is false, so Shutdown can wait on both.
	mu     sync.Mutex
	closed bool
	starts sync.WaitGroup
	// bg tracks goroutines that outlive the call that spawned them.
	bg       sync.WaitGroup
	baseCtx  context.Context
	stopBase context.CancelFunc
}

// NewManager creates a lifecycle manager.
func NewManager(cfg Config, deps Deps, logger *zap.Logger) (*Manager, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if deps.Voice == nil || deps.Sink == nil || deps.Store == nil || deps.Notifier == nil {
		return nil, errors.New("session: voice, sink, store and notifier are required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	tp := deps.TracerProvider
	if tp == nil {
		tp = tracenoop.NewTracerProvider()
	}
	baseCtx, cancel := context.WithCancel(context.Background())
	m := &Manager{
		cfg:      cfg,
		registry: NewRegistry(),
		voice:    deps.Voice,
		sink:     deps.Sink,
		store:    deps.Store,
		notifier: deps.Notifier,
		ts:       deps.Transcriber,
		metrics:  newMetrics(deps.MeterProvider),
		tracer:   tp.Tracer(tracerName),
		now:      now,
		logger:   logger,
		baseCtx:  baseCtx,
		stopBase: cancel,
	}
	m.reporter = newStatusReporter(m.registry, deps.Notifier, cfg.StatusInterval, now, logger)
	return m, nil
}

// Config returns the manager's timings.
func (m *Manager) Config() Config { return m.cfg }

// Session returns the tenant's current session.
func (m *Manager) Session(tenant TenantID) (*Session, bool) {
	return m.registry.Get(tenant)
}

// ActiveSessions returns snapshots of every registered session.
func (m *Manager) ActiveSessions() []Snapshot {
	active := m.registry.Active()
	out := make([]Snapshot, 0, len(active))
	for _, s := range active {
		out = append(out, s.Snapshot())
	}
	return out
}

// StartSession joins the requested voice channel and begins recording.
// Nothing is registered unless the connection, capture and timer all succeed.
func (m *Manager) StartSession(ctx context.Context, req StartRequest) (_ *Session, err error) {
	log := m.logger.With(zap.String("guild_id", req.TenantID.String()), zap.String("channel_id", req.VoiceChannelID))
	ctx, span := m.tracer.Start(ctx, "session.start", trace.WithAttributes(
		attribute.String("guild_id", req.TenantID.String()),
		attribute.String("channel_id", req.VoiceChannelID),
	))
	defer func() { endSpan(span, err) }()

	if req.VoiceChannelID == "" {
		return nil, ErrNotInVoiceChannel
	}
	if !m.enterStart() {
		m.metrics.startFailed(ctx, "shutting_down")
		return nil, ErrShuttingDown
	}
	defer m.starts.Done()

	s, err := m.registry.TryRegister(req.TenantID, func() (*Session, error) {
		return m.buildSession(ctx, req, log)
	})
	if err != nil {
		reason := "error"
		switch {
		case errors.Is(err, ErrAlreadyActive):
			reason = "already_active"
		case errors.Is(err, ErrConnectionTimeout):
			reason = "connection_timeout"
		case errors.Is(err, ErrConnection):
			reason = "connection_error"
		}
		m.metrics.startFailed(ctx, reason)
		log.Warn("start recording rejected", zap.Error(err))
		return nil, err
	}
	if s.State() == StateFinalized {
		// The timer fired before registration completed; finalize already ran.
		m.metrics.sessionStarted(ctx, false)
		return s, nil
	}
	m.metrics.sessionStarted(ctx, true)

	ref, err := m.notifier.Publish(ctx, Target{TenantID: s.tenant, ChannelID: s.textChannelID},
		StatusView(s.startedAt, s.voiceChannelID, m.now(), false))
	if err != nil {
		log.Warn("publish status message failed", zap.Error(err))
	} else {
		s.statusMu.Lock()
		if s.State() == StateActive {
			s.statusRef = &ref
			s.statusMu.Unlock()
		} else {
			s.statusMu.Unlock()
			// Finalize raced ahead of us and already posted its own ended view.
			if err := m.notifier.Update(ctx, ref, StatusView(s.startedAt, s.voiceChannelID, m.now(), true)); err != nil {
				log.Warn("mark late status message ended", zap.Error(err))
			}
		}
	}
	m.reporter.Track(m.baseCtx, s)

	log.Info("recording started", zap.String("meeting_id", s.MeetingID()), zap.String("requested_by", req.RequestedBy))
	return s, nil
}

// buildSession runs inside the registry reservation. On any fatal error,
// including a collaborator panic, it releases what it acquired.
func (m *Manager) buildSession(ctx context.Context, req StartRequest, log *zap.Logger) (_ *Session, err error) {
	var (
		conn    Connection
		s       *Session
		capture CaptureRef
		armed   bool
	)
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("start panicked: %v", r)
		}
		if err == nil || conn == nil {
			return
		}
		if capture != nil && !armed {
			m.abortCapture(ctx, capture, log)
		}
		if err := m.voice.Disconnect(conn); err != nil {
			log.Warn("disconnect after failed start", zap.Error(err))
		}
		if s == nil {
			return
		}
		if mt := s.meeting.Load(); mt != nil {
			if err := m.store.DeleteMeeting(context.WithoutCancel(ctx), mt.ID); err != nil {
				log.Warn("delete meeting after failed start", zap.Error(err))
			}
		}
	}()

	connectCtx, cancel := context.WithTimeout(ctx, m.cfg.ConnectTimeout)
	conn, err = m.voice.Connect(connectCtx, req.TenantID.String(), req.VoiceChannelID)
	cancel()
	if err != nil {
		conn = nil
		if errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, ErrConnectionTimeout) {
			err = fmt.Errorf("%w: %v", ErrConnectionTimeout, err)
		}
		if !errors.Is(err, ErrConnectionTimeout) && !errors.Is(err, ErrConnection) {
			err = fmt.Errorf("%w: %v", ErrConnection, err)
		}
		return nil, err
	}

	s = newSession(req, m.now())
	s.conn = conn

	meeting := &models.Meeting{
		GuildID:   req.TenantID.String(),
		ChannelID: req.VoiceChannelID,
		StartedAt: s.startedAt,
	}
	if err := m.store.CreateMeeting(ctx, meeting); err != nil {
		log.Error("create meeting record failed, recording continues", zap.Error(err))
	} else {
		s.meeting.Store(meeting)
	}

	capture, err = m.sink.BeginCapture(conn)
	if err != nil {
		capture = nil
		return nil, fmt.Errorf("begin capture: %w", err)
	}
	s.capture = capture

	timer, err := ArmTimer(m.cfg.MaxDuration, func() {
		m.onTimeout(s)
	})
	if err != nil {
		return nil, fmt.Errorf("arm timer: %w", err)
	}
	armed = true
	s.timer.Store(timer)
	return s, nil
}

// abortCapture stops a capture that never became part of a session.
func (m *Manager) abortCapture(ctx context.Context, capture CaptureRef, log *zap.Logger) {
	defer func() {
		if r := recover(); r != nil {
			log.Warn("stop capture after failed start panicked", zap.Any("panic", r))
		}
	}()
	if _, err := m.sink.StopCapture(ctx, capture); err != nil {
		log.Warn("stop capture after failed start", zap.Error(err))
	}
}

func (m *Manager) onTimeout(s *Session) {
	m.logger.Info("auto-stopping recording",
		zap.String("guild_id", s.tenant.String()),
		zap.Duration("max_duration", m.cfg.MaxDuration))
	if err := m.stop(m.baseCtx, s, TriggerTimeout); err != nil {
		m.logger.Error("timeout stop finished with errors", zap.String("guild_id", s.tenant.String()), zap.Error(err))
	}
}

// RequestStop stops the tenant's session. It is safe to call concurrently
// from every trigger; only the first caller finalizes and later callers
// return nil at once. The session is always deregistered and its connection
// released, even when the returned error is non-nil.
func (m *Manager) RequestStop(ctx context.Context, tenant TenantID, trigger Trigger) error {
	s, ok := m.registry.Get(tenant)
	if !ok {
		if trigger == TriggerManual {
			return ErrNotRecording
		}
		return nil
	}
	return m.stop(ctx, s, trigger)
}

// HandleExternalDisconnect reacts to the platform dropping the bot's voice
// connection for tenant.
func (m *Manager) HandleExternalDisconnect(ctx context.Context, tenant TenantID) error {
	return m.RequestStop(ctx, tenant, TriggerExternalDisconnect)
}

func (m *Manager) stop(ctx context.Context, s *Session, trigger Trigger) error {
	if !s.beginStopping() {
		m.logger.Debug("stop already in progress",
			zap.String("guild_id", s.tenant.String()),
			zap.String("trigger", trigger.String()),
			zap.String("state", s.State().String()))
		return nil
	}
	return m.finalize(ctx, s, trigger)
}

// Shutdown stops every session and waits for background work to finish or
// ctx to expire.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()

	var errs []error
	if err := waitGroup(ctx, &m.starts); err != nil {
		errs = append(errs, fmt.Errorf("waiting for starts in flight: %w", err))
	}
	for _, s := range m.registry.Active() {
		if err := m.stop(ctx, s, TriggerShutdown); err != nil {
			errs = append(errs, fmt.Errorf("guild %s: %w", s.tenant, err))
		}
	}

	if err := waitGroup(ctx, &m.bg); err != nil {
		errs = append(errs, fmt.Errorf("waiting for background work: %w", err))
	}
	m.stopBase()
	m.reporter.Wait()
	return errors.Join(errs...)
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// enterStart registers a start in flight unless Shutdown has begun.
func (m *Manager) enterStart() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return false
	}
	m.starts.Add(1)
	return true
}

func waitGroup(ctx context.Context, wg *sync.WaitGroup) error {
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// goBackground runs fn on a tracked goroutine. Once Shutdown has begun, fn
// runs inline on the caller instead.
func (m *Manager) goBackground(fn func(ctx context.Context)) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		fn(context.WithoutCancel(m.baseCtx))
		return
	}
	m.bg.Add(1)
	m.mu.Unlock()
	go func() {
		defer m.bg.Done()
		fn(m.baseCtx)
	}()
}
