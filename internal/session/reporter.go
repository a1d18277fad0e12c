package session

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// StatusReporter refreshes each session's live status message on a ticker.
type StatusReporter struct {
	registry *Registry
	notifier Notifier
	interval time.Duration
	now      func() time.Time
	logger   *zap.Logger
	wg       sync.WaitGroup
}

func newStatusReporter(registry *Registry, notifier Notifier, interval time.Duration, now func() time.Time, logger *zap.Logger) *StatusReporter {
	return &StatusReporter{
		registry: registry,
		notifier: notifier,
		interval: interval,
		now:      now,
		logger:   logger,
	}
}

// Track starts refreshing s until it leaves Active, is replaced in the
// registry, or ctx is cancelled.
func (r *StatusReporter) Track(ctx context.Context, s *Session) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		r.run(ctx, s)
	}()
}

// Wait blocks until every tracking goroutine has exited.
func (r *StatusReporter) Wait() { r.wg.Wait() }

func (r *StatusReporter) run(ctx context.Context, s *Session) {
	log := r.logger.With(zap.String("guild_id", s.tenant.String()))
	log.Debug("status reporter started", zap.Duration("interval", r.interval))
	defer log.Debug("status reporter stopped")

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.Done():
			return
		case <-ticker.C:
			if !r.tick(ctx, s, log) {
				return
			}
		}
	}
}

// tick pushes one refresh and reports whether the session is still live.
func (r *StatusReporter) tick(ctx context.Context, s *Session, log *zap.Logger) bool {
	cur, ok := r.registry.Get(s.tenant)
	if !ok || cur != s {
		return false
	}

	s.statusMu.Lock()
	defer s.statusMu.Unlock()
	if s.State() != StateActive {
		return false
	}
	if s.statusRef == nil {
		return true
	}
	if err := r.notifier.Update(ctx, *s.statusRef, StatusView(s.startedAt, s.voiceChannelID, r.now(), false)); err != nil {
		log.Warn("status update failed", zap.Error(err))
	}
	return true
}
