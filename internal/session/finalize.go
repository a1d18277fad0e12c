package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/sbi-steve/backend/internal/models"
)

const blobTimeLayout = "20060102_150405"

// finalize runs once per session, on the goroutine that won the
// Active->Stopping transition. The connection is always released and the
// session always deregistered, whatever the individual steps return.
func (m *Manager) finalize(parent context.Context, s *Session, trigger Trigger) (err error) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(parent), m.cfg.FinalizeTimeout)
	defer cancel()
	ctx, span := m.tracer.Start(ctx, "session.finalize", trace.WithAttributes(
		attribute.String("guild_id", s.tenant.String()),
		attribute.String("trigger", trigger.String()),
	))

	log := m.logger.With(
		zap.String("guild_id", s.tenant.String()),
		zap.String("trigger", trigger.String()),
		zap.String("meeting_id", s.MeetingID()),
	)

	defer func() {
		endSpan(span, err)
		removed := m.registry.Finalize(s)
		m.metrics.sessionFinalized(ctx, trigger, err != nil, removed)
		if err != nil {
			log.Error("recording finalized with errors", zap.Error(err))
			return
		}
		log.Info("recording finalized")
	}()
	defer func() {
		if r := recover(); r != nil {
			err = errors.Join(err, fmt.Errorf("finalize panicked: %v", r))
		}
	}()

	s.timer.Load().Cancel()
	m.markEnded(ctx, s, log)

	target := Target{TenantID: s.tenant, ChannelID: s.textChannelID}
	var errs []error

	buffers, drainErr := m.drain(ctx, s)
	if drainErr != nil {
		errs = append(errs, drainErr)
	}

	var recorded []AudioBuffer
	for _, b := range buffers {
		if b.Size() > 0 && b.SpeakerID != "" {
			recorded = append(recorded, b)
		}
	}

	if len(recorded) == 0 {
		if drainErr != nil {
			m.publish(ctx, target, PersistFailedView(drainErr), log)
		} else {
			m.publish(ctx, target, NoAudioView(trigger, m.cfg.MaxDuration), log)
		}
		if mt := s.meeting.Load(); mt != nil {
			if delErr := m.store.DeleteMeeting(ctx, mt.ID); delErr != nil {
				errs = append(errs, fmt.Errorf("delete empty meeting: %w", delErr))
			}
		}
		return errors.Join(errs...)
	}

	endedAt := m.now()
	meeting, persistErr := m.persist(ctx, s, recorded, endedAt, log)
	if persistErr != nil {
		errs = append(errs, persistErr)
		m.publish(ctx, target, PersistFailedView(persistErr), log)
		return errors.Join(errs...)
	}

	m.publish(ctx, target, CompleteView(meeting.ID, endedAt.Sub(s.startedAt), meeting.Participants, endedAt, trigger, m.cfg.MaxDuration), log)

	if m.ts != nil {
		req := TranscriptionRequest{Meeting: *meeting, Target: target}
		m.goBackground(func(bgCtx context.Context) {
			m.transcribe(bgCtx, req, log)
		})
	}
	return errors.Join(errs...)
}

// markEnded swaps the live status for its ended form. Holding statusMu keeps
// an in-flight reporter tick from overwriting it.
func (m *Manager) markEnded(ctx context.Context, s *Session, log *zap.Logger) {
	s.statusMu.Lock()
	defer s.statusMu.Unlock()
	v := StatusView(s.startedAt, s.voiceChannelID, m.now(), true)
	if s.statusRef == nil {
		ref, err := m.notifier.Publish(ctx, Target{TenantID: s.tenant, ChannelID: s.textChannelID}, v)
		if err != nil {
			log.Warn("publish ended status failed", zap.Error(err))
			return
		}
		s.statusRef = &ref
		return
	}
	if err := m.notifier.Update(ctx, *s.statusRef, v); err != nil {
		log.Warn("update ended status failed", zap.Error(err))
	}
}

// drain stops capture and releases the voice connection. The release runs
// even if the sink panics.
func (m *Manager) drain(ctx context.Context, s *Session) (buffers []AudioBuffer, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("stop capture panicked: %v", r)
		}
		if s.conn == nil {
			return
		}
		if dErr := m.voice.Disconnect(s.conn); dErr != nil {
			err = errors.Join(err, fmt.Errorf("disconnect: %w", dErr))
		}
	}()

	drainCtx, cancel := context.WithTimeout(ctx, m.cfg.DrainTimeout)
	defer cancel()
	buffers, err = m.sink.StopCapture(drainCtx, s.capture)
	if err != nil {
		err = fmt.Errorf("stop capture: %w", err)
	}
	return buffers, err
}

// persist stores every buffer and records the finished meeting. A meeting that
// could not be created at start is created here, and one left with no stored
// recording is deleted.
func (m *Manager) persist(ctx context.Context, s *Session, recorded []AudioBuffer, endedAt time.Time, log *zap.Logger) (*models.Meeting, error) {
	meeting := s.meeting.Load()
	if meeting == nil {
		meeting = &models.Meeting{
			GuildID:   s.tenant.String(),
			ChannelID: s.voiceChannelID,
			StartedAt: s.startedAt,
		}
		if err := m.store.CreateMeeting(ctx, meeting); err != nil {
			return nil, fmt.Errorf("create meeting: %w", err)
		}
		s.meeting.Store(meeting)
	}

	stamp := endedAt.Format(blobTimeLayout)
	var blobErrs []error
	for _, b := range recorded {
		s.addParticipant(b.SpeakerID)
		name := fmt.Sprintf("%s_%s.%s", b.SpeakerID, stamp, b.Encoding)
		key, err := m.store.StoreBlob(ctx, s.tenant.String(), name, contentType(b.Encoding), b.Data)
		if err != nil {
			log.Error("store recording failed", zap.String("speaker_id", b.SpeakerID), zap.Error(err))
			blobErrs = append(blobErrs, fmt.Errorf("store %s: %w", name, err))
			continue
		}
		meeting.AddRecording(key)
	}
	if len(meeting.Recordings) == 0 {
		if err := m.store.DeleteMeeting(ctx, meeting.ID); err != nil {
			blobErrs = append(blobErrs, fmt.Errorf("delete meeting without recordings: %w", err))
		}
		s.meeting.Store(nil)
		return nil, errors.Join(blobErrs...)
	}

	for _, p := range s.Participants() {
		meeting.AddParticipant(p)
	}
	meeting.End(endedAt)
	if err := m.store.UpdateMeeting(ctx, meeting); err != nil {
		return nil, errors.Join(append(blobErrs, fmt.Errorf("update meeting: %w", err))...)
	}
	if len(blobErrs) > 0 {
		log.Warn("some recordings were not stored", zap.Error(errors.Join(blobErrs...)))
	}
	return meeting, nil
}

func (m *Manager) transcribe(ctx context.Context, req TranscriptionRequest, log *zap.Logger) {
	if err := m.ts.Transcribe(ctx, req); err != nil {
		log.Error("transcription failed", zap.Error(err))
		m.publish(ctx, req.Target, TranscriptionFailedView(req.Meeting.ID, err), log)
	}
}

func (m *Manager) publish(ctx context.Context, target Target, v View, log *zap.Logger) {
	if _, err := m.notifier.Publish(ctx, target, v); err != nil {
		log.Warn("publish notification failed", zap.String("title", v.Title), zap.Error(err))
	}
}

func contentType(encoding string) string {
	switch encoding {
	case "ogg":
		return "audio/ogg"
	case "wav":
		return "audio/wav"
	case "mp3":
		return "audio/mpeg"
	default:
		return "application/octet-stream"
	}
}
