package transcription

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/sbi-steve/backend/internal/session"
	"github.com/sbi-steve/backend/pkg/queue"
)

// Enqueuer schedules transcription jobs.
type Enqueuer interface {
	EnqueueTranscription(ctx context.Context, payload queue.TranscriptionPayload) (string, error)
}

// QueueTranscriber hands finished meetings to the worker through Redis.
type QueueTranscriber struct {
	queue    Enqueuer
	notifier session.Notifier
	logger   *zap.Logger
}

// NewQueueTranscriber creates a transcriber that enqueues jobs. notifier may be nil.
func NewQueueTranscriber(q Enqueuer, notifier session.Notifier, logger *zap.Logger) *QueueTranscriber {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &QueueTranscriber{queue: q, notifier: notifier, logger: logger}
}

// Transcribe implements session.Transcriber.
func (t *QueueTranscriber) Transcribe(ctx context.Context, req session.TranscriptionRequest) error {
	if len(req.Meeting.Recordings) == 0 {
		return fmt.Errorf("meeting %s has no recordings", req.Meeting.ID)
	}
	jobID, err := t.queue.EnqueueTranscription(ctx, queue.TranscriptionPayload{
		MeetingID: req.Meeting.ID,
		GuildID:   req.Target.TenantID.String(),
		ChannelID: req.Target.ChannelID,
	})
	if err != nil {
		return fmt.Errorf("enqueue transcription: %w", err)
	}
	t.logger.Info("transcription queued", zap.String("job_id", jobID), zap.String("meeting_id", req.Meeting.ID.String()))
	if t.notifier != nil {
		if _, err := t.notifier.Publish(ctx, req.Target, session.TranscriptionStartedView(req.Meeting.ID)); err != nil {
			t.logger.Warn("publish transcription queued failed", zap.Error(err))
		}
	}
	return nil
}
