package transcription

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sbi-steve/backend/internal/meetings"
	"github.com/sbi-steve/backend/internal/models"
	"github.com/sbi-steve/backend/internal/session"
	"github.com/sbi-steve/backend/pkg/queue"
)

// MeetingRepository loads meetings and stores transcripts.
type MeetingRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Meeting, error)
	SetTranscription(ctx context.Context, id uuid.UUID, transcriptionID, text string) error
}

// Downloader fetches recording objects to local files.
type Downloader interface {
	DownloadToFile(ctx context.Context, key, dst string) (int64, error)
}

// JobQueue is the worker side of the job queue.
type JobQueue interface {
	Dequeue(ctx context.Context) (*queue.Job, error)
	Retry(ctx context.Context, job *queue.Job, cause error) (bool, error)
}

// Processor executes transcription jobs: download every track, mix them,
// recognize the mix and store the text on the meeting.
type Processor struct {
	meetings   MeetingRepository
	blobs      Downloader
	mixer      Mixer
	recognizer Recognizer
	queue      JobQueue
	notifier   session.Notifier
	tempDir    string
	backoff    time.Duration
	logger     *zap.Logger
}

// ProcessorDeps collects the Processor's collaborators. Notifier may be nil.
type ProcessorDeps struct {
	Meetings   MeetingRepository
	Blobs      Downloader
	Mixer      Mixer
	Recognizer Recognizer
	Queue      JobQueue
	Notifier   session.Notifier
	TempDir    string
}

// NewProcessor creates a transcription processor.
func NewProcessor(deps ProcessorDeps, logger *zap.Logger) *Processor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Processor{
		meetings:   deps.Meetings,
		blobs:      deps.Blobs,
		mixer:      deps.Mixer,
		recognizer: deps.Recognizer,
		queue:      deps.Queue,
		notifier:   deps.Notifier,
		tempDir:    deps.TempDir,
		backoff:    queue.RetryBackoff,
		logger:     logger,
	}
}

// Process executes one transcription job.
func (p *Processor) Process(ctx context.Context, job *queue.Job) error {
	payload, err := job.Transcription()
	if err != nil {
		return err
	}
	log := p.logger.With(zap.String("job_id", job.ID), zap.String("meeting_id", payload.MeetingID.String()))

	meeting, err := p.meetings.GetByID(ctx, payload.MeetingID)
	if errors.Is(err, meetings.ErrNotFound) {
		log.Warn("meeting no longer exists, dropping job")
		return nil
	}
	if err != nil {
		return fmt.Errorf("load meeting: %w", err)
	}
	if meeting.HasTranscript() {
		log.Info("meeting already transcribed")
		return nil
	}
	if len(meeting.Recordings) == 0 {
		log.Warn("meeting has no recordings, dropping job")
		return nil
	}

	dir, err := os.MkdirTemp(p.tempDir, "meeting-"+meeting.ID.String()+"-")
	if err != nil {
		return fmt.Errorf("create temp dir: %w", err)
	}
	defer os.RemoveAll(dir)

	tracks := make([]string, 0, len(meeting.Recordings))
	for i, key := range meeting.Recordings {
		dst := filepath.Join(dir, fmt.Sprintf("%02d_%s", i, path.Base(key)))
		n, err := p.blobs.DownloadToFile(ctx, key, dst)
		if err != nil {
			return fmt.Errorf("download track: %w", err)
		}
		log.Debug("track downloaded", zap.String("key", key), zap.Int64("bytes", n))
		tracks = append(tracks, dst)
	}

	combined := filepath.Join(dir, "combined.mp3")
	if err := p.mixer.Mix(ctx, tracks, combined); err != nil {
		return err
	}

	f, err := os.Open(combined)
	if err != nil {
		return fmt.Errorf("open mix: %w", err)
	}
	defer f.Close()

	result, err := p.recognizer.Recognize(ctx, f)
	if err != nil {
		return err
	}
	if err := p.meetings.SetTranscription(ctx, meeting.ID, result.ID, result.Text); err != nil {
		return fmt.Errorf("store transcription: %w", err)
	}

	log.Info("transcription stored", zap.String("transcription_id", result.ID), zap.Int("chars", len(result.Text)))
	p.notify(ctx, payload, session.TranscriptionCompleteView(meeting.ID), log)
	return nil
}

// Run starts the worker loop: dequeue, process, retry on error.
func (p *Processor) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			p.logger.Info("transcription worker stopping")
			return
		default:
		}

		job, err := p.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			p.logger.Warn("dequeue error", zap.Error(err))
			p.sleep(ctx)
			continue
		}
		if job == nil {
			continue
		}
		p.handle(ctx, job)
	}
}

func (p *Processor) handle(ctx context.Context, job *queue.Job) {
	p.logger.Debug("processing job", zap.String("job_id", job.ID), zap.String("type", string(job.Type)), zap.Int("attempt", job.Attempt))
	err := p.Process(ctx, job)
	if err == nil {
		return
	}
	p.logger.Error("job failed", zap.String("job_id", job.ID), zap.Error(err))

	// Retry on a context that survives shutdown so the job is not lost.
	retryCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	dead, reErr := p.queue.Retry(retryCtx, job, err)
	if reErr != nil {
		p.logger.Error("retry enqueue failed", zap.String("job_id", job.ID), zap.Error(reErr))
		return
	}
	if dead {
		if payload, pErr := job.Transcription(); pErr == nil {
			p.notify(retryCtx, payload, session.TranscriptionFailedView(payload.MeetingID, err), p.logger)
		}
		return
	}
	p.sleep(ctx)
}

func (p *Processor) notify(ctx context.Context, payload queue.TranscriptionPayload, v session.View, log *zap.Logger) {
	if p.notifier == nil || payload.ChannelID == "" {
		return
	}
	target := session.Target{TenantID: session.TenantID(payload.GuildID), ChannelID: payload.ChannelID}
	if _, err := p.notifier.Publish(ctx, target, v); err != nil {
		log.Warn("publish transcription result failed", zap.Error(err))
	}
}

func (p *Processor) sleep(ctx context.Context) {
	t := time.NewTimer(p.backoff)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
