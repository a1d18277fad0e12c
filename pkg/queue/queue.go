package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	// QueueTranscriptions is the Redis list key for transcription jobs.
	QueueTranscriptions = "worker:transcriptions"
	// QueueDLQ is the dead-letter queue for failed jobs after retries.
	QueueDLQ = "worker:dlq"
	// MaxRetries is the number of times to retry a job before moving to DLQ.
	MaxRetries = 3
	// RetryBackoff is the delay between retries.
	RetryBackoff = 10 * time.Second
)

// JobType identifies the job kind.
type JobType string

const (
	JobTypeTranscription JobType = "transcription"
)

// TranscriptionPayload is the payload for transcription jobs.
type TranscriptionPayload struct {
	MeetingID uuid.UUID `json:"meeting_id"`
	GuildID   string    `json:"guild_id"`
	ChannelID string    `json:"channel_id"` // text channel for result notifications
}

// Job is a generic job envelope.
type Job struct {
	ID        string          `json:"id"`
	Type      JobType         `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	Attempt   int             `json:"attempt"`
	LastError string          `json:"last_error,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

// Exhausted reports whether the job has used up its retries.
func (j *Job) Exhausted() bool { return j.Attempt >= MaxRetries }

// Transcription decodes the job's transcription payload.
func (j *Job) Transcription() (TranscriptionPayload, error) {
	var p TranscriptionPayload
	if j.Type != JobTypeTranscription {
		return p, fmt.Errorf("job %s has type %q, want %q", j.ID, j.Type, JobTypeTranscription)
	}
	if err := json.Unmarshal(j.Payload, &p); err != nil {
		return p, fmt.Errorf("unmarshal transcription payload: %w", err)
	}
	if p.MeetingID == uuid.Nil {
		return p, errors.New("transcription payload missing meeting_id")
	}
	return p, nil
}

// NewJob wraps payload in an envelope with a fresh ID.
func NewJob(t JobType, payload any) (*Job, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	return &Job{
		ID:        uuid.New().String(),
		Type:      t,
		Payload:   body,
		CreatedAt: time.Now().UTC(),
	}, nil
}

// DecodeJob parses a raw list entry.
func DecodeJob(raw string) (*Job, error) {
	var job Job
	if err := json.Unmarshal([]byte(raw), &job); err != nil {
		return nil, fmt.Errorf("unmarshal job: %w", err)
	}
	if job.ID == "" || job.Type == "" {
		return nil, errors.New("job missing id or type")
	}
	return &job, nil
}

// Queue enqueues and dequeues jobs via Redis.
type Queue struct {
	client *redis.Client
	logger *zap.Logger
}

// NewQueue creates a new Redis-backed job queue.
func NewQueue(client *redis.Client, logger *zap.Logger) *Queue {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Queue{client: client, logger: logger}
}

// EnqueueTranscription enqueues a transcription job and returns its ID.
func (q *Queue) EnqueueTranscription(ctx context.Context, payload TranscriptionPayload) (string, error) {
	job, err := NewJob(JobTypeTranscription, payload)
	if err != nil {
		return "", err
	}
	if err := q.push(ctx, QueueTranscriptions, job); err != nil {
		return "", err
	}
	q.logger.Debug("enqueued transcription job", zap.String("job_id", job.ID), zap.String("meeting_id", payload.MeetingID.String()))
	return job.ID, nil
}

func (q *Queue) push(ctx context.Context, key string, job *Job) error {
	raw, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}
	if err := q.client.RPush(ctx, key, raw).Err(); err != nil {
		return fmt.Errorf("rpush %s: %w", key, err)
	}
	return nil
}

// Dequeue blocks until a job is available or ctx is done. A nil job with a
// nil error means the entry was unreadable and has been dropped.
func (q *Queue) Dequeue(ctx context.Context) (*Job, error) {
	result, err := q.client.BLPop(ctx, 0, QueueTranscriptions).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}
	if len(result) < 2 {
		return nil, nil
	}
	job, err := DecodeJob(result[1])
	if err != nil {
		q.logger.Warn("invalid job payload", zap.String("raw", result[1]), zap.Error(err))
		return nil, nil
	}
	return job, nil
}

// Retry re-enqueues a job with incremented attempt. Once MaxRetries is
// reached the job goes to the DLQ instead and deadLettered is true.
func (q *Queue) Retry(ctx context.Context, job *Job, cause error) (deadLettered bool, err error) {
	job.Attempt++
	if cause != nil {
		job.LastError = cause.Error()
	}
	if job.Exhausted() {
		if err := q.push(ctx, QueueDLQ, job); err != nil {
			q.logger.Error("dlq push failed", zap.Error(err), zap.String("job_id", job.ID))
			return false, err
		}
		q.logger.Warn("job moved to DLQ", zap.String("job_id", job.ID), zap.Int("attempt", job.Attempt))
		return true, nil
	}
	if err := q.push(ctx, QueueTranscriptions, job); err != nil {
		return false, err
	}
	q.logger.Info("job retried", zap.String("job_id", job.ID), zap.Int("attempt", job.Attempt))
	return false, nil
}

// Pending returns the number of waiting transcription jobs.
func (q *Queue) Pending(ctx context.Context) (int64, error) {
	return q.client.LLen(ctx, QueueTranscriptions).Result()
}

// DeadLetters returns up to limit jobs from the DLQ, oldest first.
func (q *Queue) DeadLetters(ctx context.Context, limit int64) ([]*Job, error) {
	if limit <= 0 {
		limit = 50
	}
	raws, err := q.client.LRange(ctx, QueueDLQ, 0, limit-1).Result()
	if err != nil {
		return nil, fmt.Errorf("lrange dlq: %w", err)
	}
	jobs := make([]*Job, 0, len(raws))
	for _, raw := range raws {
		job, err := DecodeJob(raw)
		if err != nil {
			q.logger.Warn("skipping unreadable dlq entry", zap.Error(err))
			continue
		}
		jobs = append(jobs, job)
	}
	return jobs, nil
}

// Requeue moves every DLQ job back to the transcription queue with a fresh
// attempt count and returns how many were moved.
func (q *Queue) Requeue(ctx context.Context) (int, error) {
	moved := 0
	for {
		raw, err := q.client.LPop(ctx, QueueDLQ).Result()
		if errors.Is(err, redis.Nil) {
			return moved, nil
		}
		if err != nil {
			return moved, fmt.Errorf("lpop dlq: %w", err)
		}
		job, err := DecodeJob(raw)
		if err != nil {
			q.logger.Warn("dropping unreadable dlq entry", zap.Error(err))
			continue
		}
		job.Attempt = 0
		job.LastError = ""
		if err := q.push(ctx, QueueTranscriptions, job); err != nil {
			return moved, err
		}
		moved++
	}
}
