package session

import (
	"context"

	"github.com/google/uuid"

	"github.com/sbi-steve/backend/internal/models"
)

// Connection is an open voice connection. A session owns it and releases it once.
type Connection interface {
	GuildID() string
	ChannelID() string
}

// VoiceTransport opens and closes voice connections. Connect must honor the
// ctx deadline and return ErrConnectionTimeout when it expires. Disconnect is
// idempotent.
type VoiceTransport interface {
	Connect(ctx context.Context, guildID, channelID string) (Connection, error)
	Disconnect(conn Connection) error
}

// CaptureRef identifies an in-progress capture started by an AudioSink.
type CaptureRef any

// AudioBuffer is one speaker's recorded audio.
type AudioBuffer struct {
	SpeakerID string
	Data      []byte
	Encoding  string // file extension, e.g. "ogg"
}

// Size returns the number of recorded bytes.
func (b AudioBuffer) Size() int { return len(b.Data) }

// AudioSink records per-speaker audio from a connection. StopCapture blocks
// until capture has drained and may return no buffers.
type AudioSink interface {
	BeginCapture(conn Connection) (CaptureRef, error)
	StopCapture(ctx context.Context, ref CaptureRef) ([]AudioBuffer, error)
}

// MeetingStore persists meeting records and recording blobs.
type MeetingStore interface {
	CreateMeeting(ctx context.Context, m *models.Meeting) error
	UpdateMeeting(ctx context.Context, m *models.Meeting) error
	DeleteMeeting(ctx context.Context, id uuid.UUID) error
	// StoreBlob saves data for guildID under name and returns its key.
	StoreBlob(ctx context.Context, guildID, name, contentType string, data []byte) (string, error)
}

// Target is where a notification is delivered.
type Target struct {
	TenantID  TenantID
	ChannelID string
}

// MessageRef points at a published message so it can be edited.
type MessageRef struct {
	TenantID  TenantID
	ChannelID string
	MessageID string
}

// Notifier delivers user-visible views. Failures are never fatal to callers.
type Notifier interface {
	Publish(ctx context.Context, target Target, v View) (MessageRef, error)
	Update(ctx context.Context, ref MessageRef, v View) error
}

// TranscriptionRequest asks for a finalized meeting to be transcribed.
type TranscriptionRequest struct {
	Meeting models.Meeting
	Target  Target
}

// Transcriber turns a persisted meeting into text. Called off the stop path.
type Transcriber interface {
	Transcribe(ctx context.Context, req TranscriptionRequest) error
}
