package models

import (
	"time"

	"github.com/google/uuid"
)

// Meeting is one recorded voice session in a guild.
type Meeting struct {
	ID              uuid.UUID  `json:"id"`
	GuildID         string     `json:"guild_id"`
	ChannelID       string     `json:"channel_id"`
	StartedAt       time.Time  `json:"started_at"`
	EndedAt         *time.Time `json:"ended_at,omitempty"`
	Participants    []string   `json:"participants"`
	Recordings      []string   `json:"recordings"` // blob keys, one per speaker
	TranscriptionID string     `json:"transcription_id,omitempty"`
	Transcription   string     `json:"transcription,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// AddParticipant appends userID unless already present.
func (m *Meeting) AddParticipant(userID string) {
	for _, p := range m.Participants {
		if p == userID {
			return
		}
	}
	m.Participants = append(m.Participants, userID)
}

// AddRecording appends a blob key unless already present.
func (m *Meeting) AddRecording(key string) {
	for _, r := range m.Recordings {
		if r == key {
			return
		}
	}
	m.Recordings = append(m.Recordings, key)
}

// End sets the end time.
func (m *Meeting) End(at time.Time) {
	m.EndedAt = &at
}

// Duration returns how long the meeting ran; zero while still active.
func (m *Meeting) Duration() time.Duration {
	if m.EndedAt == nil {
		return 0
	}
	return m.EndedAt.Sub(m.StartedAt)
}

// Active reports whether the meeting has started and not ended at now.
func (m *Meeting) Active(now time.Time) bool {
	return !m.StartedAt.After(now) && (m.EndedAt == nil || m.EndedAt.After(now))
}

// HasTranscript reports whether transcription text has been stored.
func (m *Meeting) HasTranscript() bool {
	return m.Transcription != ""
}
