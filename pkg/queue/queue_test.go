package queue

import (
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTranscriptionJobEnvelope(t *testing.T) {
	payload := TranscriptionPayload{MeetingID: uuid.New(), GuildID: "g1", ChannelID: "c1"}
	job, err := NewJob(JobTypeTranscription, payload)
	require.NoError(t, err)
	assert.NotEmpty(t, job.ID)
	assert.Zero(t, job.Attempt)

	raw, err := json.Marshal(job)
	require.NoError(t, err)
	decoded, err := DecodeJob(string(raw))
	require.NoError(t, err)

	got, err := decoded.Transcription()
	require.NoError(t, err)
	assert.Equal(t, payload, got)
}

func TestDecodeJobRejectsGarbage(t *testing.T) {
	_, err := DecodeJob("not json")
	require.Error(t, err)

	_, err = DecodeJob(`{"payload":{}}`)
	require.Error(t, err)
}

func TestTranscriptionPayloadValidation(t *testing.T) {
	job, err := NewJob(JobTypeTranscription, TranscriptionPayload{GuildID: "g1"})
	require.NoError(t, err)
	_, err = job.Transcription()
	require.Error(t, err)

	job.Type = "other"
	_, err = job.Transcription()
	require.Error(t, err)
}

func TestJobExhausted(t *testing.T) {
	job := &Job{Attempt: MaxRetries - 1}
	assert.False(t, job.Exhausted())
	job.Attempt++
	assert.True(t, job.Exhausted())
}
