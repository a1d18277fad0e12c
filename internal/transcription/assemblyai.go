package transcription

import (
	"context"
	"errors"
	"fmt"
	"io"

	aai "github.com/AssemblyAI/assemblyai-go-sdk"
)

// Result is a finished transcript.
type Result struct {
	ID   string
	Text string
}

// Recognizer turns audio into text.
type Recognizer interface {
	Recognize(ctx context.Context, audio io.Reader) (Result, error)
}

// AssemblyAI recognizes speech with the AssemblyAI API.
type AssemblyAI struct {
	client *aai.Client
	model  aai.SpeechModel
}

// NewAssemblyAI creates a recognizer. An empty model selects "nano".
func NewAssemblyAI(apiKey, model string) (*AssemblyAI, error) {
	if apiKey == "" {
		return nil, errors.New("assemblyai: api key is required")
	}
	if model == "" {
		model = string(aai.SpeechModelNano)
	}
	return &AssemblyAI{client: aai.NewClient(apiKey), model: aai.SpeechModel(model)}, nil
}

// Recognize uploads audio and waits for the transcript.
func (a *AssemblyAI) Recognize(ctx context.Context, audio io.Reader) (Result, error) {
	tr, err := a.client.Transcripts.TranscribeFromReader(ctx, audio, &aai.TranscriptOptionalParams{
		SpeechModel: a.model,
	})
	if err != nil {
		return Result{}, fmt.Errorf("assemblyai transcribe: %w", err)
	}
	if tr.Status == aai.TranscriptStatusError || aai.ToString(tr.Error) != "" {
		return Result{}, fmt.Errorf("assemblyai transcript %s failed: %s", aai.ToString(tr.ID), aai.ToString(tr.Error))
	}
	return Result{ID: aai.ToString(tr.ID), Text: aai.ToString(tr.Text)}, nil
}
