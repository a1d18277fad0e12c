package session

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ViewKind classifies a view so renderers can pick colours and layout.
type ViewKind string

const (
	KindStatus   ViewKind = "status"
	KindSuccess  ViewKind = "success"
	KindWarning  ViewKind = "warning"
	KindError    ViewKind = "error"
	KindProgress ViewKind = "progress"
)

// Field is a named value shown in a view.
type Field struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline"`
}

// View is renderer-neutral notification content.
type View struct {
	Kind        ViewKind  `json:"kind"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	Fields      []Field   `json:"fields,omitempty"`
	Footer      string    `json:"footer,omitempty"`
	Timestamp   time.Time `json:"timestamp,omitempty"`
	// StopControl shows the stop button; StopDisabled greys it out.
	StopControl  bool `json:"stop_control,omitempty"`
	StopDisabled bool `json:"stop_disabled,omitempty"`
}

// StatusView is the live message shown while a session records.
func StatusView(startedAt time.Time, voiceChannelID string, now time.Time, ended bool) View {
	v := View{
		Kind:        KindStatus,
		Title:       "🔴 Recording...",
		Timestamp:   startedAt,
		StopControl: true,
	}
	if ended {
		v.Kind = KindError
		v.Title = "Recording ended."
		v.StopDisabled = true
	}
	unix := startedAt.Unix()
	v.Fields = []Field{
		{Name: "**Started:**", Value: fmt.Sprintf("<t:%d:T> (<t:%d:R>)", unix, unix)},
		{Name: "**Channel:**", Value: fmt.Sprintf("<#%s>", voiceChannelID)},
	}
	if !ended {
		v.Fields = append(v.Fields, Field{Name: "**Elapsed:**", Value: FormatDuration(now.Sub(startedAt))})
	}
	return v
}

// NotInVoiceChannelView rejects a start from a user outside voice.
func NotInVoiceChannelView() View {
	return View{Kind: KindError, Title: "Not in Voice Channel", Description: "You need to be in a voice channel to start recording!"}
}

// AlreadyActiveView rejects a second start in the same guild.
func AlreadyActiveView() View {
	return View{Kind: KindWarning, Title: "Already Recording", Description: "Already recording in this server! Use `/stop` first."}
}

// NotRecordingView rejects a stop when nothing records.
func NotRecordingView() View {
	return View{Kind: KindError, Title: "Not Recording", Description: "Not currently recording in this server."}
}

// ConnectionTimeoutView reports a voice join timeout.
func ConnectionTimeoutView() View {
	return View{Kind: KindError, Title: "Connection Timeout", Description: "Failed to connect to voice channel (timeout)"}
}

// StartFailedView reports any other start failure.
func StartFailedView(err error) View {
	return View{Kind: KindError, Title: "Recording Failed", Description: fmt.Sprintf("Failed to start recording: %v", err)}
}

// StopFailedView reports an error surfaced by a manual stop.
func StopFailedView(err error) View {
	return View{Kind: KindError, Title: "Stop Error", Description: fmt.Sprintf("Error stopping recording: %v", err)}
}

// NoAudioView reports a session that captured nothing.
func NoAudioView(trigger Trigger, maxDuration time.Duration) View {
	return View{
		Kind:        KindWarning,
		Title:       "Recording Complete",
		Description: joinLines(triggerNote(trigger, maxDuration), "Recording finished, but no audio was captured. Make sure users are speaking!"),
	}
}

// CompleteView summarizes a persisted meeting.
func CompleteView(meetingID uuid.UUID, duration time.Duration, participants []string, finishedAt time.Time, trigger Trigger, maxDuration time.Duration) View {
	mentions := make([]string, 0, len(participants))
	for _, p := range participants {
		mentions = append(mentions, fmt.Sprintf("<@%s>", p))
	}
	return View{
		Kind:        KindSuccess,
		Title:       "Recording Complete!",
		Description: triggerNote(trigger, maxDuration),
		Fields: []Field{
			{Name: "Meeting ID", Value: fmt.Sprintf("`%s`", meetingID), Inline: true},
			{Name: "Duration", Value: FormatDuration(duration), Inline: true},
			{Name: "Recorded Users", Value: strings.Join(mentions, ", ")},
		},
		Footer: "Recording finished at " + finishedAt.Format("2006-01-02 15:04:05"),
	}
}

// PersistFailedView reports audio that could not be saved.
func PersistFailedView(err error) View {
	return View{
		Kind:        KindError,
		Title:       "Recording Error",
		Description: fmt.Sprintf("Recording finished, but there was an error processing the audio: %v", err),
	}
}

// TranscriptionStartedView acknowledges a queued transcription.
func TranscriptionStartedView(meetingID uuid.UUID) View {
	return View{Kind: KindProgress, Title: "Transcribing...", Description: fmt.Sprintf("Transcription for meeting `%s` has been queued.", meetingID)}
}

// TranscriptionCompleteView reports a saved transcript.
func TranscriptionCompleteView(meetingID uuid.UUID) View {
	return View{
		Kind:        KindSuccess,
		Title:       "Transcription success!",
		Description: fmt.Sprintf("A copy of the transcription has been saved successfully. Use `/transcript %s` to view it.", meetingID),
	}
}

// TranscriptionFailedView reports a transcription that could not be produced.
func TranscriptionFailedView(meetingID uuid.UUID, err error) View {
	return View{
		Kind:        KindError,
		Title:       "Transcription Failed",
		Description: fmt.Sprintf("Could not transcribe meeting `%s`: %v", meetingID, err),
	}
}

func triggerNote(trigger Trigger, maxDuration time.Duration) string {
	switch trigger {
	case TriggerTimeout:
		return fmt.Sprintf("Recording automatically stopped after %d minutes (max duration reached).", int(maxDuration.Minutes()))
	case TriggerExternalDisconnect:
		return "The voice connection was lost, so the recording was stopped."
	case TriggerShutdown:
		return "The bot is shutting down, so the recording was stopped."
	default:
		return ""
	}
}

// FormatDuration renders d as H:MM:SS.
func FormatDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	d = d.Truncate(time.Second)
	h := int(d / time.Hour)
	m := int(d/time.Minute) % 60
	s := int(d/time.Second) % 60
	return fmt.Sprintf("%d:%02d:%02d", h, m, s)
}

func joinLines(lines ...string) string {
	out := make([]string, 0, len(lines))
	for _, l := range lines {
		if l != "" {
			out = append(out, l)
		}
	}
	return strings.Join(out, "\n")
}
