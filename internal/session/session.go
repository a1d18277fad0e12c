package session

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sbi-steve/backend/internal/models"
)

// Session is one tenant's active recording.
type Session struct {
	tenant         TenantID
	voiceChannelID string
	textChannelID  string
	requestedBy    string
	startedAt      time.Time

	conn    Connection
	capture CaptureRef
	timer   atomic.Pointer[Timer]
	meeting atomic.Pointer[models.Meeting] // nil when the record could not be created at start

	state atomic.Int32
	done  chan struct{}

	// statusMu guards the status message. The reporter only edits it while
	// the session is Active.
	statusMu  sync.Mutex
	statusRef *MessageRef

	partMu       sync.Mutex
	participants map[string]struct{}
}

func newSession(req StartRequest, startedAt time.Time) *Session {
	return &Session{
		tenant:         req.TenantID,
		voiceChannelID: req.VoiceChannelID,
		textChannelID:  req.TextChannelID,
		requestedBy:    req.RequestedBy,
		startedAt:      startedAt,
		done:           make(chan struct{}),
		participants:   make(map[string]struct{}),
	}
}

// TenantID returns the owning guild.
func (s *Session) TenantID() TenantID { return s.tenant }

// VoiceChannelID returns the recorded voice channel.
func (s *Session) VoiceChannelID() string { return s.voiceChannelID }

// TextChannelID returns the channel receiving notifications.
func (s *Session) TextChannelID() string { return s.textChannelID }

// RequestedBy returns the user who started the session.
func (s *Session) RequestedBy() string { return s.requestedBy }

// StartedAt returns the creation time.
func (s *Session) StartedAt() time.Time { return s.startedAt }

// State returns the current lifecycle state.
func (s *Session) State() State { return State(s.state.Load()) }

// Done is closed once the session is finalized.
func (s *Session) Done() <-chan struct{} { return s.done }

// MeetingID returns the meeting record ID, if one was created.
func (s *Session) MeetingID() string {
	mt := s.meeting.Load()
	if mt == nil {
		return ""
	}
	return mt.ID.String()
}

// Participants returns a sorted copy of the recorded speakers.
func (s *Session) Participants() []string {
	s.partMu.Lock()
	defer s.partMu.Unlock()
	out := make([]string, 0, len(s.participants))
	for p := range s.participants {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

func (s *Session) addParticipant(id string) {
	s.partMu.Lock()
	s.participants[id] = struct{}{}
	s.partMu.Unlock()
}

// beginStopping is the single serialization point of the stop path: only the
// first caller moves Active to Stopping and gets true.
func (s *Session) beginStopping() bool {
	return s.state.CompareAndSwap(int32(StateActive), int32(StateStopping))
}

// markFinalized must only be called by the registry while deregistering.
func (s *Session) markFinalized() {
	if s.state.CompareAndSwap(int32(StateStopping), int32(StateFinalized)) {
		close(s.done)
	}
}

// Snapshot is a read-only view of a session for APIs.
type Snapshot struct {
	TenantID       string    `json:"guild_id"`
	VoiceChannelID string    `json:"voice_channel_id"`
	TextChannelID  string    `json:"text_channel_id"`
	RequestedBy    string    `json:"requested_by"`
	MeetingID      string    `json:"meeting_id,omitempty"`
	StartedAt      time.Time `json:"started_at"`
	State          string    `json:"state"`
}

// Snapshot captures the session's public fields.
func (s *Session) Snapshot() Snapshot {
	return Snapshot{
		TenantID:       string(s.tenant),
		VoiceChannelID: s.voiceChannelID,
		TextChannelID:  s.textChannelID,
		RequestedBy:    s.requestedBy,
		MeetingID:      s.MeetingID(),
		StartedAt:      s.startedAt,
		State:          s.State().String(),
	}
}
