package session

// TenantID identifies a guild, the unit of session isolation.
type TenantID string

func (t TenantID) String() string { return string(t) }

// State is a session's lifecycle position. Transitions only move forward:
// Active -> Stopping -> Finalized.
type State int32

const (
	StateActive State = iota
	StateStopping
	StateFinalized
)

func (s State) String() string {
	switch s {
	case StateActive:
		return "active"
	case StateStopping:
		return "stopping"
	case StateFinalized:
		return "finalized"
	default:
		return "unknown"
	}
}

// Trigger names what asked a session to stop. It only changes what users are
// told, never how the session is cleaned up.
type Trigger int

const (
	TriggerManual Trigger = iota
	TriggerTimeout
	TriggerExternalDisconnect
	TriggerShutdown
)

func (t Trigger) String() string {
	switch t {
	case TriggerManual:
		return "manual"
	case TriggerTimeout:
		return "timeout"
	case TriggerExternalDisconnect:
		return "external_disconnect"
	case TriggerShutdown:
		return "shutdown"
	default:
		return "unknown"
	}
}
