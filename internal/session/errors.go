package session

import "errors"

var (
	// ErrNotInVoiceChannel is returned when a start request has no voice channel.
	ErrNotInVoiceChannel = errors.New("not in a voice channel")
	// ErrAlreadyActive is returned when the tenant already has a session.
	ErrAlreadyActive = errors.New("already recording in this server")
	// ErrNotRecording is returned by a manual stop when no session exists.
	ErrNotRecording = errors.New("not currently recording in this server")
	// ErrConnectionTimeout is returned when joining the voice channel timed out.
	ErrConnectionTimeout = errors.New("voice connection timed out")
	// ErrConnection wraps any other voice connection failure.
	ErrConnection = errors.New("voice connection failed")
	// ErrShuttingDown is returned by StartSession once Shutdown has begun.
	ErrShuttingDown = errors.New("the bot is shutting down")
	// ErrInvalidDuration is returned when a timer is armed with a non-positive duration.
	ErrInvalidDuration = errors.New("timer duration must be positive")
)
