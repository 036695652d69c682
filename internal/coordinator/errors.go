package coordinator

import "errors"

var (
	// ErrSessionNotFound is returned for unknown or already removed sessions
	ErrSessionNotFound = errors.New("session not found")
	// ErrSessionExists is returned by a SessionStore on id collision
	ErrSessionExists = errors.New("session already exists")
	// ErrSessionBusy is returned when a turn is already running
	ErrSessionBusy = errors.New("session is processing another message")
	// ErrSessionTerminated is returned for sessions that were deleted or expired
	ErrSessionTerminated = errors.New("session terminated")
	// ErrEmptyMessage is returned when a send has no message text
	ErrEmptyMessage = errors.New("message is required")
)
