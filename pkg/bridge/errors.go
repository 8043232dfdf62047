package bridge

import (
	"errors"
	"fmt"
)

// Sentinel errors for the bridge package.
var (
	// ErrNotConnected indicates the socket is not open.
	ErrNotConnected = errors.New("bridge: not connected")

	// ErrAlreadyStarted indicates a session is already active.
	ErrAlreadyStarted = errors.New("bridge: session already started")

	// ErrSendFailed indicates writing to an open socket failed.
	ErrSendFailed = errors.New("bridge: send failed")

	// ErrInvalidMessage indicates a malformed inbound payload.
	ErrInvalidMessage = errors.New("bridge: invalid message")

	// ErrPlaybackBusy indicates the playback queue is full.
	ErrPlaybackBusy = errors.New("bridge: playback queue full")
)

// CloseError carries the code and reason of a socket closure.
type CloseError struct {
	Code   int
	Reason string
}

// Error implements the error interface.
func (e *CloseError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("bridge: socket closed (%d): %s", e.Code, e.Reason)
	}
	return fmt.Sprintf("bridge: socket closed (%d)", e.Code)
}
