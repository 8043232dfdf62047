package bridge

// Phase represents the session connection phase.
type Phase int

const (
	// PhaseDisconnected indicates no active connection.
	// This is both the initial phase and the phase reached after any
	// teardown; a closed socket always lands here.
	PhaseDisconnected Phase = iota
	// PhaseConnecting indicates the socket is being established.
	PhaseConnecting
	// PhaseConnected indicates an active connection.
	PhaseConnected
	// PhaseError indicates the socket reported an error. The phase is
	// informational; teardown happens on the close event that follows.
	PhaseError
)

// String returns a human-readable phase.
func (p Phase) String() string {
	switch p {
	case PhaseDisconnected:
		return "disconnected"
	case PhaseConnecting:
		return "connecting"
	case PhaseConnected:
		return "connected"
	case PhaseError:
		return "error"
	default:
		return "unknown"
	}
}
