package bridge

import (
	"context"
	"sync"

	"github.com/gorilla/websocket"
)

// MockSocket is an in-memory Socket for testing.
// Tests drive the event stream with EmitMessage, EmitError and EmitClose,
// and inspect outbound traffic with Sent.
type MockSocket struct {
	mu         sync.Mutex
	events     chan Event
	sent       [][]byte
	open       bool
	closed     bool
	connectErr error
}

// NewMockSocket creates a new mock socket.
func NewMockSocket() *MockSocket {
	return &MockSocket{}
}

// FailConnect makes Connect return the given error.
func (m *MockSocket) FailConnect(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connectErr = err
}

// Connect returns a fresh event stream and emits EventOpen. Reconnecting
// a closed mock resets it, so one mock can serve several sessions.
func (m *MockSocket) Connect(ctx context.Context) (<-chan Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.connectErr != nil {
		return nil, m.connectErr
	}

	m.events = make(chan Event, 64)
	m.closed = false
	m.open = true
	m.events <- Event{Kind: EventOpen}
	return m.events, nil
}

// Send records one outbound payload.
func (m *MockSocket) Send(payload []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.open || m.closed {
		return ErrNotConnected
	}

	cp := append([]byte(nil), payload...)
	m.sent = append(m.sent, cp)
	return nil
}

// Close emits the final EventClosed and closes the stream.
func (m *MockSocket) Close() error {
	m.emitClose(websocket.CloseNormalClosure, "")
	return nil
}

// EmitMessage delivers one inbound payload.
func (m *MockSocket) EmitMessage(payload []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed || m.events == nil {
		return
	}
	m.events <- Event{Kind: EventMessage, Payload: append([]byte(nil), payload...)}
}

// EmitError delivers a transport error event.
func (m *MockSocket) EmitError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed || m.events == nil {
		return
	}
	m.events <- Event{Kind: EventError, Err: err}
}

// EmitClose delivers the final close event, as if the remote end closed.
func (m *MockSocket) EmitClose(code int, reason string) {
	m.emitClose(code, reason)
}

func (m *MockSocket) emitClose(code int, reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return
	}
	m.closed = true
	m.open = false
	if m.events != nil {
		m.events <- Event{Kind: EventClosed, Code: code, Reason: reason}
		close(m.events)
	}
}

// Sent returns a copy of all payloads sent so far.
func (m *MockSocket) Sent() [][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([][]byte, len(m.sent))
	copy(out, m.sent)
	return out
}

// IsClosed reports whether Close or EmitClose has been called.
func (m *MockSocket) IsClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

var _ Socket = (*MockSocket)(nil)
