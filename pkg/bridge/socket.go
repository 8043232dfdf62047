package bridge

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// EventKind tags one socket event variant.
type EventKind int

const (
	// EventOpen fires once when the socket is established.
	EventOpen EventKind = iota
	// EventMessage carries one inbound payload.
	EventMessage
	// EventError carries a transport error. It is informational and is
	// always followed by EventClosed.
	EventError
	// EventClosed is the final event; the channel is closed after it.
	EventClosed
)

// Event is one tagged socket event. All socket activity arrives as events
// on a single channel consumed by the session state machine, so no handler
// registration is needed and ordering is the arrival order.
type Event struct {
	Kind    EventKind
	Payload []byte // EventMessage
	Err     error  // EventError
	Code    int    // EventClosed
	Reason  string // EventClosed
}

// Socket is a full-duplex message socket to the bridge endpoint.
type Socket interface {
	// Connect dials the endpoint and returns the event stream. The
	// stream delivers EventOpen first, then messages and errors in
	// arrival order, and ends with EventClosed.
	Connect(ctx context.Context) (<-chan Event, error)

	// Send writes one payload. Returns ErrNotConnected if the socket
	// is not open.
	Send(payload []byte) error

	// Close closes the socket. Safe to call multiple times and before
	// Connect.
	Close() error
}

// SocketFactory creates a Socket for one session.
type SocketFactory func() Socket

// WebSocket is the gorilla/websocket implementation of Socket.
type WebSocket struct {
	url              string
	handshakeTimeout time.Duration

	mu     sync.Mutex
	conn   *websocket.Conn
	closed bool
	events chan Event
}

// NewWebSocket creates a websocket Socket for the given endpoint.
func NewWebSocket(url string, handshakeTimeout time.Duration) *WebSocket {
	if handshakeTimeout <= 0 {
		handshakeTimeout = 10 * time.Second
	}
	return &WebSocket{
		url:              url,
		handshakeTimeout: handshakeTimeout,
	}
}

// Connect dials the endpoint and starts the read loop.
func (w *WebSocket) Connect(ctx context.Context) (<-chan Event, error) {
	dialer := websocket.Dialer{
		HandshakeTimeout: w.handshakeTimeout,
	}

	conn, _, err := dialer.DialContext(ctx, w.url, nil)
	if err != nil {
		return nil, err
	}

	w.mu.Lock()
	if w.closed {
		// Close raced the dial; release the connection we just made.
		w.mu.Unlock()
		conn.Close()
		return nil, ErrNotConnected
	}
	w.conn = conn
	w.events = make(chan Event, 64)
	events := w.events
	w.mu.Unlock()

	events <- Event{Kind: EventOpen}

	go w.readLoop(conn, events)

	return events, nil
}

func (w *WebSocket) readLoop(conn *websocket.Conn, events chan Event) {
	defer close(events)

	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			w.mu.Lock()
			requested := w.closed
			w.conn = nil
			w.closed = true
			w.mu.Unlock()

			code, reason := closeInfo(err)
			if requested {
				// We initiated the closure; the read error is expected.
				code, reason = websocket.CloseNormalClosure, ""
			} else if !isNormalClosure(err) {
				events <- Event{Kind: EventError, Err: err}
			}
			events <- Event{Kind: EventClosed, Code: code, Reason: reason}
			return
		}

		events <- Event{Kind: EventMessage, Payload: payload}
	}
}

// Send writes one text payload to the socket.
func (w *WebSocket) Send(payload []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.conn == nil || w.closed {
		return ErrNotConnected
	}

	if err := w.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		return errors.Join(ErrSendFailed, err)
	}
	return nil
}

// Close closes the socket. The read loop observes the closure and emits
// the final EventClosed.
func (w *WebSocket) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed && w.conn == nil {
		return nil
	}
	w.closed = true

	if w.conn != nil {
		// Best-effort close handshake before dropping the connection.
		deadline := time.Now().Add(time.Second)
		w.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
		err := w.conn.Close()
		w.conn = nil
		return err
	}
	return nil
}

// closeInfo extracts the close code and reason from a read error.
func closeInfo(err error) (int, string) {
	var ce *websocket.CloseError
	if errors.As(err, &ce) {
		return ce.Code, ce.Text
	}
	return websocket.CloseAbnormalClosure, err.Error()
}

// isNormalClosure reports whether the read error is an expected closure.
func isNormalClosure(err error) bool {
	return websocket.IsCloseError(err,
		websocket.CloseNormalClosure, websocket.CloseGoingAway)
}

var _ Socket = (*WebSocket)(nil)
