// Package bridge implements the client side of the voice-streaming bridge:
// a session state machine owning one websocket, one microphone capture
// pipeline and one playback pipeline, plus the router that classifies
// inbound messages into volume telemetry, whisper annotations and
// synthesized audio.
//
// All socket activity arrives as tagged events on a single channel consumed
// by one state-machine goroutine, so phase, volume and annotation state
// have a single writer. Capture and playback each run one goroutine of
// their own; frames stay in capture order on the wire and playback chunks
// render in arrival order.
package bridge

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/earshot-ai/go-earpiece/pkg/audioio"
	"github.com/earshot-ai/go-earpiece/pkg/wire"
)

// SourceFactory creates the microphone source for one session.
type SourceFactory func(cfg audioio.Config, logger *slog.Logger) (audioio.Source, error)

// SinkFactory creates the playback sink for one session.
type SinkFactory func(cfg audioio.Config, logger *slog.Logger) (audioio.Sink, error)

// Session is one start-to-stop negotiation instance. It owns the socket
// handle, the capture pipeline, the playback pipeline and all derived
// state. At most one of each exists per session.
type Session struct {
	cfg    Config
	logger *slog.Logger

	newSocket SocketFactory
	newSource SourceFactory
	newSink   SinkFactory

	// Callbacks, set before Start.
	OnPhaseChange  func(Phase)
	OnAnnotation   func(Annotation)
	OnTurnComplete func()

	mu          sync.RWMutex
	gen         uint64
	id          uuid.UUID
	phase       Phase
	volume      float64
	diagnostic  string
	startedAt   time.Time
	sock        Socket
	capture     *capturePipeline
	play        *player
	annotations *annotationStore
	cancel      context.CancelFunc
	done        chan struct{}

	// Final counters from the last torn-down pipelines.
	framesSent      int64
	framesDropped   int64
	chunksPlayed    int64
	playbackDropped int64

	turns atomic.Int64

	// cbMu serializes phase callbacks so they are delivered in the order
	// the transitions happened, even across a restart.
	cbMu sync.Mutex
}

// Option configures a Session.
type Option func(*Session)

// WithLogger sets the session logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Session) { s.logger = logger }
}

// WithSocketFactory overrides how the session creates its socket.
// Used by tests to inject a MockSocket.
func WithSocketFactory(f SocketFactory) Option {
	return func(s *Session) { s.newSocket = f }
}

// WithSourceFactory overrides how the session creates its microphone
// source.
func WithSourceFactory(f SourceFactory) Option {
	return func(s *Session) { s.newSource = f }
}

// WithSinkFactory overrides how the session creates its playback sink.
func WithSinkFactory(f SinkFactory) Option {
	return func(s *Session) { s.newSink = f }
}

// New creates a Session with the given configuration.
func New(cfg Config, opts ...Option) (*Session, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("bridge: invalid config: %w", err)
	}

	s := &Session{
		cfg:         cfg,
		logger:      slog.Default(),
		phase:       PhaseDisconnected,
		annotations: newAnnotationStore(cfg.AnnotationTTL),
	}
	s.newSocket = func() Socket {
		return NewWebSocket(cfg.URL, cfg.HandshakeTimeout)
	}
	s.newSource = func(acfg audioio.Config, logger *slog.Logger) (audioio.Source, error) {
		return audioio.NewSource(acfg, logger)
	}
	s.newSink = func(acfg audioio.Config, logger *slog.Logger) (audioio.Sink, error) {
		return audioio.NewSink(acfg, logger)
	}

	for _, opt := range opts {
		opt(s)
	}

	return s, nil
}

// Start issues the start intent: open the socket, enter Connecting, clear
// annotations and reset the volume. Valid only from Disconnected; returns
// ErrAlreadyStarted otherwise, and never creates a second socket or
// capture pipeline.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.phase != PhaseDisconnected {
		s.mu.Unlock()
		return ErrAlreadyStarted
	}

	s.gen++
	gen := s.gen
	s.id = uuid.New()
	s.phase = PhaseConnecting
	s.volume = 0
	s.diagnostic = ""
	s.startedAt = time.Now()
	s.framesSent, s.framesDropped = 0, 0
	s.chunksPlayed, s.playbackDropped = 0, 0
	s.turns.Store(0)
	s.annotations = newAnnotationStore(s.cfg.AnnotationTTL)

	sock := s.newSocket()
	s.sock = sock

	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	done := make(chan struct{})
	s.done = done
	s.mu.Unlock()

	s.logger.Info("session starting", "session_id", s.id, "url", s.cfg.URL)
	s.notifyPhase(PhaseConnecting, gen)

	go s.run(runCtx, sock, done)

	return nil
}

// Stop issues the stop intent: close the socket if open and wait for
// teardown. Idempotent; calling Stop when already Disconnected is a no-op.
func (s *Session) Stop() error {
	s.mu.RLock()
	phase := s.phase
	sock := s.sock
	cancel := s.cancel
	done := s.done
	s.mu.RUnlock()

	if phase == PhaseDisconnected && sock == nil {
		return nil
	}

	if sock != nil {
		sock.Close()
	}
	if cancel != nil {
		// Aborts a pending dial, the settle delay and the pipelines.
		cancel()
	}
	if done != nil {
		<-done
	}
	return nil
}

// run is the state-machine loop: the sole consumer of socket events and
// the sole writer of phase transitions.
func (s *Session) run(ctx context.Context, sock Socket, done chan struct{}) {
	defer close(done)

	events, err := sock.Connect(ctx)
	if err != nil {
		s.logger.Error("connect failed", "error", err, "url", s.cfg.URL)
		s.setDiagnostic(fmt.Sprintf("connect: %v", err))
		s.teardown(0, "connect failed")
		return
	}

	for ev := range events {
		switch ev.Kind {
		case EventOpen:
			s.handleOpen(ctx)
		case EventMessage:
			if err := s.route(ev.Payload); err != nil {
				s.logger.Warn("discarding message", "error", err, "bytes", len(ev.Payload))
			}
		case EventError:
			s.handleError(ev.Err)
		case EventClosed:
			s.teardown(ev.Code, ev.Reason)
			return
		}
	}

	// Event stream ended without a close event; treat as abnormal closure.
	s.teardown(0, "event stream ended")
}

// handleOpen enters Connected, starts playback immediately and schedules
// capture after the settle delay.
func (s *Session) handleOpen(ctx context.Context) {
	s.mu.Lock()
	s.phase = PhaseConnected
	gen := s.gen
	s.mu.Unlock()

	s.logger.Info("session connected", "session_id", s.id)
	s.notifyPhase(PhaseConnected, gen)

	s.startPlayback(ctx)

	go func() {
		select {
		case <-ctx.Done():
		case <-time.After(s.cfg.SettleDelay):
			s.startCapture(ctx)
		}
	}()
}

// startPlayback opens the pooled per-session sink. Failure disables
// playback but does not end the session.
func (s *Session) startPlayback(ctx context.Context) {
	sink, err := s.newSink(s.cfg.Playback, s.logger)
	if err != nil {
		s.logger.Warn("playback unavailable", "error", err)
		return
	}

	pl, err := startPlayer(ctx, sink, s.cfg.PlaybackQueue, s.logger)
	if err != nil {
		s.logger.Warn("playback unavailable", "error", err)
		return
	}

	s.mu.Lock()
	if s.phase != PhaseConnected {
		s.mu.Unlock()
		pl.stop()
		return
	}
	s.play = pl
	s.mu.Unlock()
}

// startCapture opens the microphone pipeline. A capture failure aborts the
// whole session: after AbortDelay the session issues its own stop intent.
func (s *Session) startCapture(ctx context.Context) {
	s.mu.Lock()
	if s.phase != PhaseConnected || s.capture != nil {
		s.mu.Unlock()
		return
	}
	sock := s.sock
	s.mu.Unlock()

	src, err := s.newSource(s.cfg.Capture, s.logger)
	if err == nil {
		var pipe *capturePipeline
		pipe, err = startCapture(ctx, src, sock, s.logger)
		if err == nil {
			s.mu.Lock()
			if s.phase != PhaseConnected {
				s.mu.Unlock()
				pipe.stop()
				return
			}
			s.capture = pipe
			s.mu.Unlock()
			return
		}
	}

	s.logger.Error("capture start failed, aborting session", "error", err)
	s.setDiagnostic(fmt.Sprintf("capture: %v", err))

	go func() {
		select {
		case <-ctx.Done():
		case <-time.After(s.cfg.AbortDelay):
			s.Stop()
		}
	}()
}

// handleError enters the Error phase. The error is informational; teardown
// happens on the close event that follows.
func (s *Session) handleError(err error) {
	s.mu.Lock()
	s.phase = PhaseError
	s.diagnostic = err.Error()
	gen := s.gen
	s.mu.Unlock()

	s.logger.Warn("transport error", "error", err)
	s.notifyPhase(PhaseError, gen)
}

// teardown stops capture and playback, clears annotations and volume, and
// returns the session to Disconnected. The phase flips only after the
// pipelines are stopped and the final counters written, so a caller that
// observes Disconnected and restarts immediately never has its fresh
// state clobbered by this session's tail.
func (s *Session) teardown(code int, reason string) {
	s.mu.Lock()
	pipe := s.capture
	s.capture = nil
	pl := s.play
	s.play = nil
	ann := s.annotations
	s.sock = nil
	cancel := s.cancel
	s.cancel = nil
	s.mu.Unlock()

	if pipe != nil {
		pipe.stop()
	}
	if pl != nil {
		pl.stop()
	}
	if ann != nil {
		ann.Clear()
	}
	if cancel != nil {
		cancel()
	}

	s.mu.Lock()
	if pipe != nil {
		s.framesSent, s.framesDropped = pipe.Stats()
	}
	if pl != nil {
		s.chunksPlayed, s.playbackDropped = pl.Stats()
	}
	if code != 0 && code != websocket.CloseNormalClosure {
		s.diagnostic = (&CloseError{Code: code, Reason: reason}).Error()
	}
	s.volume = 0
	s.phase = PhaseDisconnected
	gen := s.gen
	s.mu.Unlock()

	s.logger.Info("session closed",
		"session_id", s.id,
		"code", code,
		"reason", reason,
	)
	s.notifyPhase(PhaseDisconnected, gen)
}

// SendText sends a typed text turn to the agent.
func (s *Session) SendText(text string) error {
	s.mu.RLock()
	sock := s.sock
	s.mu.RUnlock()

	if sock == nil {
		return ErrNotConnected
	}

	payload, err := wire.NewTextEnvelope(text).Encode()
	if err != nil {
		return err
	}
	return sock.Send(payload)
}

func (s *Session) setDiagnostic(msg string) {
	s.mu.Lock()
	s.diagnostic = msg
	s.mu.Unlock()
}

// notifyPhase delivers one phase callback. Callbacks for a superseded
// generation are dropped: once Start has bumped gen, the previous
// session's trailing Disconnected must not arrive after the new
// session's Connecting.
func (s *Session) notifyPhase(p Phase, gen uint64) {
	s.cbMu.Lock()
	defer s.cbMu.Unlock()

	s.mu.RLock()
	stale := s.gen != gen
	s.mu.RUnlock()

	if stale || s.OnPhaseChange == nil {
		return
	}
	s.OnPhaseChange(p)
}

// Phase returns the current connection phase.
func (s *Session) Phase() Phase {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.phase
}

// Volume returns the last received volume level.
func (s *Session) Volume() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.volume
}

// Annotations returns the live annotations in creation order.
func (s *Session) Annotations() []Annotation {
	s.mu.RLock()
	ann := s.annotations
	s.mu.RUnlock()

	if ann == nil {
		return nil
	}
	return ann.List()
}

// Diagnostic returns the last-seen diagnostic message.
func (s *Session) Diagnostic() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.diagnostic
}

// Snapshot is a point-in-time view of the session for display surfaces.
type Snapshot struct {
	SessionID       string       `json:"session_id"`
	Phase           string       `json:"phase"`
	Volume          float64      `json:"volume"`
	MicLevel        float64      `json:"mic_level"`
	Annotations     []Annotation `json:"annotations"`
	FramesSent      int64        `json:"frames_sent"`
	FramesDropped   int64        `json:"frames_dropped"`
	ChunksPlayed    int64        `json:"chunks_played"`
	PlaybackDropped int64        `json:"playback_dropped"`
	Turns           int64        `json:"turns"`
	Diagnostic      string       `json:"diagnostic,omitempty"`
	StartedAt       time.Time    `json:"started_at"`
}

// Snapshot returns the current session state.
func (s *Session) Snapshot() Snapshot {
	s.mu.RLock()
	snap := Snapshot{
		Phase:           s.phase.String(),
		Volume:          s.volume,
		FramesSent:      s.framesSent,
		FramesDropped:   s.framesDropped,
		ChunksPlayed:    s.chunksPlayed,
		PlaybackDropped: s.playbackDropped,
		Turns:           s.turns.Load(),
		Diagnostic:      s.diagnostic,
		StartedAt:       s.startedAt,
	}
	if s.id != uuid.Nil {
		snap.SessionID = s.id.String()
	}
	ann := s.annotations
	pipe := s.capture
	pl := s.play
	s.mu.RUnlock()

	if ann != nil {
		snap.Annotations = ann.List()
	}
	if pipe != nil {
		snap.FramesSent, snap.FramesDropped = pipe.Stats()
		snap.MicLevel = pipe.Level()
	}
	if pl != nil {
		snap.ChunksPlayed, snap.PlaybackDropped = pl.Stats()
	}
	return snap
}
