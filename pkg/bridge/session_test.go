package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/earshot-ai/go-earpiece/pkg/audioio"
	"github.com/earshot-ai/go-earpiece/pkg/wire"
)

func encodeSamples(samples []float32) string {
	return wire.EncodeAudioPayload(samples)
}

type sessionHarness struct {
	s    *Session
	sock *MockSocket
	sink *audioio.MockSink
}

func newTestSession(t *testing.T, mutate func(*Config)) *sessionHarness {
	t.Helper()

	cfg := DefaultConfig()
	cfg.URL = "ws://bridge.test/ws"
	cfg.SettleDelay = time.Millisecond
	cfg.AbortDelay = 10 * time.Millisecond
	cfg.Capture = testCaptureConfig()
	cfg.Playback.Backend = audioio.BackendMock
	if mutate != nil {
		mutate(&cfg)
	}

	sock := NewMockSocket()
	sink := audioio.NewMockSink(cfg.Playback, nil)

	s, err := New(cfg,
		WithLogger(testLogger()),
		WithSocketFactory(func() Socket { return sock }),
		WithSourceFactory(func(acfg audioio.Config, logger *slog.Logger) (audioio.Source, error) {
			return audioio.NewMockSource(acfg, logger), nil
		}),
		WithSinkFactory(func(acfg audioio.Config, logger *slog.Logger) (audioio.Sink, error) {
			return sink, nil
		}),
	)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	return &sessionHarness{s: s, sock: sock, sink: sink}
}

func (h *sessionHarness) waitPhase(t *testing.T, want Phase) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for h.s.Phase() != want {
		if time.Now().After(deadline) {
			t.Fatalf("phase never reached %s, still %s", want, h.s.Phase())
		}
		time.Sleep(time.Millisecond)
	}
}

func (h *sessionHarness) start(t *testing.T) {
	t.Helper()
	if err := h.s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	h.waitPhase(t, PhaseConnected)
}

func TestSessionLifecycle(t *testing.T) {
	h := newTestSession(t, nil)

	if h.s.Phase() != PhaseDisconnected {
		t.Fatalf("new session should be disconnected, got %s", h.s.Phase())
	}

	h.start(t)

	snap := h.s.Snapshot()
	if snap.SessionID == "" {
		t.Error("connected session should have an ID")
	}
	if snap.Phase != "connected" {
		t.Errorf("expected phase connected, got %s", snap.Phase)
	}

	if err := h.s.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	h.waitPhase(t, PhaseDisconnected)

	if !h.sock.IsClosed() {
		t.Error("stop should close the socket")
	}
}

func TestSessionStartWhileActive(t *testing.T) {
	h := newTestSession(t, nil)
	h.start(t)
	defer h.s.Stop()

	if err := h.s.Start(context.Background()); !errors.Is(err, ErrAlreadyStarted) {
		t.Fatalf("expected ErrAlreadyStarted, got %v", err)
	}
}

func TestSessionStopIdempotent(t *testing.T) {
	h := newTestSession(t, nil)

	// Stop before any start is a no-op.
	if err := h.s.Stop(); err != nil {
		t.Fatalf("Stop on fresh session: %v", err)
	}

	h.start(t)
	if err := h.s.Stop(); err != nil {
		t.Fatalf("first Stop: %v", err)
	}
	if err := h.s.Stop(); err != nil {
		t.Fatalf("second Stop: %v", err)
	}
}

func TestSessionRestart(t *testing.T) {
	h := newTestSession(t, nil)

	h.start(t)
	first := h.s.Snapshot().SessionID
	h.s.Stop()
	h.waitPhase(t, PhaseDisconnected)

	h.start(t)
	defer h.s.Stop()
	second := h.s.Snapshot().SessionID

	if first == second {
		t.Error("restart should mint a fresh session ID")
	}
}

func TestSessionRestartPhaseCallbackOrder(t *testing.T) {
	// A caller that observes Disconnected and restarts right away must
	// never receive the previous run's trailing Disconnected callback
	// after the new run's Connecting.
	for i := 0; i < 50; i++ {
		h := newTestSession(t, nil)

		var mu sync.Mutex
		var seq []Phase
		h.s.OnPhaseChange = func(p Phase) {
			mu.Lock()
			seq = append(seq, p)
			mu.Unlock()
		}

		h.start(t)
		h.sock.EmitClose(1006, "gone")
		h.waitPhase(t, PhaseDisconnected)

		h.start(t)
		h.s.Stop()
		h.waitPhase(t, PhaseDisconnected)

		mu.Lock()
		got := append([]Phase(nil), seq...)
		mu.Unlock()

		// Connects succeed in this test, so Connecting is always followed
		// by Connected; a Disconnected right after it is a stale callback
		// from the run that just ended.
		for j := 1; j < len(got); j++ {
			if got[j-1] == PhaseConnecting && got[j] == PhaseDisconnected {
				t.Fatalf("iteration %d: stale disconnect after connecting: %v", i, got)
			}
		}
	}
}

func TestSessionCloseRecordsFinalStats(t *testing.T) {
	h := newTestSession(t, nil)
	h.start(t)

	deadline := time.Now().Add(3 * time.Second)
	for h.s.Snapshot().FramesSent == 0 {
		if time.Now().After(deadline) {
			t.Fatal("no frames captured before close")
		}
		time.Sleep(time.Millisecond)
	}

	h.sock.EmitClose(1006, "gone")
	h.waitPhase(t, PhaseDisconnected)

	// The moment the phase reads Disconnected, the final counters and the
	// close diagnostic must already be in place.
	snap := h.s.Snapshot()
	if snap.FramesSent == 0 {
		t.Error("final frame count should survive teardown")
	}
	if !strings.Contains(snap.Diagnostic, "1006") {
		t.Errorf("abnormal close should record its code, got %q", snap.Diagnostic)
	}
}

func TestSessionVolumeUpdates(t *testing.T) {
	h := newTestSession(t, nil)
	h.start(t)
	defer h.s.Stop()

	tests := []struct {
		payload string
		want    float64
	}{
		{`{"vol": 42.5}`, 42.5},
		{`{"vol": 0}`, 0},
		{`{"vol": 250}`, 250},  // over the nominal range, stored as-is
		{`{"vol": -10}`, -10},  // below the range too
	}

	for _, tt := range tests {
		h.sock.EmitMessage([]byte(tt.payload))
		deadline := time.Now().Add(time.Second)
		for h.s.Volume() != tt.want {
			if time.Now().After(deadline) {
				t.Fatalf("volume never reached %v after %s, got %v", tt.want, tt.payload, h.s.Volume())
			}
			time.Sleep(time.Millisecond)
		}
	}
}

func TestSessionWhisperAnnotation(t *testing.T) {
	h := newTestSession(t, nil)

	annCh := make(chan Annotation, 4)
	h.s.OnAnnotation = func(a Annotation) { annCh <- a }

	h.start(t)
	defer h.s.Stop()

	h.sock.EmitMessage([]byte(`{"type": "whisper", "text": "lean in closer"}`))

	select {
	case ann := <-annCh:
		if ann.Text != "lean in closer" {
			t.Errorf("expected annotation text %q, got %q", "lean in closer", ann.Text)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("whisper never became an annotation")
	}

	list := h.s.Annotations()
	if len(list) != 1 || list[0].Text != "lean in closer" {
		t.Fatalf("expected one annotation, got %v", list)
	}
}

func TestSessionUntaggedTextIsLogOnly(t *testing.T) {
	h := newTestSession(t, nil)
	h.start(t)
	defer h.s.Stop()

	h.sock.EmitMessage([]byte(`{"text": "plain agent text"}`))
	// Give the router a moment; the text must never become an annotation.
	time.Sleep(20 * time.Millisecond)

	if n := len(h.s.Annotations()); n != 0 {
		t.Fatalf("untagged text produced %d annotations", n)
	}
}

func TestSessionAudioPlayback(t *testing.T) {
	payload := encodeSamples([]float32{0.25, -0.25, 0.5, -0.5})

	tests := []struct {
		name    string
		message string
	}{
		{"typed audio", fmt.Sprintf(`{"type": "audio", "audio": %q}`, payload)},
		{"untagged audio", fmt.Sprintf(`{"audio": %q}`, payload)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newTestSession(t, nil)
			h.start(t)
			defer h.s.Stop()

			h.sock.EmitMessage([]byte(tt.message))

			deadline := time.Now().Add(2 * time.Second)
			for len(h.sink.Written()) == 0 {
				if time.Now().After(deadline) {
					t.Fatal("audio never reached the sink")
				}
				time.Sleep(time.Millisecond)
			}

			chunk := h.sink.Written()[0]
			if len(chunk.Samples) != 4 {
				t.Fatalf("expected 4 samples, got %d", len(chunk.Samples))
			}
		})
	}
}

func TestSessionAudioOrderPreserved(t *testing.T) {
	h := newTestSession(t, nil)
	h.start(t)
	defer h.s.Stop()

	for i := 1; i <= 5; i++ {
		payload := encodeSamples([]float32{float32(i) / 100})
		h.sock.EmitMessage([]byte(fmt.Sprintf(`{"type": "audio", "audio": %q}`, payload)))
	}

	deadline := time.Now().Add(2 * time.Second)
	for len(h.sink.Written()) < 5 {
		if time.Now().After(deadline) {
			t.Fatalf("expected 5 chunks at the sink, got %d", len(h.sink.Written()))
		}
		time.Sleep(time.Millisecond)
	}

	var prev float32
	for i, chunk := range h.sink.Written() {
		if chunk.Samples[0] <= prev {
			t.Fatalf("chunk %d out of order: %v after %v", i, chunk.Samples[0], prev)
		}
		prev = chunk.Samples[0]
	}
}

func TestSessionMalformedMessagesIgnored(t *testing.T) {
	h := newTestSession(t, nil)
	h.start(t)
	defer h.s.Stop()

	h.sock.EmitMessage([]byte(`{"vol": 33}`))
	h.waitVolume(t, 33)

	for _, raw := range []string{
		`not json at all`,
		`{"vol": "loud"}`,
		`{"type": "audio", "audio": "!!!not-base64!!!"}`,
		``,
	} {
		h.sock.EmitMessage([]byte(raw))
	}

	// Session survives and keeps routing.
	h.sock.EmitMessage([]byte(`{"vol": 77}`))
	h.waitVolume(t, 77)

	if h.s.Phase() != PhaseConnected {
		t.Fatalf("malformed input changed the phase to %s", h.s.Phase())
	}
}

func (h *sessionHarness) waitVolume(t *testing.T, want float64) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for h.s.Volume() != want {
		if time.Now().After(deadline) {
			t.Fatalf("volume never reached %v, got %v", want, h.s.Volume())
		}
		time.Sleep(time.Millisecond)
	}
}

func TestSessionTurnComplete(t *testing.T) {
	h := newTestSession(t, nil)

	turns := make(chan struct{}, 4)
	h.s.OnTurnComplete = func() { turns <- struct{}{} }

	h.start(t)
	defer h.s.Stop()

	h.sock.EmitMessage([]byte(`{"turn_complete": true}`))

	select {
	case <-turns:
	case <-time.After(2 * time.Second):
		t.Fatal("turn completion never fired")
	}

	if got := h.s.Snapshot().Turns; got != 1 {
		t.Errorf("expected 1 turn, got %d", got)
	}
}

func TestSessionServerCloseResetsState(t *testing.T) {
	h := newTestSession(t, nil)
	h.start(t)

	h.sock.EmitMessage([]byte(`{"vol": 55}`))
	h.sock.EmitMessage([]byte(`{"type": "whisper", "text": "remember this"}`))
	h.waitVolume(t, 55)

	h.sock.EmitClose(1000, "server done")
	h.waitPhase(t, PhaseDisconnected)

	if got := h.s.Volume(); got != 0 {
		t.Errorf("volume should reset on close, got %v", got)
	}
	if n := len(h.s.Annotations()); n != 0 {
		t.Errorf("annotations should clear on close, got %d", n)
	}
}

func TestSessionTransportError(t *testing.T) {
	h := newTestSession(t, nil)

	phases := make(chan Phase, 8)
	h.s.OnPhaseChange = func(p Phase) { phases <- p }

	h.start(t)

	h.sock.EmitError(errors.New("connection reset"))
	h.waitPhase(t, PhaseError)

	if diag := h.s.Diagnostic(); diag != "connection reset" {
		t.Errorf("expected diagnostic %q, got %q", "connection reset", diag)
	}

	// The close that follows the error lands back in Disconnected.
	h.sock.EmitClose(1006, "abnormal closure")
	h.waitPhase(t, PhaseDisconnected)
}

func TestSessionConnectFailure(t *testing.T) {
	h := newTestSession(t, nil)
	h.sock.FailConnect(errors.New("dial refused"))

	if err := h.s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	h.waitPhase(t, PhaseDisconnected)

	if h.s.Diagnostic() == "" {
		t.Error("failed connect should record a diagnostic")
	}
}

func TestSessionCaptureFailureAbortsSession(t *testing.T) {
	h := newTestSession(t, nil)

	srcErr := audioio.ErrDeviceUnavailable
	s, err := New(h.s.cfg,
		WithLogger(testLogger()),
		WithSocketFactory(func() Socket { return h.sock }),
		WithSourceFactory(func(acfg audioio.Config, logger *slog.Logger) (audioio.Source, error) {
			return audioio.NewMockSource(acfg, logger, audioio.WithStartError(srcErr)), nil
		}),
		WithSinkFactory(func(acfg audioio.Config, logger *slog.Logger) (audioio.Sink, error) {
			return h.sink, nil
		}),
	)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	// Settle delay elapses, capture fails, and after the abort delay the
	// session shuts itself down.
	deadline := time.Now().Add(2 * time.Second)
	for s.Phase() != PhaseDisconnected {
		if time.Now().After(deadline) {
			t.Fatalf("session never aborted, phase %s", s.Phase())
		}
		time.Sleep(time.Millisecond)
	}

	if !h.sock.IsClosed() {
		t.Error("aborted session should close the socket")
	}
	if s.Diagnostic() == "" {
		t.Error("capture failure should record a diagnostic")
	}
}

func TestSessionSendText(t *testing.T) {
	h := newTestSession(t, nil)

	if err := h.s.SendText("hello"); !errors.Is(err, ErrNotConnected) {
		t.Fatalf("expected ErrNotConnected before start, got %v", err)
	}

	h.start(t)
	defer h.s.Stop()

	if err := h.s.SendText("hello agent"); err != nil {
		t.Fatalf("SendText: %v", err)
	}

	var found bool
	for _, payload := range h.sock.Sent() {
		var env struct {
			ClientContent *struct {
				Text string `json:"text"`
			} `json:"client_content"`
		}
		if err := json.Unmarshal(payload, &env); err != nil {
			continue
		}
		if env.ClientContent != nil && env.ClientContent.Text == "hello agent" {
			found = true
		}
	}
	if !found {
		t.Fatal("text envelope never reached the socket")
	}
}

func TestSessionFramesReachSocket(t *testing.T) {
	h := newTestSession(t, nil)
	h.start(t)
	defer h.s.Stop()

	// After the settle delay the mock microphone streams blocks that must
	// show up as realtime_input envelopes.
	deadline := time.Now().Add(3 * time.Second)
	for {
		for _, payload := range h.sock.Sent() {
			var env struct {
				RealtimeInput *json.RawMessage `json:"realtime_input"`
			}
			if json.Unmarshal(payload, &env) == nil && env.RealtimeInput != nil {
				return
			}
		}
		if time.Now().After(deadline) {
			t.Fatal("no capture frames reached the socket")
		}
		time.Sleep(5 * time.Millisecond)
	}
}
