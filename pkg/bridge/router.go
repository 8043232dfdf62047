package bridge

import (
	"fmt"

	"github.com/earshot-ai/go-earpiece/pkg/wire"
)

// route classifies one inbound socket message. Malformed payloads return
// ErrInvalidMessage and are discarded without affecting session state.
// The volume field and the type/content branches are evaluated
// independently, so a single message can carry both telemetry and
// content.
func (s *Session) route(raw []byte) error {
	msg, err := wire.DecodeInbound(raw)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidMessage, err)
	}

	if msg.HasVolume() {
		// Server-computed level, stored as received. No clamping: the
		// display surfaces decide how to render out-of-range values.
		s.mu.Lock()
		s.volume = *msg.Vol
		s.mu.Unlock()
	}

	if msg.Type == wire.TypeWhisper && msg.HasText() {
		s.addAnnotation(msg.Text)
	}

	if msg.Type == wire.TypeAudio && msg.HasAudio() {
		s.logger.Debug("agent audio", "mime_type", msg.MimeType, "bytes", len(msg.Audio))
		s.playChunk(msg.Audio)
	}

	if msg.Type == "" && msg.HasAudio() {
		// Untagged audio from older servers still plays.
		s.playChunk(msg.Audio)
	}

	if msg.Type == "" && msg.HasText() {
		// Untagged text surfaces in logs only; it never becomes an
		// annotation.
		s.logger.Info("agent text", "text", msg.Text)
	}

	if msg.TurnComplete {
		s.turns.Add(1)
		s.logger.Debug("turn complete", "turns", s.turns.Load())
		if s.OnTurnComplete != nil {
			s.OnTurnComplete()
		}
	}
	return nil
}

func (s *Session) addAnnotation(text string) {
	s.mu.RLock()
	store := s.annotations
	s.mu.RUnlock()
	if store == nil {
		return
	}

	ann := store.Add(text)
	s.logger.Info("whisper annotation", "id", ann.ID, "text", text)
	if s.OnAnnotation != nil {
		s.OnAnnotation(ann)
	}
}

func (s *Session) playChunk(payload string) {
	s.mu.RLock()
	pl := s.play
	s.mu.RUnlock()

	if pl == nil {
		s.logger.Debug("dropping audio, playback inactive")
		return
	}
	if err := pl.Play(payload); err != nil {
		s.logger.Warn("dropping audio chunk", "error", err)
	}
}
