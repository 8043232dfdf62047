package bridge

import (
	"fmt"
	"time"

	"github.com/earshot-ai/go-earpiece/pkg/audioio"
)

// Config holds session configuration.
type Config struct {
	// URL is the bridge websocket endpoint.
	URL string `json:"url"`

	// Capture is the microphone configuration (16kHz mono by default).
	Capture audioio.Config `json:"capture"`

	// Playback is the speaker configuration (24kHz mono by default).
	Playback audioio.Config `json:"playback"`

	// SettleDelay is how long to wait after the socket opens before the
	// first frame is captured, giving the transport time to settle.
	SettleDelay time.Duration `json:"settle_delay"`

	// AbortDelay is how long to wait before tearing the session down
	// after a capture-start failure.
	AbortDelay time.Duration `json:"abort_delay"`

	// AnnotationTTL is how long a whisper annotation stays live.
	AnnotationTTL time.Duration `json:"annotation_ttl"`

	// PlaybackQueue is the playback queue depth in chunks. Chunks
	// arriving while the queue is full are dropped.
	PlaybackQueue int `json:"playback_queue"`

	// HandshakeTimeout bounds the websocket dial.
	HandshakeTimeout time.Duration `json:"handshake_timeout"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		URL:              "ws://localhost:8000/ws",
		Capture:          audioio.CaptureConfig(),
		Playback:         audioio.PlaybackConfig(),
		SettleDelay:      500 * time.Millisecond,
		AbortDelay:       time.Second,
		AnnotationTTL:    10 * time.Second,
		PlaybackQueue:    16,
		HandshakeTimeout: 10 * time.Second,
	}
}

// Validate checks that the configuration is valid.
func (c *Config) Validate() error {
	if c.URL == "" {
		return fmt.Errorf("url is required")
	}
	if err := c.Capture.Validate(); err != nil {
		return fmt.Errorf("capture: %w", err)
	}
	if err := c.Playback.Validate(); err != nil {
		return fmt.Errorf("playback: %w", err)
	}
	if c.AnnotationTTL <= 0 {
		return fmt.Errorf("annotation_ttl must be positive, got %v", c.AnnotationTTL)
	}
	if c.PlaybackQueue <= 0 {
		return fmt.Errorf("playback_queue must be positive, got %d", c.PlaybackQueue)
	}
	return nil
}
