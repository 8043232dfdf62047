// Package audioio provides cross-platform audio capture and playback.
//
// This package supports multiple backends:
//   - PortAudio - Production use on desktop platforms (requires the
//     "portaudio" build tag and the PortAudio C library)
//   - Mock - CI/Testing without hardware
//
// The backend is selected automatically based on what was compiled in,
// or can be explicitly specified via configuration.
package audioio

import (
	"fmt"
	"time"
)

// Backend represents the audio backend type.
type Backend string

const (
	// BackendAuto automatically selects the best available backend.
	BackendAuto Backend = "auto"
	// BackendPortAudio uses PortAudio for cross-platform audio I/O.
	BackendPortAudio Backend = "portaudio"
	// BackendMock uses a mock implementation for testing.
	BackendMock Backend = "mock"
)

// Config holds audio configuration.
type Config struct {
	// Backend specifies which audio backend to use.
	// Default: "auto" (selects best available)
	Backend Backend `json:"backend"`

	// SampleRate is the audio sample rate in Hz.
	// Default: 16000 for capture, 24000 for playback.
	SampleRate int `json:"sample_rate"`

	// Channels is the number of audio channels.
	// Default: 1 (mono)
	Channels int `json:"channels"`

	// BlockSize is the number of samples per chunk.
	// Default: 4096 (~256ms at 16kHz)
	BlockSize int `json:"block_size"`

	// Device is the platform-specific device identifier.
	// Empty means the system default.
	Device string `json:"device"`

	// EchoCancellation, NoiseSuppression and AutoGainControl are hints
	// for backends that support input processing. Backends without the
	// capability ignore them.
	EchoCancellation bool `json:"echo_cancellation"`
	NoiseSuppression bool `json:"noise_suppression"`
	AutoGainControl  bool `json:"auto_gain_control"`
}

// CaptureConfig returns a Config with capture defaults:
// 16kHz mono in 4096-sample blocks with input processing enabled.
func CaptureConfig() Config {
	return Config{
		Backend:          BackendAuto,
		SampleRate:       16000,
		Channels:         1,
		BlockSize:        4096,
		EchoCancellation: true,
		NoiseSuppression: true,
		AutoGainControl:  true,
	}
}

// PlaybackConfig returns a Config with playback defaults:
// 24kHz mono in 1024-sample blocks.
func PlaybackConfig() Config {
	return Config{
		Backend:    BackendAuto,
		SampleRate: 24000,
		Channels:   1,
		BlockSize:  1024,
	}
}

// Validate checks that the configuration is valid.
func (c *Config) Validate() error {
	if c.SampleRate <= 0 {
		return fmt.Errorf("sample_rate must be positive, got %d", c.SampleRate)
	}
	if c.Channels <= 0 {
		return fmt.Errorf("channels must be positive, got %d", c.Channels)
	}
	if c.BlockSize <= 0 {
		return fmt.Errorf("block_size must be positive, got %d", c.BlockSize)
	}
	return nil
}

// BlockDuration returns the duration of one block.
func (c *Config) BlockDuration() time.Duration {
	if c.SampleRate == 0 {
		return 0
	}
	return time.Duration(float64(c.BlockSize) / float64(c.SampleRate) * float64(time.Second))
}

// BlockBytes returns the size of a block in bytes once encoded as PCM16.
func (c *Config) BlockBytes() int {
	return c.BlockSize * c.Channels * 2
}
