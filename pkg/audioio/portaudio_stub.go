//go:build !portaudio

package audioio

import (
	"fmt"
	"log/slog"
)

const portAudioAvailable = false

// newPortAudioSource returns an error when PortAudio is not compiled in.
func newPortAudioSource(cfg Config, logger *slog.Logger) (Source, error) {
	return nil, fmt.Errorf("%w: portaudio (build with -tags portaudio)", ErrUnsupportedBackend)
}

// newPortAudioSink returns an error when PortAudio is not compiled in.
func newPortAudioSink(cfg Config, logger *slog.Logger) (Sink, error) {
	return nil, fmt.Errorf("%w: portaudio (build with -tags portaudio)", ErrUnsupportedBackend)
}
