//go:build portaudio

package audioio

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/gordonklaus/portaudio"
)

const portAudioAvailable = true

// PortAudioSource captures audio using the PortAudio library.
type PortAudioSource struct {
	cfg    Config
	logger *slog.Logger

	mu       sync.Mutex
	stream   *portaudio.Stream
	running  bool
	closed   bool
	streamCh chan AudioChunk
	stopCh   chan struct{}
	loopDone chan struct{}

	// Stats
	chunksRead  atomic.Int64
	samplesRead atomic.Int64
	overruns    atomic.Int64
}

// newPortAudioSource opens the default input device.
func newPortAudioSource(cfg Config, logger *slog.Logger) (Source, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
	}

	return &PortAudioSource{
		cfg:    cfg,
		logger: logger,
	}, nil
}

// Start begins audio capture.
func (p *PortAudioSource) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return io.ErrClosedPipe
	}
	if p.running {
		return nil
	}

	in := make([]float32, p.cfg.BlockSize*p.cfg.Channels)
	stream, err := portaudio.OpenDefaultStream(
		p.cfg.Channels, 0, float64(p.cfg.SampleRate), p.cfg.BlockSize, in)
	if err != nil {
		return fmt.Errorf("%w: open input stream: %v", ErrDeviceUnavailable, err)
	}

	if err := stream.Start(); err != nil {
		stream.Close()
		return fmt.Errorf("%w: start input stream: %v", ErrDeviceUnavailable, err)
	}

	p.stream = stream
	p.running = true
	p.stopCh = make(chan struct{})
	p.streamCh = make(chan AudioChunk, 10)
	p.loopDone = make(chan struct{})

	go p.captureLoop(ctx, in, stream, p.streamCh, p.stopCh, p.loopDone)

	p.logger.Info("portaudio source started",
		"sample_rate", p.cfg.SampleRate,
		"block_size", p.cfg.BlockSize,
	)

	return nil
}

// captureLoop owns streamCh and the blocking reads: only this goroutine
// sends on the channel and it closes it on exit. The stream stays valid
// for the loop's lifetime because Stop joins the loop before releasing it.
func (p *PortAudioSource) captureLoop(ctx context.Context, in []float32, stream *portaudio.Stream, streamCh chan AudioChunk, stopCh, done chan struct{}) {
	defer close(done)
	defer close(streamCh)

	for {
		select {
		case <-ctx.Done():
			p.mu.Lock()
			p.running = false
			p.mu.Unlock()
			return
		case <-stopCh:
			return
		default:
		}

		if err := stream.Read(); err != nil {
			// Overflow means we lost audio but the stream is still usable.
			if err == portaudio.InputOverflowed {
				p.overruns.Add(1)
				continue
			}
			p.logger.Warn("portaudio read failed", "error", err)
			return
		}

		chunk := AudioChunk{
			Samples:    append([]float32(nil), in...),
			SampleRate: p.cfg.SampleRate,
			Channels:   p.cfg.Channels,
		}

		select {
		case streamCh <- chunk:
			p.chunksRead.Add(1)
			p.samplesRead.Add(int64(len(chunk.Samples)))
		default:
			p.overruns.Add(1)
		}
	}
}

// Stop halts audio capture. It joins the capture goroutine before
// stopping the stream, so a blocking read never touches a released
// stream.
func (p *PortAudioSource) Stop() error {
	p.mu.Lock()
	if p.running {
		p.running = false
		close(p.stopCh)
	}
	done := p.loopDone
	p.mu.Unlock()

	if done != nil {
		<-done
	}

	p.mu.Lock()
	stream := p.stream
	p.stream = nil
	p.mu.Unlock()

	if stream != nil {
		stream.Stop()
		stream.Close()
		p.logger.Info("portaudio source stopped")
	}

	return nil
}

// Read reads the next audio chunk.
func (p *PortAudioSource) Read(ctx context.Context) (AudioChunk, error) {
	select {
	case <-ctx.Done():
		return AudioChunk{}, ctx.Err()
	case chunk, ok := <-p.streamCh:
		if !ok {
			return AudioChunk{}, io.EOF
		}
		return chunk, nil
	}
}

// Stream returns the audio chunk channel.
func (p *PortAudioSource) Stream() <-chan AudioChunk {
	return p.streamCh
}

// Config returns the audio configuration.
func (p *PortAudioSource) Config() Config {
	return p.cfg
}

// Name returns "portaudio".
func (p *PortAudioSource) Name() string {
	return "portaudio"
}

// Close releases resources, including the PortAudio handle.
func (p *PortAudioSource) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.mu.Unlock()

	p.Stop()
	return portaudio.Terminate()
}

// Stats returns source statistics.
func (p *PortAudioSource) Stats() SourceStats {
	p.mu.Lock()
	running := p.running
	p.mu.Unlock()

	return SourceStats{
		ChunksRead:  p.chunksRead.Load(),
		SamplesRead: p.samplesRead.Load(),
		Overruns:    p.overruns.Load(),
		Running:     running,
		Backend:     "portaudio",
	}
}

var _ SourceWithStats = (*PortAudioSource)(nil)

// PortAudioSink plays audio using the PortAudio library.
type PortAudioSink struct {
	cfg    Config
	logger *slog.Logger

	mu      sync.Mutex
	stream  *portaudio.Stream
	out     []float32
	pending []float32
	running bool
	closed  bool

	// Stats
	chunksWritten  atomic.Int64
	samplesWritten atomic.Int64
	underruns      atomic.Int64
}

// newPortAudioSink opens the default output device.
func newPortAudioSink(cfg Config, logger *slog.Logger) (Sink, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
	}

	return &PortAudioSink{
		cfg:    cfg,
		logger: logger,
	}, nil
}

// Start begins audio playback.
func (p *PortAudioSink) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return io.ErrClosedPipe
	}
	if p.running {
		return nil
	}

	out := make([]float32, p.cfg.BlockSize*p.cfg.Channels)
	stream, err := portaudio.OpenDefaultStream(
		0, p.cfg.Channels, float64(p.cfg.SampleRate), p.cfg.BlockSize, out)
	if err != nil {
		return fmt.Errorf("%w: open output stream: %v", ErrDeviceUnavailable, err)
	}

	if err := stream.Start(); err != nil {
		stream.Close()
		return fmt.Errorf("%w: start output stream: %v", ErrDeviceUnavailable, err)
	}

	p.stream = stream
	p.out = out
	p.pending = p.pending[:0]
	p.running = true

	p.logger.Info("portaudio sink started",
		"sample_rate", p.cfg.SampleRate,
		"block_size", p.cfg.BlockSize,
	)

	return nil
}

// Stop halts audio playback.
func (p *PortAudioSink) Stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.running {
		return nil
	}

	p.running = false
	p.pending = p.pending[:0]

	if p.stream != nil {
		p.stream.Stop()
		p.stream.Close()
		p.stream = nil
	}

	p.logger.Info("portaudio sink stopped")

	return nil
}

// Write plays an audio chunk, blocking until it has been handed to the device.
// Samples accumulate in a pending buffer and are written one device block at
// a time; the remainder stays pending until the next Write or Clear.
func (p *PortAudioSink) Write(ctx context.Context, chunk AudioChunk) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed || !p.running {
		return io.ErrClosedPipe
	}

	p.pending = append(p.pending, chunk.Samples...)

	blockLen := len(p.out)
	for len(p.pending) >= blockLen {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		copy(p.out, p.pending[:blockLen])
		p.pending = p.pending[blockLen:]

		if err := p.stream.Write(); err != nil {
			if err == portaudio.OutputUnderflowed {
				p.underruns.Add(1)
				continue
			}
			return fmt.Errorf("portaudio write: %w", err)
		}
	}

	p.chunksWritten.Add(1)
	p.samplesWritten.Add(int64(len(chunk.Samples)))

	return nil
}

// Clear discards buffered audio.
func (p *PortAudioSink) Clear() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.pending = p.pending[:0]
	return nil
}

// Config returns the audio configuration.
func (p *PortAudioSink) Config() Config {
	return p.cfg
}

// Name returns "portaudio".
func (p *PortAudioSink) Name() string {
	return "portaudio"
}

// Close releases resources, including the PortAudio handle.
func (p *PortAudioSink) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.mu.Unlock()

	p.Stop()
	return portaudio.Terminate()
}

// Stats returns sink statistics.
func (p *PortAudioSink) Stats() SinkStats {
	p.mu.Lock()
	running := p.running
	p.mu.Unlock()

	return SinkStats{
		ChunksWritten:  p.chunksWritten.Load(),
		SamplesWritten: p.samplesWritten.Load(),
		Underruns:      p.underruns.Load(),
		Running:        running,
		Backend:        "portaudio",
	}
}

var _ SinkWithStats = (*PortAudioSink)(nil)
