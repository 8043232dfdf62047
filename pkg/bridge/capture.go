package bridge

import (
	"context"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"

	"github.com/earshot-ai/go-earpiece/pkg/audioio"
	"github.com/earshot-ai/go-earpiece/pkg/wire"
)

// framer accumulates samples into fixed-size capture blocks.
// No partial block is ever emitted; a trailing remainder stays buffered
// until more samples arrive or the framer is discarded with capture.
type framer struct {
	size int
	buf  []float32
}

func newFramer(size int) *framer {
	return &framer{size: size}
}

// Push appends samples and returns all complete blocks now available.
func (f *framer) Push(samples []float32) [][]float32 {
	f.buf = append(f.buf, samples...)

	var frames [][]float32
	for len(f.buf) >= f.size {
		frame := make([]float32, f.size)
		copy(frame, f.buf[:f.size])
		f.buf = f.buf[f.size:]
		frames = append(frames, frame)
	}
	return frames
}

// Pending returns the number of buffered samples short of a full block.
func (f *framer) Pending() int {
	return len(f.buf)
}

// capturePipeline owns the microphone source and the single in-order send
// path: source chunks flow through the framer, each complete block is
// PCM16-encoded, base64-wrapped in one outbound envelope, and written to
// the socket. Blocks that cannot be sent are dropped, never buffered.
type capturePipeline struct {
	src    audioio.Source
	sock   Socket
	logger *slog.Logger

	cancel   context.CancelFunc
	done     chan struct{}
	stopOnce sync.Once

	framesSent    atomic.Int64
	framesDropped atomic.Int64
	level         atomic.Uint64 // math.Float64bits of the last frame's RMS
}

// startCapture opens the source and begins the capture loop.
func startCapture(ctx context.Context, src audioio.Source, sock Socket, logger *slog.Logger) (*capturePipeline, error) {
	runCtx, cancel := context.WithCancel(ctx)

	if err := src.Start(runCtx); err != nil {
		cancel()
		src.Close()
		return nil, err
	}

	c := &capturePipeline{
		src:    src,
		sock:   sock,
		logger: logger,
		cancel: cancel,
		done:   make(chan struct{}),
	}

	go c.run(runCtx)

	logger.Info("capture started",
		"backend", src.Name(),
		"sample_rate", src.Config().SampleRate,
		"block_size", src.Config().BlockSize,
	)

	return c, nil
}

func (c *capturePipeline) run(ctx context.Context) {
	defer close(c.done)

	cfg := c.src.Config()
	fr := newFramer(cfg.BlockSize)

	for {
		select {
		case <-ctx.Done():
			return
		case chunk, ok := <-c.src.Stream():
			if !ok {
				return
			}
			samples := chunk.Samples
			if cfg.Channels == 2 {
				// The bridge expects mono; downmix stereo devices.
				samples = audioio.StereoToMono(samples)
			}
			for _, frame := range fr.Push(samples) {
				c.sendFrame(frame)
			}
		}
	}
}

func (c *capturePipeline) sendFrame(frame []float32) {
	c.level.Store(math.Float64bits(audioio.CalculateRMS(frame)))

	env := wire.NewAudioEnvelope(wire.EncodeAudioPayload(frame))
	payload, err := env.Encode()
	if err != nil {
		c.framesDropped.Add(1)
		c.logger.Warn("encode frame failed", "error", err)
		return
	}

	if err := c.sock.Send(payload); err != nil {
		// Socket not open or write failed: drop the block silently.
		c.framesDropped.Add(1)
		c.logger.Debug("frame dropped", "error", err)
		return
	}
	c.framesSent.Add(1)
}

// stop halts the loop and releases the stream, device and callback
// together. Safe to call multiple times.
func (c *capturePipeline) stop() {
	c.stopOnce.Do(func() {
		c.cancel()
		c.src.Stop()
		<-c.done
		c.src.Close()

		c.logger.Info("capture stopped",
			"frames_sent", c.framesSent.Load(),
			"frames_dropped", c.framesDropped.Load(),
		)
	})
}

// Stats returns the send counters.
func (c *capturePipeline) Stats() (sent, dropped int64) {
	return c.framesSent.Load(), c.framesDropped.Load()
}

// Level returns the RMS of the most recently captured frame, 0..1.
func (c *capturePipeline) Level() float64 {
	return math.Float64frombits(c.level.Load())
}
