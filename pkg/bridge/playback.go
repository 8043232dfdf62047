package bridge

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/earshot-ai/go-earpiece/pkg/audioio"
	"github.com/earshot-ai/go-earpiece/pkg/wire"
)

// player renders synthesized speech through one pooled sink per session.
// Chunks are queued and written by a single consumer goroutine, so
// overlapping payloads are serialized instead of played concurrently.
type player struct {
	sink   audioio.Sink
	logger *slog.Logger

	queue    chan []float32
	cancel   context.CancelFunc
	done     chan struct{}
	stopOnce sync.Once

	chunksPlayed  atomic.Int64
	chunksDropped atomic.Int64
}

// startPlayer opens the sink and begins the drain loop.
func startPlayer(ctx context.Context, sink audioio.Sink, queueDepth int, logger *slog.Logger) (*player, error) {
	runCtx, cancel := context.WithCancel(ctx)

	if err := sink.Start(runCtx); err != nil {
		cancel()
		sink.Close()
		return nil, err
	}

	p := &player{
		sink:   sink,
		logger: logger,
		queue:  make(chan []float32, queueDepth),
		cancel: cancel,
		done:   make(chan struct{}),
	}

	go p.run(runCtx)

	logger.Info("playback started",
		"backend", sink.Name(),
		"sample_rate", sink.Config().SampleRate,
	)

	return p, nil
}

func (p *player) run(ctx context.Context) {
	defer close(p.done)

	for {
		select {
		case <-ctx.Done():
			return
		case samples, ok := <-p.queue:
			if !ok {
				return
			}
			// The bridge sends mono at its own rate; bend the chunk to
			// whatever the sink was opened with.
			cfg := p.sink.Config()
			if cfg.SampleRate != wire.PlaybackSampleRate {
				samples = audioio.Resample(samples, wire.PlaybackSampleRate, cfg.SampleRate)
			}
			if cfg.Channels == 2 {
				samples = audioio.MonoToStereo(samples)
			}
			chunk := audioio.AudioChunk{
				Samples:    samples,
				SampleRate: cfg.SampleRate,
				Channels:   cfg.Channels,
			}
			if err := p.sink.Write(ctx, chunk); err != nil {
				p.chunksDropped.Add(1)
				p.logger.Warn("playback write failed", "error", err)
				continue
			}
			p.chunksPlayed.Add(1)
		}
	}
}

// Play decodes one base64 PCM payload and queues it for rendering.
// Decode failures are returned to the caller for logging; they never
// stop the drain loop.
func (p *player) Play(base64Payload string) error {
	samples, err := wire.DecodeAudioPayload(base64Payload)
	if err != nil {
		return err
	}

	select {
	case p.queue <- samples:
		return nil
	default:
		p.chunksDropped.Add(1)
		return ErrPlaybackBusy
	}
}

// stop halts the drain loop and releases the sink. Safe to call multiple
// times.
func (p *player) stop() {
	p.stopOnce.Do(func() {
		p.cancel()
		<-p.done
		p.sink.Clear()
		p.sink.Stop()
		p.sink.Close()

		p.logger.Info("playback stopped",
			"chunks_played", p.chunksPlayed.Load(),
			"chunks_dropped", p.chunksDropped.Load(),
		)
	})
}

// Stats returns the playback counters.
func (p *player) Stats() (played, dropped int64) {
	return p.chunksPlayed.Load(), p.chunksDropped.Load()
}
