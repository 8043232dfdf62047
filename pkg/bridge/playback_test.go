package bridge

import (
	"context"
	"testing"
	"time"

	"github.com/earshot-ai/go-earpiece/pkg/audioio"
	"github.com/earshot-ai/go-earpiece/pkg/wire"
)

func TestPlayerConvertsToSinkFormat(t *testing.T) {
	tests := []struct {
		name     string
		rate     int
		channels int
		wantLen  int
	}{
		{"native format passes through", 24000, 1, 240},
		{"resamples to sink rate", 48000, 1, 480},
		{"duplicates mono to stereo", 24000, 2, 480},
		{"resamples and widens", 48000, 2, 960},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := audioio.PlaybackConfig()
			cfg.Backend = audioio.BackendMock
			cfg.SampleRate = tt.rate
			cfg.Channels = tt.channels
			sink := audioio.NewMockSink(cfg, testLogger())

			pl, err := startPlayer(context.Background(), sink, 8, testLogger())
			if err != nil {
				t.Fatalf("startPlayer: %v", err)
			}
			defer pl.stop()

			// One 10ms chunk at the bridge's native 24kHz mono.
			payload := wire.EncodeAudioPayload(make([]float32, 240))
			if err := pl.Play(payload); err != nil {
				t.Fatalf("Play: %v", err)
			}

			deadline := time.Now().Add(2 * time.Second)
			for len(sink.Written()) == 0 {
				if time.Now().After(deadline) {
					t.Fatal("chunk never reached the sink")
				}
				time.Sleep(time.Millisecond)
			}

			chunk := sink.Written()[0]
			if len(chunk.Samples) != tt.wantLen {
				t.Errorf("expected %d samples at the sink, got %d", tt.wantLen, len(chunk.Samples))
			}
			if chunk.SampleRate != tt.rate {
				t.Errorf("expected sample rate %d, got %d", tt.rate, chunk.SampleRate)
			}
			if chunk.Channels != tt.channels {
				t.Errorf("expected %d channels, got %d", tt.channels, chunk.Channels)
			}
		})
	}
}
