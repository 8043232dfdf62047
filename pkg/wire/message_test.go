package wire

import (
	"encoding/json"
	"testing"
)

func TestNewAudioEnvelope(t *testing.T) {
	env := NewAudioEnvelope("QUJD")

	data, err := env.Encode()
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}

	var decoded map[string]any
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("invalid JSON produced: %v", err)
	}

	ri, ok := decoded["realtime_input"].(map[string]any)
	if !ok {
		t.Fatal("envelope missing realtime_input")
	}
	chunks, ok := ri["media_chunks"].([]any)
	if !ok || len(chunks) != 1 {
		t.Fatalf("media_chunks = %v, want one chunk", ri["media_chunks"])
	}
	chunk := chunks[0].(map[string]any)
	if chunk["mime_type"] != PCMMimeType {
		t.Errorf("mime_type = %v, want %q", chunk["mime_type"], PCMMimeType)
	}
	if chunk["data"] != "QUJD" {
		t.Errorf("data = %v, want QUJD", chunk["data"])
	}
	if _, ok := decoded["client_content"]; ok {
		t.Error("audio envelope must not carry client_content")
	}
}

func TestNewTextEnvelope(t *testing.T) {
	env := NewTextEnvelope("hold firm")

	data, err := env.Encode()
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}

	var decoded map[string]any
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("invalid JSON produced: %v", err)
	}

	cc, ok := decoded["client_content"].(map[string]any)
	if !ok {
		t.Fatal("envelope missing client_content")
	}
	if cc["text"] != "hold firm" {
		t.Errorf("text = %v, want 'hold firm'", cc["text"])
	}
}

func TestDecodeInbound(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		wantErr bool
		check   func(t *testing.T, m InboundMessage)
	}{
		{
			name: "whisper",
			raw:  `{"type":"whisper","text":"stay silent"}`,
			check: func(t *testing.T, m InboundMessage) {
				if m.Type != TypeWhisper || m.Text != "stay silent" {
					t.Errorf("got %+v", m)
				}
				if m.HasVolume() || m.HasAudio() {
					t.Errorf("spurious fields present: %+v", m)
				}
			},
		},
		{
			name: "typed audio with mime",
			raw:  `{"type":"audio","audio":"QUJDRA==","mime_type":"audio/pcm;rate=24000"}`,
			check: func(t *testing.T, m InboundMessage) {
				if m.Type != TypeAudio || !m.HasAudio() {
					t.Errorf("got %+v", m)
				}
				if m.MimeType != "audio/pcm;rate=24000" {
					t.Errorf("mime_type = %q", m.MimeType)
				}
			},
		},
		{
			name: "legacy untagged audio",
			raw:  `{"audio":"QUJDRA=="}`,
			check: func(t *testing.T, m InboundMessage) {
				if m.Type != "" || !m.HasAudio() {
					t.Errorf("got %+v", m)
				}
			},
		},
		{
			name: "volume only",
			raw:  `{"vol":42.5}`,
			check: func(t *testing.T, m InboundMessage) {
				if !m.HasVolume() || *m.Vol != 42.5 {
					t.Errorf("got %+v", m)
				}
			},
		},
		{
			name: "zero volume still present",
			raw:  `{"vol":0}`,
			check: func(t *testing.T, m InboundMessage) {
				if !m.HasVolume() {
					t.Error("vol:0 should count as present")
				}
			},
		},
		{
			name: "turn complete",
			raw:  `{"turn_complete":true}`,
			check: func(t *testing.T, m InboundMessage) {
				if !m.TurnComplete {
					t.Error("turn_complete not parsed")
				}
			},
		},
		{
			name: "combined audio and volume",
			raw:  `{"type":"audio","audio":"QUJDRA==","vol":10}`,
			check: func(t *testing.T, m InboundMessage) {
				if !m.HasAudio() || !m.HasVolume() {
					t.Errorf("got %+v", m)
				}
			},
		},
		{
			name:    "not json",
			raw:     `this is not json`,
			wantErr: true,
		},
		{
			name:    "truncated json",
			raw:     `{"type":"whisp`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := DecodeInbound([]byte(tt.raw))
			if (err != nil) != tt.wantErr {
				t.Fatalf("DecodeInbound() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.check != nil {
				tt.check(t, m)
			}
		})
	}
}
