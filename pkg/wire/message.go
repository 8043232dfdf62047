// Package wire defines the websocket message schema spoken between the
// earpiece client and the bridge, plus the PCM16 codec used for audio
// payloads. This package is shared by the streaming session and its tests.
package wire

import (
	"encoding/json"
	"fmt"
)

// Message type discriminants used by the bridge.
const (
	// TypeWhisper tags a short tactical text annotation.
	TypeWhisper = "whisper"
	// TypeAudio tags a synthesized speech payload.
	TypeAudio = "audio"
)

// PCMMimeType is the media type tag for raw PCM16 audio chunks.
const PCMMimeType = "audio/pcm"

// MediaChunk is one base64-encoded PCM frame with its media type.
type MediaChunk struct {
	MimeType string `json:"mime_type"`
	Data     string `json:"data"`
}

// RealtimeInput wraps the media chunks of one outbound envelope.
type RealtimeInput struct {
	MediaChunks []MediaChunk `json:"media_chunks"`
}

// OutboundEnvelope is the client -> bridge wire unit.
// Exactly one of RealtimeInput or ClientContent is set.
type OutboundEnvelope struct {
	RealtimeInput *RealtimeInput `json:"realtime_input,omitempty"`
	ClientContent *ClientContent `json:"client_content,omitempty"`
}

// ClientContent carries a typed text turn from the client.
type ClientContent struct {
	Text string `json:"text"`
}

// NewAudioEnvelope builds the envelope for one base64 PCM frame.
func NewAudioEnvelope(base64Data string) OutboundEnvelope {
	return OutboundEnvelope{
		RealtimeInput: &RealtimeInput{
			MediaChunks: []MediaChunk{
				{MimeType: PCMMimeType, Data: base64Data},
			},
		},
	}
}

// NewTextEnvelope builds the envelope for a client text turn.
func NewTextEnvelope(text string) OutboundEnvelope {
	return OutboundEnvelope{
		ClientContent: &ClientContent{Text: text},
	}
}

// Encode serializes the envelope to JSON.
func (e OutboundEnvelope) Encode() ([]byte, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("wire: encode envelope: %w", err)
	}
	return data, nil
}

// InboundMessage is the bridge -> client wire unit. All fields are optional
// and evaluated independently; legacy payloads omit Type entirely.
type InboundMessage struct {
	// Vol is volume telemetry in [0, 100]. A pointer distinguishes
	// "absent" from a literal zero.
	Vol *float64 `json:"vol,omitempty"`

	// Type is the optional discriminant: "whisper" or "audio".
	Type string `json:"type,omitempty"`

	// Text is present with TypeWhisper, or on untagged legacy payloads.
	Text string `json:"text,omitempty"`

	// Audio is base64 PCM16LE mono 24kHz, present with TypeAudio or on
	// untagged legacy payloads.
	Audio string `json:"audio,omitempty"`

	// MimeType describes the Audio payload when the bridge sends one.
	MimeType string `json:"mime_type,omitempty"`

	// TurnComplete marks the end of an agent turn.
	TurnComplete bool `json:"turn_complete,omitempty"`
}

// DecodeInbound parses one raw websocket payload.
func DecodeInbound(raw []byte) (InboundMessage, error) {
	var msg InboundMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return InboundMessage{}, fmt.Errorf("wire: decode message: %w", err)
	}
	return msg, nil
}

// HasVolume reports whether volume telemetry is present.
func (m *InboundMessage) HasVolume() bool {
	return m.Vol != nil
}

// HasAudio reports whether an audio payload is present.
func (m *InboundMessage) HasAudio() bool {
	return m.Audio != ""
}

// HasText reports whether a text payload is present.
func (m *InboundMessage) HasText() bool {
	return m.Text != ""
}
