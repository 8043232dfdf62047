package wire

import (
	"encoding/base64"
	"encoding/binary"
	"fmt"
)

// Sample rates used on the wire.
const (
	// CaptureSampleRate is the microphone rate sent to the bridge.
	CaptureSampleRate = 16000
	// PlaybackSampleRate is the rate of synthesized audio from the bridge.
	PlaybackSampleRate = 24000
)

// EncodePCM16 converts normalized float samples to little-endian PCM16
// bytes. Samples are clamped to [-1, 1]; negative values scale by 32768 and
// non-negative values by 32767, matching the asymmetric PCM16 range.
func EncodePCM16(samples []float32) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		if s < -1 {
			s = -1
		} else if s > 1 {
			s = 1
		}

		var v int16
		if s < 0 {
			v = int16(s * 32768)
		} else {
			v = int16(s * 32767)
		}

		binary.LittleEndian.PutUint16(out[i*2:], uint16(v))
	}
	return out
}

// DecodePCM16 converts little-endian PCM16 bytes to normalized float
// samples by dividing by 32768. Returns an error on odd byte length.
func DecodePCM16(data []byte) ([]float32, error) {
	if len(data)%2 != 0 {
		return nil, fmt.Errorf("wire: odd PCM16 payload length %d", len(data))
	}

	samples := make([]float32, len(data)/2)
	for i := range samples {
		v := int16(binary.LittleEndian.Uint16(data[i*2:]))
		samples[i] = float32(v) / 32768
	}
	return samples, nil
}

// EncodeAudioPayload encodes float samples as the base64 PCM16 string
// carried on the wire.
func EncodeAudioPayload(samples []float32) string {
	return base64.StdEncoding.EncodeToString(EncodePCM16(samples))
}

// DecodeAudioPayload decodes a base64 PCM16 string back to float samples.
func DecodeAudioPayload(payload string) ([]float32, error) {
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, fmt.Errorf("wire: decode base64 audio: %w", err)
	}
	return DecodePCM16(data)
}
