package audioio

import (
	"math"
	"testing"
)

func TestResample_SameRate(t *testing.T) {
	samples := []float32{0.1, 0.2, 0.3}
	result := Resample(samples, 16000, 16000)

	if len(result) != len(samples) {
		t.Errorf("same-rate resample changed length: %d -> %d", len(samples), len(result))
	}
}

func TestResample_Downsample(t *testing.T) {
	// 24kHz -> 16kHz should produce 2/3 the samples
	samples := make([]float32, 240)
	result := Resample(samples, 24000, 16000)

	want := 160
	if len(result) != want {
		t.Errorf("Resample(24k->16k) length = %d, want %d", len(result), want)
	}
}

func TestResample_Upsample(t *testing.T) {
	samples := make([]float32, 160)
	result := Resample(samples, 16000, 24000)

	want := 240
	if len(result) != want {
		t.Errorf("Resample(16k->24k) length = %d, want %d", len(result), want)
	}
}

func TestResample_Empty(t *testing.T) {
	if got := Resample([]float32{}, 16000, 24000); len(got) != 0 {
		t.Errorf("Resample of empty input returned %d samples", len(got))
	}
}

func TestResample_PreservesSineShape(t *testing.T) {
	// A low-frequency sine should survive resampling with small error.
	const freq = 100.0
	in := make([]float32, 1600)
	for i := range in {
		in[i] = float32(math.Sin(2 * math.Pi * freq * float64(i) / 16000))
	}

	out := Resample(in, 16000, 24000)

	for i := 10; i < len(out)-10; i++ {
		want := math.Sin(2 * math.Pi * freq * float64(i) / 24000)
		if diff := math.Abs(float64(out[i]) - want); diff > 0.01 {
			t.Fatalf("sample %d differs by %f", i, diff)
		}
	}
}

func TestMonoStereoRoundTrip(t *testing.T) {
	mono := []float32{0.1, -0.2, 0.3, -0.4}
	back := StereoToMono(MonoToStereo(mono))

	if len(back) != len(mono) {
		t.Fatalf("round trip length = %d, want %d", len(back), len(mono))
	}
	for i := range mono {
		if math.Abs(float64(back[i]-mono[i])) > 1e-6 {
			t.Errorf("sample %d: %f != %f", i, back[i], mono[i])
		}
	}
}

func TestCalculateRMS(t *testing.T) {
	tests := []struct {
		name    string
		samples []float32
		want    float64
	}{
		{"empty", nil, 0},
		{"silence", make([]float32, 100), 0},
		{"full scale", []float32{1, -1, 1, -1}, 1},
		{"half scale", []float32{0.5, -0.5}, 0.5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CalculateRMS(tt.samples)
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("CalculateRMS() = %f, want %f", got, tt.want)
			}
		})
	}
}

func TestCalculateRMS_Sine(t *testing.T) {
	// A full-scale sine has RMS amplitude/sqrt(2).
	in := make([]float32, 16000)
	for i := range in {
		in[i] = float32(math.Sin(2 * math.Pi * 440 * float64(i) / 16000))
	}

	got := CalculateRMS(in)
	want := 1 / math.Sqrt2
	if math.Abs(got-want) > 0.01 {
		t.Errorf("CalculateRMS(sine) = %f, want %f", got, want)
	}
}
