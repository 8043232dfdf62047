package audioio

import "math"

// Resample converts audio from one sample rate to another using linear
// interpolation. This is a simple resampler suitable for speech audio.
func Resample(samples []float32, fromRate, toRate int) []float32 {
	if fromRate == toRate {
		return samples
	}

	if len(samples) == 0 {
		return samples
	}

	ratio := float64(fromRate) / float64(toRate)
	newLen := int(float64(len(samples)) / ratio)

	if newLen == 0 {
		return []float32{}
	}

	result := make([]float32, newLen)

	for i := 0; i < newLen; i++ {
		srcPos := float64(i) * ratio
		srcIdx := int(srcPos)
		frac := srcPos - float64(srcIdx)

		if srcIdx >= len(samples)-1 {
			result[i] = samples[len(samples)-1]
		} else {
			// Linear interpolation
			s1 := float64(samples[srcIdx])
			s2 := float64(samples[srcIdx+1])
			result[i] = float32(s1 + frac*(s2-s1))
		}
	}

	return result
}

// MonoToStereo duplicates mono samples to stereo.
func MonoToStereo(samples []float32) []float32 {
	stereo := make([]float32, len(samples)*2)
	for i, s := range samples {
		stereo[i*2] = s
		stereo[i*2+1] = s
	}
	return stereo
}

// StereoToMono averages stereo samples to mono.
func StereoToMono(samples []float32) []float32 {
	mono := make([]float32, len(samples)/2)
	for i := range mono {
		mono[i] = (samples[i*2] + samples[i*2+1]) / 2
	}
	return mono
}

// CalculateRMS calculates the root mean square of samples.
// Returns a value between 0.0 and 1.0 for samples in [-1, 1].
func CalculateRMS(samples []float32) float64 {
	if len(samples) == 0 {
		return 0
	}

	var sum float64
	for _, s := range samples {
		sum += float64(s) * float64(s)
	}

	return math.Sqrt(sum / float64(len(samples)))
}
