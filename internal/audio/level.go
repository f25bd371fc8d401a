package audio

import "math"

// rmsScale converts raw RMS (samples in [-1, 1]) into the range used for
// configured and persisted thresholds. The constant must not change between
// releases or saved silence_threshold values stop meaning anything.
const rmsScale = 1000.0

// RMS returns the scaled root-mean-square loudness of a block of samples.
// An empty block yields 0.
func RMS(samples []float32) float64 {
	if len(samples) == 0 {
		return 0
	}

	var sum float64
	for _, s := range samples {
		sum += float64(s) * float64(s)
	}

	return math.Sqrt(sum/float64(len(samples))) * rmsScale
}
