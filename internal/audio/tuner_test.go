package audio

import (
	"testing"
	"time"
)

func TestPercentile(t *testing.T) {
	data := []float64{5, 1, 4, 2, 3}

	cases := []struct {
		p    float64
		want float64
	}{
		{0, 1},
		{0.5, 3},
		{1, 5},
	}
	for _, c := range cases {
		if got := percentile(data, c.p); got != c.want {
			t.Errorf("percentile(%v, %g) = %g, want %g", data, c.p, got, c.want)
		}
	}

	if got := percentile([]float64{7}, 0.5); got != 7 {
		t.Errorf("percentile(singleton, 0.5) = %g, want 7", got)
	}
	if got := percentile(nil, 0.5); got != 0 {
		t.Errorf("percentile(nil, 0.5) = %g, want 0", got)
	}
}

// tuneSamples builds a run with the given silence-phase and speech-phase
// loudness values.
func tuneSamples(silence, speech []float64) []loudnessSample {
	var out []loudnessSample
	for i, v := range silence {
		out = append(out, loudnessSample{value: v, elapsed: time.Duration(i) * 100 * time.Millisecond})
	}
	for i, v := range speech {
		out = append(out, loudnessSample{value: v, elapsed: silencePhase + time.Duration(i)*100*time.Millisecond})
	}
	return out
}

func TestAnalyzeTuningSeparated(t *testing.T) {
	samples := tuneSamples(
		[]float64{0.0, 0.2, 0.1, 0.15, 0.05},
		[]float64{10, 11, 12, 10.5, 11.5},
	)

	res, err := analyzeTuning(samples)
	if err != nil {
		t.Fatalf("analyzeTuning() error = %v", err)
	}

	if !res.Separated {
		t.Error("Separated = false, want true")
	}
	if res.MaxSilence != 0.2 {
		t.Errorf("MaxSilence = %g, want 0.2", res.MaxSilence)
	}
	if res.P10Speech != 10 {
		t.Errorf("P10Speech = %g, want 10", res.P10Speech)
	}

	// Suggestions sit inside the gap, ordered.
	if !(res.Conservative < res.Balanced && res.Balanced < res.Aggressive) {
		t.Errorf("suggestions not ordered: %g, %g, %g", res.Conservative, res.Balanced, res.Aggressive)
	}
	if res.Balanced <= res.MaxSilence || res.Balanced >= res.P10Speech {
		t.Errorf("Balanced = %g, want strictly between %g and %g", res.Balanced, res.MaxSilence, res.P10Speech)
	}
}

func TestAnalyzeTuningOverlapFallback(t *testing.T) {
	samples := tuneSamples(
		[]float64{9.8, 9.9, 10.0, 9.7, 9.6},
		[]float64{10.0, 10.1, 10.2, 9.9, 10.3},
	)

	res, err := analyzeTuning(samples)
	if err != nil {
		t.Fatalf("analyzeTuning() error = %v", err)
	}

	if res.Separated {
		t.Error("Separated = true, want false")
	}

	base := (res.MaxSilence + res.P10Speech) / 2
	if res.Balanced != base {
		t.Errorf("Balanced = %g, want midpoint %g", res.Balanced, base)
	}
	if res.Conservative != base*0.7 {
		t.Errorf("Conservative = %g, want %g", res.Conservative, base*0.7)
	}
	if res.Aggressive != base*1.4 {
		t.Errorf("Aggressive = %g, want %g", res.Aggressive, base*1.4)
	}
}

func TestAnalyzeTuningTooFewSamples(t *testing.T) {
	samples := tuneSamples([]float64{1, 2}, []float64{10, 11})
	if _, err := analyzeTuning(samples); err == nil {
		t.Error("analyzeTuning(too few) error = nil, want error")
	}
}

func TestAnalyzeTuningMissingPhase(t *testing.T) {
	// All samples inside the silence phase.
	samples := tuneSamples([]float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11}, nil)
	if _, err := analyzeTuning(samples); err == nil {
		t.Error("analyzeTuning(no speech phase) error = nil, want error")
	}
}
