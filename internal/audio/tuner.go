package audio

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
)

const (
	// silencePhase is the leading part of a tuning run during which the
	// user stays quiet; the remainder is speech.
	silencePhase = 3 * time.Second

	// separationGap is the minimum loudness gap between 10th-percentile
	// speech and maximum silence for the environment to count as cleanly
	// separated.
	separationGap = 0.5

	// minTuneSamples is the smallest sample set worth analyzing.
	minTuneSamples = 10
)

// loudnessSample is one loudness reading tagged with its elapsed offset
// into the tuning run.
type loudnessSample struct {
	value   float64
	elapsed time.Duration
}

// TuneResult holds the calibration statistics and threshold suggestions.
// Balanced is the recommended value; Conservative stops sooner, Aggressive
// tolerates longer pauses. Separated reports whether silence and speech
// levels were cleanly apart; when false the suggestions are a symmetric
// range around the midpoint and experimentation is needed.
type TuneResult struct {
	AvgSilence float64
	MaxSilence float64
	P95Silence float64
	AvgSpeech  float64
	MinSpeech  float64
	P10Speech  float64

	Conservative float64
	Balanced     float64
	Aggressive   float64
	Separated    bool
}

// Tune records a guided calibration run: silence for silencePhase, then
// speech for the rest of total. progress (may be nil) receives prompts for
// the user. The result does not touch any live gate; the caller decides
// whether to persist the balanced threshold.
func (r *Recorder) Tune(ctx context.Context, total time.Duration, progress func(string)) (*TuneResult, error) {
	if total <= silencePhase {
		return nil, fmt.Errorf("tuning duration must exceed %s", silencePhase)
	}
	if progress == nil {
		progress = func(string) {}
	}

	r.runMu.Lock()
	defer r.runMu.Unlock()

	samples := make(chan loudnessSample, 256)
	done := make(chan struct{})
	var once sync.Once

	// start is owned by the callback; deliveries are serial.
	var start time.Time
	err := r.src.start(func(block []float32, now time.Time) {
		if start.IsZero() {
			start = now
		}
		elapsed := now.Sub(start)
		if elapsed >= total {
			once.Do(func() { close(done) })
			return
		}
		select {
		case samples <- loudnessSample{value: RMS(block), elapsed: elapsed}:
		default:
		}
	})
	if err != nil {
		return nil, err
	}

	progress(fmt.Sprintf("Stay SILENT for %d seconds...", int(silencePhase.Seconds())))

	var collected []loudnessSample
	began := time.Now()
	ticker := time.NewTicker(250 * time.Millisecond)
	defer ticker.Stop()
	speechPrompted := false

collect:
	for {
		select {
		case s := <-samples:
			collected = append(collected, s)
		case <-ticker.C:
			if !speechPrompted && time.Since(began) >= silencePhase {
				progress(fmt.Sprintf("Now SPEAK clearly for %d seconds...", int((total - silencePhase).Seconds())))
				speechPrompted = true
			}
		case <-done:
			break collect
		case <-ctx.Done():
			r.src.stop()
			return nil, ctx.Err()
		}
	}

	if err := r.src.stop(); err != nil {
		return nil, fmt.Errorf("stopping tuning capture: %w", err)
	}
	close(samples)
	for s := range samples {
		collected = append(collected, s)
	}

	result, err := analyzeTuning(collected)
	if err != nil {
		return nil, err
	}

	r.log.Info("threshold tuning completed",
		zap.Float64("max_silence", result.MaxSilence),
		zap.Float64("p10_speech", result.P10Speech),
		zap.Float64("balanced", result.Balanced),
		zap.Bool("separated", result.Separated))

	return result, nil
}

// analyzeTuning splits the run into silence and speech phases and derives
// threshold suggestions.
func analyzeTuning(samples []loudnessSample) (*TuneResult, error) {
	if len(samples) < minTuneSamples {
		return nil, fmt.Errorf("not enough data collected for tuning (%d samples)", len(samples))
	}

	var silence, speech []float64
	for _, s := range samples {
		if s.elapsed < silencePhase {
			silence = append(silence, s.value)
		} else {
			speech = append(speech, s.value)
		}
	}
	if len(silence) == 0 || len(speech) == 0 {
		return nil, fmt.Errorf("insufficient silence or speech data")
	}

	res := &TuneResult{
		AvgSilence: mean(silence),
		MaxSilence: maxOf(silence),
		P95Silence: percentile(silence, 0.95),
		AvgSpeech:  mean(speech),
		MinSpeech:  minOf(speech),
		P10Speech:  percentile(speech, 0.10),
	}

	gap := res.P10Speech - res.MaxSilence
	if gap > separationGap {
		res.Separated = true
		res.Conservative = res.MaxSilence + gap*0.2
		res.Balanced = res.MaxSilence + gap*0.5
		res.Aggressive = res.MaxSilence + gap*0.8
		return res, nil
	}

	// Overlapping levels: fall back to a range around the midpoint.
	base := (res.MaxSilence + res.P10Speech) / 2
	res.Conservative = base * 0.7
	res.Balanced = base
	res.Aggressive = base * 1.4
	return res, nil
}

// percentile returns the nearest-rank percentile of data: the element at
// index floor(p * (n-1)) of a sorted copy, clamped to the valid range.
func percentile(data []float64, p float64) float64 {
	if len(data) == 0 {
		return 0
	}

	sorted := make([]float64, len(data))
	copy(sorted, data)
	sort.Float64s(sorted)

	idx := int(math.Floor(p * float64(len(sorted)-1)))
	if idx < 0 {
		idx = 0
	}
	if idx > len(sorted)-1 {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

func mean(data []float64) float64 {
	var sum float64
	for _, v := range data {
		sum += v
	}
	return sum / float64(len(data))
}

func maxOf(data []float64) float64 {
	m := data[0]
	for _, v := range data[1:] {
		if v > m {
			m = v
		}
	}
	return m
}

func minOf(data []float64) float64 {
	m := data[0]
	for _, v := range data[1:] {
		if v < m {
			m = v
		}
	}
	return m
}
