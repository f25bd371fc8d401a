package audio

import (
	"fmt"
	"os"
	"time"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

const (
	// minClipBytes is the projected-file-size floor below which a session
	// is treated as having captured no meaningful audio.
	minClipBytes = 1000

	// minClipSeconds is the duration floor handed to consumers. Shorter
	// recordings are padded with trailing silence up to this length rather
	// than rejected.
	minClipSeconds = 1.0

	wavHeaderBytes = 44
	wavBitDepth    = 16
)

// projectedWAVSize returns the file size a clip with the given sample count
// would have as 16-bit PCM.
func projectedWAVSize(sampleCount int) int {
	return wavHeaderBytes + sampleCount*2
}

// padToMinDuration appends silence so the clip is at least minClipSeconds
// long.
func padToMinDuration(samples []float32, sampleRate, channels int) []float32 {
	want := int(minClipSeconds * float64(sampleRate) * float64(channels))
	if len(samples) >= want {
		return samples
	}
	return append(samples, make([]float32, want-len(samples))...)
}

// writeWAV encodes float32 samples as a 16-bit PCM WAV file and returns the
// clip duration.
func writeWAV(path string, samples []float32, sampleRate, channels int) (time.Duration, error) {
	f, err := os.Create(path)
	if err != nil {
		return 0, fmt.Errorf("creating wav file: %w", err)
	}

	enc := wav.NewEncoder(f, sampleRate, wavBitDepth, channels, 1)

	buf := &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: channels, SampleRate: sampleRate},
		Data:           make([]int, len(samples)),
		SourceBitDepth: wavBitDepth,
	}
	for i, s := range samples {
		buf.Data[i] = int(sampleToInt16(s))
	}

	if err := enc.Write(buf); err != nil {
		f.Close()
		os.Remove(path)
		return 0, fmt.Errorf("writing wav data: %w", err)
	}
	if err := enc.Close(); err != nil {
		f.Close()
		os.Remove(path)
		return 0, fmt.Errorf("finalizing wav file: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(path)
		return 0, fmt.Errorf("closing wav file: %w", err)
	}

	frames := len(samples) / channels
	duration := time.Duration(float64(frames) / float64(sampleRate) * float64(time.Second))
	return duration, nil
}

// sampleToInt16 converts a normalized float32 sample to 16-bit PCM,
// clamping out-of-range input.
func sampleToInt16(s float32) int16 {
	if s > 1.0 {
		s = 1.0
	} else if s < -1.0 {
		s = -1.0
	}
	return int16(s * 32767)
}
