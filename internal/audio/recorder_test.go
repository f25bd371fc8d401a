package audio

import (
	"context"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
)

// fakeSource drives a recorder with scripted synthetic blocks. Each start
// runs the next script synchronously, mirroring how the hardware callback
// delivers blocks serially; stop is a no-op quiesce.
type fakeSource struct {
	scripts []func(deliver func([]float32, time.Time))

	mu      sync.Mutex
	starts  int
	stops   int
	stopErr error
}

func (f *fakeSource) start(onBlock func([]float32, time.Time)) error {
	f.mu.Lock()
	script := func(func([]float32, time.Time)) {}
	if f.starts < len(f.scripts) {
		script = f.scripts[f.starts]
	}
	f.starts++
	f.mu.Unlock()

	script(onBlock)
	return nil
}

func (f *fakeSource) stop() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stops++
	return f.stopErr
}

func blockOf(n int, amplitude float32) []float32 {
	b := make([]float32, n)
	for i := range b {
		b[i] = amplitude
	}
	return b
}

func testRecorder(src blockSource, cfg RecorderConfig) *Recorder {
	return newRecorderWithSource(src, 16000, 1, cfg, zap.NewNop())
}

var testCfg = RecorderConfig{
	SilenceThreshold: 15.0,
	SilenceDuration:  100 * time.Millisecond,
	MaxRecordingTime: 120 * time.Second,
}

func TestRecordUntilSilencePadsShortClip(t *testing.T) {
	src := &fakeSource{scripts: []func(func([]float32, time.Time)){
		func(deliver func([]float32, time.Time)) {
			t0 := time.Now()
			deliver(blockOf(3200, 0.1), t0) // 0.2s of speech
			deliver(nil, t0.Add(10*time.Millisecond))
			deliver(nil, t0.Add(200*time.Millisecond))
		},
	}}
	rec := testRecorder(src, testCfg)

	clip, err := rec.RecordUntilSilence(context.Background())
	if err != nil {
		t.Fatalf("RecordUntilSilence() error = %v", err)
	}
	if clip == nil {
		t.Fatal("RecordUntilSilence() clip = nil, want clip")
	}
	defer os.Remove(clip.Path)

	if clip.Reason != StopSilence {
		t.Errorf("Reason = %v, want %v", clip.Reason, StopSilence)
	}
	// 0.2s of audio padded up to the 1s floor.
	if clip.Duration != time.Second {
		t.Errorf("Duration = %v, want 1s", clip.Duration)
	}

	info, err := os.Stat(clip.Path)
	if err != nil {
		t.Fatalf("stat clip: %v", err)
	}
	if want := int64(projectedWAVSize(16000)); info.Size() != want {
		t.Errorf("file size = %d, want %d", info.Size(), want)
	}
}

func TestRecordUntilSilenceDropsNearEmptyClip(t *testing.T) {
	src := &fakeSource{scripts: []func(func([]float32, time.Time)){
		func(deliver func([]float32, time.Time)) {
			t0 := time.Now()
			deliver(blockOf(100, 0.1), t0)
			deliver(nil, t0.Add(10*time.Millisecond))
			deliver(nil, t0.Add(200*time.Millisecond))
		},
	}}
	rec := testRecorder(src, testCfg)

	clip, err := rec.RecordUntilSilence(context.Background())
	if err != nil {
		t.Fatalf("RecordUntilSilence() error = %v", err)
	}
	if clip != nil {
		os.Remove(clip.Path)
		t.Fatalf("clip = %+v, want nil for near-empty session", clip)
	}
}

func TestRecordUntilSilenceHonorsCap(t *testing.T) {
	cfg := testCfg
	cfg.MaxRecordingTime = time.Second

	src := &fakeSource{scripts: []func(func([]float32, time.Time)){
		func(deliver func([]float32, time.Time)) {
			t0 := time.Now()
			deliver(blockOf(3200, 0.1), t0)
			deliver(blockOf(3200, 0.1), t0.Add(500*time.Millisecond))
			deliver(blockOf(3200, 0.1), t0.Add(1100*time.Millisecond))
		},
	}}
	rec := testRecorder(src, cfg)

	clip, err := rec.RecordUntilSilence(context.Background())
	if err != nil {
		t.Fatalf("RecordUntilSilence() error = %v", err)
	}
	if clip == nil {
		t.Fatal("clip = nil, want clip")
	}
	defer os.Remove(clip.Path)

	if clip.Reason != StopTimeout {
		t.Errorf("Reason = %v, want %v", clip.Reason, StopTimeout)
	}
}

func TestRecordUntilSilenceDrainsTail(t *testing.T) {
	// 20 loud blocks land in the channel before the gate fires; all of
	// them must make it into the clip.
	src := &fakeSource{scripts: []func(func([]float32, time.Time)){
		func(deliver func([]float32, time.Time)) {
			t0 := time.Now()
			for i := 0; i < 20; i++ {
				deliver(blockOf(1600, 0.1), t0.Add(time.Duration(i)*time.Millisecond))
			}
			deliver(nil, t0.Add(30*time.Millisecond))
			deliver(nil, t0.Add(200*time.Millisecond))
		},
	}}
	rec := testRecorder(src, testCfg)

	clip, err := rec.RecordUntilSilence(context.Background())
	if err != nil {
		t.Fatalf("RecordUntilSilence() error = %v", err)
	}
	if clip == nil {
		t.Fatal("clip = nil, want clip")
	}
	defer os.Remove(clip.Path)

	// 20 * 1600 samples = 2s at 16kHz, above the padding floor.
	if want := 2 * time.Second; clip.Duration != want {
		t.Errorf("Duration = %v, want %v", clip.Duration, want)
	}
}

func TestBacklogOverflowEndsSession(t *testing.T) {
	src := &fakeSource{scripts: []func(func([]float32, time.Time)){
		func(deliver func([]float32, time.Time)) {
			t0 := time.Now()
			// Two more than the backlog: one overflows, one lands on a
			// stopped session.
			for i := 0; i < blockBacklog+2; i++ {
				deliver(blockOf(1600, 0.1), t0.Add(time.Duration(i)*time.Millisecond))
			}
		},
	}}
	rec := testRecorder(src, testCfg)

	clip, err := rec.RecordUntilSilence(context.Background())
	if err == nil {
		t.Fatal("RecordUntilSilence() error = nil, want stream error")
	}
	if !strings.Contains(err.Error(), "audio stream") {
		t.Errorf("error = %v, want audio stream error", err)
	}
	// The partial recording is preserved alongside the error.
	if clip == nil {
		t.Fatal("clip = nil, want partial clip")
	}
	defer os.Remove(clip.Path)

	if clip.Reason != StopError {
		t.Errorf("Reason = %v, want %v", clip.Reason, StopError)
	}
}

func TestStreamStopRequested(t *testing.T) {
	src := &fakeSource{scripts: []func(func([]float32, time.Time)){
		func(deliver func([]float32, time.Time)) {
			t0 := time.Now()
			for i := 0; i < 3; i++ {
				deliver(blockOf(1600, 0.1), t0.Add(time.Duration(i)*time.Millisecond))
			}
		},
	}}
	rec := testRecorder(src, testCfg)

	var mu sync.Mutex
	var sunk int
	ss := rec.Stream(context.Background(), func(b Block) {
		mu.Lock()
		sunk += len(b.Samples)
		mu.Unlock()
	})

	ss.Stop()
	clip, err := ss.Wait()
	if err != nil {
		t.Fatalf("Wait() error = %v", err)
	}
	if clip == nil {
		t.Fatal("clip = nil, want clip")
	}
	defer os.Remove(clip.Path)

	if clip.Reason != StopRequested {
		t.Errorf("Reason = %v, want %v", clip.Reason, StopRequested)
	}

	select {
	case <-ss.Done():
	default:
		t.Error("Done() not closed after Wait returned")
	}

	mu.Lock()
	defer mu.Unlock()
	if sunk != 3*1600 {
		t.Errorf("sink received %d samples, want %d", sunk, 3*1600)
	}
}

func TestImmediateRestartGetsFreshSession(t *testing.T) {
	// An earlier session's stop signal must never leak into the next one:
	// the second run has to record its own audio to completion.
	shortRun := func(deliver func([]float32, time.Time)) {
		t0 := time.Now()
		deliver(blockOf(3200, 0.1), t0)
		deliver(nil, t0.Add(10*time.Millisecond))
		deliver(nil, t0.Add(200*time.Millisecond))
	}
	longRun := func(deliver func([]float32, time.Time)) {
		t0 := time.Now()
		for i := 0; i < 20; i++ {
			deliver(blockOf(1600, 0.1), t0.Add(time.Duration(i)*time.Millisecond))
		}
		deliver(nil, t0.Add(30*time.Millisecond))
		deliver(nil, t0.Add(200*time.Millisecond))
	}
	src := &fakeSource{scripts: []func(func([]float32, time.Time)){shortRun, longRun}}
	rec := testRecorder(src, testCfg)

	first, err := rec.RecordUntilSilence(context.Background())
	if err != nil {
		t.Fatalf("first RecordUntilSilence() error = %v", err)
	}
	if first == nil {
		t.Fatal("first clip = nil, want clip")
	}
	defer os.Remove(first.Path)

	second, err := rec.RecordUntilSilence(context.Background())
	if err != nil {
		t.Fatalf("second RecordUntilSilence() error = %v", err)
	}
	if second == nil {
		t.Fatal("second clip = nil, want clip")
	}
	defer os.Remove(second.Path)

	if want := 2 * time.Second; second.Duration != want {
		t.Errorf("second Duration = %v, want %v", second.Duration, want)
	}
	if second.Path == first.Path {
		t.Error("second clip reused the first clip's path")
	}
}

func TestSnapshotIdle(t *testing.T) {
	rec := testRecorder(&fakeSource{}, testCfg)

	st := rec.Snapshot()
	if st.State != "idle" {
		t.Errorf("State = %q, want %q", st.State, "idle")
	}
	if st.Recording {
		t.Error("Recording = true, want false")
	}
	if st.Level != 0 {
		t.Errorf("Level = %g, want 0", st.Level)
	}
}
