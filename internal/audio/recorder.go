// Package audio implements the silence-gated recording pipeline: device
// selection, the capture stream, the RMS level meter, the silence gate, the
// recording state machine, and the threshold tuner.
package audio

import (
	"context"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// State is the recorder's externally visible lifecycle state.
type State int

const (
	Idle State = iota
	Recording
	Stopping
	Finalizing
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Recording:
		return "recording"
	case Stopping:
		return "stopping"
	case Finalizing:
		return "finalizing"
	default:
		return "unknown"
	}
}

// RecorderConfig holds the silence-detection parameters for a recorder.
type RecorderConfig struct {
	SilenceThreshold float64
	SilenceDuration  time.Duration
	MaxRecordingTime time.Duration
}

// Clip is a finished recording: a WAV file on disk plus the reason the
// session ended.
type Clip struct {
	Path     string
	Duration time.Duration
	Reason   StopReason
}

// Status is a read-only snapshot of the recorder for display. It replaces
// any notion of a writable "currently recording" global.
type Status struct {
	State     string
	Recording bool
	Level     float64
	Elapsed   time.Duration
}

// Recorder owns the recording state machine. At most one session is active
// at a time; starting a new one while a previous session is stopping waits
// for the clean handoff instead of racing it.
type Recorder struct {
	src      blockSource
	rate     uint32
	channels uint32
	cfg      RecorderConfig
	log      *zap.Logger

	runMu sync.Mutex // serializes whole sessions

	mu    sync.Mutex // guards the snapshot fields below
	state State
	sess  *session
	began time.Time
}

// NewRecorder creates a recorder capturing from the given device.
func NewRecorder(dev *InputDevice, cfg RecorderConfig, log *zap.Logger) *Recorder {
	return newRecorderWithSource(newMalgoSource(dev), dev.SampleRate, dev.Channels, cfg, log)
}

func newRecorderWithSource(src blockSource, rate, channels uint32, cfg RecorderConfig, log *zap.Logger) *Recorder {
	return &Recorder{
		src:      src,
		rate:     rate,
		channels: channels,
		cfg:      cfg,
		log:      log,
	}
}

// RecordUntilSilence records until the silence gate fires, the maximum
// recording time is reached, or ctx is cancelled. It returns the finished
// clip, or (nil, nil) when no meaningful audio was captured. On a stream
// error any partially captured clip is returned together with the error so
// no audio is silently lost.
func (r *Recorder) RecordUntilSilence(ctx context.Context) (*Clip, error) {
	return r.run(ctx, nil)
}

// StreamSession is a handle to a background recording started with Stream.
type StreamSession struct {
	cancel context.CancelFunc
	done   chan struct{}
	clip   *Clip
	err    error
}

// Stop requests the session to end. The stop is honored only after all
// blocks already in flight have been accumulated.
func (s *StreamSession) Stop() { s.cancel() }

// Done returns a channel closed when the session has finalized.
func (s *StreamSession) Done() <-chan struct{} { return s.done }

// Wait blocks until the session has finalized and returns its result.
func (s *StreamSession) Wait() (*Clip, error) {
	<-s.done
	return s.clip, s.err
}

// Stream starts a background recording. Blocks are forwarded to sink (may
// be nil) as they arrive while also being accumulated for the final clip.
// The session ends on Stop, ctx cancellation, the silence gate, or the
// recording cap; the same gate/meter path as RecordUntilSilence runs either
// way, only the stop trigger differs.
func (r *Recorder) Stream(ctx context.Context, sink func(Block)) *StreamSession {
	sctx, cancel := context.WithCancel(ctx)
	ss := &StreamSession{cancel: cancel, done: make(chan struct{})}
	go func() {
		defer close(ss.done)
		defer cancel()
		ss.clip, ss.err = r.run(sctx, sink)
	}()
	return ss
}

func (r *Recorder) run(ctx context.Context, sink func(Block)) (*Clip, error) {
	r.runMu.Lock()
	defer r.runMu.Unlock()

	sess := newSession(uuid.NewString(), NewGate(r.cfg.SilenceThreshold, r.cfg.SilenceDuration, r.cfg.MaxRecordingTime))

	if err := r.src.start(sess.onBlock); err != nil {
		return nil, err
	}
	r.setActive(sess, Recording)
	r.log.Info("recording started",
		zap.String("session", sess.id),
		zap.Float64("threshold", r.cfg.SilenceThreshold))

	var buf []float32
accumulate:
	for {
		select {
		case b := <-sess.blocks:
			buf = append(buf, b.Samples...)
			if sink != nil {
				sink(b)
			}
		case <-sess.stopped:
			break accumulate
		case <-ctx.Done():
			sess.signalStop(StopRequested)
			break accumulate
		}
	}

	r.setState(Stopping)
	stopErr := r.src.stop()

	// The source is quiesced, so the owner closes the channel and drains
	// the tail: blocks in flight before the stop signal are never dropped.
	close(sess.blocks)
	for b := range sess.blocks {
		buf = append(buf, b.Samples...)
		if sink != nil {
			sink(b)
		}
	}
	streamErr := sess.takeErr()

	r.setState(Finalizing)
	clip, finErr := r.finalize(sess, buf)
	r.setActive(nil, Idle)

	switch {
	case streamErr != nil:
		return clip, fmt.Errorf("audio stream: %w", streamErr)
	case stopErr != nil:
		return clip, fmt.Errorf("stopping capture: %w", stopErr)
	case finErr != nil:
		return nil, finErr
	}
	return clip, nil
}

// finalize flushes the accumulated samples to a WAV file. Sessions under
// the byte floor yield no clip, which is a normal outcome rather than an
// error; sessions above it but shorter than the duration floor are padded
// with trailing silence.
func (r *Recorder) finalize(sess *session, buf []float32) (*Clip, error) {
	if projectedWAVSize(len(buf)) < minClipBytes {
		r.log.Info("no meaningful audio recorded",
			zap.String("session", sess.id),
			zap.Int("samples", len(buf)))
		return nil, nil
	}

	buf = padToMinDuration(buf, int(r.rate), int(r.channels))

	path := filepath.Join(os.TempDir(), fmt.Sprintf("simple-stt-%s.wav", sess.id[:8]))
	duration, err := writeWAV(path, buf, int(r.rate), int(r.channels))
	if err != nil {
		return nil, fmt.Errorf("finalizing recording: %w", err)
	}

	r.log.Info("recording completed",
		zap.String("session", sess.id),
		zap.String("path", path),
		zap.Duration("duration", duration),
		zap.Stringer("reason", sess.reason))

	return &Clip{Path: path, Duration: duration, Reason: sess.reason}, nil
}

// Snapshot returns the current display state.
func (r *Recorder) Snapshot() Status {
	r.mu.Lock()
	defer r.mu.Unlock()

	st := Status{
		State:     r.state.String(),
		Recording: r.state == Recording,
	}
	if r.sess != nil {
		st.Level = r.sess.Level()
	}
	if r.state != Idle && !r.began.IsZero() {
		st.Elapsed = time.Since(r.began)
	}
	return st
}

func (r *Recorder) setActive(sess *session, state State) {
	r.mu.Lock()
	r.sess = sess
	r.state = state
	if sess != nil {
		r.began = time.Now()
	} else {
		r.began = time.Time{}
	}
	r.mu.Unlock()
}

func (r *Recorder) setState(state State) {
	r.mu.Lock()
	r.state = state
	r.mu.Unlock()
}

func atomicStoreFloat(bits *uint64, v float64) {
	atomic.StoreUint64(bits, math.Float64bits(v))
}

func atomicLoadFloat(bits *uint64) float64 {
	return math.Float64frombits(atomic.LoadUint64(bits))
}
