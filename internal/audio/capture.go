package audio

import (
	"encoding/binary"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/gen2brain/malgo"
)

// Block is one hardware-delivered chunk of normalized float32 samples with
// its capture timestamp. Blocks are ephemeral: consumed immediately, only
// copied when accumulated into a session buffer.
type Block struct {
	Samples []float32
	Time    time.Time
}

// blockSource abstracts the hardware callback so session logic can be
// driven by synthetic blocks in tests. start begins delivery; stop is
// synchronous and guarantees no callbacks run after it returns.
type blockSource interface {
	start(onBlock func(samples []float32, now time.Time)) error
	stop() error
}

// malgoSource delivers blocks from a malgo capture device.
type malgoSource struct {
	input  *InputDevice
	device *malgo.Device
}

func newMalgoSource(input *InputDevice) *malgoSource {
	return &malgoSource{input: input}
}

func (m *malgoSource) start(onBlock func([]float32, time.Time)) error {
	deviceCfg := malgo.DefaultDeviceConfig(malgo.Capture)
	deviceCfg.Capture.Format = malgo.FormatF32
	deviceCfg.Capture.Channels = m.input.Channels
	deviceCfg.Capture.DeviceID = m.input.id.Pointer()
	deviceCfg.SampleRate = m.input.SampleRate
	deviceCfg.PeriodSizeInFrames = m.input.ChunkSize

	channels := m.input.Channels
	callbacks := malgo.DeviceCallbacks{
		Data: func(_, raw []byte, frameCount uint32) {
			onBlock(bytesToFloat32(raw, frameCount*channels), time.Now())
		},
	}

	device, err := malgo.InitDevice(m.input.ctx.Context, deviceCfg, callbacks)
	if err != nil {
		return fmt.Errorf("initializing capture device: %w", err)
	}

	if err := device.Start(); err != nil {
		device.Uninit()
		return fmt.Errorf("starting capture device: %w", err)
	}

	m.device = device
	return nil
}

// stop tears the device down. Uninit blocks until the data callback has
// quiesced, so no block is delivered after stop returns.
func (m *malgoSource) stop() error {
	if m.device == nil {
		return nil
	}
	m.device.Uninit()
	m.device = nil
	return nil
}

// blockBacklog bounds the in-flight blocks between the hardware callback
// and the session owner. At typical chunk sizes this is several seconds of
// slack; a consumer stalled longer than that ends the session instead of
// blocking the producer.
const blockBacklog = 64

// session is one start-to-finish recording attempt. The hardware callback
// owns the gate and pushes blocks over a bounded channel; the session owner
// accumulates them. All channels are per-session, so a stop signal from an
// earlier session can never leak into a later one.
type session struct {
	id   string
	gate *Gate

	blocks chan Block
	errs   chan error

	stopOnce sync.Once
	stopped  chan struct{}
	reason   StopReason

	levelBits uint64 // atomic float64 bits, latest loudness
}

func newSession(id string, gate *Gate) *session {
	return &session{
		id:      id,
		gate:    gate,
		blocks:  make(chan Block, blockBacklog),
		errs:    make(chan error, 1),
		stopped: make(chan struct{}),
	}
}

// onBlock runs in the hardware-delivery context. It must never block: the
// gate is lock-free (owned solely by this context), the level store is
// atomic, and the block send is non-blocking with overflow treated as a
// stream error. Errors are reported through the side channel and re-raised
// by the owner, never thrown across the callback boundary.
func (s *session) onBlock(samples []float32, now time.Time) {
	select {
	case <-s.stopped:
		return
	default:
	}

	loudness := RMS(samples)
	s.storeLevel(loudness)

	if reason := s.gate.Observe(loudness, now); reason != StopNone {
		s.signalStop(reason)
		return
	}

	block := Block{Samples: make([]float32, len(samples)), Time: now}
	copy(block.Samples, samples)

	select {
	case s.blocks <- block:
	default:
		s.fail(fmt.Errorf("capture backlog full, consumer stalled"))
	}
}

// signalStop records the first stop reason and closes the stopped channel.
// Safe to call from any context, any number of times.
func (s *session) signalStop(reason StopReason) {
	s.stopOnce.Do(func() {
		s.reason = reason
		close(s.stopped)
	})
}

// fail reports a stream error and ends the session.
func (s *session) fail(err error) {
	select {
	case s.errs <- err:
	default:
	}
	s.signalStop(StopError)
}

// takeErr returns a pending stream error, if any.
func (s *session) takeErr() error {
	select {
	case err := <-s.errs:
		return err
	default:
		return nil
	}
}

func (s *session) storeLevel(v float64) {
	atomicStoreFloat(&s.levelBits, v)
}

// Level returns the most recent loudness sample.
func (s *session) Level() float64 {
	return atomicLoadFloat(&s.levelBits)
}

// bytesToFloat32 converts raw little-endian float32 bytes to samples.
func bytesToFloat32(data []byte, sampleCount uint32) []float32 {
	samples := make([]float32, 0, sampleCount)
	for i := uint32(0); i < sampleCount; i++ {
		offset := i * 4
		if offset+4 > uint32(len(data)) {
			break
		}
		bits := binary.LittleEndian.Uint32(data[offset : offset+4])
		samples = append(samples, math.Float32frombits(bits))
	}
	return samples
}
