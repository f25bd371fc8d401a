package audio

import (
	"fmt"

	"github.com/gen2brain/malgo"
	"go.uber.org/zap"
)

// DeviceRequest is the capture configuration the caller would like. The
// negotiated result may differ when the hardware does not support it.
type DeviceRequest struct {
	SampleRate uint32
	Channels   uint32
	ChunkSize  uint32 // frames per hardware block
}

// InputDevice is an opened capture device with a negotiated configuration.
type InputDevice struct {
	Name       string
	SampleRate uint32
	Channels   uint32
	ChunkSize  uint32

	ctx *malgo.AllocatedContext
	id  malgo.DeviceID
}

// OpenInput opens the default input device and negotiates a configuration
// close to the requested one: an exact sample-rate/channel match is
// preferred, otherwise the requested rate is clamped into the device's
// supported range and the channel count into the device maximum, falling
// back to the device's first advertised format. Failing to find a device or
// a configuration is fatal to starting a session but not to the process.
func OpenInput(req DeviceRequest, log *zap.Logger) (*InputDevice, error) {
	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, fmt.Errorf("initializing audio context: %w", err)
	}

	infos, err := ctx.Devices(malgo.Capture)
	if err != nil {
		freeContext(ctx)
		return nil, fmt.Errorf("querying input devices: %w", err)
	}
	if len(infos) == 0 {
		freeContext(ctx)
		return nil, fmt.Errorf("no input device available")
	}

	chosen := infos[0]
	for _, info := range infos {
		if info.IsDefault != 0 {
			chosen = info
			break
		}
	}

	dev := &InputDevice{
		Name:       chosen.Name(),
		SampleRate: req.SampleRate,
		Channels:   req.Channels,
		ChunkSize:  req.ChunkSize,
		ctx:        ctx,
		id:         chosen.ID,
	}

	// Detailed info carries the advertised formats. Some backends report
	// none in shared mode; the requested config is kept in that case and
	// the driver resamples.
	detail, err := ctx.DeviceInfo(malgo.Capture, chosen.ID, malgo.Shared)
	if err == nil && detail.FormatCount > 0 {
		rate, channels, ok := negotiate(detail.Formats[:detail.FormatCount], req.SampleRate, req.Channels)
		if !ok {
			freeContext(ctx)
			return nil, fmt.Errorf("no supported audio configuration found for %q", dev.Name)
		}
		dev.SampleRate = rate
		dev.Channels = channels
	}

	log.Info("using audio device",
		zap.String("device", dev.Name),
		zap.Uint32("sample_rate", dev.SampleRate),
		zap.Uint32("channels", dev.Channels))

	return dev, nil
}

// negotiate picks an operating sample rate and channel count from the
// advertised formats.
func negotiate(formats []malgo.DataFormat, wantRate, wantChannels uint32) (rate, channels uint32, ok bool) {
	if len(formats) == 0 {
		return 0, 0, false
	}

	// Exact match wins.
	for _, f := range formats {
		if f.SampleRate == wantRate && f.Channels == wantChannels {
			return wantRate, wantChannels, true
		}
	}

	// Clamp the requested rate into the range advertised for the requested
	// channel count.
	var minRate, maxRate uint32
	for _, f := range formats {
		if f.Channels != wantChannels {
			continue
		}
		if minRate == 0 || f.SampleRate < minRate {
			minRate = f.SampleRate
		}
		if f.SampleRate > maxRate {
			maxRate = f.SampleRate
		}
	}
	if minRate != 0 {
		return clampRate(wantRate, minRate, maxRate), wantChannels, true
	}

	// No format matches the requested channel count; fall back to the first
	// advertised format, folding channels down to the device maximum.
	first := formats[0]
	channels = first.Channels
	if wantChannels < channels {
		channels = wantChannels
	}
	if channels == 0 {
		channels = 1
	}
	return first.SampleRate, channels, true
}

func clampRate(want, min, max uint32) uint32 {
	if want < min {
		return min
	}
	if want > max {
		return max
	}
	return want
}

// Close releases the audio context.
func (d *InputDevice) Close() error {
	if d.ctx == nil {
		return nil
	}
	err := d.ctx.Uninit()
	d.ctx.Free()
	d.ctx = nil
	if err != nil {
		return fmt.Errorf("uninitializing audio context: %w", err)
	}
	return nil
}

func freeContext(ctx *malgo.AllocatedContext) {
	_ = ctx.Uninit()
	ctx.Free()
}
