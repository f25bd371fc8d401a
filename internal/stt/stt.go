// Package stt defines the transcription backend contract and the
// preparation task that readies a backend concurrently with recording.
package stt

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/pmorken/simple-stt/internal/config"
)

// Processor is the transcription backend contract. Transcribe returns the
// recognized text, or an empty string when the audio contains no speech.
type Processor interface {
	// Prepare readies the backend (model download/load, credential check).
	Prepare(ctx context.Context) error

	// Transcribe converts the WAV file at path to text.
	Transcribe(ctx context.Context, path string) (string, error)

	// IsConfigured reports whether the backend is ready to transcribe.
	IsConfigured() bool
}

// New builds the Processor selected by the config.
func New(cfg config.WhisperConfig, log *zap.Logger) (Processor, error) {
	switch cfg.Backend {
	case "api":
		return newAPIProcessor(cfg, log), nil
	case "local":
		return newLocalProcessor(cfg, log), nil
	default:
		return nil, fmt.Errorf("unknown whisper backend %q", cfg.Backend)
	}
}

// Readiness is the observable state of the preparation task.
type Readiness int

const (
	// NotReady means preparation has not finished yet.
	NotReady Readiness = iota
	// Ready means the backend can transcribe.
	Ready
	// Failed means preparation failed; the reason is carried alongside.
	Failed
)

func (r Readiness) String() string {
	switch r {
	case NotReady:
		return "not ready"
	case Ready:
		return "ready"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// Preparation runs a Processor's Prepare in the background so recording can
// start immediately. Callers block on the result only at the point
// transcription is actually needed. A failed preparation never takes the
// recording down with it; the failure is surfaced when the processor is
// requested.
type Preparation struct {
	proc Processor
	done chan struct{}

	mu    sync.Mutex
	state Readiness
	err   error
}

// Begin starts preparing p in a goroutine and returns the handle.
func Begin(ctx context.Context, p Processor) *Preparation {
	prep := &Preparation{proc: p, done: make(chan struct{})}
	go func() {
		defer close(prep.done)
		err := p.Prepare(ctx)

		prep.mu.Lock()
		if err != nil {
			prep.state = Failed
			prep.err = err
		} else {
			prep.state = Ready
		}
		prep.mu.Unlock()
	}()
	return prep
}

// State returns a read-only snapshot of the preparation progress.
func (p *Preparation) State() (Readiness, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state, p.err
}

// Wait blocks until preparation resolves or ctx is cancelled, then returns
// the processor. On preparation failure the processor is still returned so
// the caller can report what it has; the error carries the reason.
func (p *Preparation) Wait(ctx context.Context) (Processor, error) {
	select {
	case <-p.done:
	case <-ctx.Done():
		return p.proc, ctx.Err()
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	return p.proc, p.err
}
