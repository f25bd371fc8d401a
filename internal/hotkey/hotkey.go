// Package hotkey provides the global key listener that ends a streaming
// recording early, using gohook.
package hotkey

import (
	"sync"

	hook "github.com/robotn/gohook"
)

// Stopper listens for a key combo and signals once when it is pressed.
type Stopper struct {
	keys      []string
	triggered chan struct{}
	done      chan struct{}
	fireOnce  sync.Once
	stopOnce  sync.Once
}

// NewStopper creates a Stopper for the given key combo. keys are lowercase
// key names (e.g. ["ctrl", "shift", "s"]).
func NewStopper(keys []string) *Stopper {
	return &Stopper{
		keys:      keys,
		triggered: make(chan struct{}),
		done:      make(chan struct{}),
	}
}

// Triggered returns a channel closed on the first press of the combo.
func (s *Stopper) Triggered() <-chan struct{} {
	return s.triggered
}

// Start begins listening. It blocks until Stop is called; run it in a
// goroutine.
func (s *Stopper) Start() {
	hook.Register(hook.KeyDown, s.keys, func(hook.Event) {
		s.fireOnce.Do(func() { close(s.triggered) })
	})

	evChan := hook.Start()
	go func() {
		<-s.done
		hook.End()
	}()
	<-hook.Process(evChan)
}

// Stop terminates the listener. Safe to call multiple times.
func (s *Stopper) Stop() {
	s.stopOnce.Do(func() {
		close(s.done)
	})
}
