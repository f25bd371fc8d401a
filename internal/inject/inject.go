// Package inject delivers transcribed text into the focused application
// using robotgo, either as simulated keystrokes or a clipboard paste.
package inject

import (
	"fmt"

	"github.com/go-vgo/robotgo"
)

// Injector types or pastes text into the active application.
type Injector struct {
	method string // "type" or "paste"
}

// NewInjector creates an Injector. method must be "type" or "paste".
func NewInjector(method string) *Injector {
	return &Injector{method: method}
}

// Inject sends text using the configured method. Empty text is a no-op.
func (inj *Injector) Inject(text string) error {
	if text == "" {
		return nil
	}

	switch inj.method {
	case "paste":
		return inj.paste(text)
	default: // "type"
		robotgo.Type(text)
		return nil
	}
}

// paste puts the text on the clipboard, sends Ctrl+V, and restores the
// previous clipboard contents best-effort.
func (inj *Injector) paste(text string) error {
	prev, _ := robotgo.ReadAll()

	if err := robotgo.WriteAll(text); err != nil {
		return fmt.Errorf("inject: write to clipboard: %w", err)
	}

	if err := robotgo.KeyTap("v", "ctrl"); err != nil {
		return fmt.Errorf("inject: key tap ctrl+v: %w", err)
	}

	_ = robotgo.WriteAll(prev)

	return nil
}
