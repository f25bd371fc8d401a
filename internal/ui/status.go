// Package ui renders recorder state for the terminal. It only ever reads
// snapshots; it never drives the pipeline.
package ui

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/pmorken/simple-stt/internal/audio"
)

// Source is anything that can be polled for a display snapshot.
type Source interface {
	Snapshot() audio.Status
}

// Reporter polls a Source and writes human-readable status lines. State
// transitions always print; while recording, the level line refreshes in
// place.
type Reporter struct {
	src      Source
	out      io.Writer
	interval time.Duration
}

// NewReporter creates a Reporter polling at ~100ms.
func NewReporter(src Source, out io.Writer) *Reporter {
	return &Reporter{
		src:      src,
		out:      out,
		interval: 100 * time.Millisecond,
	}
}

// Run polls until ctx is cancelled.
func (r *Reporter) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	var lastState string
	for {
		select {
		case <-ctx.Done():
			if lastState != "" {
				fmt.Fprintln(r.out)
			}
			return
		case <-ticker.C:
			st := r.src.Snapshot()
			if st.State != lastState {
				if lastState != "" {
					fmt.Fprintln(r.out)
				}
				fmt.Fprintf(r.out, "[%s]\n", st.State)
				lastState = st.State
			}
			if st.Recording {
				fmt.Fprintf(r.out, "\r  %5.1fs  level %6.1f %s",
					st.Elapsed.Seconds(), st.Level, levelBar(st.Level))
			}
		}
	}
}

// levelBar renders a coarse loudness bar for the live display.
func levelBar(level float64) string {
	const width = 20
	n := int(level / 5)
	if n > width {
		n = width
	}
	bar := make([]byte, width)
	for i := range bar {
		if i < n {
			bar[i] = '#'
		} else {
			bar[i] = '.'
		}
	}
	return string(bar)
}
