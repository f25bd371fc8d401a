package audio

import "time"

// StopReason explains why a recording session ended.
type StopReason int

const (
	// StopNone means the session is still running.
	StopNone StopReason = iota
	// StopSilence means the gate observed a sustained silent run.
	StopSilence
	// StopTimeout means the maximum recording time was reached.
	StopTimeout
	// StopRequested means an external command ended the session.
	StopRequested
	// StopError means a stream error ended the session early.
	StopError
)

func (r StopReason) String() string {
	switch r {
	case StopNone:
		return "none"
	case StopSilence:
		return "silence"
	case StopTimeout:
		return "timeout"
	case StopRequested:
		return "requested"
	case StopError:
		return "error"
	default:
		return "unknown"
	}
}

// Gate turns a stream of loudness values into a stop decision. A stop is
// only signaled after loudness stays below the threshold for the full
// silence window; any loud sample breaks the run and the window starts
// over. The max duration is a hard ceiling that wins over everything else,
// so a session where speech never crosses the threshold still terminates.
//
// Gate is not safe for concurrent use. It is owned by the capture callback,
// which delivers blocks one at a time.
type Gate struct {
	threshold       float64
	silenceDuration time.Duration
	maxDuration     time.Duration

	start        time.Time
	silenceStart time.Time // zero while not in a silent run
}

// NewGate creates a Gate. The recording start time is taken from the first
// observed block.
func NewGate(threshold float64, silenceDuration, maxDuration time.Duration) *Gate {
	return &Gate{
		threshold:       threshold,
		silenceDuration: silenceDuration,
		maxDuration:     maxDuration,
	}
}

// Observe feeds one loudness sample taken at the given time and returns the
// stop decision. Once a terminal reason is returned the gate should not be
// fed again; sessions always build a fresh Gate.
func (g *Gate) Observe(loudness float64, now time.Time) StopReason {
	if g.start.IsZero() {
		g.start = now
	}

	if now.Sub(g.start) > g.maxDuration {
		return StopTimeout
	}

	if loudness < g.threshold {
		if g.silenceStart.IsZero() {
			g.silenceStart = now
		} else if now.Sub(g.silenceStart) > g.silenceDuration {
			return StopSilence
		}
		return StopNone
	}

	// Speech resumed, silent run broken.
	g.silenceStart = time.Time{}
	return StopNone
}

// InSilence reports whether the gate is currently inside a silent run.
func (g *Gate) InSilence() bool {
	return !g.silenceStart.IsZero()
}
