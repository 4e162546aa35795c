// Package playback animates a marker along an assembled route.
//
// A Scheduler advances the marker a fixed fraction of a segment on every
// frame tick, stops once at the incident for a fixed delay, switches the
// marker from Empty to Carrying and continues to the end of the route.
// Cancel is immediate: once it returns, no further Frame is emitted and the
// scheduler state no longer changes, even for ticks or timers that were
// already in flight.
package playback

import (
	"fmt"

	"github.com/atharv3903/routeplay/internal/geo"
)

type Mode int

const (
	Moving Mode = iota
	Paused
	Done
)

var modeNames = [...]string{"moving", "paused", "done"}

func (m Mode) String() string {
	if m < 0 || int(m) >= len(modeNames) {
		return fmt.Sprintf("Mode(%d)", int(m))
	}
	return modeNames[m]
}

func (m Mode) MarshalText() ([]byte, error) { return []byte(m.String()), nil }

// Visual is the marker's look. It flips from Empty to Carrying once per
// route, when the stop at the incident ends.
type Visual int

const (
	Empty Visual = iota
	Carrying
)

func (v Visual) String() string {
	if v == Carrying {
		return "carrying"
	}
	return "empty"
}

func (v Visual) MarshalText() ([]byte, error) { return []byte(v.String()), nil }

// Frame is one observable animation state. Seq grows by one per frame.
// Position never moves backwards. Consecutive frames at the same position
// differ in Mode or Visual, as with the frame that ends the pause.
type Frame struct {
	Seq      uint64         `json:"seq"`
	Segment  int            `json:"segment"`
	Progress float64        `json:"progress"`
	Position geo.Coordinate `json:"position"`
	Mode     Mode           `json:"mode"`
	Visual   Visual         `json:"visual"`
}

// Before reports whether f is strictly earlier on the route than g.
func (f Frame) Before(g Frame) bool {
	if f.Segment != g.Segment {
		return f.Segment < g.Segment
	}
	return f.Progress < g.Progress
}
