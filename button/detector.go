package button

import (
	"sync"
	"time"
)

// Event is a debounced button gesture.
type Event int

const (
	None Event = iota
	ShortPress
	LongHold
)

func (e Event) String() string {
	switch e {
	case ShortPress:
		return "short_press"
	case LongHold:
		return "long_hold"
	default:
		return "none"
	}
}

// Detector turns raw level changes into gestures. The driver feeds it from its
// edge callback with Set; the control loop drains it once per tick with Poll.
//
// A press released before the hold duration yields ShortPress on release. A
// press held for the hold duration yields LongHold while still held, and its
// release yields nothing.
type Detector struct {
	mu         sync.Mutex
	hold       time.Duration
	debounce   time.Duration
	pressed    bool
	pressedAt  time.Time
	lastChange time.Time
	held       bool
	pending    Event
}

// NewDetector creates a detector firing LongHold after hold.
func NewDetector(hold, debounce time.Duration) *Detector {
	return &Detector{hold: hold, debounce: debounce}
}

// Set records the button level at time at. Changes inside the debounce window
// of the previous accepted change are treated as bounce.
func (d *Detector) Set(pressed bool, at time.Time) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if pressed == d.pressed {
		return
	}
	if !d.lastChange.IsZero() && at.Sub(d.lastChange) < d.debounce {
		return
	}
	d.pressed = pressed
	d.lastChange = at
	if pressed {
		d.pressedAt = at
		d.held = false
		return
	}
	if !d.held {
		d.pending = ShortPress
	}
}

// Poll returns at most one gesture per call.
func (d *Detector) Poll(now time.Time) Event {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.pending != None {
		ev := d.pending
		d.pending = None
		return ev
	}
	if d.pressed && !d.held && now.Sub(d.pressedAt) >= d.hold {
		d.held = true
		return LongHold
	}
	return None
}
