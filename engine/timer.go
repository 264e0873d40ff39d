package engine

import "time"

// Timer is a restartable interval timer driven by the loop. Update latches
// expiry against the loop's clock; Finished consumes it.
type Timer struct {
	interval time.Duration
	deadline time.Time
	fired    bool
}

// NewTimer returns a timer armed to expire interval after now.
func NewTimer(interval time.Duration, now time.Time) *Timer {
	t := &Timer{}
	t.Reset(interval, now)
	return t
}

// Reset changes the interval and restarts the timer.
func (t *Timer) Reset(interval time.Duration, now time.Time) {
	if interval <= 0 {
		// A non-positive interval fires on every update.
		interval = time.Nanosecond
	}
	t.interval = interval
	t.Restart(now)
}

// Restart arms the timer for a full interval from now, dropping any
// unconsumed expiry.
func (t *Timer) Restart(now time.Time) {
	if t == nil {
		return
	}
	t.deadline = now.Add(t.interval)
	t.fired = false
}

// Update latches an expiry once the deadline has passed and schedules the
// next one. Expiries missed while the loop was busy collapse into one.
func (t *Timer) Update(now time.Time) {
	if t == nil || t.fired || now.Before(t.deadline) {
		return
	}
	t.fired = true
	t.deadline = now.Add(t.interval)
}

// Finished reports and clears a latched expiry. A nil timer never fires.
func (t *Timer) Finished() bool {
	if t == nil || !t.fired {
		return false
	}
	t.fired = false
	return true
}

// Interval returns the current interval.
func (t *Timer) Interval() time.Duration {
	if t == nil {
		return 0
	}
	return t.interval
}
