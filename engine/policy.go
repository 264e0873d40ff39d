package engine

import (
	"fmt"
	"time"

	"aionclock/config"
)

// RegistrationPolicy decides what happens after a failed join or registration.
type RegistrationPolicy interface {
	// Next is called after the attempt-th consecutive failure. It returns the
	// delay before the next attempt, or false to give up and enter ERROR.
	Next(attempt int, err error) (time.Duration, bool)
}

// TerminalPolicy gives up after the first failure.
type TerminalPolicy struct{}

func (TerminalPolicy) Next(int, error) (time.Duration, bool) { return 0, false }

// BackoffPolicy retries with a doubling delay between Min and Max. A zero
// MaxAttempts retries forever.
type BackoffPolicy struct {
	MaxAttempts int
	Min         time.Duration
	Max         time.Duration
}

func (p BackoffPolicy) Next(attempt int, _ error) (time.Duration, bool) {
	if p.MaxAttempts > 0 && attempt >= p.MaxAttempts {
		return 0, false
	}
	d := p.Min
	if d <= 0 {
		d = time.Second
	}
	for i := 1; i < attempt; i++ {
		d *= 2
		if p.Max > 0 && d >= p.Max {
			return p.Max, true
		}
	}
	if p.Max > 0 && d > p.Max {
		d = p.Max
	}
	return d, true
}

// PolicyFromConfig builds the policy named in the registration config.
func PolicyFromConfig(c config.RegistrationConfig) (RegistrationPolicy, error) {
	switch c.Policy {
	case "", "terminal":
		return TerminalPolicy{}, nil
	case "backoff":
		return BackoffPolicy{MaxAttempts: c.MaxAttempts, Min: c.MinBackoff, Max: c.MaxBackoff}, nil
	default:
		return nil, fmt.Errorf("unknown registration policy %q", c.Policy)
	}
}
