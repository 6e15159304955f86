package streak

import "time"

// Option applies a configuration option to the Tracker.
type Option func(*Tracker)

// WithTimeout sets the rapid-kill chain window.
func WithTimeout(d time.Duration) Option {
	return func(t *Tracker) {
		if d > 0 {
			t.timeout = d
		}
	}
}

// WithClock sets the time source, used by tests.
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) {
		if now != nil {
			t.now = now
		}
	}
}
