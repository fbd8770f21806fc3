// Package backoff computes capped exponential retry delays.
package backoff

import "time"

const (
	DefaultInitial = time.Second
	DefaultMax     = time.Minute
)

// Config zero values fall back to DefaultInitial and DefaultMax.
type Config struct {
	Initial time.Duration
	Max     time.Duration
}

// Delay returns Initial for the first attempt and doubles per attempt up to Max.
func (c Config) Delay(attempt int) time.Duration {
	initial, limit := c.Initial, c.Max
	if initial <= 0 {
		initial = DefaultInitial
	}
	if limit <= 0 {
		limit = DefaultMax
	}
	if initial > limit {
		return limit
	}

	d := initial
	for i := 1; i < attempt; i++ {
		if d >= limit/2 {
			return limit
		}
		d *= 2
	}
	return d
}
