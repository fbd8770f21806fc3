package pool

import "time"

const (
	DefaultMaxWorkers      = 4
	DefaultMaxIdleTime     = 10 * time.Second
	DefaultCleanupInterval = time.Minute
)

// Config bounds a pool. MinWorkers slots are created eagerly and kept alive by
// the idle sweep; slots above that are created on demand up to MaxWorkers.
type Config struct {
	MinWorkers      int
	MaxWorkers      int
	MaxIdleTime     time.Duration
	CleanupInterval time.Duration
	// TaskTimeout rejects a task running longer than this and recycles its
	// slot once the unit returns. Zero disables it.
	TaskTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.MinWorkers < 0 {
		c.MinWorkers = 0
	}
	if c.MaxWorkers <= 0 {
		c.MaxWorkers = DefaultMaxWorkers
	}
	if c.MaxWorkers < c.MinWorkers {
		c.MaxWorkers = c.MinWorkers
	}
	if c.MaxWorkers == 0 {
		c.MaxWorkers = 1
	}
	if c.MaxIdleTime <= 0 {
		c.MaxIdleTime = DefaultMaxIdleTime
	}
	if c.CleanupInterval <= 0 {
		c.CleanupInterval = DefaultCleanupInterval
	}
	if c.TaskTimeout < 0 {
		c.TaskTimeout = 0
	}
	return c
}

// Stats is a point-in-time snapshot of a pool.
type Stats struct {
	Total      int `json:"total"`
	Idle       int `json:"idle"`
	Busy       int `json:"busy"`
	Draining   int `json:"draining"`
	Queued     int `json:"queued"`
	MinWorkers int `json:"min_workers"`
	MaxWorkers int `json:"max_workers"`
}
