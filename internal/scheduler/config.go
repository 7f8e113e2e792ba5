package scheduler

import (
	"time"

	"github.com/smallbiznis/waitlist/internal/config"
)

// Config controls scheduler intervals and batch sizes.
type Config struct {
	RunInterval     time.Duration
	BatchSize       int
	DripInterval    time.Duration
	DispatchTimeout time.Duration
	DripTimeout     time.Duration
	DripLockTTL     time.Duration
	EnabledJobs     []string
}

func DefaultConfig() Config {
	return Config{
		RunInterval:     30 * time.Second,
		BatchSize:       100,
		DripInterval:    time.Hour,
		DispatchTimeout: 30 * time.Second,
		DripTimeout:     10 * time.Minute,
		DripLockTTL:     15 * time.Minute,
	}
}

func ProvideConfig(cfg config.Config) Config {
	return Config{
		RunInterval: cfg.Scheduler.RunInterval,
		BatchSize:   cfg.Scheduler.BatchSize,
		EnabledJobs: cfg.Scheduler.EnabledJobs,
	}.withDefaults()
}

func (c Config) withDefaults() Config {
	defaults := DefaultConfig()
	if c.RunInterval <= 0 {
		c.RunInterval = defaults.RunInterval
	}
	if c.BatchSize <= 0 {
		c.BatchSize = defaults.BatchSize
	}
	if c.DripInterval <= 0 {
		c.DripInterval = defaults.DripInterval
	}
	if c.DispatchTimeout <= 0 {
		c.DispatchTimeout = defaults.DispatchTimeout
	}
	if c.DripTimeout <= 0 {
		c.DripTimeout = defaults.DripTimeout
	}
	if c.DripLockTTL < c.DripTimeout {
		c.DripLockTTL = c.DripTimeout + 5*time.Minute
	}
	return c
}
