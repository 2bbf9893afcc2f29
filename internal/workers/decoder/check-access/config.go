package checkaccess

import (
	"time"

	"breakfear-decoder/internal/common/config"
)

type Config struct {
	Timeout   time.Duration
	CacheTTL  time.Duration
	KeyPrefix string
}

// LoadConfig reads the worker timeout. Cached decisions live briefly since a
// purchase changes the answer.
func LoadConfig(cfg *config.Config) *Config {
	c := &Config{
		Timeout:   30 * time.Second,
		CacheTTL:  30 * time.Second,
		KeyPrefix: "decoder:access:",
	}
	if cfg != nil {
		if wc := config.GetWorkerConfig(cfg, TaskType); wc.Timeout > 0 {
			c.Timeout = config.GetDuration(wc.Timeout)
		}
	}
	return c
}
