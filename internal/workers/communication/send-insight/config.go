package sendinsight

import (
	"time"

	"breakfear-decoder/internal/common/config"
)

type Config struct {
	Enabled bool
	Timeout time.Duration
}

func LoadConfig(cfg *config.Config) *Config {
	c := &Config{Enabled: true, Timeout: 30 * time.Second}
	if cfg == nil {
		return c
	}
	c.Enabled = cfg.Integrations.AWS.SES.Enabled
	if wc := config.GetWorkerConfig(cfg, TaskType); wc.Timeout > 0 {
		c.Timeout = config.GetDuration(wc.Timeout)
	}
	return c
}
