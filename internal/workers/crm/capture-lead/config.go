package capturelead

import (
	"time"

	"breakfear-decoder/internal/common/config"
)

type Config struct {
	Timeout       time.Duration
	DefaultSource string
}

func LoadConfig(cfg *config.Config) *Config {
	c := &Config{Timeout: 30 * time.Second, DefaultSource: "web"}
	if cfg == nil {
		return c
	}
	if wc := config.GetWorkerConfig(cfg, TaskType); wc.Timeout > 0 {
		c.Timeout = config.GetDuration(wc.Timeout)
	}
	if cfg.Decoder.SourceTag != "" {
		c.DefaultSource = cfg.Decoder.SourceTag
	}
	return c
}
