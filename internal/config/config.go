package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

type Config struct {
	Port        int    `env:"PORT" envDefault:"8080"`
	DatabaseURL string `env:"DATABASE_URL,required"`
	RedisURL    string `env:"REDIS_URL,required"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`
	LogFile     string `env:"LOG_FILE" envDefault:""`

	// Typing indicator tuning. TypingIdleMs is how long a typist may pause
	// before a stop signal is emitted; TypingTimeoutSeconds is the receiver's
	// implicit-stop window when no signal arrives at all.
	TypingIdleMs         int `env:"TYPING_IDLE_MS" envDefault:"1000"`
	TypingTimeoutSeconds int `env:"TYPING_TIMEOUT_SECONDS" envDefault:"3"`

	StatsRefreshSeconds int `env:"STATS_REFRESH_SECONDS" envDefault:"30"`
	PreviewMaxRunes     int `env:"PREVIEW_MAX_RUNES" envDefault:"80"`
	RateLimitPerMin     int `env:"RATE_LIMIT_PER_MIN" envDefault:"120"`
}

func (c *Config) TypingIdle() time.Duration {
	return time.Duration(c.TypingIdleMs) * time.Millisecond
}

func (c *Config) TypingTimeout() time.Duration {
	return time.Duration(c.TypingTimeoutSeconds) * time.Second
}

func (c *Config) StatsRefreshInterval() time.Duration {
	return time.Duration(c.StatsRefreshSeconds) * time.Second
}

func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

func (c *Config) Validate() error {
	if c.PreviewMaxRunes <= 0 {
		return fmt.Errorf("PREVIEW_MAX_RUNES must be positive")
	}
	if c.TypingIdleMs <= 0 {
		return fmt.Errorf("TYPING_IDLE_MS must be positive")
	}
	if c.TypingTimeout() <= c.TypingIdle() {
		return fmt.Errorf("TYPING_TIMEOUT_SECONDS must exceed the typing idle window")
	}
	if c.StatsRefreshSeconds <= 0 {
		return fmt.Errorf("STATS_REFRESH_SECONDS must be positive")
	}
	return nil
}

func Load() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return &cfg, nil
}
