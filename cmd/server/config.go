package main

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/riffluv/ito-sub008/internal/command"
	"github.com/riffluv/ito-sub008/internal/roomlock"
	"github.com/riffluv/ito-sub008/internal/syncpatch"
)

// Config is the yaml-backed server tuning. Every field falls back to
// the package defaults when left zero, so a partial config.yaml is fine.
type Config struct {
	Server struct {
		Port string `yaml:"port"`
	} `yaml:"server"`
	NATS struct {
		URL string `yaml:"url"`
	} `yaml:"nats"`
	Lock struct {
		TTLSeconds int `yaml:"ttl_seconds"`
		Attempts   int `yaml:"attempts"`
		BackoffMS  int `yaml:"backoff_ms"`
	} `yaml:"lock"`
	Rate struct {
		Limit         int `yaml:"limit"`
		WindowSeconds int `yaml:"window_seconds"`
	} `yaml:"rate"`
	Presence struct {
		ActiveWindowSeconds int `yaml:"active_window_seconds"`
		SkewSeconds         int `yaml:"skew_seconds"`
	} `yaml:"presence"`
	Deal struct {
		NumberMin int `yaml:"number_min"`
		NumberMax int `yaml:"number_max"`
	} `yaml:"deal"`
}

func loadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	return &config, nil
}

func (c *Config) port() string {
	if c.Server.Port != "" {
		return c.Server.Port
	}
	return getEnv("PORT", "8080")
}

func (c *Config) lockConfig() roomlock.Config {
	cfg := roomlock.DefaultConfig()
	if c.Lock.TTLSeconds > 0 {
		cfg.TTL = time.Duration(c.Lock.TTLSeconds) * time.Second
	}
	if c.Lock.Attempts > 0 {
		cfg.Attempts = c.Lock.Attempts
	}
	if c.Lock.BackoffMS > 0 {
		cfg.Backoff = time.Duration(c.Lock.BackoffMS) * time.Millisecond
	}
	return cfg
}

func (c *Config) commandConfig() command.Config {
	cfg := command.DefaultConfig()
	if c.Rate.Limit > 0 {
		cfg.RateLimit = c.Rate.Limit
	}
	if c.Rate.WindowSeconds > 0 {
		cfg.RateWindow = time.Duration(c.Rate.WindowSeconds) * time.Second
	}
	if c.Presence.ActiveWindowSeconds > 0 {
		cfg.Presence.ActiveWindow = time.Duration(c.Presence.ActiveWindowSeconds) * time.Second
	}
	if c.Presence.SkewSeconds > 0 {
		cfg.Presence.Skew = time.Duration(c.Presence.SkewSeconds) * time.Second
	}
	if c.Deal.NumberMin > 0 {
		cfg.NumberMin = c.Deal.NumberMin
	}
	if c.Deal.NumberMax > 0 {
		cfg.NumberMax = c.Deal.NumberMax
	}
	return cfg
}

func (c *Config) transportConfig() syncpatch.TransportConfig {
	cfg := syncpatch.DefaultTransportConfig()
	if c.NATS.URL != "" {
		cfg.URL = c.NATS.URL
	} else if url := os.Getenv("NATS_URL"); url != "" {
		cfg.URL = url
	}
	return cfg
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
