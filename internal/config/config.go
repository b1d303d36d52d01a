// Package config loads service configuration from the environment and an
// optional .env file using Viper. Environment variables override .env values.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const defaultFlushInterval = 30 * time.Second

// Config holds the service configuration.
type Config struct {
	// HTTPAddr is the listen address of the HTTP server (e.g. ":5000").
	HTTPAddr string `mapstructure:"HTTP_ADDR"`
	// PromptsDir is the directory holding prompt definition YAML files.
	PromptsDir string `mapstructure:"PROMPTS_DIR"`
	// UsageLogPath is the append-only JSONL usage log file.
	UsageLogPath string `mapstructure:"USAGE_LOG_PATH"`
	// MetricsCachePath is the optional derived-metrics cache file. Empty
	// disables the cache; metrics are then rebuilt from the log alone.
	MetricsCachePath string `mapstructure:"METRICS_CACHE_PATH"`
	// MetricsFlushInterval is how often the metrics cache is rewritten,
	// as a Go duration string (e.g. "30s").
	MetricsFlushInterval string `mapstructure:"METRICS_FLUSH_INTERVAL"`
	// LogLevel is the slog level: debug, info, warn or error.
	LogLevel string `mapstructure:"LOG_LEVEL"`
}

// Load reads .env if present, applies defaults, and validates the result.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	_ = v.ReadInConfig() // .env is optional
	v.AutomaticEnv()

	v.SetDefault("HTTP_ADDR", ":5000")
	v.SetDefault("PROMPTS_DIR", "prompts")
	v.SetDefault("USAGE_LOG_PATH", "prompt_usage.jsonl")
	v.SetDefault("METRICS_CACHE_PATH", "")
	v.SetDefault("METRICS_FLUSH_INTERVAL", "30s")
	v.SetDefault("LOG_LEVEL", "info")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.HTTPAddr == "" {
		return errors.New("config: HTTP_ADDR must not be empty")
	}
	if c.PromptsDir == "" {
		return errors.New("config: PROMPTS_DIR must not be empty")
	}
	if c.UsageLogPath == "" {
		return errors.New("config: USAGE_LOG_PATH must not be empty")
	}
	if c.MetricsFlushInterval != "" {
		if _, err := time.ParseDuration(c.MetricsFlushInterval); err != nil {
			return fmt.Errorf("config: METRICS_FLUSH_INTERVAL: %w", err)
		}
	}
	return nil
}

// FlushInterval returns the parsed cache flush interval, falling back to 30s
// when unset or non-positive.
func (c *Config) FlushInterval() time.Duration {
	d, err := time.ParseDuration(c.MetricsFlushInterval)
	if err != nil || d <= 0 {
		return defaultFlushInterval
	}
	return d
}

// Level maps LogLevel onto slog.Level. Unknown values fall back to info.
func (c *Config) Level() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
