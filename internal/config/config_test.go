package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

// Tests mutate the process environment, so none of them run in parallel.

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, ":5000", cfg.HTTPAddr)
	assert.Equal(t, "prompts", cfg.PromptsDir)
	assert.Equal(t, "prompt_usage.jsonl", cfg.UsageLogPath)
	assert.Empty(t, cfg.MetricsCachePath)
	assert.Equal(t, "30s", cfg.MetricsFlushInterval)
	assert.Equal(t, "info", cfg.LogLevel)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("HTTP_ADDR", ":9000")
	t.Setenv("PROMPTS_DIR", "/srv/prompts")
	t.Setenv("USAGE_LOG_PATH", "/var/log/usage.jsonl")
	t.Setenv("METRICS_CACHE_PATH", "/var/cache/metrics.json")
	t.Setenv("METRICS_FLUSH_INTERVAL", "5s")
	t.Setenv("LOG_LEVEL", "debug")
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, ":9000", cfg.HTTPAddr)
	assert.Equal(t, "/srv/prompts", cfg.PromptsDir)
	assert.Equal(t, "/var/log/usage.jsonl", cfg.UsageLogPath)
	assert.Equal(t, "/var/cache/metrics.json", cfg.MetricsCachePath)
	assert.Equal(t, "5s", cfg.MetricsFlushInterval)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestLoad_DotEnvFile(t *testing.T) {
	dir := t.TempDir()
	env := "HTTP_ADDR=:8080\nLOG_LEVEL=debug\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte(env), 0o600))
	t.Chdir(dir)
	t.Setenv("LOG_LEVEL", "error")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.HTTPAddr, "values come from .env")
	assert.Equal(t, "error", cfg.LogLevel, "environment wins over .env")
}

func TestLoad_BadFlushInterval(t *testing.T) {
	t.Setenv("METRICS_FLUSH_INTERVAL", "sometimes")
	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "METRICS_FLUSH_INTERVAL")
}

func TestValidate(t *testing.T) {
	base := Config{
		HTTPAddr:     ":5000",
		PromptsDir:   "prompts",
		UsageLogPath: "usage.jsonl",
	}
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "valid", mutate: func(*Config) {}},
		{name: "missing addr", mutate: func(c *Config) { c.HTTPAddr = "" }, wantErr: "HTTP_ADDR"},
		{name: "missing prompts dir", mutate: func(c *Config) { c.PromptsDir = "" }, wantErr: "PROMPTS_DIR"},
		{name: "missing log path", mutate: func(c *Config) { c.UsageLogPath = "" }, wantErr: "USAGE_LOG_PATH"},
		{name: "bad interval", mutate: func(c *Config) { c.MetricsFlushInterval = "fast" }, wantErr: "METRICS_FLUSH_INTERVAL"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base
			tt.mutate(&cfg)
			err := cfg.validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestFlushInterval(t *testing.T) {
	tests := []struct {
		raw  string
		want time.Duration
	}{
		{raw: "45s", want: 45 * time.Second},
		{raw: "2m", want: 2 * time.Minute},
		{raw: "", want: 30 * time.Second},
		{raw: "0s", want: 30 * time.Second},
		{raw: "-10s", want: 30 * time.Second},
	}
	for _, tt := range tests {
		cfg := Config{MetricsFlushInterval: tt.raw}
		assert.Equal(t, tt.want, cfg.FlushInterval(), "raw %q", tt.raw)
	}
}

func TestLevel(t *testing.T) {
	tests := []struct {
		raw  string
		want slog.Level
	}{
		{raw: "debug", want: slog.LevelDebug},
		{raw: "info", want: slog.LevelInfo},
		{raw: "warn", want: slog.LevelWarn},
		{raw: "WARNING", want: slog.LevelWarn},
		{raw: "error", want: slog.LevelError},
		{raw: "", want: slog.LevelInfo},
		{raw: "nonsense", want: slog.LevelInfo},
	}
	for _, tt := range tests {
		cfg := Config{LogLevel: tt.raw}
		assert.Equal(t, tt.want, cfg.Level(), "raw %q", tt.raw)
	}
}
