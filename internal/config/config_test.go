package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seantiz/xbrowse/internal/browser"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{envListenAddr, envDBPath, envLogLevel, envResultsDir, envHeadless, envConcurrency, envBaseURL, envOTLP} {
		t.Setenv(k, "")
	}
}

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "xbrowse.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, defaultListenAddr, cfg.ListenAddr)
	assert.Equal(t, defaultDBPath, cfg.DBPath)
	assert.Equal(t, slog.LevelInfo, cfg.Level())
	assert.Equal(t, []string{"chrome", "firefox", "edge"}, cfg.Browsers)
	assert.False(t, cfg.ParallelExecution)
	assert.False(t, cfg.Headless)
	assert.Equal(t, 30*time.Second, cfg.Timeout.Std())
	assert.Equal(t, 10*time.Second, cfg.ImplicitWait.Std())
	assert.Equal(t, WindowSize{Width: 1280, Height: 720}, cfg.WindowSize)
	assert.Equal(t, 3, cfg.Retry.MaxAttempts)
	assert.Equal(t, 2*time.Second, cfg.Retry.BaseDelay.Std())
	assert.False(t, cfg.Telemetry.Enabled, "tracing is off by default")
	assert.Equal(t, "xbrowse", cfg.Telemetry.ServiceName)
}

func TestLoadFile(t *testing.T) {
	clearEnv(t)
	path := writeFile(t, `
browsers: [chrome, safari]
test_paths: ["login/*"]
tags: [smoke]
parallel_execution: true
concurrency: 6
headless: true
timeout: 45
window_size: {width: 1920, height: 1080}
implicit_wait: 2.5s
base_url: http://localhost:3000
retry:
  max_attempts: 5
  base_delay: 1s
  max_delay: 10s
engines:
  firefox:
    enabled: false
  chrome:
    executable_path: /opt/chrome/chrome
    args: [--disable-gpu]
    prefs:
      intl.accept_languages: en-GB
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, []string{"chrome", "safari"}, cfg.Browsers)
	assert.Equal(t, []string{"login/*"}, cfg.TestPaths)
	assert.Equal(t, []string{"smoke"}, cfg.Tags)
	assert.Equal(t, 6, cfg.Workers())
	assert.True(t, cfg.Headless)
	assert.Equal(t, 45*time.Second, cfg.Timeout.Std())
	assert.Equal(t, 2500*time.Millisecond, cfg.ImplicitWait.Std())
	assert.Equal(t, browser.Viewport{Width: 1920, Height: 1080}, cfg.Viewport())
	assert.Equal(t, "http://localhost:3000", cfg.BaseURL)

	p := cfg.RetryPolicy()
	assert.Equal(t, 5, p.MaxAttempts)
	assert.Equal(t, time.Second, p.BaseDelay)
	assert.Equal(t, 10*time.Second, p.MaxDelay)

	require.Contains(t, cfg.Engines, "firefox")
	require.NotNil(t, cfg.Engines["firefox"].Enabled)
	assert.False(t, *cfg.Engines["firefox"].Enabled)
	assert.Equal(t, "/opt/chrome/chrome", cfg.Engines["chrome"].ExecutablePath)
	assert.Equal(t, "en-GB", cfg.Engines["chrome"].Prefs["intl.accept_languages"])

	// Fields missing from the file keep their defaults.
	assert.Equal(t, defaultResultsDir, cfg.ResultsDir)
	assert.Equal(t, defaultListenAddr, cfg.ListenAddr)
}

func TestLoadEmptyFile(t *testing.T) {
	clearEnv(t)
	cfg, err := Load(writeFile(t, ""))
	require.NoError(t, err)
	assert.Equal(t, defaultConcurrency, cfg.Concurrency)
}

func TestLoadMissingFile(t *testing.T) {
	clearEnv(t)
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	clearEnv(t)
	_, err := Load(writeFile(t, "browser: [chrome]\n"))
	assert.Error(t, err)
}

func TestLoadRejectsBadDuration(t *testing.T) {
	clearEnv(t)
	_, err := Load(writeFile(t, "timeout: soon\n"))
	assert.ErrorContains(t, err, "invalid duration")
}

func TestLoadFromEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv(envListenAddr, ":9090")
	t.Setenv(envDBPath, "/tmp/test.db")
	t.Setenv(envLogLevel, "debug")
	t.Setenv(envResultsDir, "/tmp/out")
	t.Setenv(envHeadless, "true")
	t.Setenv(envConcurrency, "8")
	t.Setenv(envBaseURL, "http://app.test")

	cfg, err := Load(writeFile(t, "headless: false\nconcurrency: 2\n"))
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.ListenAddr)
	assert.Equal(t, "/tmp/test.db", cfg.DBPath)
	assert.Equal(t, slog.LevelDebug, cfg.Level())
	assert.Equal(t, "/tmp/out", cfg.ResultsDir)
	assert.True(t, cfg.Headless, "environment wins over the file")
	assert.Equal(t, 8, cfg.Concurrency)
	assert.Equal(t, "http://app.test", cfg.BaseURL)
}

func TestLoadTelemetry(t *testing.T) {
	clearEnv(t)
	cfg, err := Load(writeFile(t, "telemetry:\n  enabled: true\n  otlp_endpoint: collector:4317\n  sample_rate: 0.25\n"))
	require.NoError(t, err)
	assert.True(t, cfg.Telemetry.Enabled)
	assert.Equal(t, "collector:4317", cfg.Telemetry.OTLPEndpoint)
	assert.Equal(t, 0.25, cfg.Telemetry.SampleRate)
	assert.Equal(t, "xbrowse", cfg.Telemetry.ServiceName, "unset keys keep their defaults")

	t.Setenv(envOTLP, "otel.internal:4317")
	cfg, err = Load("")
	require.NoError(t, err)
	assert.True(t, cfg.Telemetry.Enabled, "an endpoint in the environment turns tracing on")
	assert.Equal(t, "otel.internal:4317", cfg.Telemetry.OTLPEndpoint)
}

func TestLoadBadEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv(envConcurrency, "many")
	_, err := Load("")
	assert.ErrorIs(t, err, ErrInvalid)

	clearEnv(t)
	t.Setenv(envHeadless, "maybe")
	_, err = Load("")
	assert.ErrorIs(t, err, ErrInvalid)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero concurrency", func(c *Config) { c.Concurrency = 0 }},
		{"zero timeout", func(c *Config) { c.Timeout = 0 }},
		{"negative implicit wait", func(c *Config) { c.ImplicitWait = Duration(-time.Second) }},
		{"zero width", func(c *Config) { c.WindowSize.Width = 0 }},
		{"zero attempts", func(c *Config) { c.Retry.MaxAttempts = 0 }},
		{"base above max", func(c *Config) { c.Retry.BaseDelay = Duration(time.Minute) }},
		{"no results dir", func(c *Config) { c.ResultsDir = "" }},
		{"unknown log level", func(c *Config) { c.LogLevel = "loud" }},
		{"blank browser", func(c *Config) { c.Browsers = []string{"chrome", " "} }},
		{"sample rate above one", func(c *Config) { c.Telemetry.SampleRate = 1.5 }},
		{"enabled without endpoint", func(c *Config) { c.Telemetry.Enabled = true; c.Telemetry.OTLPEndpoint = "" }},
	}
	require.NoError(t, Default().Validate())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			assert.ErrorIs(t, cfg.Validate(), ErrInvalid)
		})
	}
}

func TestWorkersSequentialByDefault(t *testing.T) {
	cfg := Default()
	cfg.Concurrency = 8
	assert.Equal(t, 1, cfg.Workers())
	cfg.ParallelExecution = true
	assert.Equal(t, 8, cfg.Workers())
}

func TestSessionConfig(t *testing.T) {
	cfg := Default()
	cfg.Headless = true
	sc := cfg.SessionConfig()
	assert.True(t, sc.Headless)
	assert.Equal(t, browser.Viewport{Width: 1280, Height: 720}, sc.Viewport)
	assert.Equal(t, 10*time.Second, sc.ImplicitWait)
}

func TestApplyEngines(t *testing.T) {
	off := false
	cfg := Default()
	cfg.Engines = map[string]EngineConfig{"firefox": {Enabled: &off}}

	reg := browser.NewRegistry(browser.HostProber())
	cfg.ApplyEngines(reg)

	d, ok := reg.Discover(t.Context()).Lookup("firefox")
	require.True(t, ok)
	assert.False(t, d.Available)
	assert.Equal(t, "disabled in configuration", d.Reason)
}

func TestWriteDefault(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "config", DefaultPath)

	require.NoError(t, WriteDefault(path, false))
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, Default().Browsers, cfg.Browsers)
	assert.Equal(t, Default().Timeout, cfg.Timeout)
	assert.Equal(t, Default().WindowSize, cfg.WindowSize)

	assert.Error(t, WriteDefault(path, false), "existing file is kept")
	assert.NoError(t, WriteDefault(path, true))
}

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		input string
		want  slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"DEBUG", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"error", slog.LevelError},
		{"", slog.LevelInfo},
		{"unknown", slog.LevelInfo},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := parseLogLevel(tt.input); got != tt.want {
				t.Errorf("parseLogLevel(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf, slog.LevelInfo)
	logger.Info("test message", "key", "value")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("log output is not valid JSON: %v\noutput: %s", err, buf.String())
	}
	if entry["msg"] != "test message" {
		t.Errorf("msg = %v, want %q", entry["msg"], "test message")
	}
	if entry["key"] != "value" {
		t.Errorf("key = %v, want %q", entry["key"], "value")
	}
}

func TestNewLoggerRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf, slog.LevelWarn)
	logger.Info("should not appear")
	if buf.Len() != 0 {
		t.Errorf("expected no output for info log at warn level, got: %s", buf.String())
	}
}
