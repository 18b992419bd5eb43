package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/seantiz/xbrowse/internal/browser"
	"github.com/seantiz/xbrowse/internal/retry"
	"github.com/seantiz/xbrowse/internal/session"
)

const (
	defaultListenAddr   = ":8080"
	defaultDBPath       = "xbrowse.db"
	defaultResultsDir   = "results"
	defaultConcurrency  = 4
	defaultTimeout      = 30 * time.Second
	defaultImplicitWait = 10 * time.Second
	defaultWidth        = 1280
	defaultHeight       = 720

	// DefaultPath is where init writes the configuration file.
	DefaultPath = "xbrowse.yaml"

	envListenAddr  = "XBROWSE_LISTEN_ADDR"
	envDBPath      = "XBROWSE_DB_PATH"
	envLogLevel    = "XBROWSE_LOG_LEVEL"
	envResultsDir  = "XBROWSE_RESULTS_DIR"
	envHeadless    = "XBROWSE_HEADLESS"
	envConcurrency = "XBROWSE_CONCURRENCY"
	envBaseURL     = "XBROWSE_BASE_URL"
	envOTLP        = "XBROWSE_OTLP_ENDPOINT"

	defaultOTLPEndpoint = "localhost:4317"
	defaultServiceName  = "xbrowse"
)

// ErrInvalid is wrapped by every validation error.
var ErrInvalid = errors.New("invalid configuration")

// Duration is a time.Duration that reads from YAML either as a Go duration
// string ("30s") or as a number of seconds.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: duration must be a scalar", node.Line)
	}
	if secs, err := strconv.ParseFloat(node.Value, 64); err == nil {
		*d = Duration(secs * float64(time.Second))
		return nil
	}
	v, err := time.ParseDuration(node.Value)
	if err != nil {
		return fmt.Errorf("line %d: invalid duration %q", node.Line, node.Value)
	}
	*d = Duration(v)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// Std returns d as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// WindowSize is the browser viewport.
type WindowSize struct {
	Width  int `yaml:"width"`
	Height int `yaml:"height"`
}

// RetryConfig bounds session launch retries.
type RetryConfig struct {
	MaxAttempts int      `yaml:"max_attempts"`
	BaseDelay   Duration `yaml:"base_delay"`
	MaxDelay    Duration `yaml:"max_delay"`
}

// EngineConfig is the per-engine section of the file.
type EngineConfig struct {
	Enabled        *bool          `yaml:"enabled,omitempty"`
	ExecutablePath string         `yaml:"executable_path,omitempty"`
	Args           []string       `yaml:"args,omitempty"`
	Prefs          map[string]any `yaml:"prefs,omitempty"`
}

// TelemetryConfig controls trace export. Tracing is off unless enabled.
type TelemetryConfig struct {
	Enabled      bool    `yaml:"enabled"`
	OTLPEndpoint string  `yaml:"otlp_endpoint"`
	ServiceName  string  `yaml:"service_name"`
	SampleRate   float64 `yaml:"sample_rate"`
}

// Config holds application configuration loaded from a YAML file and
// environment variables.
type Config struct {
	Browsers          []string                `yaml:"browsers"`
	TestPaths         []string                `yaml:"test_paths"`
	Tags              []string                `yaml:"tags"`
	ParallelExecution bool                    `yaml:"parallel_execution"`
	Concurrency       int                     `yaml:"concurrency"`
	Headless          bool                    `yaml:"headless"`
	Timeout           Duration                `yaml:"timeout"`
	WindowSize        WindowSize              `yaml:"window_size"`
	ImplicitWait      Duration                `yaml:"implicit_wait"`
	BaseURL           string                  `yaml:"base_url"`
	ResultsDir        string                  `yaml:"results_dir"`
	Retry             RetryConfig             `yaml:"retry"`
	Engines           map[string]EngineConfig `yaml:"engines,omitempty"`
	Telemetry         TelemetryConfig         `yaml:"telemetry"`

	ListenAddr string `yaml:"listen_addr"`
	DBPath     string `yaml:"db_path"`
	LogLevel   string `yaml:"log_level"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Browsers:     []string{"chrome", "firefox", "edge"},
		TestPaths:    []string{},
		Tags:         []string{},
		Concurrency:  defaultConcurrency,
		Timeout:      Duration(defaultTimeout),
		WindowSize:   WindowSize{Width: defaultWidth, Height: defaultHeight},
		ImplicitWait: Duration(defaultImplicitWait),
		ResultsDir:   defaultResultsDir,
		Retry: RetryConfig{
			MaxAttempts: retry.DefaultMaxAttempts,
			BaseDelay:   Duration(retry.DefaultBaseDelay),
			MaxDelay:    Duration(retry.DefaultMaxDelay),
		},
		Telemetry: TelemetryConfig{
			OTLPEndpoint: defaultOTLPEndpoint,
			ServiceName:  defaultServiceName,
			SampleRate:   1,
		},
		ListenAddr: defaultListenAddr,
		DBPath:     defaultDBPath,
		LogLevel:   "info",
	}
}

// Load reads the YAML file at path over the defaults, applies environment
// overrides and validates the result. An empty path skips the file.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	if v := os.Getenv(envListenAddr); v != "" {
		c.ListenAddr = v
	}
	if v := os.Getenv(envDBPath); v != "" {
		c.DBPath = v
	}
	if v := os.Getenv(envLogLevel); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv(envResultsDir); v != "" {
		c.ResultsDir = v
	}
	if v := os.Getenv(envBaseURL); v != "" {
		c.BaseURL = v
	}
	if v := os.Getenv(envOTLP); v != "" {
		c.Telemetry.Enabled = true
		c.Telemetry.OTLPEndpoint = v
	}
	if v := os.Getenv(envHeadless); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%w: %s=%q is not a boolean", ErrInvalid, envHeadless, v)
		}
		c.Headless = b
	}
	if v := os.Getenv(envConcurrency); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%w: %s=%q is not an integer", ErrInvalid, envConcurrency, v)
		}
		c.Concurrency = n
	}
	return nil
}

// Validate reports the first problem with c.
func (c Config) Validate() error {
	switch {
	case c.Concurrency < 1:
		return fmt.Errorf("%w: concurrency must be at least 1, got %d", ErrInvalid, c.Concurrency)
	case c.Timeout <= 0:
		return fmt.Errorf("%w: timeout must be positive", ErrInvalid)
	case c.ImplicitWait < 0:
		return fmt.Errorf("%w: implicit_wait must not be negative", ErrInvalid)
	case c.WindowSize.Width <= 0 || c.WindowSize.Height <= 0:
		return fmt.Errorf("%w: window_size must be positive, got %dx%d", ErrInvalid, c.WindowSize.Width, c.WindowSize.Height)
	case c.Retry.MaxAttempts < 1:
		return fmt.Errorf("%w: retry.max_attempts must be at least 1", ErrInvalid)
	case c.Retry.BaseDelay < 0 || c.Retry.MaxDelay < 0:
		return fmt.Errorf("%w: retry delays must not be negative", ErrInvalid)
	case c.Retry.MaxDelay > 0 && c.Retry.BaseDelay > c.Retry.MaxDelay:
		return fmt.Errorf("%w: retry.base_delay exceeds retry.max_delay", ErrInvalid)
	case c.ResultsDir == "":
		return fmt.Errorf("%w: results_dir must be set", ErrInvalid)
	case c.Telemetry.SampleRate < 0 || c.Telemetry.SampleRate > 1:
		return fmt.Errorf("%w: telemetry.sample_rate must be within [0, 1]", ErrInvalid)
	case c.Telemetry.Enabled && c.Telemetry.OTLPEndpoint == "":
		return fmt.Errorf("%w: telemetry.otlp_endpoint must be set when telemetry is enabled", ErrInvalid)
	}
	if _, ok := levels[strings.ToLower(c.LogLevel)]; !ok {
		return fmt.Errorf("%w: unknown log_level %q", ErrInvalid, c.LogLevel)
	}
	for _, b := range c.Browsers {
		if strings.TrimSpace(b) == "" {
			return fmt.Errorf("%w: empty browser name", ErrInvalid)
		}
	}
	return nil
}

// Workers returns the worker pool size: the configured concurrency when
// parallel execution is on, 1 otherwise.
func (c Config) Workers() int {
	if c.ParallelExecution {
		return c.Concurrency
	}
	return 1
}

// RetryPolicy returns the session launch retry policy.
func (c Config) RetryPolicy() retry.Policy {
	p := retry.Default()
	p.MaxAttempts = c.Retry.MaxAttempts
	p.BaseDelay = c.Retry.BaseDelay.Std()
	p.MaxDelay = c.Retry.MaxDelay.Std()
	return p
}

// Viewport returns the configured window size.
func (c Config) Viewport() browser.Viewport {
	return browser.Viewport{Width: c.WindowSize.Width, Height: c.WindowSize.Height}
}

// SessionConfig returns the per-session settings shared by every unit.
func (c Config) SessionConfig() session.Config {
	return session.Config{
		Headless:     c.Headless,
		Viewport:     c.Viewport(),
		ImplicitWait: c.ImplicitWait.Std(),
	}
}

// ApplyEngines hands the per-engine sections to the registry.
func (c Config) ApplyEngines(reg *browser.Registry) {
	for name, e := range c.Engines {
		reg.Configure(name, browser.EngineSettings{
			Disabled:       e.Enabled != nil && !*e.Enabled,
			ExecutablePath: e.ExecutablePath,
			Args:           e.Args,
			Prefs:          e.Prefs,
		})
	}
}

// Level returns the configured log level.
func (c Config) Level() slog.Level {
	return parseLogLevel(c.LogLevel)
}

const defaultHeader = `# xbrowse configuration.
# Durations accept Go syntax (30s, 1m) or plain seconds.
`

// WriteDefault writes the default configuration to path. An existing file
// is only replaced when overwrite is set.
func WriteDefault(path string, overwrite bool) error {
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config %s already exists", path)
		}
	}

	data, err := yaml.Marshal(Default())
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config dir: %w", err)
		}
	}
	if err := os.WriteFile(path, append([]byte(defaultHeader), data...), 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

var levels = map[string]slog.Level{
	"debug": slog.LevelDebug,
	"info":  slog.LevelInfo,
	"warn":  slog.LevelWarn,
	"error": slog.LevelError,
}

func parseLogLevel(s string) slog.Level {
	if l, ok := levels[strings.ToLower(s)]; ok {
		return l
	}
	return slog.LevelInfo
}

// NewLogger creates a structured JSON logger writing to w at the configured level.
func NewLogger(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: level,
	}))
}

// NewTextLogger creates a human-readable logger for interactive use.
func NewTextLogger(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{
		Level: level,
	}))
}
