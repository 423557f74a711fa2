package flux

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/petrijr/flux/internal/executor"
)

// Config holds the engine-wide defaults applied to steps that do not set
// their own policy, plus logger settings.
type Config struct {
	// DefaultRetries is the number of retries after the first attempt.
	DefaultRetries int `yaml:"default_retries"`

	// DefaultTimeout bounds each attempt. Zero disables the timeout.
	DefaultTimeout time.Duration `yaml:"default_timeout"`

	// BackoffBase and BackoffMax shape the delay between attempts:
	// min(BackoffBase * 2^attempt, BackoffMax).
	BackoffBase time.Duration `yaml:"backoff_base"`
	BackoffMax  time.Duration `yaml:"backoff_max"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level"`

	// LogFormat is text (colorized when attached to a terminal) or json.
	LogFormat string `yaml:"log_format"`
}

const (
	DefaultRetries     = 3
	DefaultStepTimeout = 30 * time.Second
	DefaultBackoffBase = executor.DefaultBackoffBase
	DefaultBackoffMax  = executor.DefaultBackoffMax
	DefaultLogLevel    = "info"
	DefaultLogFormat   = "text"

	MaxRetries = 1000
)

var (
	ErrInvalidRetries       = errors.New("default retries must be between 0 and 1000")
	ErrInvalidTimeout       = errors.New("default timeout must not be negative")
	ErrInvalidBackoffBase   = errors.New("backoff base must be positive")
	ErrInvalidBackoffMax    = errors.New("backoff max must be positive")
	ErrBackoffMaxTooSmall   = errors.New("backoff max must be >= backoff base")
	ErrInvalidLogLevel      = errors.New("invalid log level")
	ErrInvalidLogFormat     = errors.New("invalid log format")
	errConfigEnvUnparseable = errors.New("invalid environment variable")
)

// DefaultConfig returns the configuration used by the flux constructors
// when no Config is supplied.
func DefaultConfig() Config {
	return Config{
		DefaultRetries: DefaultRetries,
		DefaultTimeout: DefaultStepTimeout,
		BackoffBase:    DefaultBackoffBase,
		BackoffMax:     DefaultBackoffMax,
		LogLevel:       DefaultLogLevel,
		LogFormat:      DefaultLogFormat,
	}
}

// LoadConfig reads a YAML file on top of DefaultConfig and validates the
// result. Durations use Go syntax ("30s", "1m30s").
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// LoadFromEnv overrides fields from FLUX_* environment variables.
// Returns an error if any set variable cannot be parsed.
func (c *Config) LoadFromEnv() error {
	if v := os.Getenv("FLUX_DEFAULT_RETRIES"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%w FLUX_DEFAULT_RETRIES=%q: %v", errConfigEnvUnparseable, v, err)
		}
		c.DefaultRetries = n
	}
	durations := []struct {
		env string
		dst *time.Duration
	}{
		{"FLUX_DEFAULT_TIMEOUT", &c.DefaultTimeout},
		{"FLUX_BACKOFF_BASE", &c.BackoffBase},
		{"FLUX_BACKOFF_MAX", &c.BackoffMax},
	}
	for _, d := range durations {
		v := os.Getenv(d.env)
		if v == "" {
			continue
		}
		parsed, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%w %s=%q: %v", errConfigEnvUnparseable, d.env, v, err)
		}
		*d.dst = parsed
	}
	if v := os.Getenv("FLUX_LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv("FLUX_LOG_FORMAT"); v != "" {
		c.LogFormat = v
	}
	return nil
}

// Validate checks the configuration for invalid values.
func (c Config) Validate() error {
	if c.DefaultRetries < 0 || c.DefaultRetries > MaxRetries {
		return fmt.Errorf("%w: %d", ErrInvalidRetries, c.DefaultRetries)
	}
	if c.DefaultTimeout < 0 {
		return fmt.Errorf("%w: %s", ErrInvalidTimeout, c.DefaultTimeout)
	}
	if c.BackoffBase <= 0 {
		return fmt.Errorf("%w: %s", ErrInvalidBackoffBase, c.BackoffBase)
	}
	if c.BackoffMax <= 0 {
		return fmt.Errorf("%w: %s", ErrInvalidBackoffMax, c.BackoffMax)
	}
	if c.BackoffMax < c.BackoffBase {
		return fmt.Errorf("%w: %s < %s", ErrBackoffMaxTooSmall, c.BackoffMax, c.BackoffBase)
	}
	if _, err := parseLevel(c.LogLevel); err != nil {
		return err
	}
	switch strings.ToLower(c.LogFormat) {
	case "", "text", "json":
	default:
		return fmt.Errorf("%w: %q", ErrInvalidLogFormat, c.LogFormat)
	}
	return nil
}

// Logger builds the logger described by LogLevel and LogFormat. Invalid
// values fall back to info/text.
func (c Config) Logger() *slog.Logger {
	level, err := parseLevel(c.LogLevel)
	if err != nil {
		level = slog.LevelInfo
	}
	if strings.EqualFold(c.LogFormat, "json") {
		return NewJSONLogger(level)
	}
	return NewLogger(level)
}

func (c Config) executor() executor.Executor {
	return executor.Executor{
		DefaultRetries: c.DefaultRetries,
		DefaultTimeout: c.DefaultTimeout,
		BackoffBase:    c.BackoffBase,
		BackoffMax:     c.BackoffMax,
	}
}

func parseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("%w: %q", ErrInvalidLogLevel, s)
	}
}
