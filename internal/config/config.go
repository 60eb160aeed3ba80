// Package config loads runtime settings from the environment and builds the
// process logger.
package config

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/roach88/wodrt/internal/engine"
)

const (
	defaultDBPath       = ""
	defaultTickInterval = 100 * time.Millisecond

	envDBPath       = "WODRT_DB_PATH"
	envLogLevel     = "WODRT_LOG_LEVEL"
	envLogFormat    = "WODRT_LOG_FORMAT"
	envTickInterval = "WODRT_TICK_INTERVAL"
	envMetricsAddr  = "WODRT_METRICS_ADDR"
	envMaxSteps     = "WODRT_MAX_STEPS"
)

// Log formats.
const (
	FormatText = "text"
	FormatJSON = "json"
)

// Config holds runtime configuration loaded from environment variables.
type Config struct {
	// DBPath is the session archive. Empty disables archiving.
	DBPath string

	LogLevel  slog.Level
	LogFormat string

	// TickInterval is the period of tick events in a live session.
	TickInterval time.Duration

	// MetricsAddr is the listen address of the status server. Empty
	// disables it.
	MetricsAddr string

	// MaxSteps bounds the actions applied while handling one event.
	MaxSteps int
}

// Default returns the configuration used when no variable is set.
func Default() Config {
	return Config{
		DBPath:       defaultDBPath,
		LogLevel:     slog.LevelInfo,
		LogFormat:    FormatText,
		TickInterval: defaultTickInterval,
		MaxSteps:     engine.DefaultMaxSteps,
	}
}

// Load reads configuration from environment variables with defaults.
// Unknown log levels fall back to info; malformed numbers and durations are
// errors.
func Load() (Config, error) {
	cfg := Default()

	if v := os.Getenv(envDBPath); v != "" {
		cfg.DBPath = v
	}
	if v := os.Getenv(envLogLevel); v != "" {
		cfg.LogLevel = ParseLogLevel(v)
	}
	if v := os.Getenv(envLogFormat); v != "" {
		format := strings.ToLower(v)
		if format != FormatText && format != FormatJSON {
			return cfg, fmt.Errorf("%s: unknown log format %q (want text or json)", envLogFormat, v)
		}
		cfg.LogFormat = format
	}
	if v := os.Getenv(envTickInterval); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return cfg, fmt.Errorf("%s: %w", envTickInterval, err)
		}
		if d <= 0 {
			return cfg, fmt.Errorf("%s: must be positive, got %s", envTickInterval, d)
		}
		cfg.TickInterval = d
	}
	if v := os.Getenv(envMetricsAddr); v != "" {
		cfg.MetricsAddr = v
	}
	if v := os.Getenv(envMaxSteps); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return cfg, fmt.Errorf("%s: %w", envMaxSteps, err)
		}
		if n < 1 {
			return cfg, fmt.Errorf("%s: must be at least 1, got %d", envMaxSteps, n)
		}
		cfg.MaxSteps = n
	}

	return cfg, nil
}

// ParseLogLevel maps a level name to a slog.Level. Unknown names are info.
func ParseLogLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// NewLogger creates a structured logger writing to w.
func NewLogger(w io.Writer, level slog.Level, format string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level}
	if format == FormatJSON {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
