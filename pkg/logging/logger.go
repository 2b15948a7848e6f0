// Package logging configures the process-wide zerolog logger and hands out
// component loggers.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Service is attached to every log line written through Setup.
const Service = "elexon-dl"

// LogLevel represents the logging level.
type LogLevel string

const (
	// LevelDebug logs debug messages and above.
	LevelDebug LogLevel = "debug"

	// LevelInfo logs info messages and above.
	LevelInfo LogLevel = "info"

	// LevelWarn logs warning messages and above.
	LevelWarn LogLevel = "warn"

	// LevelError logs error messages only.
	LevelError LogLevel = "error"
)

// Config holds logger configuration.
type Config struct {
	// Level is the minimum log level to output.
	Level LogLevel

	// Pretty switches from JSON lines to console output.
	Pretty bool

	// Output receives log lines (default: os.Stderr). Keep it off stdout so
	// command output stays machine readable.
	Output io.Writer
}

// DefaultConfig returns a default logger configuration.
func DefaultConfig() Config {
	return Config{
		Level:  LevelInfo,
		Output: os.Stderr,
	}
}

// Setup configures the global zerolog logger and returns it.
func Setup(cfg Config) zerolog.Logger {
	level, err := ParseLevel(string(cfg.Level))
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	output := cfg.Output
	if output == nil {
		output = os.Stderr
	}
	if cfg.Pretty {
		output = zerolog.ConsoleWriter{Out: output, TimeFormat: time.TimeOnly}
	}

	logger := zerolog.New(output).With().
		Timestamp().
		Str("service", Service).
		Logger()
	log.Logger = logger

	return logger
}

// ParseLevel converts a level name to a zerolog level. Matching is case
// insensitive and "warning" is accepted for warn.
func ParseLevel(level string) (zerolog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return zerolog.DebugLevel, nil
	case "info", "":
		return zerolog.InfoLevel, nil
	case "warn", "warning":
		return zerolog.WarnLevel, nil
	case "error":
		return zerolog.ErrorLevel, nil
	default:
		return zerolog.InfoLevel, fmt.Errorf("unknown log level %q", level)
	}
}

// NewLogger returns a child of the global logger tagged with component.
// Call it after Setup; loggers created earlier keep the old output.
func NewLogger(component string) zerolog.Logger {
	return log.With().Str("component", component).Logger()
}

// Level guidelines:
//
// Debug: cache hits and keys, backoff sleeps, per-context "no data" answers.
//
// Info: crawl start and end, chunk yields, health results.
//
// Warn: retried statuses, exhausted retry budgets, swallowed cache failures.
//
// Error: aborted batches and failed commands.
//
// Common fields:
//   - component: transport, cache, crawler, store, cli
//   - run_id: one crawl invocation
//   - spec: endpoint spec name
//   - url, status, attempt, backoff, error_class
