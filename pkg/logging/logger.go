// Package logging configures structured logging with zerolog.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// LogLevel represents the logging level.
type LogLevel string

const (
	// LevelDebug logs refills, request withdrawals and cache hits.
	LevelDebug LogLevel = "debug"

	// LevelInfo logs exhausted sources and CLI lifecycle events.
	LevelInfo LogLevel = "info"

	// LevelWarn logs retries and cache fallbacks.
	LevelWarn LogLevel = "warn"

	// LevelError logs failed fetches only.
	LevelError LogLevel = "error"

	// LevelDisabled silences all output.
	LevelDisabled LogLevel = "disabled"
)

// Config holds logger configuration.
type Config struct {
	// Level is the minimum log level to output.
	Level LogLevel

	// Pretty enables human-readable console output (default: false for JSON).
	Pretty bool

	// Output is the writer to output logs to (default: os.Stderr).
	Output io.Writer
}

// DefaultConfig returns a default logger configuration.
func DefaultConfig() Config {
	return Config{
		Level:  LevelInfo,
		Pretty: false,
		Output: os.Stderr,
	}
}

// Setup configures and installs the global zerolog logger.
func Setup(cfg Config) zerolog.Logger {
	zerolog.SetGlobalLevel(ParseLevel(cfg.Level))

	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}
	if cfg.Pretty {
		out = zerolog.ConsoleWriter{Out: out}
	}

	logger := zerolog.New(out).With().Timestamp().Logger()
	log.Logger = logger

	return logger
}

// ParseLevel converts a LogLevel to a zerolog.Level. Unknown values
// fall back to info.
func ParseLevel(level LogLevel) zerolog.Level {
	switch strings.ToLower(string(level)) {
	case "warning":
		return zerolog.WarnLevel
	case "":
		return zerolog.InfoLevel
	}
	l, err := zerolog.ParseLevel(strings.ToLower(string(level)))
	if err != nil || l == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return l
}

// ValidateLevel returns an error for a level ParseLevel would not accept
// verbatim.
func ValidateLevel(level LogLevel) error {
	if strings.EqualFold(string(level), "warning") {
		return nil
	}
	if _, err := zerolog.ParseLevel(strings.ToLower(string(level))); err != nil {
		return fmt.Errorf("invalid log level %q: %w", level, err)
	}
	return nil
}

// NewLogger returns a child of the global logger tagged with component.
func NewLogger(component string) zerolog.Logger {
	return log.With().Str("component", component).Logger()
}

// Log Level Guidelines:
//
// Debug: page refills (page, page_size, items, short), withdrawn
// requests, page cache hits and misses, ESI request flow.
//
// Info: a source reached its end, CLI start/stop, metrics server address.
//
// Warn: transport retries, page cache errors (the fetch falls through
// to the origin), rate limit throttling.
//
// Error: a page fetch failed and the iterator stopped, rate limit blocks,
// configuration errors.
//
// Context Fields:
//   - component: package emitting the line
//   - iterator: Config.Name of the iterator
//   - page, page_size, items, short: refill details
//   - endpoint, status_code, error_class: ESI request details
//   - errors_remaining: current ESI error limit
