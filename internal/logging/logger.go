// Package logging provides structured logging for roster.
// The TUI owns the terminal, so logs normally go to a file.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
)

// Config represents logging configuration.
type Config struct {
	Level  string `yaml:"level" env:"ROSTER_LOG_LEVEL"`   // "debug", "info", "warn", "error"
	Format string `yaml:"format" env:"ROSTER_LOG_FORMAT"` // "json" or "text"
	Output string `yaml:"output" env:"ROSTER_LOG_FILE"`   // "stdout", "stderr", "discard" or a file path
}

// DefaultConfig returns the default logging configuration.
func DefaultConfig() Config {
	return Config{
		Level:  "info",
		Format: "text",
		Output: "roster.log",
	}
}

// redactedKeys are attribute keys whose values never reach the log.
var redactedKeys = []string{"code", "token", "hash", "password", "session"}

// New creates a slog logger for the given configuration.
// The returned closer releases the output file, if any.
func New(cfg Config) (*slog.Logger, io.Closer, error) {
	var (
		out    io.Writer
		closer io.Closer = nopCloser{}
	)
	switch cfg.Output {
	case "stdout":
		out = os.Stdout
	case "stderr", "":
		out = os.Stderr
	case "discard":
		out = io.Discard
	default:
		f, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open log file %s: %w", cfg.Output, err)
		}
		out, closer = f, f
	}

	level, err := ParseLevel(cfg.Level)
	if err != nil {
		closer.Close()
		return nil, nil, err
	}

	opts := &slog.HandlerOptions{
		Level:       level,
		ReplaceAttr: redact,
	}

	var handler slog.Handler
	switch cfg.Format {
	case "json":
		handler = slog.NewJSONHandler(out, opts)
	default:
		handler = slog.NewTextHandler(out, opts)
	}
	return slog.New(handler), closer, nil
}

// ParseLevel converts a level name into a slog.Level.
func ParseLevel(name string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q", name)
	}
}

func redact(_ []string, a slog.Attr) slog.Attr {
	key := strings.ToLower(a.Key)
	for _, k := range redactedKeys {
		if strings.Contains(key, k) {
			return slog.String(a.Key, "[REDACTED]")
		}
	}
	return a
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

var (
	globalMu     sync.RWMutex
	globalLogger = slog.New(slog.NewTextHandler(io.Discard, nil))
)

// SetGlobal replaces the process-wide logger.
func SetGlobal(l *slog.Logger) {
	globalMu.Lock()
	defer globalMu.Unlock()
	globalLogger = l
}

// Global returns the process-wide logger. It discards output until SetGlobal is called.
func Global() *slog.Logger {
	globalMu.RLock()
	defer globalMu.RUnlock()
	return globalLogger
}

// Component returns the global logger tagged with a component name.
func Component(name string) *slog.Logger {
	return Global().With(slog.String("component", name))
}
