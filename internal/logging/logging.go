// Package logging configures the process-wide structured loggers.
// Components obtain scoped loggers through ForService.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
)

var (
	mu               sync.RWMutex
	structuredLogger *slog.Logger
)

// Init initializes the logging system with a structured JSON logger on
// stdout at the given level and makes it the slog default.
func Init(level slog.Level) {
	mu.Lock()
	defer mu.Unlock()

	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	structuredLogger = slog.New(handler)
	slog.SetDefault(structuredLogger)
}

// ParseLevel maps a configured level name onto a slog.Level. Unknown
// names fall back to info.
func ParseLevel(name string) slog.Level {
	switch name {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// SetOutput redirects the structured logger, used by tests to capture or
// silence output.
func SetOutput(w io.Writer, level slog.Level) {
	mu.Lock()
	defer mu.Unlock()

	structuredLogger = slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(structuredLogger)
}

// Structured returns the globally configured structured logger.
// Falls back to the slog default if Init has not been called.
func Structured() *slog.Logger {
	mu.RLock()
	defer mu.RUnlock()

	if structuredLogger == nil {
		return slog.Default()
	}
	return structuredLogger
}

// ForService creates a new logger instance with the 'service' attribute
// added, using the global structured logger as the base.
func ForService(serviceName string) *slog.Logger {
	return Structured().With("service", serviceName)
}

// NewFileLogger creates a logger writing JSON records to the given file,
// with a 'service' attribute on every record. It returns the logger and a
// close function for the underlying file.
func NewFileLogger(filePath, serviceName string, level slog.Level) (*slog.Logger, func() error, error) {
	logDir := filepath.Dir(filePath)
	if logDir != "." {
		if err := os.MkdirAll(logDir, 0o755); err != nil {
			return nil, nil, fmt.Errorf("failed to create log directory %s: %w", logDir, err)
		}
	}

	f, err := os.OpenFile(filePath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open log file %s: %w", filePath, err)
	}

	handler := slog.NewJSONHandler(f, &slog.HandlerOptions{Level: level})
	logger := slog.New(handler).With("service", serviceName)

	return logger, f.Close, nil
}
