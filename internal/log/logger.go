// Package log provides the process-wide structured logger for workhub with console and
// rotating file outputs and an in-memory tail of recent lines.
package log

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

// Config holds all logging configuration.
type Config struct {
	Mode   string `env:"WORKHUB_LOG_MODE" validate:"oneof=console file"`
	Level  string `env:"WORKHUB_LOG_LEVEL" validate:"oneof=debug info warn warning error"`
	Format string `env:"WORKHUB_LOG_FORMAT" validate:"oneof=text json"`

	// File mode
	FilePath   string `env:"WORKHUB_LOG_FILE" validate:"required_if=Mode file"`
	MaxSizeMB  int    `env:"WORKHUB_LOG_MAX_SIZE_MB" validate:"min=0"`
	MaxAgeDays int    `env:"WORKHUB_LOG_MAX_AGE_DAYS" validate:"min=0"`
	MaxBackups int    `env:"WORKHUB_LOG_MAX_BACKUPS" validate:"min=0"`

	// Lines kept in memory for the admin tail endpoint. 0 disables the tail.
	BufferLines int `env:"WORKHUB_LOG_BUFFER_LINES" validate:"min=0"`
}

// DefaultConfig returns the default logging configuration.
func DefaultConfig() Config {
	return Config{
		Mode:        "console",
		Level:       "info",
		Format:      "text",
		FilePath:    "workhub.log",
		MaxSizeMB:   100,
		MaxAgeDays:  7,
		MaxBackups:  3,
		BufferLines: 500,
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid log config: %w", err)
	}
	return nil
}

// ParseLevel converts a string level to slog.Level.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
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

var (
	mu            sync.RWMutex
	defaultLogger *slog.Logger
	tail          *RingBuffer
	output        io.Closer
)

// Init replaces the global logger. A previously opened log file is closed.
func Init(cfg Config) error {
	level := ParseLevel(cfg.Level)

	var (
		handler slog.Handler
		closer  io.Closer
	)
	switch cfg.Mode {
	case "file":
		f, err := OpenRotatingFile(cfg.FilePath, cfg.MaxSizeMB, cfg.MaxBackups, cfg.MaxAgeDays)
		if err != nil {
			return err
		}
		handler = NewConsoleHandler(f, cfg.Format, level)
		closer = f
	default:
		handler = NewConsoleHandler(os.Stdout, cfg.Format, level)
	}

	var rb *RingBuffer
	if cfg.BufferLines > 0 {
		rb = NewRingBuffer(cfg.BufferLines)
		handler = NewBufferHandler(handler, rb, level)
	}

	mu.Lock()
	prev := output
	defaultLogger = slog.New(handler)
	tail = rb
	output = closer
	slog.SetDefault(defaultLogger)
	mu.Unlock()

	if prev != nil {
		prev.Close()
	}
	return nil
}

// Close flushes and closes the log file, if any, and reverts to stderr.
func Close() error {
	mu.Lock()
	prev := output
	output = nil
	defaultLogger = slog.New(slog.NewTextHandler(os.Stderr, nil))
	slog.SetDefault(defaultLogger)
	mu.Unlock()

	if prev != nil {
		return prev.Close()
	}
	return nil
}

// Logger returns the current default logger.
func Logger() *slog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	if defaultLogger == nil {
		return slog.Default()
	}
	return defaultLogger
}

// Debug logs at debug level.
func Debug(msg string, args ...any) {
	Logger().Debug(msg, args...)
}

// Info logs at info level.
func Info(msg string, args ...any) {
	Logger().Info(msg, args...)
}

// Warn logs at warn level.
func Warn(msg string, args ...any) {
	Logger().Warn(msg, args...)
}

// Error logs at error level.
func Error(msg string, args ...any) {
	Logger().Error(msg, args...)
}

// With returns a logger with the given attributes.
func With(args ...any) *slog.Logger {
	return Logger().With(args...)
}

// Log logs at the given level.
func Log(ctx context.Context, level slog.Level, msg string, args ...any) {
	Logger().Log(ctx, level, msg, args...)
}

// Recent returns up to n of the most recent log lines, oldest first. The second
// result is false when the tail is disabled.
func Recent(n int) ([]string, bool) {
	mu.RLock()
	defer mu.RUnlock()
	if tail == nil {
		return nil, false
	}
	return tail.Lines(n), true
}
