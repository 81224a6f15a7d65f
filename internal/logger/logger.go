// Package logger is the process-wide structured logger. It wraps log/slog
// with a runtime-adjustable level, a text or JSON format, and helpers that
// attach request-scoped fields carried in a context.
package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"
)

// Config holds logger configuration.
type Config struct {
	Level  string // DEBUG, INFO, WARN, ERROR
	Format string // text, json
	Output string // stdout, stderr, or file path
}

// Output formats.
const (
	FormatText = "text"
	FormatJSON = "json"
)

var (
	level = new(slog.LevelVar)

	mu      sync.RWMutex
	format  = FormatText
	out     io.Writer = os.Stdout
	color   bool
	logFile *os.File
	slogger *slog.Logger
)

func init() {
	color = isTerminal(os.Stdout)
	rebuild()
}

// rebuild swaps the handler for the current format and output. The level is
// shared through the LevelVar, so changing it needs no rebuild.
func rebuild() {
	mu.Lock()
	defer mu.Unlock()

	opts := &slog.HandlerOptions{Level: level}
	var h slog.Handler
	if format == FormatJSON {
		h = slog.NewJSONHandler(out, opts)
	} else {
		h = newTextHandler(out, opts, color)
	}
	slogger = slog.New(h)
}

// Init applies cfg. Empty fields keep their current value.
func Init(cfg Config) error {
	if cfg.Output != "" {
		if err := setOutput(cfg.Output); err != nil {
			return err
		}
	}
	if cfg.Level != "" {
		SetLevel(cfg.Level)
	}
	if cfg.Format != "" {
		SetFormat(cfg.Format)
	}
	rebuild()
	return nil
}

func setOutput(dest string) error {
	var (
		w        io.Writer
		useColor bool
		file     *os.File
	)

	switch strings.ToLower(dest) {
	case "stdout":
		w, useColor = os.Stdout, isTerminal(os.Stdout)
	case "stderr":
		w, useColor = os.Stderr, isTerminal(os.Stderr)
	default:
		f, err := os.OpenFile(dest, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return fmt.Errorf("failed to open log file %q: %w", dest, err)
		}
		w, file = f, f
	}

	mu.Lock()
	if logFile != nil {
		_ = logFile.Close()
	}
	out, color, logFile = w, useColor, file
	mu.Unlock()
	return nil
}

// InitWithWriter directs output to w. Used by tests.
func InitWithWriter(w io.Writer, levelName, formatName string, enableColor bool) {
	mu.Lock()
	out, color = w, enableColor
	mu.Unlock()

	if levelName != "" {
		SetLevel(levelName)
	}
	if formatName != "" {
		SetFormat(formatName)
	}
	rebuild()
}

// ParseLevel maps DEBUG, INFO, WARN or ERROR (any case) to a slog level.
func ParseLevel(s string) (slog.Level, bool) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "DEBUG":
		return slog.LevelDebug, true
	case "INFO":
		return slog.LevelInfo, true
	case "WARN", "WARNING":
		return slog.LevelWarn, true
	case "ERROR":
		return slog.LevelError, true
	}
	return 0, false
}

// SetLevel changes the minimum level. Unknown names are ignored.
func SetLevel(name string) {
	if l, ok := ParseLevel(name); ok {
		level.Set(l)
	}
}

// GetLevel returns the current minimum level.
func GetLevel() slog.Level {
	return level.Level()
}

// SetFormat switches between FormatText and FormatJSON. Unknown names are
// ignored.
func SetFormat(name string) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name != FormatText && name != FormatJSON {
		return
	}
	mu.Lock()
	changed := format != name
	format = name
	mu.Unlock()
	if changed {
		rebuild()
	}
}

func current() *slog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return slogger
}

func emit(ctx context.Context, l slog.Level, msg string, args []any) {
	if l < level.Level() {
		return
	}
	current().Log(ctx, l, msg, withContextFields(ctx, args)...)
}

// Debug logs at debug level. args are slog key/value pairs or slog.Attr.
func Debug(msg string, args ...any) { emit(context.Background(), slog.LevelDebug, msg, args) }

// Info logs at info level.
func Info(msg string, args ...any) { emit(context.Background(), slog.LevelInfo, msg, args) }

// Warn logs at warn level.
func Warn(msg string, args ...any) { emit(context.Background(), slog.LevelWarn, msg, args) }

// Error logs at error level.
func Error(msg string, args ...any) { emit(context.Background(), slog.LevelError, msg, args) }

// DebugCtx logs at debug level, prefixed with the fields of the LogContext
// in ctx.
func DebugCtx(ctx context.Context, msg string, args ...any) {
	emit(ctx, slog.LevelDebug, msg, args)
}

// InfoCtx is Info with context fields.
func InfoCtx(ctx context.Context, msg string, args ...any) {
	emit(ctx, slog.LevelInfo, msg, args)
}

// WarnCtx is Warn with context fields.
func WarnCtx(ctx context.Context, msg string, args ...any) {
	emit(ctx, slog.LevelWarn, msg, args)
}

// ErrorCtx is Error with context fields.
func ErrorCtx(ctx context.Context, msg string, args ...any) {
	emit(ctx, slog.LevelError, msg, args)
}

// With returns a logger with args bound to every record.
func With(args ...any) *slog.Logger {
	return current().With(args...)
}

// Since returns the milliseconds elapsed since start, for DurationMs.
func Since(start time.Time) float64 {
	return float64(time.Since(start).Microseconds()) / 1000
}
