// Package logging provides the structured logger used across the CLI.
//
// Logs always go to stderr by default: stdout is reserved for command output
// and for the MCP stdio channel.
package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ContextKey is the type of context keys set by this package.
type ContextKey string

const (
	RequestIDKey ContextKey = "request_id"
	KeyKey       ContextKey = "planning_key"
)

// Logger is a slog.Logger tagged with a component name.
type Logger struct {
	*slog.Logger
	component string
	base      slog.Handler
}

// Config configures New.
type Config struct {
	Level     string `yaml:"level"`
	Format    string `yaml:"format"` // json or text
	Output    string `yaml:"output"` // stderr, stdout, or file path
	Component string `yaml:"component"`
}

// ParseLevel maps a level name to a slog.Level, defaulting to info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
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

// New creates a logger from cfg.
func New(cfg Config) *Logger {
	var output io.Writer
	switch cfg.Output {
	case "stderr", "":
		output = os.Stderr
	case "stdout":
		output = os.Stdout
	default:
		f, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			output = os.Stderr
		} else {
			output = f
		}
	}
	return NewWithWriter(cfg, output)
}

// NewWithWriter creates a logger writing to w.
func NewWithWriter(cfg Config, w io.Writer) *Logger {
	level := ParseLevel(cfg.Level)
	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: level == slog.LevelDebug,
	}

	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}

	l := slog.New(handler)
	if cfg.Component != "" {
		l = l.With(slog.String("component", cfg.Component))
	}
	return &Logger{Logger: l, component: cfg.Component, base: handler}
}

// Default creates a logger configured from LOG_LEVEL and LOG_FORMAT.
func Default(component string) *Logger {
	return New(Config{
		Level:     os.Getenv("LOG_LEVEL"),
		Format:    os.Getenv("LOG_FORMAT"),
		Output:    "stderr",
		Component: component,
	})
}

// Discard returns a logger that drops everything (for tests).
func Discard() *Logger {
	h := slog.NewTextHandler(io.Discard, nil)
	return &Logger{Logger: slog.New(h), base: h}
}

// Component returns a child logger for another component sharing the same handler.
func (l *Logger) Component(name string) *Logger {
	return &Logger{
		Logger:    slog.New(l.base).With(slog.String("component", name)),
		component: name,
		base:      l.base,
	}
}

// WithContext adds the request id and planning key carried by ctx.
func (l *Logger) WithContext(ctx context.Context) *Logger {
	var attrs []any
	if id, ok := ctx.Value(RequestIDKey).(string); ok && id != "" {
		attrs = append(attrs, slog.String("request_id", id))
	}
	if key, ok := ctx.Value(KeyKey).(string); ok && key != "" {
		attrs = append(attrs, slog.String("key", key))
	}
	if len(attrs) == 0 {
		return l
	}
	return l.with(attrs...)
}

// WithKey adds the planning key.
func (l *Logger) WithKey(key string) *Logger {
	return l.with(slog.String("key", key))
}

// WithError adds an error attribute.
func (l *Logger) WithError(err error) *Logger {
	if err == nil {
		return l
	}
	return l.with(slog.String("error", err.Error()))
}

// WithDuration adds a duration attribute in milliseconds.
func (l *Logger) WithDuration(d time.Duration) *Logger {
	return l.with(slog.Float64("duration_ms", float64(d.Milliseconds())))
}

func (l *Logger) with(args ...any) *Logger {
	return &Logger{Logger: l.Logger.With(args...), component: l.component, base: l.base}
}

// WithRequestID returns ctx carrying a new request id, keeping an existing one.
func WithRequestID(ctx context.Context) context.Context {
	if id, ok := ctx.Value(RequestIDKey).(string); ok && id != "" {
		return ctx
	}
	return context.WithValue(ctx, RequestIDKey, uuid.NewString())
}

// RequestID returns the request id carried by ctx, if any.
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(RequestIDKey).(string)
	return id
}

// WithPlanningKey returns ctx carrying the planning key for log correlation.
func WithPlanningKey(ctx context.Context, key string) context.Context {
	return context.WithValue(ctx, KeyKey, key)
}
