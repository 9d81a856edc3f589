// Package log wraps log/slog with a component tag and the shared field
// names used across fintrack.
package log

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// Logger is a slog.Logger bound to a component. base keeps the handler
// without the component attribute so WithComponent replaces rather than
// repeats it.
type Logger struct {
	*slog.Logger
	base      slog.Handler
	component string
}

type Config struct {
	Level     slog.Level
	Component string
	// Handler overrides the default text handler on stdout.
	Handler slog.Handler
}

func New(config Config) *Logger {
	handler := config.Handler
	if handler == nil {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: config.Level})
	}
	return bind(handler, config.Component)
}

// NewNop returns a logger that discards everything.
func NewNop() *Logger {
	return bind(slog.NewTextHandler(io.Discard, nil), "nop")
}

func bind(base slog.Handler, component string) *Logger {
	l := slog.New(base)
	if component != "" {
		l = l.With(FieldComponent, component)
	}
	return &Logger{Logger: l, base: base, component: component}
}

// ParseLevel maps LOG_LEVEL values to slog levels; unknown values fall back
// to info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
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

// With returns a logger carrying the extra attributes.
func (l *Logger) With(args ...any) *Logger {
	return bind(slog.New(l.base).With(args...).Handler(), l.component)
}

// WithComponent derives a logger tagged with another component.
func (l *Logger) WithComponent(component string) *Logger {
	return bind(l.base, component)
}

func (l *Logger) Component() string {
	return l.component
}

// SetDefault installs logger as the slog default.
func SetDefault(logger *Logger) {
	slog.SetDefault(logger.Logger)
}
