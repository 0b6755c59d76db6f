// Package logging wraps logrus with the context conventions used across
// the marketplace core: user id, role and trace id travel in the request
// context and are attached to every log line emitted with WithContext.
package logging

import (
	"context"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

type contextKey string

const (
	// UserIDKey carries the authenticated user id in a request context.
	UserIDKey contextKey = "user_id"
	// RoleKey carries the authenticated role in a request context.
	RoleKey contextKey = "role"
	// TraceIDKey carries the request trace id.
	TraceIDKey contextKey = "trace_id"
)

// Logger is a thin wrapper over a logrus entry.
type Logger struct {
	entry *logrus.Entry
}

// Config controls logger construction.
type Config struct {
	Level  string
	Format string // "json" or "text"
}

// New builds a logger for a named component.
func New(component string, cfg Config) *Logger {
	base := logrus.New()
	base.SetOutput(os.Stdout)

	level, err := logrus.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil {
		level = logrus.InfoLevel
	}
	base.SetLevel(level)

	if strings.EqualFold(cfg.Format, "json") {
		base.SetFormatter(&logrus.JSONFormatter{})
	} else {
		base.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	return &Logger{entry: base.WithField("component", component)}
}

// NewDefault builds an info-level text logger for a named component.
func NewDefault(component string) *Logger {
	return New(component, Config{Level: "info", Format: "text"})
}

// WithContext attaches user id, role and trace id from ctx when present.
func (l *Logger) WithContext(ctx context.Context) *Logger {
	entry := l.entry
	if v, ok := ctx.Value(UserIDKey).(string); ok && v != "" {
		entry = entry.WithField("user_id", v)
	}
	if v, ok := ctx.Value(RoleKey).(string); ok && v != "" {
		entry = entry.WithField("role", v)
	}
	if v, ok := ctx.Value(TraceIDKey).(string); ok && v != "" {
		entry = entry.WithField("trace_id", v)
	}
	return &Logger{entry: entry}
}

// WithError attaches an error field.
func (l *Logger) WithError(err error) *Logger {
	return &Logger{entry: l.entry.WithError(err)}
}

// WithField attaches one structured field.
func (l *Logger) WithField(key string, value any) *Logger {
	return &Logger{entry: l.entry.WithField(key, value)}
}

// WithFields attaches structured fields.
func (l *Logger) WithFields(fields map[string]any) *Logger {
	return &Logger{entry: l.entry.WithFields(logrus.Fields(fields))}
}

func (l *Logger) Debug(args ...any)                 { l.entry.Debug(args...) }
func (l *Logger) Info(args ...any)                  { l.entry.Info(args...) }
func (l *Logger) Warn(args ...any)                  { l.entry.Warn(args...) }
func (l *Logger) Error(args ...any)                 { l.entry.Error(args...) }
func (l *Logger) Debugf(format string, args ...any) { l.entry.Debugf(format, args...) }
func (l *Logger) Infof(format string, args ...any)  { l.entry.Infof(format, args...) }
func (l *Logger) Warnf(format string, args ...any)  { l.entry.Warnf(format, args...) }
func (l *Logger) Errorf(format string, args ...any) { l.entry.Errorf(format, args...) }

// NewTraceID generates a fresh trace id.
func NewTraceID() string { return uuid.NewString() }

// WithTraceID stores a trace id in the context.
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, TraceIDKey, traceID)
}

// GetTraceID returns the trace id from the context, or "".
func GetTraceID(ctx context.Context) string {
	if v, ok := ctx.Value(TraceIDKey).(string); ok {
		return v
	}
	return ""
}

// WithUser stores the authenticated user id and role in the context.
func WithUser(ctx context.Context, userID, role string) context.Context {
	ctx = context.WithValue(ctx, UserIDKey, userID)
	if role != "" {
		ctx = context.WithValue(ctx, RoleKey, role)
	}
	return ctx
}

// GetUserID returns the authenticated user id from the context, or "".
func GetUserID(ctx context.Context) string {
	if v, ok := ctx.Value(UserIDKey).(string); ok {
		return v
	}
	return ""
}

// GetRole returns the authenticated role from the context, or "".
func GetRole(ctx context.Context) string {
	if v, ok := ctx.Value(RoleKey).(string); ok {
		return v
	}
	return ""
}
