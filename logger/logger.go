// Package logger provides a zerolog root logger with request-scoped children
package logger

import (
	"context"
	"io"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// Logger is the project-wide logging type
type Logger = zerolog.Logger

// Options configures the logger
type Options struct {
	Level   string
	Format  string // "console" | "json"
	Service string
	Writer  io.Writer
}

// FromEnv reads LOG_LEVEL and LOG_FORMAT
func FromEnv() Options {
	return Options{
		Level:   strings.ToLower(envOr("LOG_LEVEL", "info")),
		Format:  strings.ToLower(envOr("LOG_FORMAT", "console")),
		Service: "attendance-bridge",
	}
}

var (
	root atomic.Pointer[zerolog.Logger]
	nop  = zerolog.Nop()
)

// Init builds the process root logger and installs it, replacing any
// previous root. The returned logger is the new root.
func Init(opt Options) *Logger {
	zerolog.TimeFieldFormat = time.RFC3339Nano
	l := New(opt)
	root.Store(l)
	return l
}

// New builds a standalone logger without touching the root
func New(opt Options) *Logger {
	var w io.Writer = os.Stdout
	if opt.Writer != nil {
		w = opt.Writer
	}
	if opt.Format == "console" {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	}
	ctx := zerolog.New(w).Level(parseLevel(opt.Level)).With().Timestamp()
	if opt.Service != "" {
		ctx = ctx.Str("service", opt.Service)
	}
	l := ctx.Logger()
	return &l
}

// Get returns the root logger, initializing from env on first use
func Get() *Logger {
	if l := root.Load(); l != nil {
		return l
	}
	return Init(FromEnv())
}

// Nop returns a logger that discards everything
func Nop() *Logger { return &nop }

// Named returns a child of the root logger with a component field
func Named(component string) *Logger {
	return Component(Get(), component)
}

// Component returns a child of l with a component field
func Component(l *Logger, component string) *Logger {
	if l == nil {
		l = Get()
	}
	if component == "" {
		return l
	}
	ll := l.With().Str("component", component).Logger()
	return &ll
}

type ctxKey struct{}

// WithRequestID annotates ctx with the request id used by C
func WithRequestID(ctx context.Context, reqID string) context.Context {
	if reqID == "" {
		return ctx
	}
	return context.WithValue(ctx, ctxKey{}, reqID)
}

// C returns a child of l enriched with the request id found in ctx
func C(ctx context.Context, l *Logger) *Logger {
	if l == nil {
		l = Get()
	}
	id, _ := ctx.Value(ctxKey{}).(string)
	if id == "" {
		return l
	}
	ll := l.With().Str("request_id", id).Logger()
	return &ll
}

func parseLevel(s string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "trace":
		return zerolog.TraceLevel
	case "debug":
		return zerolog.DebugLevel
	case "info", "":
		return zerolog.InfoLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "disabled", "off":
		return zerolog.Disabled
	default:
		return zerolog.InfoLevel
	}
}

func envOr(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}
