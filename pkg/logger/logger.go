package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
)

// New returns the process logger tagged with service and env. Local runs
// get human-readable text at debug level; every other env logs JSON at
// info. A non-empty level overrides the env default.
func New(service, appEnv, level string) *slog.Logger {
	return newWithWriter(os.Stdout, service, appEnv, level)
}

func newWithWriter(w io.Writer, service, appEnv, level string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(appEnv, level)}

	var h slog.Handler
	if appEnv == "local" {
		h = slog.NewTextHandler(w, opts)
	} else {
		h = slog.NewJSONHandler(w, opts)
	}
	return slog.New(h).With("service", service, "env", appEnv)
}

func parseLevel(appEnv, level string) slog.Level {
	var l slog.Level
	if err := l.UnmarshalText([]byte(strings.TrimSpace(level))); err == nil {
		return l
	}
	if appEnv == "local" || appEnv == "dev" {
		return slog.LevelDebug
	}
	return slog.LevelInfo
}

type ctxKey struct{}

// With stores a logger in context.
func With(ctx context.Context, l *slog.Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, l)
}

// From gets a logger from context, falling back to slog.Default().
func From(ctx context.Context) *slog.Logger {
	if v := ctx.Value(ctxKey{}); v != nil {
		if l, ok := v.(*slog.Logger); ok && l != nil {
			return l
		}
	}
	return slog.Default()
}

// Detached returns a background context carrying the logger from ctx, for
// work that must finish after the request is gone: end-of-call
// notifications and missed-call checks.
func Detached(ctx context.Context) context.Context {
	return With(context.Background(), From(ctx))
}
