// Package logging configures slog and turns bus events into log records.
package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	eventbus "github.com/hanpama/rosterql/internal/eventbus"
	events "github.com/hanpama/rosterql/internal/events"
	reqid "github.com/hanpama/rosterql/internal/reqid"
)

// ParseLevel maps debug, info, warn and error to a slog level.
func ParseLevel(s string) (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return 0, fmt.Errorf("logging: %w", err)
	}
	return l, nil
}

// New builds a logger writing to w in the given format ("text" or "json").
func New(w io.Writer, level, format string) (*slog.Logger, error) {
	lvl, err := ParseLevel(level)
	if err != nil {
		return nil, err
	}
	opts := &slog.HandlerOptions{Level: lvl}
	var h slog.Handler
	switch strings.ToLower(format) {
	case "", "text":
		h = slog.NewTextHandler(w, opts)
	case "json":
		h = slog.NewJSONHandler(w, opts)
	default:
		return nil, fmt.Errorf("logging: unknown format %q", format)
	}
	return slog.New(h), nil
}

// Setup builds a logger with New and installs it as the slog default.
func Setup(w io.Writer, level, format string) (*slog.Logger, error) {
	l, err := New(w, level, format)
	if err != nil {
		return nil, err
	}
	slog.SetDefault(l)
	return l, nil
}

// FromContext returns the default logger, tagged with the request ID when
// ctx carries one.
func FromContext(ctx context.Context) *slog.Logger {
	l := slog.Default()
	if rid, ok := reqid.FromContext(ctx); ok {
		l = l.With("request_id", rid)
	}
	return l
}

// Subscribe writes an access line per finished HTTP request and a record
// per pool rejection or recovered panic to l. The returned func detaches
// the subscriptions.
func Subscribe(l *slog.Logger) (unsubscribe func()) {
	with := func(ctx context.Context) *slog.Logger {
		if rid, ok := reqid.FromContext(ctx); ok {
			return l.With("request_id", rid)
		}
		return l
	}

	unsubs := []func(){
		eventbus.Subscribe(func(ctx context.Context, e events.HTTPFinish) {
			level := slog.LevelInfo
			if e.Status >= 500 {
				level = slog.LevelWarn
			}
			with(ctx).LogAttrs(ctx, level, "http request",
				slog.String("method", e.Request.Method),
				slog.String("path", e.Request.URL.Path),
				slog.Int("status", e.Status),
				slog.Int("bytes", e.Bytes),
				slog.Duration("duration", e.Duration),
			)
		}),
		eventbus.Subscribe(func(ctx context.Context, e events.GraphQLFinish) {
			if len(e.Errors) == 0 {
				return
			}
			with(ctx).LogAttrs(ctx, slog.LevelDebug, "graphql errors",
				slog.String("operation", e.OperationName),
				slog.Bool("valid", e.Valid),
				slog.Any("errors", e.Errors),
			)
		}),
		eventbus.Subscribe(func(ctx context.Context, e events.PoolRejected) {
			with(ctx).LogAttrs(ctx, slog.LevelWarn, "worker pool saturated",
				slog.Int("running", e.Running),
				slog.Int("waiting", e.Waiting),
				slog.Int("cap", e.Cap),
			)
		}),
		eventbus.Subscribe(func(ctx context.Context, e events.PoolPanic) {
			with(ctx).LogAttrs(ctx, slog.LevelError, "execution panicked",
				slog.Any("panic", e.Value),
				slog.String("stack", string(e.Stack)),
			)
		}),
	}
	return func() {
		for _, u := range unsubs {
			u()
		}
	}
}
