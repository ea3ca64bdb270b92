// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 PFTL Contributors

// Package logging provides structured logging with OpenTelemetry trace context
// and per-game attributes.
package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/samber/oops"
	"go.opentelemetry.io/otel/trace"
)

// Options configures Setup.
type Options struct {
	Service string
	Version string
	// Format is "json" or "text". Empty means json.
	Format string
	// Level is debug, info, warn or error. Empty means info.
	Level string
}

type gameCodeKey struct{}

// WithGameCode returns a context whose log records carry game_code.
func WithGameCode(ctx context.Context, code string) context.Context {
	return context.WithValue(ctx, gameCodeKey{}, code)
}

// GameCode returns the code stored by WithGameCode.
func GameCode(ctx context.Context) (string, bool) {
	code, ok := ctx.Value(gameCodeKey{}).(string)
	return code, ok && code != ""
}

// contextHandler adds service, trace and game attributes to each record.
type contextHandler struct {
	handler slog.Handler
	service string
	version string
}

func (h *contextHandler) Handle(ctx context.Context, r slog.Record) error {
	r.AddAttrs(
		slog.String("service", h.service),
		slog.String("version", h.version),
	)

	spanCtx := trace.SpanContextFromContext(ctx)
	if spanCtx.HasTraceID() {
		r.AddAttrs(slog.String("trace_id", spanCtx.TraceID().String()))
	}
	if spanCtx.HasSpanID() {
		r.AddAttrs(slog.String("span_id", spanCtx.SpanID().String()))
	}
	if code, ok := GameCode(ctx); ok {
		r.AddAttrs(slog.String("game_code", code))
	}

	//nolint:wrapcheck // Handler interface requires unwrapped error passthrough
	return h.handler.Handle(ctx, r)
}

func (h *contextHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.handler.Enabled(ctx, level)
}

func (h *contextHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &contextHandler{handler: h.handler.WithAttrs(attrs), service: h.service, version: h.version}
}

func (h *contextHandler) WithGroup(name string) slog.Handler {
	return &contextHandler{handler: h.handler.WithGroup(name), service: h.service, version: h.version}
}

// ParseLevel maps a level name to a slog.Level.
func ParseLevel(name string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return 0, oops.Code("INVALID_LOG_LEVEL").With("level", name).Errorf("unknown log level %q", name)
}

// Setup builds a logger writing to w, or os.Stderr when w is nil.
func Setup(opts Options, w io.Writer) (*slog.Logger, error) {
	if w == nil {
		w = os.Stderr
	}
	level, err := ParseLevel(opts.Level)
	if err != nil {
		return nil, err
	}

	hopts := &slog.HandlerOptions{Level: level}
	var base slog.Handler
	switch opts.Format {
	case "text":
		base = slog.NewTextHandler(w, hopts)
	case "", "json":
		base = slog.NewJSONHandler(w, hopts)
	default:
		return nil, oops.Code("INVALID_LOG_FORMAT").With("format", opts.Format).Errorf("unknown log format %q", opts.Format)
	}

	return slog.New(&contextHandler{handler: base, service: opts.Service, version: opts.Version}), nil
}

// SetDefault installs a logger built from opts as slog's default.
func SetDefault(opts Options) error {
	logger, err := Setup(opts, nil)
	if err != nil {
		return err
	}
	slog.SetDefault(logger)
	return nil
}
