// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 PFTL Contributors

// Package gateway exposes the session manager over HTTP and streams session
// events to observers over WebSocket.
package gateway

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/samber/oops"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"github.com/pftl/pftl/internal/catalog"
	"github.com/pftl/pftl/internal/core"
	"github.com/pftl/pftl/internal/observability"
)

// Config configures the gateway listener.
type Config struct {
	Addr string `koanf:"addr" env:"ADDR" validate:"required"`
	// RateLimit is requests per second per client IP. Zero disables limiting.
	RateLimit float64 `koanf:"rate_limit" env:"RATE_LIMIT" validate:"gte=0"`
	RateBurst int     `koanf:"rate_burst" env:"RATE_BURST" validate:"gte=0"`
	// PingInterval is how often idle event streams are pinged.
	PingInterval time.Duration `koanf:"ping_interval" env:"PING_INTERVAL"`
	// WriteTimeout bounds each WebSocket write.
	WriteTimeout time.Duration `koanf:"write_timeout" env:"WRITE_TIMEOUT"`
}

// DefaultConfig returns the standard gateway settings.
func DefaultConfig() Config {
	return Config{
		Addr:         "127.0.0.1:8080",
		RateLimit:    20,
		RateBurst:    40,
		PingInterval: 30 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
}

// Deps are the services the gateway fronts. Metrics may be nil.
type Deps struct {
	Manager *core.Manager
	Catalog *catalog.Catalog
	Results core.ResultStore
	Metrics *observability.Metrics
}

// Server is the HTTP API and event stream endpoint.
type Server struct {
	cfg    Config
	deps   Deps
	echo   *echo.Echo
	tracer trace.Tracer

	// ctx ends when the server shuts down so open streams close.
	ctx    context.Context
	cancel context.CancelFunc

	listener net.Listener
	running  atomic.Bool
}

// New builds a gateway with every route registered.
func New(cfg Config, deps Deps) *Server {
	def := DefaultConfig()
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = def.PingInterval
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = def.WriteTimeout
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		cfg:    cfg,
		deps:   deps,
		tracer: otel.Tracer("github.com/pftl/pftl/internal/gateway"),
		ctx:    ctx,
		cancel: cancel,
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = errorHandler
	e.Validator = newRequestValidator()
	e.Server.ReadHeaderTimeout = 10 * time.Second

	e.Use(middleware.Recover())
	e.Use(s.observe)
	if cfg.RateLimit > 0 {
		e.Use(rateLimiter(cfg.RateLimit, cfg.RateBurst))
	}
	s.echo = e
	s.routes()
	return s
}

// Handler returns the gateway as an http.Handler.
func (s *Server) Handler() http.Handler { return s.echo }

// Start listens on the configured address. The returned channel receives a
// serve error, if any, and is closed when the server stops.
func (s *Server) Start() (<-chan error, error) {
	if !s.running.CompareAndSwap(false, true) {
		return nil, oops.Errorf("gateway already running")
	}
	listener, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		s.running.Store(false)
		return nil, oops.With("addr", s.cfg.Addr).Wrap(err)
	}
	s.listener = listener
	s.echo.Listener = listener

	errCh := make(chan error, 1)
	go func() {
		defer close(errCh)
		if err := s.echo.Start(""); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("gateway server error", "error", err)
			errCh <- err
		}
	}()

	slog.Info("gateway started", "addr", listener.Addr().String())
	return errCh, nil
}

// Addr returns the listen address, or "" before Start.
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return ""
}

// Shutdown closes open event streams and stops accepting requests.
func (s *Server) Shutdown(ctx context.Context) error {
	s.cancel()
	if !s.running.CompareAndSwap(true, false) {
		return nil
	}
	if err := s.echo.Shutdown(ctx); err != nil {
		return oops.With("operation", "shutdown_gateway").Wrap(err)
	}
	slog.Info("gateway stopped")
	return nil
}

// observe records request metrics and a server span, and tags the request
// context with the game code so handler logs carry it.
func (s *Server) observe(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		req := c.Request()
		route := c.Path()
		start := time.Now()

		ctx, span := s.tracer.Start(req.Context(), req.Method+" "+route, trace.WithSpanKind(trace.SpanKindServer))
		defer span.End()
		if code := c.Param("code"); code != "" {
			ctx = tagGameCode(ctx, span, code)
		}
		c.SetRequest(req.WithContext(ctx))

		if err := next(c); err != nil {
			recordSpanError(span, err)
			c.Error(err)
		}

		status := c.Response().Status
		annotateSpan(span, route, status)
		if s.deps.Metrics != nil {
			s.deps.Metrics.RequestsTotal.WithLabelValues(route, statusLabel(status)).Inc()
		}
		slog.DebugContext(ctx, "request",
			"method", req.Method,
			"route", route,
			"status", status,
			"duration_ms", time.Since(start).Milliseconds(),
		)
		return nil
	}
}

func rateLimiter(perSecond float64, burst int) echo.MiddlewareFunc {
	return middleware.RateLimiterWithConfig(middleware.RateLimiterConfig{
		Skipper: func(c echo.Context) bool { return c.Path() == streamRoute },
		Store: middleware.NewRateLimiterMemoryStoreWithConfig(middleware.RateLimiterMemoryStoreConfig{
			Rate:      rate.Limit(perSecond),
			Burst:     burst,
			ExpiresIn: 3 * time.Minute,
		}),
		IdentifierExtractor: func(c echo.Context) (string, error) {
			return c.RealIP(), nil
		},
		DenyHandler: func(_ echo.Context, identifier string, _ error) error {
			slog.Debug("request rate limited", "client", identifier)
			return echo.NewHTTPError(http.StatusTooManyRequests, "too many requests")
		},
	})
}
