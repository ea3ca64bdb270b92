// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 PFTL Contributors

// Package observability provides HTTP endpoints for metrics and health checks.
package observability

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/samber/oops"
)

// ReadinessChecker reports why the service cannot take traffic, or nil when
// it can.
type ReadinessChecker func(ctx context.Context) error

// Package-level collectors let the simulation record metrics without holding
// a Server. They are registered with every Server's registry.
var (
	sessionsActive = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "pftl_sessions_active",
		Help: "Number of sessions currently in the active state",
	})
	ticksTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "pftl_ticks_total",
		Help: "Total number of resolved battle ticks",
	})
	observerEventsDropped = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "pftl_observer_events_dropped_total",
		Help: "Total number of events dropped from full observer queues",
	})
	gamesCompleted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pftl_games_completed_total",
			Help: "Total number of completed games by outcome",
		},
		[]string{"outcome"},
	)
	resultsPersisted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pftl_results_persisted_total",
			Help: "Total number of game results written to the result store by status",
		},
		[]string{"status"},
	)
)

// RecordSessionStarted marks a session as active.
func RecordSessionStarted() { sessionsActive.Inc() }

// RecordSessionFinished marks a previously active session as no longer active.
func RecordSessionFinished() { sessionsActive.Dec() }

// RecordTick counts one resolved tick.
func RecordTick() { ticksTotal.Inc() }

// RecordObserverDrop counts one event dropped for a slow observer.
func RecordObserverDrop() { observerEventsDropped.Inc() }

// RecordGameCompleted counts a completed game. outcome is "win", "draw" or "aborted".
func RecordGameCompleted(outcome string) {
	gamesCompleted.WithLabelValues(outcome).Inc()
}

// RecordResultPersisted counts one result store write. status is "ok" or "failed".
func RecordResultPersisted(status string) {
	resultsPersisted.WithLabelValues(status).Inc()
}

// Metrics contains the Prometheus metrics owned by a Server.
type Metrics struct {
	ConnectionsTotal *prometheus.CounterVec
	RequestsTotal    *prometheus.CounterVec
}

// NewMetrics creates and registers PFTL metrics.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		ConnectionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pftl_connections_total",
				Help: "Total number of observer stream connections by transport",
			},
			[]string{"type"},
		),
		RequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pftl_requests_total",
				Help: "Total number of API requests by route and status",
			},
			[]string{"route", "status"},
		),
	}

	reg.MustRegister(m.ConnectionsTotal)
	reg.MustRegister(m.RequestsTotal)
	reg.MustRegister(sessionsActive, ticksTotal, observerEventsDropped, gamesCompleted, resultsPersisted)

	return m
}

// Server serves /metrics and the health probes on a dedicated listener.
type Server struct {
	addr     string
	listener net.Listener
	echo     *echo.Echo
	registry *prometheus.Registry
	metrics  *Metrics
	isReady  ReadinessChecker
	running  atomic.Bool
}

// NewServer creates an observability server for addr ("host:port"; port 0
// picks a free port).
func NewServer(addr string, readinessChecker ReadinessChecker) *Server {
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	return &Server{
		addr:     addr,
		registry: registry,
		metrics:  NewMetrics(registry),
		isReady:  readinessChecker,
	}
}

// Metrics returns the metrics owned by this server.
func (s *Server) Metrics() *Metrics {
	return s.metrics
}

// Start begins serving. The returned channel receives a serve error, if any,
// and is closed when the server stops.
func (s *Server) Start() (<-chan error, error) {
	if !s.running.CompareAndSwap(false, true) {
		return nil, oops.Errorf("observability server already running")
	}

	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		s.running.Store(false)
		return nil, oops.With("addr", s.addr).Wrap(err)
	}
	s.listener = listener

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Listener = listener
	e.Server.ReadHeaderTimeout = 10 * time.Second
	e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})))
	e.GET("/healthz/liveness", s.handleLiveness)
	e.GET("/healthz/readiness", s.handleReadiness)
	s.echo = e

	errCh := make(chan error, 1)
	go func() {
		defer close(errCh)
		if serveErr := e.Start(""); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			slog.Error("observability server error", "error", serveErr)
			errCh <- serveErr
		}
	}()

	slog.Info("observability server started", "addr", listener.Addr().String())
	return errCh, nil
}

// Stop gracefully shuts down the server. Stopping a stopped server is a no-op.
func (s *Server) Stop(ctx context.Context) error {
	if !s.running.CompareAndSwap(true, false) {
		return nil
	}

	if s.echo != nil {
		if err := s.echo.Shutdown(ctx); err != nil {
			s.running.Store(true)
			return oops.With("operation", "shutdown_observability_server").Wrap(err)
		}
	}

	slog.Info("observability server stopped")
	return nil
}

// Addr returns the listen address, or "" before Start.
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return ""
}

func (s *Server) handleLiveness(c echo.Context) error {
	return c.String(http.StatusOK, "ok\n")
}

func (s *Server) handleReadiness(c echo.Context) error {
	if s.isReady == nil {
		return c.String(http.StatusOK, "ok\n")
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
	defer cancel()
	if err := s.isReady(ctx); err != nil {
		slog.Debug("readiness check failed", "error", err)
		return c.String(http.StatusServiceUnavailable, "not ready\n")
	}
	return c.String(http.StatusOK, "ok\n")
}
