// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 PFTL Contributors

package observability

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startServer(t *testing.T, ready ReadinessChecker) *Server {
	t.Helper()
	server := NewServer("127.0.0.1:0", ready)
	_, err := server.Start()
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Stop(ctx)
	})
	return server
}

func get(t *testing.T, url string) (int, string) {
	t.Helper()
	resp, err := http.Get(url) //nolint:noctx // test helper
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(body)
}

func TestServer_Metrics(t *testing.T) {
	server := startServer(t, func(context.Context) error { return nil })

	server.Metrics().ConnectionsTotal.WithLabelValues("websocket").Inc()
	server.Metrics().RequestsTotal.WithLabelValues("/games", "201").Inc()
	RecordTick()
	RecordGameCompleted("draw")

	status, body := get(t, "http://"+server.Addr()+"/metrics")
	assert.Equal(t, http.StatusOK, status)
	for _, want := range []string{
		"# HELP",
		"go_",
		"process_",
		`pftl_connections_total{type="websocket"} 1`,
		`pftl_requests_total{route="/games",status="201"} 1`,
		"pftl_ticks_total",
		`pftl_games_completed_total{outcome="draw"}`,
		"pftl_sessions_active",
	} {
		assert.True(t, strings.Contains(body, want), "expected %q in metrics output", want)
	}
}

func notReady(context.Context) error { return errors.New("store down") }

func TestServer_Probes(t *testing.T) {
	tests := []struct {
		name       string
		path       string
		ready      ReadinessChecker
		wantStatus int
		wantBody   string
	}{
		{"liveness", "/healthz/liveness", notReady, http.StatusOK, "ok\n"},
		{"ready", "/healthz/readiness", func(context.Context) error { return nil }, http.StatusOK, "ok\n"},
		{"not ready", "/healthz/readiness", notReady, http.StatusServiceUnavailable, "not ready\n"},
		{"nil checker", "/healthz/readiness", nil, http.StatusOK, "ok\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := startServer(t, tt.ready)
			status, body := get(t, "http://"+server.Addr()+tt.path)
			assert.Equal(t, tt.wantStatus, status)
			assert.Equal(t, tt.wantBody, body)
		})
	}
}

func TestServer_DoubleStartFails(t *testing.T) {
	server := startServer(t, nil)

	_, err := server.Start()
	assert.ErrorContains(t, err, "already running")
}

func TestServer_StopIdempotent(t *testing.T) {
	server := NewServer("127.0.0.1:0", nil)

	assert.NoError(t, server.Stop(context.Background()))
	assert.Empty(t, server.Addr())
}

func TestServer_ErrorChannelClosesOnShutdown(t *testing.T) {
	server := NewServer("127.0.0.1:0", nil)
	errCh, err := server.Start()
	require.NoError(t, err)

	require.NoError(t, server.Stop(context.Background()))

	select {
	case err, ok := <-errCh:
		if ok {
			assert.NoError(t, err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for error channel to close")
	}
}

func TestRecordHelpers(t *testing.T) {
	before := testutil.ToFloat64(observerEventsDropped)
	RecordObserverDrop()
	assert.InDelta(t, before+1, testutil.ToFloat64(observerEventsDropped), 1e-9)

	active := testutil.ToFloat64(sessionsActive)
	RecordSessionStarted()
	assert.InDelta(t, active+1, testutil.ToFloat64(sessionsActive), 1e-9)
	RecordSessionFinished()
	assert.InDelta(t, active, testutil.ToFloat64(sessionsActive), 1e-9)

	wins := testutil.ToFloat64(gamesCompleted.WithLabelValues("win"))
	RecordGameCompleted("win")
	assert.InDelta(t, wins+1, testutil.ToFloat64(gamesCompleted.WithLabelValues("win")), 1e-9)
}

func TestNewMetrics_RegistersIntoSeparateRegistries(t *testing.T) {
	assert.NotPanics(t, func() {
		NewMetrics(prometheus.NewRegistry())
		NewMetrics(prometheus.NewRegistry())
	})
}
