// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 PFTL Contributors

package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/pftl/pftl/internal/catalog"
	"github.com/pftl/pftl/internal/core"
	"github.com/pftl/pftl/internal/gateway"
	"github.com/pftl/pftl/internal/logging"
	"github.com/pftl/pftl/internal/observability"
	"github.com/pftl/pftl/internal/results"
	"github.com/pftl/pftl/internal/store"
	"github.com/pftl/pftl/pkg/errutil"
)

const shutdownTimeout = 5 * time.Second

// NewServeCmd creates the serve subcommand.
func NewServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the battle server (session manager and API gateway)",
		Long: `Start the battle server. It runs the session manager, serves the HTTP API
and WebSocket event streams, and persists finished games to the result store.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd.Flags(), configFile)
			if err != nil {
				return err
			}
			return runServeWithDeps(cmd.Context(), cfg, cmd, nil)
		},
	}

	registerConfigFlags(cmd.Flags(), defaultConfig())
	return cmd
}

func (d *ServeDeps) withDefaults() *ServeDeps {
	if d == nil {
		d = &ServeDeps{}
	}
	if d.StoreOpener == nil {
		d.StoreOpener = store.Open
	}
	if d.ObservabilityServerFactory == nil {
		d.ObservabilityServerFactory = func(addr string, readinessChecker observability.ReadinessChecker) ObservabilityServer {
			return observability.NewServer(addr, readinessChecker)
		}
	}
	if d.Signals == nil {
		d.Signals = func() (<-chan os.Signal, func()) {
			ch := make(chan os.Signal, 1)
			signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
			return ch, func() { signal.Stop(ch) }
		}
	}
	return d
}

// runServeWithDeps starts the server with injectable dependencies and blocks
// until a signal arrives, ctx ends or a listener fails.
func runServeWithDeps(ctx context.Context, cfg Config, cmd *cobra.Command, deps *ServeDeps) error {
	deps = deps.withDefaults()
	if ctx == nil {
		ctx = context.Background()
	}

	if err := logging.SetDefault(logging.Options{
		Service: "pftl",
		Version: version,
		Format:  cfg.Log.Format,
		Level:   cfg.Log.Level,
	}); err != nil {
		return oops.Wrapf(err, "set up logging")
	}

	slog.Info("starting pftl server",
		"addr", cfg.Gateway.Addr,
		"store_driver", cfg.Store.Driver,
		"tick_interval", cfg.Game.TickInterval,
	)

	cat, err := loadCatalog(cfg.Catalog)
	if err != nil {
		return err
	}

	resultStore, err := deps.StoreOpener(ctx, cfg.Store)
	if err != nil {
		return oops.Code("STORE_OPEN_FAILED").With("driver", cfg.Store.Driver).Wrap(err)
	}
	defer func() {
		if err := resultStore.Close(); err != nil {
			slog.Warn("error closing result store", "error", err)
		}
	}()
	slog.Info("result store ready", "driver", cfg.Store.Driver)

	bus, err := results.NewBus(resultStore, cfg.Results)
	if err != nil {
		return oops.Code("RESULT_BUS_FAILED").Wrap(err)
	}
	manager := core.NewManager(cfg.Game.ManagerConfig(), bus)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		obsServer ObservabilityServer
		metrics   *observability.Metrics
		obsAddr   string
	)
	if cfg.MetricsAddr != "" {
		obsServer = deps.ObservabilityServerFactory(cfg.MetricsAddr, resultStore.Ping)
		obsErrCh, err := obsServer.Start()
		if err != nil {
			shutdownCore(manager, bus)
			return oops.Code("OBSERVABILITY_START_FAILED").With("addr", cfg.MetricsAddr).Wrap(err)
		}
		go monitorServerErrors(ctx, cancel, obsErrCh, "observability")
		metrics = obsServer.Metrics()
		obsAddr = obsServer.Addr()
	}

	gw := gateway.New(cfg.Gateway, gateway.Deps{
		Manager: manager,
		Catalog: cat,
		Results: resultStore,
		Metrics: metrics,
	})
	gwErrCh, err := gw.Start()
	if err != nil {
		stopObservability(obsServer)
		shutdownCore(manager, bus)
		return oops.Code("GATEWAY_START_FAILED").With("addr", cfg.Gateway.Addr).Wrap(err)
	}
	go monitorServerErrors(ctx, cancel, gwErrCh, "gateway")

	sigChan, stopSignals := deps.Signals()
	defer stopSignals()

	cmd.Println("PFTL server started on " + gw.Addr())
	slog.Info("pftl server ready", "addr", gw.Addr(), "metrics_addr", obsAddr)
	if deps.Ready != nil {
		deps.Ready(gw.Addr(), obsAddr)
	}

	select {
	case sig := <-sigChan:
		slog.Info("received shutdown signal", "signal", sig)
	case <-ctx.Done():
		slog.Info("context cancelled, shutting down")
	}

	slog.Info("shutting down...")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	if err := gw.Shutdown(shutdownCtx); err != nil {
		slog.Warn("error stopping gateway", "error", err)
	}
	shutdownCore(manager, bus)
	stopObservability(obsServer)

	slog.Info("shutdown complete")
	return nil
}

// shutdownCore stops every session runner, letting in-flight results reach
// the store, then closes the bus.
func shutdownCore(manager *core.Manager, bus *results.Bus) {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := manager.Shutdown(ctx); err != nil {
		errutil.LogError(slog.Default(), "error stopping session manager", err)
	}
	if err := bus.Close(); err != nil {
		slog.Warn("error closing result bus", "error", err)
	}
}

func stopObservability(s ObservabilityServer) {
	if s == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := s.Stop(ctx); err != nil {
		slog.Warn("error stopping observability server", "error", err)
	}
}

// monitorServerErrors cancels ctx when a server reports a serve error.
func monitorServerErrors(ctx context.Context, cancel context.CancelFunc, errCh <-chan error, serverName string) {
	select {
	case err, ok := <-errCh:
		if !ok {
			return
		}
		if err != nil {
			slog.Error("server error, triggering shutdown",
				"server", serverName,
				"error", err,
			)
			cancel()
		}
	case <-ctx.Done():
	}
}

// loadCatalog reads the catalog at path, or the built-in one when path is
// empty.
func loadCatalog(path string) (*catalog.Catalog, error) {
	if path == "" {
		return catalog.Default()
	}
	return catalog.Load(path)
}
