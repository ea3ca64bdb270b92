// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 PFTL Contributors

package main

import (
	"context"
	"os"

	"github.com/pftl/pftl/internal/observability"
	"github.com/pftl/pftl/internal/store"
)

// ServeDeps contains injectable dependencies for the serve command.
// All fields with nil values will use their default implementations.
type ServeDeps struct {
	// StoreOpener opens the result store.
	// Default: store.Open
	StoreOpener func(ctx context.Context, cfg store.Config) (store.Store, error)

	// ObservabilityServerFactory creates an observability server.
	// Default: observability.NewServer
	ObservabilityServerFactory func(addr string, readinessChecker observability.ReadinessChecker) ObservabilityServer

	// Signals delivers shutdown signals.
	// Default: SIGINT and SIGTERM via signal.Notify
	Signals func() (<-chan os.Signal, func())

	// Ready is called once every listener is bound.
	Ready func(gatewayAddr, metricsAddr string)
}

// ObservabilityServer is the part of observability.Server that serve uses.
type ObservabilityServer interface {
	Start() (<-chan error, error)
	Stop(ctx context.Context) error
	Addr() string
	Metrics() *observability.Metrics
}

// MigratorFactory opens a schema migrator for a database URL.
type MigratorFactory func(databaseURL string) (Migrator, error)

// Migrator is the part of store.Migrator the migrate command drives.
type Migrator interface {
	Up() error
	Down() error
	Steps(n int) error
	Version() (version uint, dirty bool, err error)
	Force(version int) error
	PendingMigrations() ([]uint, error)
	AppliedMigrations() ([]uint, error)
	Close() error
}

var _ Migrator = (*store.Migrator)(nil)

func defaultMigratorFactory(databaseURL string) (Migrator, error) {
	m, err := store.NewMigrator(databaseURL)
	if err != nil {
		return nil, err
	}
	return m, nil
}
