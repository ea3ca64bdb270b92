// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 PFTL Contributors

// Package store provides game result storage backed by PostgreSQL, SQLite or
// process memory.
package store

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"time"

	"github.com/pierrec/lz4/v4"
	"github.com/samber/oops"

	"github.com/pftl/pftl/internal/combat"
	"github.com/pftl/pftl/internal/core"
)

// Supported storage drivers.
const (
	DriverMemory   = "memory"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// CodeUnknownDriver is returned by Open for an unsupported driver name.
const CodeUnknownDriver = "UNKNOWN_STORE_DRIVER"

// Store is a ResultStore with a lifecycle.
type Store interface {
	core.ResultStore
	Ping(ctx context.Context) error
	Close() error
}

// Config selects and configures a storage backend.
type Config struct {
	Driver          string        `koanf:"driver" env:"DRIVER" validate:"oneof=memory sqlite postgres"`
	DSN             string        `koanf:"dsn" env:"DSN" validate:"required_if=Driver postgres"`
	SQLitePath      string        `koanf:"sqlite_path" env:"SQLITE_PATH" validate:"required_if=Driver sqlite"`
	ConnectAttempts uint64        `koanf:"connect_attempts" env:"CONNECT_ATTEMPTS"`
	ConnectBackoff  time.Duration `koanf:"connect_backoff" env:"CONNECT_BACKOFF"`
}

// Open opens the configured backend. PostgreSQL schemas are managed with
// Migrator; SQLite applies its embedded schema on open.
func Open(ctx context.Context, cfg Config) (Store, error) {
	switch cfg.Driver {
	case DriverMemory, "":
		return memoryStore{core.NewMemoryResultStore()}, nil
	case DriverSQLite:
		s, err := OpenSQLite(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		return s, nil
	case DriverPostgres:
		s, err := OpenPostgres(ctx, cfg.DSN, ConnectOptions{Attempts: cfg.ConnectAttempts, Backoff: cfg.ConnectBackoff})
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, oops.Code(CodeUnknownDriver).With("driver", cfg.Driver).Errorf("unknown store driver %q", cfg.Driver)
	}
}

type memoryStore struct {
	*core.MemoryResultStore
}

func (memoryStore) Ping(context.Context) error { return nil }
func (memoryStore) Close() error               { return nil }

// encodeSnapshot serializes a fleet as lz4-compressed JSON.
func encodeSnapshot(ships []combat.Ship) ([]byte, error) {
	raw, err := json.Marshal(ships)
	if err != nil {
		return nil, oops.With("operation", "encode snapshot").Wrap(err)
	}
	var buf bytes.Buffer
	zw := lz4.NewWriter(&buf)
	if _, err := zw.Write(raw); err != nil {
		return nil, oops.With("operation", "compress snapshot").Wrap(err)
	}
	if err := zw.Close(); err != nil {
		return nil, oops.With("operation", "compress snapshot").Wrap(err)
	}
	return buf.Bytes(), nil
}

func decodeSnapshot(data []byte) ([]combat.Ship, error) {
	raw, err := io.ReadAll(lz4.NewReader(bytes.NewReader(data)))
	if err != nil {
		return nil, oops.With("operation", "decompress snapshot").Wrap(err)
	}
	var ships []combat.Ship
	if err := json.Unmarshal(raw, &ships); err != nil {
		return nil, oops.With("operation", "decode snapshot").Wrap(err)
	}
	return ships, nil
}

// outcomeFromRow rebuilds an Outcome from its stored columns.
func outcomeFromRow(winner *string, kind, reason, detail string) combat.Outcome {
	o := combat.Outcome{
		Reason:  combat.OutcomeReason(reason),
		Detail:  detail,
		Draw:    kind != "win",
		Aborted: kind == "aborted",
	}
	if winner != nil {
		o.Winner = combat.ParticipantID(*winner)
	}
	return o
}

func winnerColumn(r core.GameResult) *string {
	if r.Winner == "" {
		return nil
	}
	w := string(r.Winner)
	return &w
}

func notFound(gameCode string) error {
	return oops.Code(core.CodeResultNotFound).
		With("game_code", gameCode).
		Errorf("no result for game %q", gameCode)
}
