// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 PFTL Contributors

package store

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
	"github.com/sethvargo/go-retry"

	"github.com/pftl/pftl/internal/core"
)

// poolIface is the subset of *pgxpool.Pool the store uses, so tests can
// substitute pgxmock.
type poolIface interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
	Close()
}

// ConnectOptions controls how OpenPostgres retries the initial connection.
type ConnectOptions struct {
	Attempts uint64
	Backoff  time.Duration
}

const resultColumns = `id, game_code, winner, outcome_kind, outcome_reason, outcome_detail,
	total_ticks, seed, log_digest, event_count, final_snapshot, completed_at`

// PostgresResultStore implements core.ResultStore using PostgreSQL.
type PostgresResultStore struct {
	pool poolIface
}

var _ Store = (*PostgresResultStore)(nil)

// NewPostgresResultStore wraps an existing pool.
func NewPostgresResultStore(pool poolIface) *PostgresResultStore {
	return &PostgresResultStore{pool: pool}
}

// OpenPostgres connects to dsn, retrying with exponential backoff while the
// database is unreachable.
func OpenPostgres(ctx context.Context, dsn string, opts ConnectOptions) (*PostgresResultStore, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, oops.Code("STORE_CONFIG_INVALID").Wrapf(err, "parse database url")
	}
	if opts.Backoff <= 0 {
		opts.Backoff = 250 * time.Millisecond
	}

	var pool *pgxpool.Pool
	attempt := 0
	backoff := retry.WithMaxRetries(opts.Attempts, retry.NewExponential(opts.Backoff))
	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		p, err := pgxpool.NewWithConfig(ctx, cfg)
		if err != nil {
			return oops.Wrap(err)
		}
		if err := p.Ping(ctx); err != nil {
			p.Close()
			slog.Warn("database not reachable", "attempt", attempt, "error", err)
			return retry.RetryableError(err)
		}
		pool = p
		return nil
	})
	if err != nil {
		return nil, oops.Code("STORE_CONNECT_FAILED").With("attempts", attempt).Wrapf(err, "connect to database")
	}
	return &PostgresResultStore{pool: pool}, nil
}

// Ping checks the connection.
func (s *PostgresResultStore) Ping(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return oops.With("operation", "ping").Wrap(err)
	}
	return nil
}

// Close closes the connection pool.
func (s *PostgresResultStore) Close() error {
	s.pool.Close()
	return nil
}

// Save inserts a result. A result whose id already exists is left alone.
func (s *PostgresResultStore) Save(ctx context.Context, r core.GameResult) error {
	snapshot, err := encodeSnapshot(r.FinalSnapshot)
	if err != nil {
		return oops.With("game_code", r.GameCode).Wrap(err)
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO game_results (`+resultColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		r.ID.String(),
		r.GameCode,
		winnerColumn(r),
		r.Outcome.Kind(),
		string(r.Outcome.Reason),
		r.Outcome.Detail,
		r.TotalTicks,
		r.Seed,
		r.LogDigest,
		r.EventCount,
		snapshot,
		r.CompletedAt,
	)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
		return nil
	}
	if err != nil {
		return oops.With("operation", "save result").
			With("game_code", r.GameCode).
			With("result_id", r.ID.String()).
			Wrap(err)
	}
	return nil
}

// Get returns the most recently completed result for gameCode.
func (s *PostgresResultStore) Get(ctx context.Context, gameCode string) (core.GameResult, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+resultColumns+` FROM game_results
		 WHERE game_code = $1 ORDER BY completed_at DESC, id DESC LIMIT 1`,
		gameCode)
	r, err := scanResult(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return core.GameResult{}, notFound(gameCode)
	}
	if err != nil {
		return core.GameResult{}, oops.With("operation", "get result").With("game_code", gameCode).Wrap(err)
	}
	return r, nil
}

// List returns up to limit results, newest first. A limit of zero or less
// returns everything.
func (s *PostgresResultStore) List(ctx context.Context, limit int) ([]core.GameResult, error) {
	var (
		rows pgx.Rows
		err  error
	)
	if limit > 0 {
		rows, err = s.pool.Query(ctx,
			`SELECT `+resultColumns+` FROM game_results ORDER BY completed_at DESC, id DESC LIMIT $1`,
			limit)
	} else {
		rows, err = s.pool.Query(ctx,
			`SELECT `+resultColumns+` FROM game_results ORDER BY completed_at DESC, id DESC`)
	}
	if err != nil {
		return nil, oops.With("operation", "list results").Wrap(err)
	}
	defer rows.Close()

	var out []core.GameResult
	for rows.Next() {
		r, err := scanResult(rows)
		if err != nil {
			return nil, oops.With("operation", "scan result row").Wrap(err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, oops.With("operation", "iterate results").Wrap(err)
	}
	return out, nil
}

// rowScanner is satisfied by pgx.Row and pgx.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanResult(row rowScanner) (core.GameResult, error) {
	var (
		r                    core.GameResult
		id                   string
		winner               *string
		kind, reason, detail string
		snapshot             []byte
	)
	if err := row.Scan(&id, &r.GameCode, &winner, &kind, &reason, &detail,
		&r.TotalTicks, &r.Seed, &r.LogDigest, &r.EventCount, &snapshot, &r.CompletedAt); err != nil {
		return core.GameResult{}, err
	}

	parsed, err := ulid.Parse(id)
	if err != nil {
		return core.GameResult{}, oops.With("result_id", id).Wrapf(err, "corrupt result id")
	}
	r.ID = parsed
	r.Outcome = outcomeFromRow(winner, kind, reason, detail)
	r.Winner = r.Outcome.Winner
	if r.FinalSnapshot, err = decodeSnapshot(snapshot); err != nil {
		return core.GameResult{}, oops.With("result_id", id).Wrap(err)
	}
	return r, nil
}
