// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 PFTL Contributors

package store

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"

	"github.com/pftl/pftl/internal/core"
	"github.com/pftl/pftl/internal/xdg"
)

//go:embed sqlite_migrations/*.sql
var sqliteMigrationsFS embed.FS

// SQLiteResultStore implements core.ResultStore on a local SQLite file.
type SQLiteResultStore struct {
	db *sql.DB
}

var _ Store = (*SQLiteResultStore)(nil)

// OpenSQLite opens or creates the database at path and applies the embedded
// schema. ":memory:" opens a private in-memory database.
func OpenSQLite(ctx context.Context, path string) (*SQLiteResultStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, oops.Code("STORE_CONFIG_INVALID").Errorf("sqlite path is required")
	}

	dsn := ":memory:"
	if path != ":memory:" {
		clean := filepath.Clean(path)
		if err := xdg.EnsureDir(filepath.Dir(clean)); err != nil {
			return nil, err
		}
		dsn = "file:" + clean + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, oops.With("path", path).Wrapf(err, "open sqlite db")
	}
	// One connection keeps ":memory:" databases shared and serializes writers.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, oops.With("path", path).Wrapf(err, "ping sqlite db")
	}
	if err := applySQLiteMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &SQLiteResultStore{db: db}, nil
}

// applySQLiteMigrations runs each embedded file once, recording it in
// schema_migrations.
func applySQLiteMigrations(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		name TEXT PRIMARY KEY,
		applied_at INTEGER NOT NULL
	)`); err != nil {
		return oops.Code("MIGRATION_UP_FAILED").Wrapf(err, "ensure migration table")
	}

	entries, err := fs.ReadDir(sqliteMigrationsFS, "sqlite_migrations")
	if err != nil {
		return oops.Code("MIGRATION_LIST_FAILED").Wrap(err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".sql") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	for _, name := range names {
		var found int
		err := db.QueryRowContext(ctx, `SELECT 1 FROM schema_migrations WHERE name = ?`, name).Scan(&found)
		if err == nil {
			continue
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return oops.Code("MIGRATION_UP_FAILED").With("migration", name).Wrap(err)
		}

		body, err := fs.ReadFile(sqliteMigrationsFS, "sqlite_migrations/"+name)
		if err != nil {
			return oops.Code("MIGRATION_READ_FAILED").With("migration", name).Wrap(err)
		}

		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return oops.Code("MIGRATION_UP_FAILED").With("migration", name).Wrap(err)
		}
		if _, err := tx.ExecContext(ctx, string(body)); err != nil {
			_ = tx.Rollback()
			return oops.Code("MIGRATION_UP_FAILED").With("migration", name).Wrap(err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO schema_migrations (name, applied_at) VALUES (?, ?)`,
			name, time.Now().UTC().UnixMilli()); err != nil {
			_ = tx.Rollback()
			return oops.Code("MIGRATION_UP_FAILED").With("migration", name).Wrap(err)
		}
		if err := tx.Commit(); err != nil {
			return oops.Code("MIGRATION_UP_FAILED").With("migration", name).Wrap(err)
		}
	}
	return nil
}

// Ping checks the database handle.
func (s *SQLiteResultStore) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return oops.With("operation", "ping").Wrap(err)
	}
	return nil
}

// Close closes the database.
func (s *SQLiteResultStore) Close() error {
	return s.db.Close()
}

// Save inserts a result. A result whose id already exists is left alone.
func (s *SQLiteResultStore) Save(ctx context.Context, r core.GameResult) error {
	snapshot, err := encodeSnapshot(r.FinalSnapshot)
	if err != nil {
		return oops.With("game_code", r.GameCode).Wrap(err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO game_results (`+resultColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
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
		r.CompletedAt.UTC().UnixMilli(),
	)
	if isSQLiteConstraint(err) {
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

func isSQLiteConstraint(err error) bool {
	var sqliteErr *msqlite.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	switch sqliteErr.Code() {
	case sqlite3lib.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3lib.SQLITE_CONSTRAINT_UNIQUE:
		return true
	}
	return false
}

// Get returns the most recently completed result for gameCode.
func (s *SQLiteResultStore) Get(ctx context.Context, gameCode string) (core.GameResult, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+resultColumns+` FROM game_results
		 WHERE game_code = ? ORDER BY completed_at DESC, id DESC LIMIT 1`,
		gameCode)
	r, err := scanSQLiteResult(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.GameResult{}, notFound(gameCode)
	}
	if err != nil {
		return core.GameResult{}, oops.With("operation", "get result").With("game_code", gameCode).Wrap(err)
	}
	return r, nil
}

// List returns up to limit results, newest first. A limit of zero or less
// returns everything.
func (s *SQLiteResultStore) List(ctx context.Context, limit int) ([]core.GameResult, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+resultColumns+` FROM game_results ORDER BY completed_at DESC, id DESC LIMIT ?`,
		limit)
	if err != nil {
		return nil, oops.With("operation", "list results").Wrap(err)
	}
	defer rows.Close() //nolint:errcheck // read-only cursor

	var out []core.GameResult
	for rows.Next() {
		r, err := scanSQLiteResult(rows)
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

func scanSQLiteResult(row rowScanner) (core.GameResult, error) {
	var (
		r                    core.GameResult
		id                   string
		winner               sql.NullString
		kind, reason, detail string
		snapshot             []byte
		completedAt          int64
	)
	if err := row.Scan(&id, &r.GameCode, &winner, &kind, &reason, &detail,
		&r.TotalTicks, &r.Seed, &r.LogDigest, &r.EventCount, &snapshot, &completedAt); err != nil {
		return core.GameResult{}, err
	}

	parsed, err := ulid.Parse(id)
	if err != nil {
		return core.GameResult{}, oops.With("result_id", id).Wrapf(err, "corrupt result id")
	}
	r.ID = parsed
	var w *string
	if winner.Valid {
		w = &winner.String
	}
	r.Outcome = outcomeFromRow(w, kind, reason, detail)
	r.Winner = r.Outcome.Winner
	r.CompletedAt = time.UnixMilli(completedAt).UTC()
	if r.FinalSnapshot, err = decodeSnapshot(snapshot); err != nil {
		return core.GameResult{}, oops.With("result_id", id).Wrap(err)
	}
	return r, nil
}
