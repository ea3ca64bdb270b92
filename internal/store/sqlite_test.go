// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 PFTL Contributors

package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pftl/pftl/internal/combat"
	"github.com/pftl/pftl/internal/core"
	"github.com/pftl/pftl/pkg/errutil"
)

func openTestSQLite(t *testing.T) *SQLiteResultStore {
	t.Helper()
	s, err := OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "results.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestOpenSQLite_RequiresPath(t *testing.T) {
	_, err := OpenSQLite(context.Background(), "  ")
	errutil.AssertErrorCode(t, err, "STORE_CONFIG_INVALID")
}

func TestOpenSQLite_ReopenKeepsData(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "results.db")

	s, err := OpenSQLite(ctx, path)
	require.NoError(t, err)
	r := fixtureResult()
	require.NoError(t, s.Save(ctx, r))
	require.NoError(t, s.Close())

	s, err = OpenSQLite(ctx, path)
	require.NoError(t, err, "migrations are applied once")
	defer s.Close() //nolint:errcheck // test cleanup

	got, err := s.Get(ctx, r.GameCode)
	require.NoError(t, err)
	assert.Equal(t, r.ID, got.ID)
}

func TestSQLiteResultStore_SaveAndGet(t *testing.T) {
	ctx := context.Background()
	s := openTestSQLite(t)
	want := fixtureResult()

	require.NoError(t, s.Save(ctx, want))

	got, err := s.Get(ctx, "ABC123")
	require.NoError(t, err)
	assert.Equal(t, want.ID, got.ID)
	assert.Equal(t, want.Winner, got.Winner)
	assert.Equal(t, want.Outcome, got.Outcome)
	assert.Equal(t, want.FinalSnapshot, got.FinalSnapshot)
	assert.Equal(t, want.Seed, got.Seed)
	assert.Equal(t, want.LogDigest, got.LogDigest)
	assert.Equal(t, want.EventCount, got.EventCount)
	assert.True(t, want.CompletedAt.Equal(got.CompletedAt))
}

func TestSQLiteResultStore_SaveDuplicateIsNoOp(t *testing.T) {
	ctx := context.Background()
	s := openTestSQLite(t)
	r := fixtureResult()

	require.NoError(t, s.Save(ctx, r))
	require.NoError(t, s.Save(ctx, r))

	all, err := s.List(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestSQLiteResultStore_GetNewestForCode(t *testing.T) {
	ctx := context.Background()
	s := openTestSQLite(t)

	older := fixtureResult()
	newer := fixtureResult()
	newer.CompletedAt = older.CompletedAt.Add(time.Minute)
	newer.Winner = ""
	newer.Outcome = combat.Outcome{Draw: true, Reason: combat.ReasonMutualDestruction}

	require.NoError(t, s.Save(ctx, newer))
	require.NoError(t, s.Save(ctx, older))

	got, err := s.Get(ctx, "ABC123")
	require.NoError(t, err)
	assert.Equal(t, newer.ID, got.ID)
	assert.True(t, got.Outcome.Draw)
	assert.Empty(t, got.Winner)
}

func TestSQLiteResultStore_GetNotFound(t *testing.T) {
	s := openTestSQLite(t)

	_, err := s.Get(context.Background(), "NOPE")
	errutil.AssertErrorCode(t, err, core.CodeResultNotFound)
	errutil.AssertErrorContext(t, err, "game_code", "NOPE")
}

func TestSQLiteResultStore_List(t *testing.T) {
	ctx := context.Background()
	s := openTestSQLite(t)

	base := fixtureResult().CompletedAt
	codes := []string{"AAAAAA", "BBBBBB", "CCCCCC"}
	for i, code := range codes {
		r := fixtureResult()
		r.GameCode = code
		r.CompletedAt = base.Add(time.Duration(i) * time.Minute)
		require.NoError(t, s.Save(ctx, r))
	}

	tests := []struct {
		name  string
		limit int
		want  []string
	}{
		{"all", 0, []string{"CCCCCC", "BBBBBB", "AAAAAA"}},
		{"negative is all", -3, []string{"CCCCCC", "BBBBBB", "AAAAAA"}},
		{"limited", 2, []string{"CCCCCC", "BBBBBB"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.List(ctx, tt.limit)
			require.NoError(t, err)
			var gotCodes []string
			for _, r := range got {
				gotCodes = append(gotCodes, r.GameCode)
			}
			assert.Equal(t, tt.want, gotCodes)
		})
	}
}

func TestSQLiteResultStore_Ping(t *testing.T) {
	s := openTestSQLite(t)
	require.NoError(t, s.Ping(context.Background()))
}
