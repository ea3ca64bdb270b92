// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 PFTL Contributors

package core

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/pftl/pftl/internal/combat"
)

// GameResult is the final record of a completed session.
type GameResult struct {
	ID            ulid.ULID            `json:"id"`
	GameCode      string               `json:"game_code"`
	Winner        combat.ParticipantID `json:"winner,omitempty"`
	Outcome       combat.Outcome       `json:"outcome"`
	FinalSnapshot []combat.Ship        `json:"final_snapshot"`
	TotalTicks    int                  `json:"total_ticks"`
	Seed          int64                `json:"seed"`
	LogDigest     string               `json:"log_digest"`
	EventCount    int                  `json:"event_count"`
	CompletedAt   time.Time            `json:"completed_at"`
}

// ResultSink receives each GameResult exactly once when its session completes.
// HandOff is called off the tick path and may perform I/O.
type ResultSink interface {
	HandOff(ctx context.Context, result GameResult) error
}

// SinkFunc adapts a function to ResultSink.
type SinkFunc func(ctx context.Context, result GameResult) error

// HandOff calls f.
func (f SinkFunc) HandOff(ctx context.Context, result GameResult) error { return f(ctx, result) }

// ResultStore persists game results.
type ResultStore interface {
	// Save stores a result. Saving a result whose ID already exists is a no-op.
	Save(ctx context.Context, result GameResult) error
	// Get returns the most recent result for a game code.
	Get(ctx context.Context, gameCode string) (GameResult, error)
	// List returns up to limit results, most recently completed first.
	List(ctx context.Context, limit int) ([]GameResult, error)
}

// StoreSink hands results straight to a store.
func StoreSink(store ResultStore) ResultSink {
	return SinkFunc(store.Save)
}

// MemoryResultStore is an in-memory ResultStore.
type MemoryResultStore struct {
	mu      sync.RWMutex
	results []GameResult
	ids     map[ulid.ULID]struct{}
}

// NewMemoryResultStore creates an empty in-memory result store.
func NewMemoryResultStore() *MemoryResultStore {
	return &MemoryResultStore{ids: make(map[ulid.ULID]struct{})}
}

// Save stores a copy of the result.
func (s *MemoryResultStore) Save(_ context.Context, result GameResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.ids[result.ID]; ok {
		return nil
	}
	s.ids[result.ID] = struct{}{}
	result.FinalSnapshot = combat.CloneFleet(result.FinalSnapshot)
	s.results = append(s.results, result)
	return nil
}

// Get returns the most recently completed result for gameCode.
func (s *MemoryResultStore) Get(_ context.Context, gameCode string) (GameResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var (
		found GameResult
		ok    bool
	)
	for _, r := range s.results {
		if r.GameCode == gameCode && (!ok || !r.CompletedAt.Before(found.CompletedAt)) {
			found, ok = r, true
		}
	}
	if !ok {
		return GameResult{}, oops.Code(CodeResultNotFound).
			With("game_code", gameCode).
			Errorf("no result for game %q", gameCode)
	}
	found.FinalSnapshot = combat.CloneFleet(found.FinalSnapshot)
	return found, nil
}

// List returns up to limit results, newest first. A limit of zero or less
// returns everything.
func (s *MemoryResultStore) List(_ context.Context, limit int) ([]GameResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]GameResult, len(s.results))
	copy(out, s.results)
	sort.SliceStable(out, func(i, j int) bool { return out[i].CompletedAt.After(out[j].CompletedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	for i := range out {
		out[i].FinalSnapshot = combat.CloneFleet(out[i].FinalSnapshot)
	}
	return out, nil
}

// Len returns the number of stored results.
func (s *MemoryResultStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.results)
}
