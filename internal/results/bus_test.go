// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 PFTL Contributors

package results_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/pftl/pftl/internal/combat"
	"github.com/pftl/pftl/internal/core"
	"github.com/pftl/pftl/internal/results"
	"github.com/pftl/pftl/pkg/errutil"
)

// flakyStore fails the first failures writes, then delegates to a memory store.
type flakyStore struct {
	*core.MemoryResultStore
	mu       sync.Mutex
	failures int
	calls    int
}

func (f *flakyStore) Save(ctx context.Context, r core.GameResult) error {
	f.mu.Lock()
	f.calls++
	fail := f.calls <= f.failures
	f.mu.Unlock()
	if fail {
		return errors.New("connection reset")
	}
	return f.MemoryResultStore.Save(ctx, r)
}

func (f *flakyStore) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func testConfig() results.Config {
	cfg := results.DefaultConfig()
	cfg.RetryBase = time.Millisecond
	cfg.MaxRetries = 3
	return cfg
}

func newBus(t *testing.T, store core.ResultStore) *results.Bus {
	t.Helper()
	bus, err := results.NewBus(store, testConfig())
	require.NoError(t, err)
	t.Cleanup(func() { _ = bus.Close() })
	return bus
}

func sampleResult(code string) core.GameResult {
	return core.GameResult{
		ID:       core.NewULID(),
		GameCode: code,
		Winner:   "ship1",
		Outcome:  combat.Outcome{Winner: "ship1", Reason: combat.ReasonLastStanding},
		FinalSnapshot: []combat.Ship{
			{ID: "ship1", Health: 40, MaxHealth: 100, Status: combat.StatusActive},
			{ID: "ship2", Health: 0, MaxHealth: 100, Status: combat.StatusDestroyed},
		},
		TotalTicks:  12,
		Seed:        42,
		LogDigest:   "abc",
		EventCount:  30,
		CompletedAt: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestBus_HandOffPersists(t *testing.T) {
	store := core.NewMemoryResultStore()
	bus := newBus(t, store)
	want := sampleResult("ABC123")

	require.NoError(t, bus.HandOff(context.Background(), want))

	got, err := store.Get(context.Background(), "ABC123")
	require.NoError(t, err)
	assert.Equal(t, want.ID, got.ID)
	assert.Equal(t, want.Winner, got.Winner)
	assert.Equal(t, want.Outcome, got.Outcome)
	assert.Equal(t, want.FinalSnapshot, got.FinalSnapshot)
	assert.Equal(t, want.Seed, got.Seed)
	assert.True(t, want.CompletedAt.Equal(got.CompletedAt))
}

func TestBus_RetriesTransientFailures(t *testing.T) {
	store := &flakyStore{MemoryResultStore: core.NewMemoryResultStore(), failures: 2}
	bus := newBus(t, store)

	require.NoError(t, bus.HandOff(context.Background(), sampleResult("RETRY")))
	assert.Equal(t, 3, store.Calls())
	assert.Equal(t, 1, store.Len())
}

func TestBus_GivesUpAfterMaxRetries(t *testing.T) {
	store := &flakyStore{MemoryResultStore: core.NewMemoryResultStore(), failures: 100}
	bus := newBus(t, store)

	err := bus.HandOff(context.Background(), sampleResult("DOOMED"))
	require.Error(t, err)
	errutil.AssertErrorContext(t, err, "game_code", "DOOMED")
	assert.Equal(t, 4, store.Calls(), "first attempt plus three retries")
	assert.Equal(t, 0, store.Len())
}

func TestBus_HandOffRespectsContext(t *testing.T) {
	store := &flakyStore{MemoryResultStore: core.NewMemoryResultStore(), failures: 1000}
	cfg := testConfig()
	cfg.RetryBase = 50 * time.Millisecond
	cfg.MaxRetries = 1000
	bus, err := results.NewBus(store, cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = bus.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err = bus.HandOff(ctx, sampleResult("SLOW"))
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestBus_ClosedRejectsHandOff(t *testing.T) {
	bus, err := results.NewBus(core.NewMemoryResultStore(), testConfig())
	require.NoError(t, err)
	require.NoError(t, bus.Close())
	require.NoError(t, bus.Close(), "close is idempotent")

	err = bus.HandOff(context.Background(), sampleResult("LATE"))
	errutil.AssertErrorCode(t, err, results.CodeBusClosed)
}

func TestBus_ConcurrentHandOffs(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	store := core.NewMemoryResultStore()
	bus, err := results.NewBus(store, testConfig())
	require.NoError(t, err)

	var wg sync.WaitGroup
	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, bus.HandOff(context.Background(), sampleResult("MANY")))
		}()
	}
	wg.Wait()
	require.NoError(t, bus.Close())
	assert.Equal(t, 20, store.Len())
}

func TestBus_AsManagerSink(t *testing.T) {
	store := core.NewMemoryResultStore()
	bus := newBus(t, store)

	cfg := core.DefaultManagerConfig()
	cfg.TickInterval = 0
	cfg.Retention = time.Hour
	m := core.NewManager(cfg, bus)

	ships := []core.Participant{
		{ID: "ship1", Ready: true, Ship: combat.Ship{Name: "Alpha", Health: 100, MaxHealth: 100, Power: 10, NominalPower: 10, Fuel: 100, MaxFuel: 100, CrewEfficiency: 1, Status: combat.StatusActive,
			Weapons: []combat.Weapon{{Kind: combat.WeaponLaser, Power: 200, Accuracy: 1}}}},
		{ID: "ship2", Ready: true, Ship: combat.Ship{Name: "Beta", Health: 50, MaxHealth: 50, Power: 10, NominalPower: 10, Fuel: 100, MaxFuel: 100, CrewEfficiency: 1, Status: combat.StatusActive}},
	}
	_, err := m.CreateSession("BUSGAME", ships, 3)
	require.NoError(t, err)
	require.NoError(t, m.StartGame("BUSGAME"))
	require.NoError(t, m.Step(context.Background(), "BUSGAME"))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, m.Shutdown(ctx))

	got, err := store.Get(context.Background(), "BUSGAME")
	require.NoError(t, err)
	assert.Equal(t, combat.ParticipantID("ship1"), got.Winner)
	assert.Equal(t, 1, got.TotalTicks)
}
