// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 PFTL Contributors

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pftl/pftl/internal/catalog"
	"github.com/pftl/pftl/internal/combat"
	"github.com/pftl/pftl/internal/core"
	"github.com/pftl/pftl/pkg/errutil"
)

func TestParseShip(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    fleetEntry
		wantErr bool
	}{
		{
			name: "archetype only",
			raw:  "alpha=Battleship",
			want: fleetEntry{ID: "alpha", Loadout: catalog.Loadout{Archetype: "Battleship"}},
		},
		{
			name: "upgrades with spaces",
			raw:  "beta = Star Destroyer + Reinforced Hull+Power Core",
			want: fleetEntry{ID: "beta", Loadout: catalog.Loadout{
				Archetype: "Star Destroyer",
				Upgrades:  []string{"Reinforced Hull", "Power Core"},
			}},
		},
		{name: "missing separator", raw: "Battleship", wantErr: true},
		{name: "missing id", raw: "=Battleship", wantErr: true},
		{name: "missing archetype", raw: "alpha=", wantErr: true},
		{name: "empty upgrade", raw: "alpha=Battleship++Power Core", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseShip(tt.raw)
			if tt.wantErr {
				errutil.AssertErrorCode(t, err, CodeInvalidFleet)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestBuildFleet(t *testing.T) {
	cat, err := catalog.Default()
	require.NoError(t, err)

	fleetFile := filepath.Join(t.TempDir(), "fleet.yaml")
	require.NoError(t, os.WriteFile(fleetFile, []byte(`
- id: alpha
  archetype: Battleship
  name: Dauntless
- id: beta
  archetype: Destroyer
  upgrades: [Reinforced Hull]
`), 0o600))

	tests := []struct {
		name     string
		cfg      simulateConfig
		wantIDs  []combat.ParticipantID
		wantCode string
	}{
		{
			name:    "flags",
			cfg:     simulateConfig{ships: []string{"a=Battleship", "b=Destroyer"}},
			wantIDs: []combat.ParticipantID{"a", "b"},
		},
		{
			name:    "file then flags",
			cfg:     simulateConfig{fleetFile: fleetFile, ships: []string{"gamma=Cruiser"}},
			wantIDs: []combat.ParticipantID{"alpha", "beta", "gamma"},
		},
		{
			name:     "too few ships",
			cfg:      simulateConfig{ships: []string{"a=Battleship"}},
			wantCode: core.CodeInvalidParticipantCount,
		},
		{
			name:     "unknown archetype",
			cfg:      simulateConfig{ships: []string{"a=Battleship", "b=Rowboat"}},
			wantCode: catalog.CodeUnknownArchetype,
		},
		{
			name:     "missing fleet file",
			cfg:      simulateConfig{fleetFile: filepath.Join(t.TempDir(), "nope.yaml")},
			wantCode: CodeInvalidFleet,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fleet, err := buildFleet(cat, &tt.cfg)
			if tt.wantCode != "" {
				errutil.AssertErrorCode(t, err, tt.wantCode)
				return
			}
			require.NoError(t, err)
			ids := make([]combat.ParticipantID, len(fleet))
			for i, p := range fleet {
				ids[i] = p.ID
				assert.True(t, p.Ready)
			}
			assert.Equal(t, tt.wantIDs, ids)
		})
	}

	fleet, err := buildFleet(cat, &simulateConfig{fleetFile: fleetFile})
	require.NoError(t, err)
	assert.Equal(t, "Dauntless", fleet[0].Ship.Name)
}

func TestSimulate_IsDeterministic(t *testing.T) {
	cat, err := catalog.Default()
	require.NoError(t, err)
	fleet, err := buildFleet(cat, &simulateConfig{ships: []string{"alpha=Battleship", "beta=Destroyer"}})
	require.NoError(t, err)

	first, firstEvents, err := simulate(context.Background(), fleet, 42, 50)
	require.NoError(t, err)
	second, secondEvents, err := simulate(context.Background(), fleet, 42, 50)
	require.NoError(t, err)

	assert.Equal(t, first.Digest, second.Digest)
	assert.Equal(t, firstEvents, secondEvents)
	assert.Equal(t, first.Outcome, second.Outcome)
	assert.LessOrEqual(t, first.Ticks, 50)
	assert.Equal(t, len(firstEvents), first.Events)

	require.NotEmpty(t, firstEvents)
	assert.True(t, combat.Ordered(firstEvents))
	assert.Equal(t, combat.EventGameOver, firstEvents[len(firstEvents)-1].Type)

	digest, err := combat.Digest(firstEvents)
	require.NoError(t, err)
	assert.Equal(t, digest, first.Digest)
}

func TestSimulateCommand_Output(t *testing.T) {
	args := []string{"--seed", "7", "--max-ticks", "40", "--ship", "alpha=Battleship", "--ship", "beta=Destroyer"}

	t.Run("text", func(t *testing.T) {
		cmd := NewSimulateCmd()
		buf := new(bytes.Buffer)
		cmd.SetOut(buf)
		cmd.SetArgs(append(args, "--quiet"))

		require.NoError(t, cmd.Execute())
		out := buf.String()
		assert.Contains(t, out, "seed:    7")
		assert.Contains(t, out, "digest:  ")
		assert.Contains(t, out, "outcome: ")
		assert.NotContains(t, out, "TurnStarted", "quiet output omits events")
	})

	t.Run("json", func(t *testing.T) {
		cmd := NewSimulateCmd()
		buf := new(bytes.Buffer)
		cmd.SetOut(buf)
		cmd.SetArgs(append(args, "--output", "json"))

		require.NoError(t, cmd.Execute())
		lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
		require.Greater(t, len(lines), 2)

		var report simulationReport
		require.NoError(t, json.Unmarshal([]byte(lines[len(lines)-1]), &report))
		assert.Equal(t, int64(7), report.Seed)
		assert.Equal(t, len(lines)-1, report.Events)

		var first combat.Event
		require.NoError(t, json.Unmarshal([]byte(lines[0]), &first))
		assert.Equal(t, combat.EventTurnStarted, first.Type)
	})

	t.Run("bad output format", func(t *testing.T) {
		cmd := NewSimulateCmd()
		cmd.SetOut(new(bytes.Buffer))
		cmd.SetErr(new(bytes.Buffer))
		cmd.SetArgs(append(args, "--output", "xml"))
		assert.Error(t, cmd.Execute())
	})
}
