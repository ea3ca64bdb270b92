// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 PFTL Contributors

package combat

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func shipAt(id ParticipantID, health, maxHealth int, status Status) Ship {
	return Ship{ID: id, Health: health, MaxHealth: maxHealth, Status: status}
}

func TestResolve(t *testing.T) {
	rules := DefaultRules()
	rules.MaxTicks = 10

	tests := []struct {
		name   string
		ships  []Ship
		tick   int
		done   bool
		winner ParticipantID
		draw   bool
		reason OutcomeReason
	}{
		{
			name:  "two active before cap",
			ships: []Ship{shipAt("a", 5, 10, StatusActive), shipAt("b", 5, 10, StatusActive)},
			tick:  3,
		},
		{
			name:   "one active",
			ships:  []Ship{shipAt("a", 5, 10, StatusActive), shipAt("b", 0, 10, StatusDestroyed)},
			tick:   3,
			done:   true,
			winner: "a",
			reason: ReasonLastStanding,
		},
		{
			name:   "disabled ship does not win",
			ships:  []Ship{shipAt("a", 1, 10, StatusDisabled), shipAt("b", 6, 10, StatusActive)},
			tick:   3,
			done:   true,
			winner: "b",
			reason: ReasonLastStanding,
		},
		{
			name:   "none active",
			ships:  []Ship{shipAt("a", 0, 10, StatusDestroyed), shipAt("b", 1, 10, StatusDisabled)},
			tick:   3,
			done:   true,
			draw:   true,
			reason: ReasonMutualDestruction,
		},
		{
			name:   "cap reached highest fraction wins",
			ships:  []Ship{shipAt("a", 40, 100, StatusActive), shipAt("b", 30, 50, StatusActive)},
			tick:   10,
			done:   true,
			winner: "b",
			reason: ReasonMaxTicks,
		},
		{
			name:   "cap reached equal fractions draw",
			ships:  []Ship{shipAt("a", 50, 100, StatusActive), shipAt("b", 25, 50, StatusActive)},
			tick:   10,
			done:   true,
			draw:   true,
			reason: ReasonMaxTicks,
		},
		{
			name: "cap reached tie broken by a later leader",
			ships: []Ship{
				shipAt("a", 50, 100, StatusActive),
				shipAt("b", 25, 50, StatusActive),
				shipAt("c", 90, 100, StatusActive),
			},
			tick:   10,
			done:   true,
			winner: "c",
			reason: ReasonMaxTicks,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			outcome, done := Resolve(tt.ships, tt.tick, rules)
			require.Equal(t, tt.done, done)
			if !done {
				return
			}
			assert.Equal(t, tt.winner, outcome.Winner)
			assert.Equal(t, tt.draw, outcome.Draw)
			assert.Equal(t, tt.reason, outcome.Reason)
		})
	}
}

func TestResolve_ZeroMaxTicksUsesDefault(t *testing.T) {
	ships := []Ship{shipAt("a", 5, 10, StatusActive), shipAt("b", 5, 10, StatusActive)}

	_, done := Resolve(ships, DefaultMaxTicks-1, Rules{})
	assert.False(t, done)
	_, done = Resolve(ships, DefaultMaxTicks, Rules{})
	assert.True(t, done)
}

func TestOutcome_GameOver(t *testing.T) {
	final := []Ship{shipAt("a", 5, 10, StatusActive)}
	o := Aborted(ReasonAborted, "stopped by operator")

	e, err := o.GameOver(7, 2, final)
	require.NoError(t, err)

	var p GameOverPayload
	require.NoError(t, e.Decode(&p))
	assert.True(t, p.Aborted)
	assert.True(t, p.Draw)
	assert.Equal(t, 7, p.TotalTicks)
	assert.Equal(t, "stopped by operator", p.Detail)
	require.Len(t, p.Final, 1)
	assert.Equal(t, "aborted", o.Kind())
}
