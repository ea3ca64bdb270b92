// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 PFTL Contributors

package combat

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

var testArchetype = Archetype{
	Name:          "destroyer",
	Health:        200,
	Shields:       50,
	Power:         80,
	Speed:         10,
	Fuel:          100,
	WeaponSlots:   2,
	CargoCapacity: 30,
	CrewCapacity:  40,
	Evasion:       0.05,
	Weapons: []WeaponSpec{
		{Kind: WeaponRailgun, Power: 20, Accuracy: 0.8, Reload: 1},
		{Kind: WeaponLaser, Power: 10, Accuracy: 0.9},
		{Kind: WeaponNuclear, Power: 60, Accuracy: 0.4, Reload: 5},
	},
}

func TestConfigure_BaseStats(t *testing.T) {
	s := Configure("p1", "Resolute", testArchetype, nil, 0)

	assert.Equal(t, ParticipantID("p1"), s.ID)
	assert.Equal(t, "destroyer", s.Archetype)
	assert.Equal(t, 200, s.Health)
	assert.Equal(t, s.Health, s.MaxHealth)
	assert.Equal(t, 50, s.Shields)
	assert.Equal(t, 80, s.NominalPower)
	assert.Equal(t, StatusActive, s.Status)
	assert.InDelta(t, 1.0, s.CrewEfficiency, 1e-9, "zero crew means a full complement")
	assert.Len(t, s.Weapons, 2, "weapons beyond the slot count are not mounted")
	assert.Equal(t, WeaponRailgun, s.Weapons[0].Kind)
	assert.Equal(t, 0, s.Weapons[0].Cooldown)

	bare := Ship{ID: "p2", Health: 10, MaxHealth: 10}
	assert.Nil(t, bare.Clone().Weapons, "an unarmed ship stays unarmed")
	assert.Equal(t, []Ship{bare}, CloneFleet([]Ship{bare}))
}

func TestConfigure_CrewBonusRaisesCapacity(t *testing.T) {
	quarters := Upgrade{Name: "quarters", Add: StatBlock{Crew: 10}}

	full := Configure("p1", "A", testArchetype, []Upgrade{quarters}, 0)
	assert.InDelta(t, 1.0, full.CrewEfficiency, 1e-9, "a full complement fills the enlarged quarters")

	skeleton := Configure("p1", "A", testArchetype, []Upgrade{quarters}, 1)
	assert.InDelta(t, 0.5+0.5/50.0, skeleton.CrewEfficiency, 1e-9, "the requested crew is the head count aboard")

	half := Configure("p1", "A", testArchetype, []Upgrade{quarters}, 25)
	assert.InDelta(t, 0.75, half.CrewEfficiency, 1e-9)
}

func TestConfigure_UpgradeOrderIndependent(t *testing.T) {
	armor := Upgrade{Name: "armor", Add: StatBlock{Health: 10}, Multiply: StatScale{Health: 1.5}}
	plating := Upgrade{Name: "plating", Add: StatBlock{Health: 20, Shields: 5}, Multiply: StatScale{Health: 2}}
	guns := Upgrade{Name: "guns", Add: StatBlock{WeaponPower: 4}, Multiply: StatScale{WeaponPower: 1.5}}

	a := Configure("p1", "A", testArchetype, []Upgrade{armor, plating, guns}, 0)
	b := Configure("p1", "A", testArchetype, []Upgrade{guns, plating, armor}, 0)

	assert.Equal(t, a, b)
	assert.Equal(t, 690, a.Health)
	assert.Equal(t, 55, a.Shields)
	assert.Equal(t, 36, a.Weapons[0].Power)
	assert.Equal(t, 21, a.Weapons[1].Power)
}

func TestConfigure_FloorsStats(t *testing.T) {
	wreck := Upgrade{Name: "wreck", Add: StatBlock{Health: -500, Shields: -100, Fuel: -200, WeaponPower: -50}}

	s := Configure("p1", "Hulk", testArchetype, []Upgrade{wreck}, 0)

	assert.Equal(t, 1, s.Health)
	assert.Equal(t, 0, s.Shields)
	assert.Equal(t, 0, s.Fuel)
	assert.Equal(t, 0, s.Weapons[0].Power)
}

func TestCrewEfficiency(t *testing.T) {
	tests := []struct {
		name     string
		crew     int
		capacity int
		want     float64
	}{
		{"full crew", 40, 40, 1.0},
		{"half crew", 20, 40, 0.75},
		{"no crew", 0, 40, 0.5},
		{"overcrewed", 80, 40, 1.0},
		{"no capacity", 10, 0, 1.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, CrewEfficiency(tt.crew, tt.capacity), 1e-9)
		})
	}
}

func TestShip_CloneIsDeep(t *testing.T) {
	s := Configure("p1", "A", testArchetype, nil, 0)
	c := s.Clone()
	c.Weapons[0].Cooldown = 3

	assert.Equal(t, 0, s.Weapons[0].Cooldown)
}

func TestWeaponKind_Multiplier(t *testing.T) {
	assert.InDelta(t, 1.0, WeaponLaser.Multiplier(), 1e-9)
	assert.InDelta(t, 1.6, WeaponNuclear.Multiplier(), 1e-9)
	assert.InDelta(t, 1.0, WeaponKind("plasma").Multiplier(), 1e-9)
	assert.True(t, WeaponEMP.Valid())
	assert.False(t, WeaponKind("plasma").Valid())
}
