// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 PFTL Contributors

// Package combat contains the deterministic battle model: ship instances,
// the turn engine, action sources and the outcome resolver.
//
// Nothing in this package performs I/O or reads the wall clock. Given the same
// initial ships, seed and queued actions the engine produces the same events.
package combat

import (
	"math"
	"sort"
)

// ParticipantID identifies a ship's owner within a session.
type ParticipantID string

// Status is the combat status of a ship.
type Status string

// Ship statuses.
const (
	StatusActive    Status = "active"
	StatusDisabled  Status = "disabled"
	StatusDestroyed Status = "destroyed"
)

// WeaponKind identifies a weapon family.
type WeaponKind string

// Weapon kinds known to the engine.
const (
	WeaponLaser   WeaponKind = "laser"
	WeaponRailgun WeaponKind = "railgun"
	WeaponMissile WeaponKind = "missile"
	WeaponNuclear WeaponKind = "nuclear"
	WeaponEMP     WeaponKind = "emp"
)

// Multiplier returns the damage multiplier for the weapon kind.
func (k WeaponKind) Multiplier() float64 {
	switch k {
	case WeaponRailgun:
		return 1.15
	case WeaponMissile:
		return 1.25
	case WeaponNuclear:
		return 1.60
	case WeaponEMP:
		return 1.20
	default:
		return 1.0
	}
}

// Valid reports whether k is a known weapon kind.
func (k WeaponKind) Valid() bool {
	switch k {
	case WeaponLaser, WeaponRailgun, WeaponMissile, WeaponNuclear, WeaponEMP:
		return true
	}
	return false
}

// WeaponSpec describes one weapon mount on an archetype.
type WeaponSpec struct {
	Kind     WeaponKind `json:"kind" yaml:"kind"`
	Power    int        `json:"power" yaml:"power"`
	Accuracy float64    `json:"accuracy" yaml:"accuracy"`
	Reload   int        `json:"reload" yaml:"reload"`
}

// StatBlock holds additive stat values.
type StatBlock struct {
	Health        int `json:"health,omitempty" yaml:"health,omitempty"`
	Shields       int `json:"shields,omitempty" yaml:"shields,omitempty"`
	Power         int `json:"power,omitempty" yaml:"power,omitempty"`
	Speed         int `json:"speed,omitempty" yaml:"speed,omitempty"`
	Fuel          int `json:"fuel,omitempty" yaml:"fuel,omitempty"`
	CargoCapacity int `json:"cargo_capacity,omitempty" yaml:"cargo_capacity,omitempty"`
	WeaponPower   int `json:"weapon_power,omitempty" yaml:"weapon_power,omitempty"`
	Crew          int `json:"crew,omitempty" yaml:"crew,omitempty"`
}

// StatScale holds multiplicative stat factors. A zero factor means 1.0.
type StatScale struct {
	Health      float64 `json:"health,omitempty" yaml:"health,omitempty"`
	Shields     float64 `json:"shields,omitempty" yaml:"shields,omitempty"`
	Power       float64 `json:"power,omitempty" yaml:"power,omitempty"`
	Speed       float64 `json:"speed,omitempty" yaml:"speed,omitempty"`
	Fuel        float64 `json:"fuel,omitempty" yaml:"fuel,omitempty"`
	WeaponPower float64 `json:"weapon_power,omitempty" yaml:"weapon_power,omitempty"`
}

// Archetype is read-only catalog data for a ship class.
type Archetype struct {
	Name          string       `json:"name" yaml:"name"`
	Cost          int          `json:"cost" yaml:"cost"`
	Health        int          `json:"health" yaml:"health"`
	Shields       int          `json:"shields" yaml:"shields"`
	Power         int          `json:"power" yaml:"power"`
	Speed         int          `json:"speed" yaml:"speed"`
	Fuel          int          `json:"fuel" yaml:"fuel"`
	WeaponSlots   int          `json:"weapon_slots" yaml:"weapon_slots"`
	CargoCapacity int          `json:"cargo_capacity" yaml:"cargo_capacity"`
	CrewCapacity  int          `json:"crew_capacity" yaml:"crew_capacity"`
	Evasion       float64      `json:"evasion" yaml:"evasion"`
	Weapons       []WeaponSpec `json:"weapons" yaml:"weapons"`
}

// Upgrade is read-only catalog data applied once at configuration time.
type Upgrade struct {
	Name     string    `json:"name" yaml:"name"`
	Cost     int       `json:"cost" yaml:"cost"`
	Add      StatBlock `json:"add" yaml:"add"`
	Multiply StatScale `json:"multiply" yaml:"multiply"`
}

// Weapon is a mounted weapon with its cooldown counter.
type Weapon struct {
	Kind     WeaponKind `json:"kind"`
	Power    int        `json:"power"`
	Accuracy float64    `json:"accuracy"`
	Reload   int        `json:"reload"`
	Cooldown int        `json:"cooldown"`
}

// Ready reports whether the weapon can fire this tick.
func (w Weapon) Ready() bool { return w.Cooldown == 0 }

// Ship is the mutable combat state of one participant.
type Ship struct {
	ID             ParticipantID `json:"id"`
	Name           string        `json:"name"`
	Archetype      string        `json:"archetype"`
	Health         int           `json:"health"`
	MaxHealth      int           `json:"max_health"`
	Shields        int           `json:"shields"`
	MaxShields     int           `json:"max_shields"`
	Power          int           `json:"power"`
	NominalPower   int           `json:"nominal_power"`
	Speed          int           `json:"speed"`
	Fuel           int           `json:"fuel"`
	MaxFuel        int           `json:"max_fuel"`
	CargoCapacity  int           `json:"cargo_capacity"`
	Evasion        float64       `json:"evasion"`
	CrewEfficiency float64       `json:"crew_efficiency"`
	Weapons        []Weapon      `json:"weapons"`
	Status         Status        `json:"status"`
}

// Clone returns a deep copy of the ship.
func (s Ship) Clone() Ship {
	c := s
	if s.Weapons != nil {
		c.Weapons = make([]Weapon, len(s.Weapons))
		copy(c.Weapons, s.Weapons)
	}
	return c
}

// Operational reports whether the ship still counts as a combatant.
func (s Ship) Operational() bool { return s.Status == StatusActive }

// Targetable reports whether the ship can still be shot at.
func (s Ship) Targetable() bool { return s.Status != StatusDestroyed && s.Health > 0 }

// CloneFleet deep-copies a slice of ships.
func CloneFleet(ships []Ship) []Ship {
	out := make([]Ship, len(ships))
	for i := range ships {
		out[i] = ships[i].Clone()
	}
	return out
}

func scale(v int, f float64) int {
	if f == 0 {
		return v
	}
	return int(math.Round(float64(v) * f))
}

func nonNegative(v int) int {
	if v < 0 {
		return 0
	}
	return v
}

// CrewEfficiency maps a crew head count onto the damage and regen multiplier.
func CrewEfficiency(crew, capacity int) float64 {
	if capacity <= 0 {
		return 1.0
	}
	eff := 0.5 + 0.5*float64(crew)/float64(capacity)
	return math.Max(0.5, math.Min(1.0, eff))
}

// Configure derives a ship instance from an archetype and its upgrades.
//
// Upgrades are applied in a canonical order regardless of selection order:
// they are sorted by name, all additive deltas are summed, then all
// multiplicative factors are applied. Upgrade crew deltas raise the crew
// capacity. crew is the head count aboard; zero or less means a full
// complement.
func Configure(id ParticipantID, name string, arch Archetype, upgrades []Upgrade, crew int) Ship {
	sorted := make([]Upgrade, len(upgrades))
	copy(sorted, upgrades)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Name < sorted[j].Name })

	add := StatBlock{}
	for _, u := range sorted {
		add.Health += u.Add.Health
		add.Shields += u.Add.Shields
		add.Power += u.Add.Power
		add.Speed += u.Add.Speed
		add.Fuel += u.Add.Fuel
		add.CargoCapacity += u.Add.CargoCapacity
		add.WeaponPower += u.Add.WeaponPower
		add.Crew += u.Add.Crew
	}

	health := arch.Health + add.Health
	shields := arch.Shields + add.Shields
	power := arch.Power + add.Power
	speed := arch.Speed + add.Speed
	fuel := arch.Fuel + add.Fuel
	crewCapacity := arch.CrewCapacity + add.Crew
	if crew <= 0 {
		crew = crewCapacity
	}

	weaponScale := 1.0
	for _, u := range sorted {
		health = scale(health, u.Multiply.Health)
		shields = scale(shields, u.Multiply.Shields)
		power = scale(power, u.Multiply.Power)
		speed = scale(speed, u.Multiply.Speed)
		fuel = scale(fuel, u.Multiply.Fuel)
		if u.Multiply.WeaponPower != 0 {
			weaponScale *= u.Multiply.WeaponPower
		}
	}

	mounts := arch.Weapons
	if arch.WeaponSlots >= 0 && len(mounts) > arch.WeaponSlots {
		mounts = mounts[:arch.WeaponSlots]
	}
	weapons := make([]Weapon, 0, len(mounts))
	for _, m := range mounts {
		weapons = append(weapons, Weapon{
			Kind:     m.Kind,
			Power:    nonNegative(scale(m.Power+add.WeaponPower, weaponScale)),
			Accuracy: m.Accuracy,
			Reload:   nonNegative(m.Reload),
		})
	}

	health = max(1, health)
	shields = nonNegative(shields)
	power = nonNegative(power)
	fuel = nonNegative(fuel)

	return Ship{
		ID:             id,
		Name:           name,
		Archetype:      arch.Name,
		Health:         health,
		MaxHealth:      health,
		Shields:        shields,
		MaxShields:     shields,
		Power:          power,
		NominalPower:   power,
		Speed:          nonNegative(speed),
		Fuel:           fuel,
		MaxFuel:        fuel,
		CargoCapacity:  nonNegative(arch.CargoCapacity + add.CargoCapacity),
		Evasion:        arch.Evasion,
		CrewEfficiency: CrewEfficiency(crew, crewCapacity),
		Weapons:        weapons,
		Status:         StatusActive,
	}
}
