// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 PFTL Contributors

package catalog

import (
	"github.com/samber/oops"

	"github.com/pftl/pftl/internal/combat"
	"github.com/pftl/pftl/internal/core"
)

// Loadout is a player's ship selection: one archetype, any number of distinct
// upgrades and an optional crew size.
type Loadout struct {
	Archetype string   `json:"archetype" yaml:"archetype" validate:"required,max=64"`
	Upgrades  []string `json:"upgrades,omitempty" yaml:"upgrades,omitempty" validate:"max=16,dive,required"`
	Crew      int      `json:"crew,omitempty" yaml:"crew,omitempty" validate:"gte=0"`
	Name      string   `json:"name,omitempty" yaml:"name,omitempty" validate:"max=64"`
}

// Cost returns the number of budget tokens the loadout spends.
func (c *Catalog) Cost(l Loadout) (int, error) {
	arch, upgrades, err := c.resolve(l)
	if err != nil {
		return 0, err
	}
	total := arch.Cost
	for _, u := range upgrades {
		total += u.Cost
	}
	return total, nil
}

// Configure checks the loadout against the catalog and the token budget and
// derives the ship instance the engine will fight with.
func (c *Catalog) Configure(id combat.ParticipantID, l Loadout) (combat.Ship, error) {
	arch, upgrades, err := c.resolve(l)
	if err != nil {
		return combat.Ship{}, err
	}

	total := arch.Cost
	crewBonus := 0
	for _, u := range upgrades {
		total += u.Cost
		crewBonus += u.Add.Crew
	}
	if total > c.Budget {
		return combat.Ship{}, oops.Code(CodeBudgetExceeded).
			With("participant", string(id)).
			With("cost", total).
			With("budget", c.Budget).
			Errorf("loadout costs %d tokens, budget is %d", total, c.Budget)
	}
	if l.Crew > arch.CrewCapacity+crewBonus {
		return combat.Ship{}, oops.Code(CodeInvalidLoadout).
			With("participant", string(id)).
			With("crew", l.Crew).
			With("crew_capacity", arch.CrewCapacity+crewBonus).
			Errorf("crew of %d exceeds capacity %d", l.Crew, arch.CrewCapacity+crewBonus)
	}

	name := l.Name
	if name == "" {
		name = string(id)
	}
	return combat.Configure(id, name, arch, upgrades, l.Crew), nil
}

// Participant configures a ship for id and wraps it as a lobby participant.
func (c *Catalog) Participant(id combat.ParticipantID, l Loadout, ready bool) (core.Participant, error) {
	ship, err := c.Configure(id, l)
	if err != nil {
		return core.Participant{}, err
	}
	return core.Participant{ID: id, Ship: ship, Ready: ready}, nil
}

func (c *Catalog) resolve(l Loadout) (combat.Archetype, []combat.Upgrade, error) {
	if err := validate.Struct(l); err != nil {
		return combat.Archetype{}, nil, oops.Code(CodeInvalidLoadout).Wrapf(err, "invalid loadout")
	}
	arch, err := c.Archetype(l.Archetype)
	if err != nil {
		return combat.Archetype{}, nil, err
	}

	seen := make(map[string]bool, len(l.Upgrades))
	upgrades := make([]combat.Upgrade, 0, len(l.Upgrades))
	for _, name := range l.Upgrades {
		if seen[name] {
			return combat.Archetype{}, nil, oops.Code(CodeInvalidLoadout).
				With("upgrade", name).
				Errorf("upgrade %q selected twice", name)
		}
		seen[name] = true
		u, err := c.Upgrade(name)
		if err != nil {
			return combat.Archetype{}, nil, err
		}
		upgrades = append(upgrades, u)
	}
	return arch, upgrades, nil
}
