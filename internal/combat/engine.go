// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 PFTL Contributors

package combat

import (
	"fmt"
	"math"
	"math/rand"
	"sort"

	"github.com/samber/oops"
)

// CodeInvariantViolation marks a fatal internal contradiction in battle state.
const CodeInvariantViolation = "SIMULATION_INVARIANT_VIOLATION"

// Rules holds the tuning constants of the turn engine.
type Rules struct {
	// MaxTicks bounds the length of a battle. Zero means DefaultMaxTicks.
	MaxTicks int `json:"max_ticks" yaml:"max_ticks"`
	// ShieldRegenRate is the fraction of effective power regenerated as shields per tick.
	// A damaged ship with power left regains at least one shield point per tick.
	ShieldRegenRate float64 `json:"shield_regen_rate" yaml:"shield_regen_rate"`
	// FuelDrawBase is the fuel every surviving ship burns per tick.
	FuelDrawBase int `json:"fuel_draw_base" yaml:"fuel_draw_base"`
	// FuelDrawPerShot is the extra fuel burned per weapon fired.
	FuelDrawPerShot int `json:"fuel_draw_per_shot" yaml:"fuel_draw_per_shot"`
	// StarvedPowerFactor caps usable power once fuel is exhausted.
	StarvedPowerFactor float64 `json:"starved_power_factor" yaml:"starved_power_factor"`
	// DisableThreshold is the hull fraction at or below which a ship is disabled.
	DisableThreshold float64 `json:"disable_threshold" yaml:"disable_threshold"`
	// SpeedHitFactor converts the attacker/target speed difference into hit chance.
	SpeedHitFactor float64 `json:"speed_hit_factor" yaml:"speed_hit_factor"`
	MinHitChance   float64 `json:"min_hit_chance" yaml:"min_hit_chance"`
	MaxHitChance   float64 `json:"max_hit_chance" yaml:"max_hit_chance"`
}

// DefaultMaxTicks is the battle length cap used when Rules.MaxTicks is zero.
const DefaultMaxTicks = 200

// DefaultRules returns the standard tuning.
func DefaultRules() Rules {
	return Rules{
		MaxTicks:           DefaultMaxTicks,
		ShieldRegenRate:    0.2,
		FuelDrawBase:       1,
		FuelDrawPerShot:    1,
		StarvedPowerFactor: 0.5,
		DisableThreshold:   0.1,
		SpeedHitFactor:     0.005,
		MinHitChance:       0.05,
		MaxHitChance:       0.95,
	}
}

// Validate checks the rules are usable.
func (r Rules) Validate() error {
	switch {
	case r.MaxTicks < 0:
		return fmt.Errorf("max_ticks must be non-negative, got %d", r.MaxTicks)
	case r.ShieldRegenRate < 0:
		return fmt.Errorf("shield_regen_rate must be non-negative, got %v", r.ShieldRegenRate)
	case r.FuelDrawBase < 0 || r.FuelDrawPerShot < 0:
		return fmt.Errorf("fuel draw must be non-negative")
	case r.StarvedPowerFactor < 0 || r.StarvedPowerFactor > 1:
		return fmt.Errorf("starved_power_factor must be within [0,1], got %v", r.StarvedPowerFactor)
	case r.DisableThreshold < 0 || r.DisableThreshold >= 1:
		return fmt.Errorf("disable_threshold must be within [0,1), got %v", r.DisableThreshold)
	case r.MaxHitChance == 0:
		return fmt.Errorf("max_hit_chance must be positive; start from DefaultRules to tune single fields")
	case r.MinHitChance < 0 || r.MaxHitChance > 1 || r.MinHitChance > r.MaxHitChance:
		return fmt.Errorf("hit chance bounds must satisfy 0 <= min <= max <= 1")
	}
	return nil
}

func (r Rules) maxTicks() int {
	if r.MaxTicks == 0 {
		return DefaultMaxTicks
	}
	return r.MaxTicks
}

func (r Rules) hitChance(attacker Ship, w Weapon, target Ship) float64 {
	if w.Accuracy >= 1 {
		return 1
	}
	chance := w.Accuracy - target.Evasion + float64(attacker.Speed-target.Speed)*r.SpeedHitFactor
	return math.Max(r.MinHitChance, math.Min(r.MaxHitChance, chance))
}

// Battle is the mutable state the turn engine works on. It is not safe for
// concurrent use; a session gives it a single owner.
type Battle struct {
	Tick  int
	Ships []Ship

	rules  Rules
	policy ActionSource
	rng    *rand.Rand
}

// NewBattle prepares a battle over copies of ships, seeded for reproducibility.
// A nil policy means DefaultPolicy.
func NewBattle(ships []Ship, seed int64, rules Rules, policy ActionSource) *Battle {
	if policy == nil {
		policy = DefaultPolicy{}
	}
	return &Battle{
		Ships:  CloneFleet(ships),
		rules:  rules,
		policy: policy,
		rng:    rand.New(rand.NewSource(seed)), //nolint:gosec // deterministic replay needs a seeded PRNG
	}
}

// Rules returns the tuning the battle runs with.
func (b *Battle) Rules() Rules { return b.rules }

// Snapshot returns a deep copy of the current ships.
func (b *Battle) Snapshot() []Ship { return CloneFleet(b.Ships) }

func (b *Battle) index(id ParticipantID) int {
	for i := range b.Ships {
		if b.Ships[i].ID == id {
			return i
		}
	}
	return -1
}

// firingOrder returns indexes of ships able to act, fastest first.
func (b *Battle) firingOrder() []int {
	order := make([]int, 0, len(b.Ships))
	for i := range b.Ships {
		if b.Ships[i].Operational() {
			order = append(order, i)
		}
	}
	sort.SliceStable(order, func(i, j int) bool {
		a, c := b.Ships[order[i]], b.Ships[order[j]]
		if a.Speed != c.Speed {
			return a.Speed > c.Speed
		}
		return a.ID < c.ID
	})
	return order
}

// tickState tracks per-ship bookkeeping within a single tick.
type tickState struct {
	shots []int
	fired [][]bool
}

func newTickState(ships []Ship) *tickState {
	ts := &tickState{
		shots: make([]int, len(ships)),
		fired: make([][]bool, len(ships)),
	}
	for i := range ships {
		ts.fired[i] = make([]bool, len(ships[i].Weapons))
	}
	return ts
}

// Step resolves one tick and returns its events in order. queued holds the
// actions supplied by participants for this tick; everyone else acts by the
// battle's default policy.
//
// A non-nil error carries CodeInvariantViolation; the returned events are
// still the tick's complete, well-formed log.
func (b *Battle) Step(queued map[ParticipantID]Action) ([]Event, error) {
	b.Tick++
	rec := newRecorder(b.Tick)

	order := b.firingOrder()
	ids := make([]ParticipantID, len(order))
	for i, idx := range order {
		ids[i] = b.Ships[idx].ID
	}
	rec.emit(EventTurnStarted, "", "", TurnStartedPayload{Order: ids})

	ts := newTickState(b.Ships)
	for _, idx := range order {
		actor := b.Ships[idx]
		action := sourceFor(actor.ID, queued, b.policy).Decide(actor.Clone(), b.Snapshot())
		b.resolve(rec, ts, idx, action)
	}

	b.upkeep(rec, ts)
	b.transitions(rec)

	remaining := 0
	for i := range b.Ships {
		if b.Ships[i].Operational() {
			remaining++
		}
	}
	rec.emit(EventTurnEnded, "", "", TurnEndedPayload{Remaining: remaining})

	if rec.err != nil {
		return rec.events, oops.Code(CodeInvariantViolation).With("tick", b.Tick).Wrap(rec.err)
	}
	if err := b.checkInvariants(); err != nil {
		return rec.events, err
	}
	return rec.events, nil
}

func (b *Battle) resolve(rec *recorder, ts *tickState, ai int, action Action) {
	actor := &b.Ships[ai]

	switch action.Kind {
	case ActionHold:
		return
	case ActionFire:
	default:
		rec.emit(EventNoOp, actor.ID, action.Target, NoOpPayload{Reason: fmt.Sprintf("unknown action %q", action.Kind)})
		return
	}

	ti := b.index(action.Target)
	reason := ""
	switch {
	case ti < 0:
		reason = "unknown target"
	case ti == ai:
		reason = "cannot target self"
	case !b.Ships[ti].Targetable():
		reason = "target already destroyed"
	}
	if reason != "" {
		rec.emit(EventNoOp, actor.ID, action.Target, NoOpPayload{Reason: reason})
		return
	}

	target := &b.Ships[ti]
	for wi := range actor.Weapons {
		w := &actor.Weapons[wi]
		if !w.Ready() {
			continue
		}
		if target.Health == 0 {
			break
		}

		chance := b.rules.hitChance(*actor, *w, *target)
		roll := b.rng.Float64()
		hit := chance >= 1 || roll < chance
		rec.emit(EventWeaponFired, actor.ID, target.ID, WeaponFiredPayload{
			Weapon: wi,
			Kind:   w.Kind,
			Chance: chance,
			Roll:   roll,
			Hit:    hit,
		})
		w.Cooldown = w.Reload
		ts.fired[ai][wi] = true
		ts.shots[ai]++

		if hit {
			b.applyHit(rec, actor, *w, target)
		}
	}
}

func (b *Battle) applyHit(rec *recorder, actor *Ship, w Weapon, target *Ship) {
	powerFactor := 1.0
	if actor.NominalPower > 0 {
		powerFactor = float64(actor.Power) / float64(actor.NominalPower)
	}
	damage := int(math.Round(float64(w.Power) * w.Kind.Multiplier() * actor.CrewEfficiency * powerFactor))
	if damage <= 0 {
		return
	}

	absorbed := min(target.Shields, damage)
	if absorbed > 0 {
		target.Shields -= absorbed
		rec.emit(EventShieldAbsorbed, actor.ID, target.ID, ShieldAbsorbedPayload{Amount: absorbed, Shields: target.Shields})
	}
	if w.Kind == WeaponEMP {
		return
	}

	hull := min(max(0, damage-absorbed), target.Health)
	if hull > 0 {
		target.Health -= hull
		rec.emit(EventDamageApplied, actor.ID, target.ID, DamageAppliedPayload{Amount: hull, Health: target.Health})
	}
}

func (b *Battle) upkeep(rec *recorder, ts *tickState) {
	for i := range b.Ships {
		s := &b.Ships[i]
		if s.Status == StatusDestroyed || s.Health == 0 {
			continue
		}

		for wi := range s.Weapons {
			if !ts.fired[i][wi] && s.Weapons[wi].Cooldown > 0 {
				s.Weapons[wi].Cooldown--
			}
		}

		if s.Shields < s.MaxShields && s.Power > 0 && b.rules.ShieldRegenRate > 0 {
			regen := max(1, int(math.Round(float64(s.Power)*b.rules.ShieldRegenRate*s.CrewEfficiency)))
			s.Shields = min(s.MaxShields, s.Shields+regen)
		}

		s.Fuel = max(0, s.Fuel-(b.rules.FuelDrawBase+ts.shots[i]*b.rules.FuelDrawPerShot))

		want := s.NominalPower
		if s.Fuel == 0 {
			want = int(math.Floor(float64(s.NominalPower) * b.rules.StarvedPowerFactor))
		}
		if want != s.Power {
			rec.emit(EventPowerReallocated, s.ID, "", PowerReallocatedPayload{From: s.Power, To: want, Fuel: s.Fuel})
			s.Power = want
		}
	}
}

func (b *Battle) transitions(rec *recorder) {
	for i := range b.Ships {
		s := &b.Ships[i]
		switch {
		case s.Status != StatusDestroyed && s.Health == 0:
			s.Status = StatusDestroyed
			rec.emit(EventShipDestroyed, "", s.ID, ShipStatusPayload{Health: s.Health, MaxHealth: s.MaxHealth})
		case s.Status == StatusActive && float64(s.Health) <= b.rules.DisableThreshold*float64(s.MaxHealth):
			s.Status = StatusDisabled
			rec.emit(EventShipDisabled, "", s.ID, ShipStatusPayload{Health: s.Health, MaxHealth: s.MaxHealth})
		}
	}
}

func (b *Battle) checkInvariants() error {
	for _, s := range b.Ships {
		var problem string
		switch {
		case s.Health < 0:
			problem = "negative health"
		case s.Health > s.MaxHealth:
			problem = "health above maximum"
		case s.Shields < 0:
			problem = "negative shields"
		case s.Fuel < 0:
			problem = "negative fuel"
		case s.Power < 0:
			problem = "negative power"
		}
		if problem != "" {
			return oops.Code(CodeInvariantViolation).
				With("tick", b.Tick).
				With("participant", string(s.ID)).
				Errorf("%s for ship %s", problem, s.ID)
		}
	}
	return nil
}
