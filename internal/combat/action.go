// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 PFTL Contributors

package combat

import (
	"fmt"
)

// ActionKind identifies what a participant wants to do this tick.
type ActionKind string

// Action kinds.
const (
	ActionFire ActionKind = "fire"
	ActionHold ActionKind = "hold"
)

// Action is one participant's intent for a tick.
type Action struct {
	Kind   ActionKind    `json:"kind"`
	Target ParticipantID `json:"target,omitempty"`
}

// Fire returns an action that fires every ready weapon at target.
func Fire(target ParticipantID) Action {
	return Action{Kind: ActionFire, Target: target}
}

// Hold returns an action that skips firing for the tick.
func Hold() Action {
	return Action{Kind: ActionHold}
}

// Validate checks the action is well formed. It does not check the target
// against the fleet; that happens at resolution time.
func (a Action) Validate() error {
	switch a.Kind {
	case ActionHold:
		return nil
	case ActionFire:
		if a.Target == "" {
			return fmt.Errorf("fire action requires a target")
		}
		return nil
	default:
		return fmt.Errorf("unknown action kind %q", a.Kind)
	}
}

// ActionSource decides what an acting ship does this tick.
// fleet is the current state of every ship in the session, in participant order.
type ActionSource interface {
	Decide(actor Ship, fleet []Ship) Action
}

// Supplied is an action queued by the participant's client.
type Supplied struct {
	Action Action
}

// Decide returns the queued action unchanged.
func (s Supplied) Decide(Ship, []Ship) Action { return s.Action }

// DefaultPolicy fires at the weakest enemy still in the fight.
// Ties go to the lowest participant id. Participants without a queued action,
// including disconnected ones, use this policy.
type DefaultPolicy struct{}

// Decide picks the target with the least remaining hull.
func (DefaultPolicy) Decide(actor Ship, fleet []Ship) Action {
	var best *Ship
	for i := range fleet {
		s := &fleet[i]
		if s.ID == actor.ID || !s.Targetable() {
			continue
		}
		if best == nil || s.Health < best.Health || (s.Health == best.Health && s.ID < best.ID) {
			best = s
		}
	}
	if best == nil {
		return Hold()
	}
	return Fire(best.ID)
}

// sourceFor selects the action source for one participant this tick.
func sourceFor(id ParticipantID, queued map[ParticipantID]Action, fallback ActionSource) ActionSource {
	if a, ok := queued[id]; ok {
		return Supplied{Action: a}
	}
	return fallback
}
