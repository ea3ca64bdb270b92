// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 PFTL Contributors

package combat

import (
	"encoding/hex"
	"encoding/json"
	"fmt"

	"lukechampine.com/blake3"
)

// EventType identifies the kind of event.
type EventType string

// Event types emitted by the engine and the outcome resolver.
const (
	EventWeaponFired      EventType = "WeaponFired"
	EventDamageApplied    EventType = "DamageApplied"
	EventShieldAbsorbed   EventType = "ShieldAbsorbed"
	EventPowerReallocated EventType = "PowerReallocated"
	EventShipDisabled     EventType = "ShipDisabled"
	EventShipDestroyed    EventType = "ShipDestroyed"
	EventTurnStarted      EventType = "TurnStarted"
	EventTurnEnded        EventType = "TurnEnded"
	EventNoOp             EventType = "NoOp"
	EventGameOver         EventType = "GameOver"
)

// Terminal reports whether no event can follow this one.
func (t EventType) Terminal() bool { return t == EventGameOver }

// Event is an immutable record of something that happened in a battle.
// Events are totally ordered by (Tick, Seq).
type Event struct {
	Tick    int             `json:"tick"`
	Seq     int             `json:"seq"`
	Type    EventType       `json:"type"`
	Actor   ParticipantID   `json:"actor,omitempty"`
	Target  ParticipantID   `json:"target,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Before reports whether e sorts strictly before other.
func (e Event) Before(other Event) bool {
	if e.Tick != other.Tick {
		return e.Tick < other.Tick
	}
	return e.Seq < other.Seq
}

// Decode unmarshals the event payload into v.
func (e Event) Decode(v any) error {
	if len(e.Payload) == 0 {
		return fmt.Errorf("event %s (tick=%d, seq=%d) has no payload", e.Type, e.Tick, e.Seq)
	}
	if err := json.Unmarshal(e.Payload, v); err != nil {
		return fmt.Errorf("failed to decode %s payload: %w", e.Type, err)
	}
	return nil
}

// TurnStartedPayload is the payload for TurnStarted events.
type TurnStartedPayload struct {
	Order []ParticipantID `json:"order"`
}

// TurnEndedPayload is the payload for TurnEnded events.
type TurnEndedPayload struct {
	Remaining int `json:"remaining"`
}

// WeaponFiredPayload is the payload for WeaponFired events.
type WeaponFiredPayload struct {
	Weapon int        `json:"weapon"`
	Kind   WeaponKind `json:"kind"`
	Chance float64    `json:"chance"`
	Roll   float64    `json:"roll"`
	Hit    bool       `json:"hit"`
}

// DamageAppliedPayload is the payload for DamageApplied events.
type DamageAppliedPayload struct {
	Amount int `json:"amount"`
	Health int `json:"health"`
}

// ShieldAbsorbedPayload is the payload for ShieldAbsorbed events.
type ShieldAbsorbedPayload struct {
	Amount  int `json:"amount"`
	Shields int `json:"shields"`
}

// PowerReallocatedPayload is the payload for PowerReallocated events.
type PowerReallocatedPayload struct {
	From int `json:"from"`
	To   int `json:"to"`
	Fuel int `json:"fuel"`
}

// ShipStatusPayload is the payload for ShipDisabled and ShipDestroyed events.
type ShipStatusPayload struct {
	Health    int `json:"health"`
	MaxHealth int `json:"max_health"`
}

// NoOpPayload is the payload for NoOp events.
type NoOpPayload struct {
	Reason string `json:"reason"`
}

// GameOverPayload is the payload for the terminal GameOver event.
type GameOverPayload struct {
	Winner     ParticipantID `json:"winner,omitempty"`
	Draw       bool          `json:"draw"`
	Aborted    bool          `json:"aborted"`
	Reason     OutcomeReason `json:"reason"`
	Detail     string        `json:"detail,omitempty"`
	TotalTicks int           `json:"total_ticks"`
	Final      []Ship        `json:"final"`
}

// recorder assigns sequence numbers to the events of one tick.
type recorder struct {
	tick   int
	seq    int
	events []Event
	err    error
}

func newRecorder(tick int) *recorder {
	return &recorder{tick: tick}
}

func (r *recorder) emit(typ EventType, actor, target ParticipantID, payload any) {
	var raw json.RawMessage
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil && r.err == nil {
			r.err = fmt.Errorf("failed to marshal %s payload: %w", typ, err)
		}
		raw = data
	}
	r.events = append(r.events, Event{
		Tick:    r.tick,
		Seq:     r.seq,
		Type:    typ,
		Actor:   actor,
		Target:  target,
		Payload: raw,
	})
	r.seq++
}

// NewGameOver builds the terminal event for a finished session.
// seq must follow the last sequence number used in tick.
func NewGameOver(tick, seq int, payload GameOverPayload) (Event, error) {
	r := &recorder{tick: tick, seq: seq}
	r.emit(EventGameOver, "", payload.Winner, payload)
	if r.err != nil {
		return Event{}, r.err
	}
	return r.events[0], nil
}

// Ordered reports whether events are sorted by (tick, seq) with strictly
// increasing sequence numbers inside a tick.
func Ordered(events []Event) bool {
	for i := 1; i < len(events); i++ {
		if !events[i-1].Before(events[i]) {
			return false
		}
	}
	return true
}

// Digest returns the hex BLAKE3 digest of the canonical encoding of events.
// Two logs are byte-identical exactly when their digests match.
func Digest(events []Event) (string, error) {
	h := blake3.New(32, nil)
	for _, e := range events {
		line, err := json.Marshal(e)
		if err != nil {
			return "", fmt.Errorf("failed to encode event (tick=%d, seq=%d): %w", e.Tick, e.Seq, err)
		}
		line = append(line, '\n')
		_, _ = h.Write(line) //nolint:errcheck // hash writes never fail
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
