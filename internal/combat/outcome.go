// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 PFTL Contributors

package combat

// OutcomeReason explains how a battle ended.
type OutcomeReason string

// Outcome reasons.
const (
	ReasonLastStanding       OutcomeReason = "last_standing"
	ReasonMutualDestruction  OutcomeReason = "mutual_destruction"
	ReasonMaxTicks           OutcomeReason = "max_ticks"
	ReasonAborted            OutcomeReason = "aborted"
	ReasonInvariantViolation OutcomeReason = "invariant_violation"
)

// Outcome is the final result of a battle.
type Outcome struct {
	Winner  ParticipantID `json:"winner,omitempty"`
	Draw    bool          `json:"draw"`
	Aborted bool          `json:"aborted"`
	Reason  OutcomeReason `json:"reason"`
	Detail  string        `json:"detail,omitempty"`
}

// Kind returns a short label for metrics and persistence: "win", "draw" or "aborted".
func (o Outcome) Kind() string {
	switch {
	case o.Aborted:
		return "aborted"
	case o.Draw:
		return "draw"
	default:
		return "win"
	}
}

// Resolve decides whether the battle is over after tick has been resolved.
// It reports false while at least two ships are still operational and the
// tick cap has not been reached.
func Resolve(ships []Ship, tick int, rules Rules) (Outcome, bool) {
	var alive []Ship
	for _, s := range ships {
		if s.Operational() {
			alive = append(alive, s)
		}
	}

	switch len(alive) {
	case 0:
		return Outcome{Draw: true, Reason: ReasonMutualDestruction}, true
	case 1:
		return Outcome{Winner: alive[0].ID, Reason: ReasonLastStanding}, true
	}

	if tick < rules.maxTicks() {
		return Outcome{}, false
	}

	// Highest remaining hull fraction wins. Fractions are compared by
	// cross-multiplication so equal ratios tie exactly.
	best := alive[0]
	tied := false
	for _, s := range alive[1:] {
		lhs := int64(s.Health) * int64(best.MaxHealth)
		rhs := int64(best.Health) * int64(s.MaxHealth)
		switch {
		case lhs > rhs:
			best = s
			tied = false
		case lhs == rhs:
			tied = true
		}
	}
	if tied {
		return Outcome{Draw: true, Reason: ReasonMaxTicks}, true
	}
	return Outcome{Winner: best.ID, Reason: ReasonMaxTicks}, true
}

// Aborted returns the outcome for a session stopped before a natural end.
func Aborted(reason OutcomeReason, detail string) Outcome {
	return Outcome{Draw: true, Aborted: true, Reason: reason, Detail: detail}
}

// GameOver builds the terminal event for the outcome.
func (o Outcome) GameOver(tick, seq int, final []Ship) (Event, error) {
	return NewGameOver(tick, seq, GameOverPayload{
		Winner:     o.Winner,
		Draw:       o.Draw,
		Aborted:    o.Aborted,
		Reason:     o.Reason,
		Detail:     o.Detail,
		TotalTicks: tick,
		Final:      CloneFleet(final),
	})
}
