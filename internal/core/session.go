// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 PFTL Contributors

// Package core runs battle sessions: the lifecycle state machine, the
// per-session event hub, the registry of live sessions and the manager that
// fronts them for callers.
package core

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/pftl/pftl/internal/combat"
	"github.com/pftl/pftl/internal/observability"
	"github.com/pftl/pftl/pkg/errutil"
)

// Status is a session lifecycle state. Transitions only go forward:
// waiting, active, completed.
type Status string

// Session statuses.
const (
	StatusWaiting   Status = "waiting"
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
)

// DefaultTickInterval is the time between automatic ticks.
const DefaultTickInterval = time.Second

// Participant is one seat in a session.
type Participant struct {
	ID    combat.ParticipantID `json:"id"`
	Ship  combat.Ship          `json:"ship"`
	Ready bool                 `json:"ready"`
}

// SessionOptions tunes a session.
type SessionOptions struct {
	// TickInterval drives automatic ticks. Zero or less means ticks only
	// happen through Step.
	TickInterval time.Duration
	// Rules is the engine tuning. The zero value means combat.DefaultRules.
	Rules combat.Rules
	// Policy decides for participants without a queued action. Nil means
	// combat.DefaultPolicy.
	Policy combat.ActionSource
	// ObserverQueue is the live-event capacity per observer.
	ObserverQueue int
	// OnComplete runs once on the goroutine that completed the session. It
	// must not block.
	OnComplete func(*Session)
}

// Session is one game from creation to outcome. All exported methods are safe
// for concurrent use. Once active, a single runner goroutine owns the battle.
type Session struct {
	code      string
	seed      int64
	opts      SessionOptions
	hub       *Hub
	createdAt time.Time

	mu             sync.Mutex
	status         Status
	participants   []Participant
	initial        []combat.Ship
	snapshot       []combat.Ship
	tick           int
	queued         map[combat.ParticipantID]combat.Action
	abortRequested bool
	abortReason    string
	outcome        combat.Outcome
	resultID       ulid.ULID
	startedAt      time.Time
	completedAt    time.Time

	battle  *combat.Battle
	stepCh  chan chan error
	abortCh chan struct{}
	done    chan struct{}
}

// NewSession creates a waiting session.
func NewSession(code string, seed int64, participants []Participant, opts SessionOptions) (*Session, error) {
	if !ValidGameCode(code) {
		return nil, oops.Code(CodeInvalidGameCode).
			With("game_code", code).
			Errorf("invalid game code %q", code)
	}
	if opts.Rules == (combat.Rules{}) {
		opts.Rules = combat.DefaultRules()
	}
	if err := opts.Rules.Validate(); err != nil {
		return nil, oops.Code(CodeInvalidState).With("game_code", code).Wrapf(err, "invalid rules")
	}

	s := &Session{
		code:      code,
		seed:      seed,
		opts:      opts,
		hub:       NewHub(code, opts.ObserverQueue),
		createdAt: time.Now(),
		status:    StatusWaiting,
		queued:    make(map[combat.ParticipantID]combat.Action),
		stepCh:    make(chan chan error),
		abortCh:   make(chan struct{}, 1),
		done:      make(chan struct{}),
	}
	for _, p := range participants {
		if err := s.addLocked(p, false); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Code returns the game code.
func (s *Session) Code() string { return s.code }

// Seed returns the battle seed.
func (s *Session) Seed() int64 { return s.seed }

// CreatedAt returns when the session was created.
func (s *Session) CreatedAt() time.Time { return s.createdAt }

// Done is closed once the session has completed and its runner has exited.
func (s *Session) Done() <-chan struct{} { return s.done }

// Wait blocks until the session completes or ctx ends.
func (s *Session) Wait(ctx context.Context) error {
	select {
	case <-s.done:
		return nil
	case <-ctx.Done():
		return oops.With("game_code", s.code).Wrap(ctx.Err())
	}
}

// addLocked seats p. The seat limit applies to lobby joins only; the initial
// participant list may hold any count and Start rejects it when out of range.
func (s *Session) addLocked(p Participant, limitSeats bool) error {
	if p.ID == "" {
		return oops.Code(CodeInvalidParticipant).
			With("game_code", s.code).
			Errorf("participant id is required")
	}
	if limitSeats && len(s.participants) >= MaxParticipants {
		return oops.Code(CodeInvalidParticipantCount).
			With("game_code", s.code).
			With("participants", len(s.participants)).
			Errorf("session already has %d participants", MaxParticipants)
	}
	p.Ship = p.Ship.Clone()
	p.Ship.ID = p.ID
	if p.Ship.Name == "" {
		p.Ship.Name = string(p.ID)
	}
	for _, existing := range s.participants {
		if existing.ID == p.ID || existing.Ship.Name == p.Ship.Name {
			return oops.Code(CodeDuplicateParticipant).
				With("game_code", s.code).
				With("participant", string(p.ID)).
				Errorf("participant %q or ship name %q already taken", p.ID, p.Ship.Name)
		}
	}
	s.participants = append(s.participants, p)
	return nil
}

func (s *Session) indexLocked(id combat.ParticipantID) int {
	for i := range s.participants {
		if s.participants[i].ID == id {
			return i
		}
	}
	return -1
}

// Join adds a participant while the session is waiting.
func (s *Session) Join(p Participant) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status != StatusWaiting {
		return invalidState(s.code, s.status, "join")
	}
	return s.addLocked(p, true)
}

// Leave removes a participant while the session is waiting.
func (s *Session) Leave(id combat.ParticipantID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status != StatusWaiting {
		return invalidState(s.code, s.status, "leave")
	}
	i := s.indexLocked(id)
	if i < 0 {
		return unknownParticipant(s.code, id)
	}
	s.participants = append(s.participants[:i], s.participants[i+1:]...)
	return nil
}

// SetReady sets a participant's readiness while the session is waiting.
func (s *Session) SetReady(id combat.ParticipantID, ready bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status != StatusWaiting {
		return invalidState(s.code, s.status, "set ready")
	}
	i := s.indexLocked(id)
	if i < 0 {
		return unknownParticipant(s.code, id)
	}
	s.participants[i].Ready = ready
	return nil
}

// Start freezes the initial ships and begins the battle. The runner lives
// until the session completes or ctx is cancelled, which aborts the game.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status != StatusWaiting {
		return invalidState(s.code, s.status, "start")
	}
	if n := len(s.participants); n < MinParticipants || n > MaxParticipants {
		return oops.Code(CodeInvalidParticipantCount).
			With("game_code", s.code).
			With("participants", n).
			Errorf("need %d to %d participants, have %d", MinParticipants, MaxParticipants, n)
	}
	ships := make([]combat.Ship, len(s.participants))
	for i, p := range s.participants {
		if !p.Ready {
			return oops.Code(CodeInvalidState).
				With("game_code", s.code).
				With("participant", string(p.ID)).
				Errorf("participant %q is not ready", p.ID)
		}
		ships[i] = p.Ship
	}

	s.initial = combat.CloneFleet(ships)
	s.snapshot = combat.CloneFleet(ships)
	s.battle = combat.NewBattle(ships, s.seed, s.opts.Rules, s.opts.Policy)
	s.status = StatusActive
	s.startedAt = time.Now()
	observability.RecordSessionStarted()

	go s.run(ctx)

	slog.Info("session started",
		"game_code", s.code,
		"participants", len(ships),
		"seed", s.seed,
		"tick_interval", s.opts.TickInterval.String(),
	)
	return nil
}

// SubmitAction queues an action for the participant's next tick, replacing
// any action already queued.
func (s *Session) SubmitAction(id combat.ParticipantID, action combat.Action) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status != StatusActive {
		return invalidState(s.code, s.status, "submit action")
	}
	if s.indexLocked(id) < 0 {
		return unknownParticipant(s.code, id)
	}
	if err := action.Validate(); err != nil {
		return oops.Code(CodeInvalidAction).
			With("game_code", s.code).
			With("participant", string(id)).
			Wrap(err)
	}
	s.queued[id] = action
	return nil
}

// Step resolves one tick now and returns once it has been applied.
func (s *Session) Step(ctx context.Context) error {
	s.mu.Lock()
	status := s.status
	s.mu.Unlock()
	if status != StatusActive {
		return invalidState(s.code, status, "step")
	}

	reply := make(chan error, 1)
	select {
	case s.stepCh <- reply:
	case <-s.done:
		return invalidState(s.code, StatusCompleted, "step")
	case <-ctx.Done():
		return oops.With("game_code", s.code).Wrap(ctx.Err())
	}

	select {
	case err := <-reply:
		return err
	case <-ctx.Done():
		return oops.With("game_code", s.code).Wrap(ctx.Err())
	}
}

// Abort ends the session with no winner. A waiting session completes
// immediately; an active one completes at the next tick boundary.
func (s *Session) Abort(reason string) error {
	if reason == "" {
		reason = "aborted"
	}

	s.mu.Lock()
	switch s.status {
	case StatusCompleted:
		s.mu.Unlock()
		return invalidState(s.code, StatusCompleted, "abort")
	case StatusWaiting:
		after := s.finishLocked(combat.Aborted(combat.ReasonAborted, reason))
		s.mu.Unlock()
		after()
		close(s.done)
		return nil
	}

	if !s.abortRequested {
		s.abortRequested = true
		s.abortReason = reason
	}
	s.mu.Unlock()

	select {
	case s.abortCh <- struct{}{}:
	default:
	}
	return nil
}

func (s *Session) run(ctx context.Context) {
	defer close(s.done)

	var ticks <-chan time.Time
	if s.opts.TickInterval > 0 {
		ticker := time.NewTicker(s.opts.TickInterval)
		defer ticker.Stop()
		ticks = ticker.C
	}

	for {
		var (
			reply chan error
			step  bool
		)
		select {
		case <-ctx.Done():
			s.finish(combat.Aborted(combat.ReasonAborted, "shutdown"))
			return
		case <-s.abortCh:
		case <-ticks:
			step = true
		case reply = <-s.stepCh:
			step = true
		}

		over := s.applyAbort()
		var err error
		switch {
		case over:
			if reply != nil {
				err = invalidState(s.code, StatusCompleted, "step")
			}
		case step:
			over = s.advance()
		}
		if reply != nil {
			reply <- err
		}
		if over {
			return
		}
	}
}

func (s *Session) applyAbort() bool {
	s.mu.Lock()
	requested, reason := s.abortRequested, s.abortReason
	s.mu.Unlock()

	if !requested {
		return false
	}
	s.finish(combat.Aborted(combat.ReasonAborted, reason))
	return true
}

// advance runs one tick on the runner goroutine and reports whether the
// session completed.
func (s *Session) advance() bool {
	s.mu.Lock()
	queued := s.queued
	s.queued = make(map[combat.ParticipantID]combat.Action)
	s.mu.Unlock()

	events, stepErr := s.battle.Step(queued)
	snapshot := s.battle.Snapshot()

	s.mu.Lock()
	s.tick = s.battle.Tick
	s.snapshot = snapshot
	s.mu.Unlock()

	s.hub.Publish(events...)
	observability.RecordTick()

	if stepErr != nil {
		errutil.LogError(slog.Default(), "simulation invariant violated", stepErr)
		s.finish(combat.Aborted(combat.ReasonInvariantViolation, stepErr.Error()))
		return true
	}
	if outcome, done := combat.Resolve(snapshot, s.battle.Tick, s.battle.Rules()); done {
		s.finish(outcome)
		return true
	}
	return false
}

func (s *Session) finish(outcome combat.Outcome) {
	s.mu.Lock()
	after := s.finishLocked(outcome)
	s.mu.Unlock()
	after()
}

// finishLocked completes the session and publishes GameOver. The returned
// function must be called after releasing s.mu.
func (s *Session) finishLocked(outcome combat.Outcome) func() {
	if s.status == StatusCompleted {
		return func() {}
	}
	wasActive := s.status == StatusActive

	if s.snapshot == nil {
		s.snapshot = make([]combat.Ship, len(s.participants))
		for i, p := range s.participants {
			s.snapshot[i] = p.Ship.Clone()
		}
	}

	seq := s.hub.NextSeq(s.tick)
	gameOver, err := outcome.GameOver(s.tick, seq, s.snapshot)
	if err != nil {
		errutil.LogError(slog.Default(), "failed to encode game over", err)
		outcome = combat.Aborted(combat.ReasonInvariantViolation, err.Error())
		gameOver, _ = combat.NewGameOver(s.tick, seq, combat.GameOverPayload{ //nolint:errcheck // payload without ships always encodes
			Draw:       true,
			Aborted:    true,
			Reason:     outcome.Reason,
			Detail:     outcome.Detail,
			TotalTicks: s.tick,
		})
	}

	s.status = StatusCompleted
	s.outcome = outcome
	s.resultID = NewULID()
	s.completedAt = time.Now()
	s.hub.Publish(gameOver)

	onComplete := s.opts.OnComplete
	tick := s.tick
	return func() {
		if wasActive {
			observability.RecordSessionFinished()
		}
		observability.RecordGameCompleted(outcome.Kind())
		slog.Info("session completed",
			"game_code", s.code,
			"tick", tick,
			"winner", string(outcome.Winner),
			"reason", string(outcome.Reason),
		)
		if onComplete != nil {
			onComplete(s)
		}
	}
}

// Status returns the lifecycle state.
func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Tick returns the number of resolved ticks.
func (s *Session) Tick() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tick
}

// Participants returns a copy of the participant list in join order.
func (s *Session) Participants() []Participant {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Participant, len(s.participants))
	for i, p := range s.participants {
		out[i] = p
		out[i].Ship = p.Ship.Clone()
	}
	return out
}

// Initial returns the ships as frozen at start, or nil before start.
func (s *Session) Initial() []combat.Ship {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.initial == nil {
		return nil
	}
	return combat.CloneFleet(s.initial)
}

// Snapshot returns the ships as of the last resolved tick, or nil before start.
func (s *Session) Snapshot() []combat.Ship {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.snapshot == nil {
		return nil
	}
	return combat.CloneFleet(s.snapshot)
}

// Outcome returns the outcome once the session has completed.
func (s *Session) Outcome() (combat.Outcome, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.outcome, s.status == StatusCompleted
}

// Events returns a copy of the event log.
func (s *Session) Events() []combat.Event { return s.hub.Events() }

// Subscribe registers an observer that replays the log then follows live events.
func (s *Session) Subscribe() *Observer { return s.hub.Subscribe() }

// Unsubscribe removes an observer.
func (s *Session) Unsubscribe(obs *Observer) { s.hub.Unsubscribe(obs) }

// Result builds the GameResult of a completed session.
func (s *Session) Result() (GameResult, error) {
	s.mu.Lock()
	if s.status != StatusCompleted {
		status := s.status
		s.mu.Unlock()
		return GameResult{}, invalidState(s.code, status, "build result")
	}
	result := GameResult{
		ID:            s.resultID,
		GameCode:      s.code,
		Winner:        s.outcome.Winner,
		Outcome:       s.outcome,
		FinalSnapshot: combat.CloneFleet(s.snapshot),
		TotalTicks:    s.tick,
		Seed:          s.seed,
		CompletedAt:   s.completedAt,
	}
	s.mu.Unlock()

	events := s.hub.Events()
	digest, err := combat.Digest(events)
	if err != nil {
		return GameResult{}, oops.With("game_code", s.code).Wrap(err)
	}
	result.LogDigest = digest
	result.EventCount = len(events)
	return result, nil
}

// Info is a point-in-time summary of a session.
type Info struct {
	Code         string          `json:"code"`
	Status       Status          `json:"status"`
	Tick         int             `json:"tick"`
	Seed         int64           `json:"seed"`
	Participants []Participant   `json:"participants"`
	Ships        []combat.Ship   `json:"ships,omitempty"`
	Outcome      *combat.Outcome `json:"outcome,omitempty"`
	Observers    int             `json:"observers"`
	CreatedAt    time.Time       `json:"created_at"`
	StartedAt    *time.Time      `json:"started_at,omitempty"`
	CompletedAt  *time.Time      `json:"completed_at,omitempty"`
}

// Info returns a summary of the session.
func (s *Session) Info() Info {
	observers := s.hub.Observers()
	participants := s.Participants()

	s.mu.Lock()
	defer s.mu.Unlock()

	info := Info{
		Code:         s.code,
		Status:       s.status,
		Tick:         s.tick,
		Seed:         s.seed,
		Participants: participants,
		Observers:    observers,
		CreatedAt:    s.createdAt,
	}
	if s.snapshot != nil {
		info.Ships = combat.CloneFleet(s.snapshot)
	}
	if !s.startedAt.IsZero() {
		started := s.startedAt
		info.StartedAt = &started
	}
	if s.status == StatusCompleted {
		outcome := s.outcome
		completed := s.completedAt
		info.Outcome = &outcome
		info.CompletedAt = &completed
	}
	return info
}
