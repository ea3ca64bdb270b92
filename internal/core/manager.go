// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 PFTL Contributors

package core

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/samber/oops"

	"github.com/pftl/pftl/internal/combat"
	"github.com/pftl/pftl/pkg/errutil"
)

// Manager defaults.
const (
	DefaultRetention      = 5 * time.Minute
	DefaultHandOffTimeout = 30 * time.Second
)

// ManagerConfig tunes the sessions a Manager creates.
type ManagerConfig struct {
	TickInterval   time.Duration
	Rules          combat.Rules
	Policy         combat.ActionSource
	ObserverQueue  int
	Retention      time.Duration
	HandOffTimeout time.Duration
}

// DefaultManagerConfig returns the standard manager settings.
func DefaultManagerConfig() ManagerConfig {
	return ManagerConfig{
		TickInterval:   DefaultTickInterval,
		Rules:          combat.DefaultRules(),
		ObserverQueue:  DefaultObserverQueue,
		Retention:      DefaultRetention,
		HandOffTimeout: DefaultHandOffTimeout,
	}
}

// handoff tracks delivery of one session's result.
type handoff struct {
	once sync.Once
}

// Manager is the entry point callers use to run games. It owns the registry,
// starts session runners under its own lifetime, hands each result to the
// sink exactly once and evicts completed sessions after the retention window.
type Manager struct {
	cfg      ManagerConfig
	registry *Registry
	sink     ResultSink

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu       sync.Mutex
	handoffs map[*Session]*handoff
	timers   map[*Session]*time.Timer
	closed   bool
}

// NewManager creates a manager. A nil sink discards results.
func NewManager(cfg ManagerConfig, sink ResultSink) *Manager {
	if cfg.HandOffTimeout <= 0 {
		cfg.HandOffTimeout = DefaultHandOffTimeout
	}
	if sink == nil {
		sink = SinkFunc(func(context.Context, GameResult) error { return nil })
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		cfg:      cfg,
		registry: NewRegistry(),
		sink:     sink,
		ctx:      ctx,
		cancel:   cancel,
		handoffs: make(map[*Session]*handoff),
		timers:   make(map[*Session]*time.Timer),
	}
}

// Registry returns the manager's session registry.
func (m *Manager) Registry() *Registry { return m.registry }

// CreateSession registers a new waiting session. An empty code generates one.
func (m *Manager) CreateSession(code string, participants []Participant, seed int64) (*Session, error) {
	m.mu.Lock()
	closed := m.closed
	m.mu.Unlock()
	if closed {
		return nil, oops.Code(CodeInvalidState).Errorf("manager is shut down")
	}

	opts := SessionOptions{
		TickInterval:  m.cfg.TickInterval,
		Rules:         m.cfg.Rules,
		Policy:        m.cfg.Policy,
		ObserverQueue: m.cfg.ObserverQueue,
		OnComplete:    m.onComplete,
	}

	if code != "" {
		return m.created(m.registry.Create(code, seed, participants, opts))
	}

	var lastErr error
	for range 5 {
		generated, err := NewGameCode()
		if err != nil {
			return nil, oops.Wrap(err)
		}
		s, err := m.registry.Create(generated, seed, participants, opts)
		if err == nil {
			return m.created(s, nil)
		}
		if !errutil.HasCode(err, CodeDuplicateCode) {
			return nil, err
		}
		lastErr = err
	}
	return nil, lastErr
}

func (m *Manager) created(s *Session, err error) (*Session, error) {
	if err != nil {
		return nil, err
	}
	slog.Info("session created",
		"game_code", s.Code(),
		"participants", len(s.Participants()),
	)
	return s, nil
}

// Lookup returns the session registered under code.
func (m *Manager) Lookup(code string) (*Session, error) {
	return m.registry.Lookup(code)
}

// Join adds a participant to a waiting session.
func (m *Manager) Join(code string, p Participant) error {
	s, err := m.registry.Lookup(code)
	if err != nil {
		return err
	}
	return s.Join(p)
}

// Leave removes a participant from a waiting session.
func (m *Manager) Leave(code string, id combat.ParticipantID) error {
	s, err := m.registry.Lookup(code)
	if err != nil {
		return err
	}
	return s.Leave(id)
}

// SubmitReady sets a participant's readiness.
func (m *Manager) SubmitReady(code string, id combat.ParticipantID, ready bool) error {
	s, err := m.registry.Lookup(code)
	if err != nil {
		return err
	}
	return s.SetReady(id, ready)
}

// StartGame starts a waiting session.
func (m *Manager) StartGame(code string) error {
	s, err := m.registry.Lookup(code)
	if err != nil {
		return err
	}
	return s.Start(m.ctx)
}

// Step resolves one tick of an active session.
func (m *Manager) Step(ctx context.Context, code string) error {
	s, err := m.registry.Lookup(code)
	if err != nil {
		return err
	}
	return s.Step(ctx)
}

// SubmitAction queues a participant's action for the next tick.
func (m *Manager) SubmitAction(code string, id combat.ParticipantID, action combat.Action) error {
	s, err := m.registry.Lookup(code)
	if err != nil {
		return err
	}
	return s.SubmitAction(id, action)
}

// SubscribeObserver attaches an observer to a session's event stream.
func (m *Manager) SubscribeObserver(code string) (*Observer, error) {
	s, err := m.registry.Lookup(code)
	if err != nil {
		return nil, err
	}
	return s.Subscribe(), nil
}

// AbortSession ends a session with no winner.
func (m *Manager) AbortSession(code, reason string) error {
	s, err := m.registry.Lookup(code)
	if err != nil {
		return err
	}
	return s.Abort(reason)
}

// Sessions returns a summary of every registered session.
func (m *Manager) Sessions() []Info {
	sessions := m.registry.Sessions()
	out := make([]Info, len(sessions))
	for i, s := range sessions {
		out[i] = s.Info()
	}
	return out
}

// onComplete runs on the goroutine that completed s. The hand-off and the
// retention timer run elsewhere so the tick path never waits on the sink.
func (m *Manager) onComplete(s *Session) {
	m.mu.Lock()
	if _, ok := m.handoffs[s]; ok {
		m.mu.Unlock()
		return
	}
	h := &handoff{}
	m.handoffs[s] = h
	m.wg.Add(1)
	m.mu.Unlock()

	go func() {
		defer m.wg.Done()
		m.handOff(s, h)

		m.mu.Lock()
		defer m.mu.Unlock()
		if !m.closed {
			m.timers[s] = time.AfterFunc(m.cfg.Retention, func() { m.evict(s) })
		}
	}()
}

// handOff delivers the session's result to the sink once. Concurrent calls
// wait for the first to finish.
func (m *Manager) handOff(s *Session, h *handoff) {
	h.once.Do(func() {
		result, err := s.Result()
		if err != nil {
			errutil.LogError(slog.Default(), "failed to build game result", err)
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), m.cfg.HandOffTimeout)
		defer cancel()
		if err := m.sink.HandOff(ctx, result); err != nil {
			errutil.LogError(slog.Default(), "failed to hand off game result",
				oops.With("game_code", s.Code()).With("result_id", result.ID.String()).Wrap(err))
			return
		}
		slog.Debug("game result handed off",
			"game_code", s.Code(),
			"result_id", result.ID.String(),
			"log_digest", result.LogDigest,
		)
	})
}

// evict makes sure the result was handed off, then drops the session.
func (m *Manager) evict(s *Session) {
	m.mu.Lock()
	h, ok := m.handoffs[s]
	delete(m.handoffs, s)
	if t, found := m.timers[s]; found {
		t.Stop()
		delete(m.timers, s)
	}
	m.mu.Unlock()

	if ok {
		m.handOff(s, h)
	}
	if m.registry.RemoveSession(s) {
		slog.Debug("session evicted", "game_code", s.Code())
	}
}

// Shutdown aborts every running session, waits for their runners and result
// hand-offs, then evicts everything still registered.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()

	for _, s := range m.registry.Sessions() {
		if s.Status() == StatusWaiting {
			_ = s.Abort("shutdown") //nolint:errcheck // a concurrent start or abort is fine
		}
	}
	m.cancel()

	for _, s := range m.registry.Sessions() {
		if s.Status() == StatusWaiting {
			continue
		}
		if err := s.Wait(ctx); err != nil {
			return err
		}
	}

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		return oops.With("operation", "shutdown").Wrap(ctx.Err())
	}

	for _, s := range m.registry.Sessions() {
		m.evict(s)
	}

	slog.Info("session manager stopped")
	return nil
}
