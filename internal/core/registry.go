// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 PFTL Contributors

package core

import (
	"sort"
	"sync"

	"github.com/samber/oops"
)

// Registry maps game codes to live sessions. Its operations never reach into
// session state.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		sessions: make(map[string]*Session),
	}
}

// Create builds a session and registers it under code.
func (r *Registry) Create(code string, seed int64, participants []Participant, opts SessionOptions) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.sessions[code]; exists {
		return nil, oops.Code(CodeDuplicateCode).
			With("game_code", code).
			Errorf("session %q already exists", code)
	}
	s, err := NewSession(code, seed, participants, opts)
	if err != nil {
		return nil, err
	}
	r.sessions[code] = s
	return s, nil
}

// Lookup returns the session registered under code.
func (r *Registry) Lookup(code string) (*Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.sessions[code]
	if !ok {
		return nil, unknownSession(code)
	}
	return s, nil
}

// Remove unregisters code. It reports whether a session was removed.
func (r *Registry) Remove(code string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.sessions[code]; !ok {
		return false
	}
	delete(r.sessions, code)
	return true
}

// RemoveSession unregisters s only if it is still the session under its code.
func (r *Registry) RemoveSession(s *Session) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.sessions[s.Code()] != s {
		return false
	}
	delete(r.sessions, s.Code())
	return true
}

// Codes returns the registered game codes in sorted order.
func (r *Registry) Codes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	codes := make([]string, 0, len(r.sessions))
	for code := range r.sessions {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return codes
}

// Sessions returns the registered sessions ordered by game code.
func (r *Registry) Sessions() []*Session {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code() < out[j].Code() })
	return out
}

// Len returns the number of registered sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
