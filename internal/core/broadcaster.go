// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 PFTL Contributors

package core

import (
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/oklog/ulid/v2"

	"github.com/pftl/pftl/internal/combat"
	"github.com/pftl/pftl/internal/observability"
)

// DefaultObserverQueue is the live-event capacity of an observer queue.
const DefaultObserverQueue = 256

// Observer is one subscription to a session's event stream.
type Observer struct {
	ID ulid.ULID

	hub     *Hub
	ch      chan combat.Event
	dropped atomic.Uint64
}

// Events returns the delivery channel. It is closed after GameOver or on
// unsubscribe.
func (o *Observer) Events() <-chan combat.Event { return o.ch }

// Close unsubscribes the observer. It is safe to call more than once.
func (o *Observer) Close() { o.hub.Unsubscribe(o) }

// Dropped returns how many events were discarded because the queue was full.
func (o *Observer) Dropped() uint64 { return o.dropped.Load() }

// Hub owns a session's append-only event log and fans it out to observers.
// Publish never blocks on an observer.
type Hub struct {
	code     string
	queueCap int

	mu     sync.Mutex
	log    []combat.Event
	subs   map[ulid.ULID]*Observer
	closed bool
}

// NewHub creates a hub for the session with the given code. A queueCap of
// zero or less means DefaultObserverQueue.
func NewHub(code string, queueCap int) *Hub {
	if queueCap <= 0 {
		queueCap = DefaultObserverQueue
	}
	return &Hub{
		code:     code,
		queueCap: queueCap,
		subs:     make(map[ulid.ULID]*Observer),
	}
}

// Subscribe registers an observer. Its queue is pre-filled with the whole log
// so far, then receives live events with no gap or duplicate. Subscribing to
// a finished session yields the full log on an already closed channel.
func (h *Hub) Subscribe() *Observer {
	h.mu.Lock()
	defer h.mu.Unlock()

	obs := &Observer{
		ID:  NewULID(),
		hub: h,
		ch:  make(chan combat.Event, len(h.log)+h.queueCap),
	}
	for _, e := range h.log {
		obs.ch <- e
	}
	if h.closed {
		close(obs.ch)
		return obs
	}
	h.subs[obs.ID] = obs

	slog.Debug("observer subscribed",
		"game_code", h.code,
		"observer_id", obs.ID.String(),
		"replayed", len(h.log),
	)
	return obs
}

// Unsubscribe removes the observer and closes its channel. Unknown or already
// removed observers are ignored.
func (h *Hub) Unsubscribe(obs *Observer) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.subs[obs.ID]; !ok {
		return
	}
	delete(h.subs, obs.ID)
	close(obs.ch)
}

// Publish appends events to the log and delivers them to every observer.
// Publishing a terminal event closes every observer channel; nothing may be
// published after it.
func (h *Hub) Publish(events ...combat.Event) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, e := range events {
		if h.closed {
			slog.Error("event published after game over",
				"game_code", h.code,
				"tick", e.Tick,
				"seq", e.Seq,
				"event_type", string(e.Type),
			)
			return
		}
		h.log = append(h.log, e)
		for _, obs := range h.subs {
			h.deliver(obs, e)
		}
		if e.Type.Terminal() {
			h.closed = true
			for id, obs := range h.subs {
				close(obs.ch)
				delete(h.subs, id)
			}
		}
	}
}

// deliver enqueues e, discarding the oldest queued events until it fits.
// Only the publisher sends, so the loop ends once the consumer or this
// function frees a slot.
func (h *Hub) deliver(obs *Observer, e combat.Event) {
	for {
		select {
		case obs.ch <- e:
			return
		default:
		}
		select {
		case old := <-obs.ch:
			obs.dropped.Add(1)
			observability.RecordObserverDrop()
			slog.Warn("event dropped: observer queue full",
				"game_code", h.code,
				"observer_id", obs.ID.String(),
				"tick", old.Tick,
				"seq", old.Seq,
				"event_type", string(old.Type),
			)
		default:
		}
	}
}

// Events returns a copy of the log.
func (h *Hub) Events() []combat.Event {
	h.mu.Lock()
	defer h.mu.Unlock()

	out := make([]combat.Event, len(h.log))
	copy(out, h.log)
	return out
}

// NextSeq returns the sequence number the next event of tick should carry.
func (h *Hub) NextSeq(tick int) int {
	h.mu.Lock()
	defer h.mu.Unlock()

	if n := len(h.log); n > 0 && h.log[n-1].Tick == tick {
		return h.log[n-1].Seq + 1
	}
	return 0
}

// Observers returns the number of live subscriptions.
func (h *Hub) Observers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// Closed reports whether the terminal event has been published.
func (h *Hub) Closed() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.closed
}
