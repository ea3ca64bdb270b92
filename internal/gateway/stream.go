// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 PFTL Contributors

package gateway

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gobwas/glob"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/samber/oops"

	"github.com/pftl/pftl/internal/combat"
)

const maxFilterPatterns = 16

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// Observers are read-only; any origin may watch.
	CheckOrigin: func(*http.Request) bool { return true },
}

// eventFilter selects events by type. An empty filter passes everything.
// GameOver always passes so every stream sees the end of the game.
type eventFilter []glob.Glob

// parseFilter compiles a comma separated list of event type globs such as
// "Weapon*,Ship{Disabled,Destroyed}". Commas inside braces belong to the
// pattern.
func parseFilter(raw string) (eventFilter, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	patterns := splitPatterns(raw)
	if len(patterns) > maxFilterPatterns {
		return nil, oops.Code(CodeInvalidFilter).With("patterns", len(patterns)).
			Errorf("at most %d type patterns are allowed", maxFilterPatterns)
	}
	filter := make(eventFilter, 0, len(patterns))
	for _, p := range patterns {
		g, err := glob.Compile(p)
		if err != nil {
			return nil, oops.Code(CodeInvalidFilter).With("pattern", p).Wrap(err)
		}
		filter = append(filter, g)
	}
	return filter, nil
}

func splitPatterns(raw string) []string {
	var (
		out   []string
		depth int
		start int
	)
	for i, r := range raw {
		switch r {
		case '{':
			depth++
		case '}':
			if depth > 0 {
				depth--
			}
		case ',':
			if depth == 0 {
				if p := strings.TrimSpace(raw[start:i]); p != "" {
					out = append(out, p)
				}
				start = i + 1
			}
		}
	}
	if p := strings.TrimSpace(raw[start:]); p != "" {
		out = append(out, p)
	}
	return out
}

func (f eventFilter) match(e combat.Event) bool {
	if len(f) == 0 || e.Type.Terminal() {
		return true
	}
	for _, g := range f {
		if g.Match(string(e.Type)) {
			return true
		}
	}
	return false
}

// streamEvents upgrades to a WebSocket and writes the session's events as
// JSON text frames: the full log so far, then live events, then a normal
// close after GameOver.
func (s *Server) streamEvents(c echo.Context) error {
	filter, err := parseFilter(c.QueryParam("types"))
	if err != nil {
		return err
	}
	code := c.Param("code")
	obs, err := s.deps.Manager.SubscribeObserver(code)
	if err != nil {
		return err
	}
	defer obs.Close()

	conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		// The upgrader has already written the HTTP error.
		slog.Debug("websocket upgrade failed", "game_code", code, "error", err)
		return nil
	}
	defer conn.Close() //nolint:errcheck // connection teardown

	if s.deps.Metrics != nil {
		s.deps.Metrics.ConnectionsTotal.WithLabelValues("websocket").Inc()
	}
	log := slog.With("game_code", code, "observer_id", obs.ID.String())
	log.Debug("event stream opened", "remote", c.RealIP())

	gone := make(chan struct{})
	go readUntilClosed(conn, gone)

	ping := time.NewTicker(s.cfg.PingInterval)
	defer ping.Stop()

	sent := 0
	for {
		select {
		case e, ok := <-obs.Events():
			if !ok {
				s.closeStream(conn, websocket.CloseNormalClosure, "game over")
				log.Debug("event stream finished", "sent", sent, "dropped", obs.Dropped())
				return nil
			}
			if !filter.match(e) {
				continue
			}
			if err := conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout)); err != nil {
				return nil
			}
			if err := conn.WriteJSON(e); err != nil {
				log.Debug("event stream write failed", "error", err)
				return nil
			}
			sent++
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(s.cfg.WriteTimeout)); err != nil {
				return nil
			}
		case <-gone:
			log.Debug("event stream closed by client", "sent", sent)
			return nil
		case <-s.ctx.Done():
			s.closeStream(conn, websocket.CloseGoingAway, "server shutting down")
			return nil
		}
	}
}

func (s *Server) closeStream(conn *websocket.Conn, code int, text string) {
	msg := websocket.FormatCloseMessage(code, text)
	//nolint:errcheck // best effort close frame
	conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(s.cfg.WriteTimeout))
}

// readUntilClosed drains client frames so control messages are processed and
// closes gone when the connection fails or the client closes it.
func readUntilClosed(conn *websocket.Conn, gone chan<- struct{}) {
	defer close(gone)
	conn.SetReadLimit(512)
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}
