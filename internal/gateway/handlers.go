// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 PFTL Contributors

package gateway

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/samber/oops"

	"github.com/pftl/pftl/internal/catalog"
	"github.com/pftl/pftl/internal/combat"
	"github.com/pftl/pftl/internal/core"
	"github.com/pftl/pftl/internal/logging"
)

const (
	apiPrefix   = "/api/v1"
	streamRoute = apiPrefix + "/games/:code/stream"

	defaultResultLimit = 50
	maxResultLimit     = 500
	defaultAbortReason = "aborted by host"
)

func (s *Server) routes() {
	api := s.echo.Group(apiPrefix)

	api.GET("/catalog", s.getCatalog)

	api.POST("/games", s.createGame)
	api.GET("/games", s.listGames)
	api.GET("/games/:code", s.getGame)
	api.POST("/games/:code/participants", s.joinGame)
	api.DELETE("/games/:code/participants/:id", s.leaveGame)
	api.PUT("/games/:code/participants/:id/ready", s.setReady)
	api.POST("/games/:code/start", s.startGame)
	api.POST("/games/:code/step", s.stepGame)
	api.POST("/games/:code/actions", s.submitAction)
	api.POST("/games/:code/abort", s.abortGame)
	api.GET("/games/:code/events", s.getEvents)
	s.echo.GET(streamRoute, s.streamEvents)

	api.GET("/results", s.listResults)
	api.GET("/results/:code", s.getResult)
}

type participantRequest struct {
	ID      string          `json:"id" validate:"required,max=64,printascii"`
	Loadout catalog.Loadout `json:"loadout"`
	Ready   bool            `json:"ready"`
}

type createGameRequest struct {
	Code         string               `json:"code" validate:"omitempty,len=6,alphanum,uppercase"`
	Seed         *int64               `json:"seed" validate:"omitempty,gte=0"`
	Participants []participantRequest `json:"participants" validate:"max=4,dive"`
}

type readyRequest struct {
	Ready *bool `json:"ready" validate:"required"`
}

type actionRequest struct {
	Participant string `json:"participant" validate:"required,max=64"`
	Kind        string `json:"kind" validate:"required,oneof=fire hold"`
	Target      string `json:"target" validate:"required_if=Kind fire,max=64"`
}

type abortRequest struct {
	Reason string `json:"reason" validate:"max=256"`
}

// GameList is the body of GET /games.
type GameList struct {
	Games []core.Info `json:"games"`
}

// EventList is the body of GET /games/:code/events.
type EventList struct {
	Events []combat.Event `json:"events"`
}

// ResultList is the body of GET /results.
type ResultList struct {
	Results []core.GameResult `json:"results"`
}

func (s *Server) participant(req participantRequest) (core.Participant, error) {
	return s.deps.Catalog.Participant(combat.ParticipantID(req.ID), req.Loadout, req.Ready)
}

func (s *Server) getCatalog(c echo.Context) error {
	return c.JSON(http.StatusOK, s.deps.Catalog)
}

func (s *Server) createGame(c echo.Context) error {
	var req createGameRequest
	if err := bind(c, &req); err != nil {
		return err
	}

	participants := make([]core.Participant, 0, len(req.Participants))
	for _, pr := range req.Participants {
		p, err := s.participant(pr)
		if err != nil {
			return err
		}
		participants = append(participants, p)
	}

	var seed int64
	if req.Seed != nil {
		seed = *req.Seed
	} else {
		var err error
		if seed, err = core.NewSeed(); err != nil {
			return oops.Wrap(err)
		}
	}

	session, err := s.deps.Manager.CreateSession(req.Code, participants, seed)
	if err != nil {
		return err
	}
	ctx := logging.WithGameCode(c.Request().Context(), session.Code())
	slog.InfoContext(ctx, "game created", "participants", len(participants), "seed", seed)
	return c.JSON(http.StatusCreated, session.Info())
}

func (s *Server) listGames(c echo.Context) error {
	return c.JSON(http.StatusOK, GameList{Games: s.deps.Manager.Sessions()})
}

func (s *Server) info(c echo.Context, status int) error {
	session, err := s.deps.Manager.Lookup(c.Param("code"))
	if err != nil {
		return err
	}
	return c.JSON(status, session.Info())
}

func (s *Server) getGame(c echo.Context) error {
	return s.info(c, http.StatusOK)
}

func (s *Server) joinGame(c echo.Context) error {
	var req participantRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	p, err := s.participant(req)
	if err != nil {
		return err
	}
	if err := s.deps.Manager.Join(c.Param("code"), p); err != nil {
		return err
	}
	slog.InfoContext(c.Request().Context(), "participant joined",
		"participant", req.ID,
		"archetype", req.Loadout.Archetype)
	return s.info(c, http.StatusCreated)
}

func (s *Server) leaveGame(c echo.Context) error {
	if err := s.deps.Manager.Leave(c.Param("code"), combat.ParticipantID(c.Param("id"))); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) setReady(c echo.Context) error {
	var req readyRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	if err := s.deps.Manager.SubmitReady(c.Param("code"), combat.ParticipantID(c.Param("id")), *req.Ready); err != nil {
		return err
	}
	return s.info(c, http.StatusOK)
}

func (s *Server) startGame(c echo.Context) error {
	if err := s.deps.Manager.StartGame(c.Param("code")); err != nil {
		return err
	}
	slog.InfoContext(c.Request().Context(), "game started")
	return s.info(c, http.StatusAccepted)
}

func (s *Server) stepGame(c echo.Context) error {
	if err := s.deps.Manager.Step(c.Request().Context(), c.Param("code")); err != nil {
		return err
	}
	return s.info(c, http.StatusOK)
}

func (s *Server) submitAction(c echo.Context) error {
	var req actionRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	action := combat.Action{Kind: combat.ActionKind(req.Kind), Target: combat.ParticipantID(req.Target)}
	if err := s.deps.Manager.SubmitAction(c.Param("code"), combat.ParticipantID(req.Participant), action); err != nil {
		return err
	}
	return c.JSON(http.StatusAccepted, map[string]string{"status": "queued"})
}

func (s *Server) abortGame(c echo.Context) error {
	var req abortRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	if req.Reason == "" {
		req.Reason = defaultAbortReason
	}
	if err := s.deps.Manager.AbortSession(c.Param("code"), req.Reason); err != nil {
		return err
	}
	slog.InfoContext(c.Request().Context(), "game abort requested", "reason", req.Reason)
	return s.info(c, http.StatusAccepted)
}

func (s *Server) getEvents(c echo.Context) error {
	session, err := s.deps.Manager.Lookup(c.Param("code"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, EventList{Events: session.Events()})
}

func (s *Server) listResults(c echo.Context) error {
	limit := defaultResultLimit
	if raw := c.QueryParam("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > maxResultLimit {
			return oops.Code(CodeBadRequest).With("limit", raw).
				Errorf("limit must be between 1 and %d", maxResultLimit)
		}
		limit = n
	}
	results, err := s.deps.Results.List(c.Request().Context(), limit)
	if err != nil {
		return err
	}
	if results == nil {
		results = []core.GameResult{}
	}
	return c.JSON(http.StatusOK, ResultList{Results: results})
}

func (s *Server) getResult(c echo.Context) error {
	result, err := s.deps.Results.Get(c.Request().Context(), c.Param("code"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, result)
}
