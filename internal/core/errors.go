// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 PFTL Contributors

package core

import (
	"github.com/samber/oops"

	"github.com/pftl/pftl/internal/combat"
)

// Error codes returned by sessions, the registry and the manager.
const (
	CodeInvalidState            = "INVALID_STATE"
	CodeInvalidParticipantCount = "INVALID_PARTICIPANT_COUNT"
	CodeUnknownSession          = "UNKNOWN_SESSION"
	CodeDuplicateCode           = "DUPLICATE_CODE"
	CodeUnknownParticipant      = "UNKNOWN_PARTICIPANT"
	CodeDuplicateParticipant    = "DUPLICATE_PARTICIPANT"
	CodeInvalidParticipant      = "INVALID_PARTICIPANT"
	CodeInvalidAction           = "INVALID_ACTION"
	CodeInvalidGameCode         = "INVALID_GAME_CODE"
	CodeResultNotFound          = "RESULT_NOT_FOUND"

	// CodeActionNoOp is never returned; skipped actions surface as NoOp events.
	CodeActionNoOp = "ACTION_NOOP"

	CodeInvariantViolation = combat.CodeInvariantViolation
)

// Participant limits for starting a game.
const (
	MinParticipants = 2
	MaxParticipants = 4
)

func invalidState(code string, status Status, op string) error {
	return oops.Code(CodeInvalidState).
		With("game_code", code).
		With("status", string(status)).
		With("operation", op).
		Errorf("cannot %s while session is %s", op, status)
}

func unknownSession(code string) error {
	return oops.Code(CodeUnknownSession).
		With("game_code", code).
		Errorf("no session with code %q", code)
}

func unknownParticipant(code string, id combat.ParticipantID) error {
	return oops.Code(CodeUnknownParticipant).
		With("game_code", code).
		With("participant", string(id)).
		Errorf("participant %q is not in session", id)
}
