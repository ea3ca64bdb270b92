// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 PFTL Contributors

package gateway

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/pftl/pftl/internal/catalog"
	"github.com/pftl/pftl/internal/core"
	"github.com/pftl/pftl/pkg/errutil"
)

// Gateway error codes.
const (
	CodeBadRequest    = "BAD_REQUEST"
	CodeInvalidFilter = "INVALID_FILTER"
	CodeRateLimited   = "RATE_LIMITED"
	CodeInternal      = "INTERNAL"
)

var statusByCode = map[string]int{
	CodeBadRequest:    http.StatusBadRequest,
	CodeInvalidFilter: http.StatusBadRequest,
	CodeRateLimited:   http.StatusTooManyRequests,

	core.CodeInvalidGameCode:         http.StatusBadRequest,
	core.CodeUnknownSession:          http.StatusNotFound,
	core.CodeUnknownParticipant:      http.StatusNotFound,
	core.CodeResultNotFound:          http.StatusNotFound,
	core.CodeInvalidState:            http.StatusConflict,
	core.CodeDuplicateCode:           http.StatusConflict,
	core.CodeDuplicateParticipant:    http.StatusConflict,
	core.CodeInvalidParticipantCount: http.StatusUnprocessableEntity,
	core.CodeInvalidParticipant:      http.StatusUnprocessableEntity,
	core.CodeInvalidAction:           http.StatusUnprocessableEntity,

	catalog.CodeUnknownArchetype: http.StatusUnprocessableEntity,
	catalog.CodeUnknownUpgrade:   http.StatusUnprocessableEntity,
	catalog.CodeBudgetExceeded:   http.StatusUnprocessableEntity,
	catalog.CodeInvalidLoadout:   http.StatusUnprocessableEntity,
}

// ErrorBody is the JSON shape of every error response.
type ErrorBody struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail carries a stable code and a human readable message.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// statusFor maps err to an HTTP status and the code reported to clients.
func statusFor(err error) (int, string) {
	var he *echo.HTTPError
	if errors.As(err, &he) {
		switch he.Code {
		case http.StatusNotFound, http.StatusMethodNotAllowed:
			return he.Code, "NOT_FOUND"
		case http.StatusTooManyRequests:
			return he.Code, CodeRateLimited
		}
		return he.Code, CodeBadRequest
	}
	code := errutil.Code(err)
	if status, ok := statusByCode[code]; ok {
		return status, code
	}
	return http.StatusInternalServerError, CodeInternal
}

// errorHandler renders errors as ErrorBody. Internal errors are logged and
// their message is not sent to the client.
func errorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}
	status, code := statusFor(err)
	msg := err.Error()
	var he *echo.HTTPError
	if errors.As(err, &he) {
		if m, ok := he.Message.(string); ok {
			msg = m
		}
	}
	if status >= http.StatusInternalServerError {
		errutil.LogError(slog.Default(), "request failed", err)
		msg = http.StatusText(status)
	}

	var writeErr error
	if c.Request().Method == http.MethodHead {
		writeErr = c.NoContent(status)
	} else {
		writeErr = c.JSON(status, ErrorBody{Error: ErrorDetail{Code: code, Message: msg}})
	}
	if writeErr != nil {
		slog.Debug("failed to write error response", "error", writeErr)
	}
}
