// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 PFTL Contributors

package gateway

import (
	"context"
	"strconv"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/pftl/pftl/internal/logging"
	"github.com/pftl/pftl/pkg/errutil"
)

func tagGameCode(ctx context.Context, span trace.Span, code string) context.Context {
	span.SetAttributes(attribute.String("pftl.game_code", code))
	return logging.WithGameCode(ctx, code)
}

func recordSpanError(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	if code := errutil.Code(err); code != "" {
		span.SetAttributes(attribute.String("pftl.error_code", code))
	}
}

func annotateSpan(span trace.Span, route string, status int) {
	span.SetAttributes(
		attribute.String("http.route", route),
		attribute.Int("http.response.status_code", status),
	)
}

func statusLabel(status int) string {
	return strconv.Itoa(status)
}
