// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 PFTL Contributors

package errutil

import (
	"log/slog"
	"sort"

	"github.com/samber/oops"
)

// promotedKeys are oops context keys logged as top-level attributes so log
// queries can filter on them directly.
var promotedKeys = map[string]bool{
	"game_code":   true,
	"tick":        true,
	"participant": true,
	"result_id":   true,
}

// LogError logs err at error level with its code and context. Battle keys
// such as game_code are lifted to the top level; the rest of the oops context
// goes under "context". A nil logger means slog.Default. A nil err logs nothing.
func LogError(logger *slog.Logger, msg string, err error) {
	if err == nil {
		return
	}
	if logger == nil {
		logger = slog.Default()
	}

	attrs := []any{"error", err.Error()}
	if code := Code(err); code != "" {
		attrs = append(attrs, "code", code)
	}

	if oopsErr, ok := oops.AsOops(err); ok {
		ctx := oopsErr.Context()
		keys := make([]string, 0, len(ctx))
		for k := range ctx {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		rest := make(map[string]any)
		for _, k := range keys {
			if promotedKeys[k] {
				attrs = append(attrs, k, ctx[k])
			} else {
				rest[k] = ctx[k]
			}
		}
		if len(rest) > 0 {
			attrs = append(attrs, "context", rest)
		}
	}
	logger.Error(msg, attrs...)
}
