// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package errutil logs and asserts samber/oops errors.
package errutil

import (
	"context"
	"log/slog"
	"strings"

	"github.com/samber/oops"
)

// Redacted replaces sensitive context values.
const Redacted = "[REDACTED]"

// sensitiveKeys are matched case-insensitively as substrings of context keys.
var sensitiveKeys = []string{"password", "secret", "token", "authorization"}

// LogError logs err with its code and context at error level.
func LogError(logger *slog.Logger, msg string, err error) {
	LogErrorContext(context.Background(), logger, msg, err)
}

// LogErrorContext logs err with ctx so trace ids reach the record. For oops
// errors the code and context are added; context values under sensitive
// keys are redacted. Other errors log their string.
func LogErrorContext(ctx context.Context, logger *slog.Logger, msg string, err error) {
	oopsErr, ok := oops.AsOops(err)
	if !ok {
		logger.ErrorContext(ctx, msg, "error", err)
		return
	}

	attrs := []any{"error", oopsErr.Error()}
	if code := oopsErr.Code(); code != nil {
		attrs = append(attrs, "code", code)
	}
	if fields := oopsErr.Context(); len(fields) > 0 {
		attrs = append(attrs, "context", redact(fields))
	}
	logger.ErrorContext(ctx, msg, attrs...)
}

func redact(fields map[string]any) map[string]any {
	out := make(map[string]any, len(fields))
	for k, v := range fields {
		if isSensitive(k) {
			v = Redacted
		}
		out[k] = v
	}
	return out
}

func isSensitive(key string) bool {
	key = strings.ToLower(key)
	for _, s := range sensitiveKeys {
		if strings.Contains(key, s) {
			return true
		}
	}
	return false
}
