// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tasklane Contributors

// Package errutil logs and inspects samber/oops errors.
package errutil

import (
	"context"
	"log/slog"

	"github.com/samber/oops"
)

// LogError logs an error with structured context if it's an oops error.
// For oops errors, it extracts and logs the message, code, and context.
// For standard errors, it logs the error string.
func LogError(logger *slog.Logger, msg string, err error) {
	LogErrorAt(context.Background(), logger, slog.LevelError, msg, err)
}

// LogErrorAt is LogError with an explicit level, context and extra attributes.
// The context carries trace ids to the handler.
func LogErrorAt(ctx context.Context, logger *slog.Logger, level slog.Level, msg string, err error, attrs ...any) {
	if err == nil {
		return
	}
	logger.Log(ctx, level, msg, append(attrs, Attrs(err)...)...)
}

// Attrs returns the slog attributes describing err: its message and, for
// oops errors, the code and the merged context.
func Attrs(err error) []any {
	oopsErr, ok := oops.AsOops(err)
	if !ok {
		return []any{"error", err}
	}
	attrs := []any{"error", err.Error()}
	if code := oopsErr.Code(); code != nil {
		attrs = append(attrs, "code", code)
	}
	if ctx := oopsErr.Context(); len(ctx) > 0 {
		attrs = append(attrs, "context", ctx)
	}
	return attrs
}

// Code returns the oops code carried by err, or "" when there is none.
func Code(err error) string {
	oopsErr, ok := oops.AsOops(err)
	if !ok {
		return ""
	}
	code, _ := oopsErr.Code().(string)
	return code
}
