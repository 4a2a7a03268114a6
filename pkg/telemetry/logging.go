// Copyright 2026 © The Onyx Authors
// SPDX-License-Identifier: Apache-2.0

package telemetry

import (
	"context"
	"io"
	"log/slog"
	"strings"

	"go.opentelemetry.io/otel/trace"

	"github.com/jllopis/onyx/pkg/core"
)

// ConfigureSlog installs the process-wide slog logger and returns it.
func ConfigureSlog(output io.Writer, level, format string) *slog.Logger {
	logger := NewLogger(output, level, format)
	slog.SetDefault(logger)
	return logger
}

// NewLogger builds a logger whose records are annotated from their context:
// trace_id and span_id of the active span, and the agent, run_id and
// conversation_id the context was tagged with. Format "json" selects the
// JSON handler; anything else is text.
func NewLogger(output io.Writer, level, format string) *slog.Logger {
	if output == nil {
		output = io.Discard
	}
	opts := &slog.HandlerOptions{Level: logLevel(level)}
	var h slog.Handler
	if strings.EqualFold(strings.TrimSpace(format), "json") {
		h = slog.NewJSONHandler(output, opts)
	} else {
		h = slog.NewTextHandler(output, opts)
	}
	return slog.New(contextHandler{Handler: h})
}

// LoggerOr returns l when set and the default logger otherwise.
func LoggerOr(l *slog.Logger) *slog.Logger {
	if l != nil {
		return l
	}
	return slog.Default()
}

type contextHandler struct {
	slog.Handler
	// bound holds keys already attached with WithAttrs.
	bound map[string]bool
}

func (h contextHandler) Handle(ctx context.Context, r slog.Record) error {
	if ctx != nil {
		present := h.keys(r)
		add := func(key, value string) {
			if value != "" && !present[key] {
				r.AddAttrs(slog.String(key, value))
			}
		}
		if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
			add("trace_id", sc.TraceID().String())
			add("span_id", sc.SpanID().String())
		}
		add(LogAgent, core.AgentName(ctx))
		if id, ok := core.RunID(ctx); ok {
			add("run_id", id)
		}
		if id, ok := core.ConversationID(ctx); ok {
			add(LogConversationID, id)
		}
	}
	return h.Handler.Handle(ctx, r)
}

func (h contextHandler) keys(r slog.Record) map[string]bool {
	present := make(map[string]bool, len(h.bound)+r.NumAttrs())
	for k := range h.bound {
		present[k] = true
	}
	r.Attrs(func(a slog.Attr) bool {
		present[a.Key] = true
		return true
	})
	return present
}

func (h contextHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	bound := make(map[string]bool, len(h.bound)+len(attrs))
	for k := range h.bound {
		bound[k] = true
	}
	for _, a := range attrs {
		bound[a.Key] = true
	}
	return contextHandler{Handler: h.Handler.WithAttrs(attrs), bound: bound}
}

func (h contextHandler) WithGroup(name string) slog.Handler {
	return contextHandler{Handler: h.Handler.WithGroup(name), bound: h.bound}
}

func logLevel(level string) slog.Level {
	var l slog.Level
	switch s := strings.ToLower(strings.TrimSpace(level)); s {
	case "warning":
		return slog.LevelWarn
	default:
		if err := l.UnmarshalText([]byte(s)); err != nil {
			return slog.LevelInfo
		}
		return l
	}
}
