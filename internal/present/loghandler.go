// Package present implements the CLI's output layer: a fan-out slog
// handler for the text+JSON log tee, byte/rate/ETA formatting, TTY
// detection, and the plain-text and quiet progress presenters that
// consume internal/progress events. There is no interactive TUI — that
// surface is out of scope for this tool.
package present

import (
	"context"
	"log/slog"
)

// multiHandler fans every log record out to each wrapped handler,
// skipping handlers whose own level filter rejects the record.
type multiHandler struct {
	handlers []slog.Handler
}

// NewMultiHandler builds a slog.Handler that fans out to every handler
// given, typically a text handler writing to stderr alongside a JSON
// handler writing to a log file.
func NewMultiHandler(handlers ...slog.Handler) slog.Handler {
	return &multiHandler{handlers: handlers}
}

func (m *multiHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range m.handlers {
		if h.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (m *multiHandler) Handle(ctx context.Context, r slog.Record) error {
	for _, h := range m.handlers {
		if !h.Enabled(ctx, r.Level) {
			continue
		}
		if err := h.Handle(ctx, r.Clone()); err != nil {
			return err
		}
	}
	return nil
}

func (m *multiHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := make([]slog.Handler, len(m.handlers))
	for i, h := range m.handlers {
		next[i] = h.WithAttrs(attrs)
	}
	return &multiHandler{handlers: next}
}

func (m *multiHandler) WithGroup(name string) slog.Handler {
	next := make([]slog.Handler, len(m.handlers))
	for i, h := range m.handlers {
		next[i] = h.WithGroup(name)
	}
	return &multiHandler{handlers: next}
}
