// Package testutil provides logging helpers for package tests.
package testutil

import (
	"context"
	"log/slog"
	"sync"
	"testing"
)

// NewTestLogger returns a debug-level logger that writes to t.Log, so output
// only shows on failure or with -v.
func NewTestLogger(t testing.TB) *slog.Logger {
	t.Helper()
	return slog.New(slog.NewTextHandler(testWriter{t}, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))
}

type testWriter struct {
	t testing.TB
}

func (w testWriter) Write(p []byte) (n int, err error) {
	w.t.Helper()
	w.t.Log(string(p))
	return len(p), nil
}

// Entry is one captured log record with its attributes flattened.
type Entry struct {
	Level   slog.Level
	Message string
	Attrs   map[string]any
}

// LogRecorder captures log records for assertions. Safe for concurrent use.
type LogRecorder struct {
	mu      sync.Mutex
	entries []Entry
}

// NewRecordingLogger returns a debug-level logger and the recorder behind it.
func NewRecordingLogger() (*slog.Logger, *LogRecorder) {
	rec := &LogRecorder{}
	return slog.New(&recordingHandler{rec: rec}), rec
}

// Entries returns the records at level or above.
func (r *LogRecorder) Entries(level slog.Level) []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Entry
	for _, e := range r.entries {
		if e.Level >= level {
			out = append(out, e)
		}
	}
	return out
}

// Count returns how many records with the given level and message were logged.
func (r *LogRecorder) Count(level slog.Level, msg string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.entries {
		if e.Level == level && e.Message == msg {
			n++
		}
	}
	return n
}

type recordingHandler struct {
	rec   *LogRecorder
	attrs []slog.Attr
}

func (h *recordingHandler) Enabled(context.Context, slog.Level) bool { return true }

func (h *recordingHandler) Handle(_ context.Context, rec slog.Record) error {
	e := Entry{Level: rec.Level, Message: rec.Message, Attrs: make(map[string]any, len(h.attrs)+rec.NumAttrs())}
	for _, a := range h.attrs {
		e.Attrs[a.Key] = a.Value.Resolve().Any()
	}
	rec.Attrs(func(a slog.Attr) bool {
		e.Attrs[a.Key] = a.Value.Resolve().Any()
		return true
	})

	h.rec.mu.Lock()
	defer h.rec.mu.Unlock()
	h.rec.entries = append(h.rec.entries, e)
	return nil
}

func (h *recordingHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	merged := make([]slog.Attr, 0, len(h.attrs)+len(attrs))
	merged = append(merged, h.attrs...)
	merged = append(merged, attrs...)
	return &recordingHandler{rec: h.rec, attrs: merged}
}

// WithGroup is a no-op; captured attributes stay flat.
func (h *recordingHandler) WithGroup(string) slog.Handler { return h }
