package logger

import (
	"context"
	"log/slog"
	"os"

	lj "gopkg.in/natefinch/lumberjack.v2"
)

// Rotation defaults for the optional log file.
const (
	DefaultMaxSizeMB  = 10 // MB
	DefaultMaxBackups = 3  // number of rotated files
	DefaultMaxAgeDays = 7  // days
)

// New builds the collector's logger: colored text on stderr, plus an optional
// rotating file when logFile is non-empty. The returned closer flushes the
// file writer and is a no-op when no file is configured.
func New(level slog.Level, logFile string) (*slog.Logger, func() error) {
	opts := &slog.HandlerOptions{Level: level}
	handlers := []slog.Handler{NewColorTextHandler(os.Stderr, opts)}
	closer := func() error { return nil }
	if logFile != "" {
		w := &lj.Logger{
			Filename:   logFile,
			MaxSize:    DefaultMaxSizeMB,
			MaxBackups: DefaultMaxBackups,
			MaxAge:     DefaultMaxAgeDays,
			Compress:   true,
		}
		handlers = append(handlers, slog.NewTextHandler(w, opts))
		closer = w.Close
	}
	if len(handlers) == 1 {
		return slog.New(handlers[0]), closer
	}
	return slog.New(multiHandler(handlers)), closer
}

// multiHandler fans a record out to every handler.
type multiHandler []slog.Handler

func (m multiHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range m {
		if h.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (m multiHandler) Handle(ctx context.Context, r slog.Record) error {
	var firstErr error
	for _, h := range m {
		if h.Enabled(ctx, r.Level) {
			if err := h.Handle(ctx, r.Clone()); err != nil && firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

func (m multiHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	out := make(multiHandler, len(m))
	for i, h := range m {
		out[i] = h.WithAttrs(attrs)
	}
	return out
}

func (m multiHandler) WithGroup(name string) slog.Handler {
	out := make(multiHandler, len(m))
	for i, h := range m {
		out[i] = h.WithGroup(name)
	}
	return out
}
