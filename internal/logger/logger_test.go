package logger

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestColorTextHandlerPrefixesLevel(t *testing.T) {
	var buf bytes.Buffer
	h := NewColorTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo})
	log := slog.New(h)

	log.Warn("disk almost full")
	out := buf.String()
	// TextHandler quotes the message, so the escape codes appear escaped.
	if !strings.Contains(out, `\x1b[33mWARN\x1b[0m`) {
		t.Fatalf("missing colored level prefix: %q", out)
	}
	if !strings.Contains(out, "disk almost full") {
		t.Fatalf("missing message: %q", out)
	}
}

func TestColorTextHandlerRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	h := NewColorTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelWarn})
	log := slog.New(h)
	log.Info("too quiet")
	if buf.Len() != 0 {
		t.Fatalf("info record emitted below warn level: %q", buf.String())
	}
}

func TestNewWithFileWritesBoth(t *testing.T) {
	path := filepath.Join(t.TempDir(), "kudoman.log")
	log, closeLog := New(slog.LevelInfo, path)
	log.Info("hello from test")
	if err := closeLog(); err != nil {
		t.Fatalf("close: %v", err)
	}
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("log file: %v", err)
	}
	if !strings.Contains(string(b), "hello from test") {
		t.Fatalf("log file missing record: %q", string(b))
	}
}

func TestNewWithoutFile(t *testing.T) {
	log, closeLog := New(slog.LevelError, "")
	if log == nil {
		t.Fatalf("nil logger")
	}
	if err := closeLog(); err != nil {
		t.Fatalf("closer must be a no-op without a file: %v", err)
	}
}
