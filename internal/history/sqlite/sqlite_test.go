package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/loykin/kudoman/internal/store"
)

func TestSendAndCount(t *testing.T) {
	s, err := New(":memory:")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer func() { _ = s.Close() }()

	ctx := context.Background()
	samples := []store.Sample{
		{Time: 1000.25, Kudos: 10},
		{Time: 1060.50, Kudos: 20},
	}
	for _, smp := range samples {
		if err := s.Send(ctx, smp); err != nil {
			t.Fatalf("Send: %v", err)
		}
	}

	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM kudos_history`).Scan(&n); err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 2 {
		t.Fatalf("rows = %d, want 2", n)
	}
	var ts float64
	var kudos int64
	err = s.db.QueryRowContext(ctx,
		`SELECT ts, kudos FROM kudos_history ORDER BY ts DESC LIMIT 1`).Scan(&ts, &kudos)
	if err != nil {
		t.Fatalf("query latest: %v", err)
	}
	if kudos != 20 || ts != 1060.50 {
		t.Fatalf("latest = (%v, %d), want (1060.5, 20)", ts, kudos)
	}
}

func TestDSNPrefixes(t *testing.T) {
	dir := t.TempDir()
	for _, dsn := range []string{
		filepath.Join(dir, "a.db"),
		"sqlite://" + filepath.Join(dir, "b.db"),
		"sqlite://:memory:",
	} {
		s, err := New(dsn)
		if err != nil {
			t.Fatalf("New(%q): %v", dsn, err)
		}
		_ = s.Close()
	}
}

func TestEmptyDSNRejected(t *testing.T) {
	if _, err := New("  "); err == nil {
		t.Fatalf("expected error for empty DSN")
	}
}
