package backup

import (
	"compress/gzip"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"
)

// DefaultRetain is the fallback retention count when a caller passes a
// non-positive value. Retention is never disabled: an unbounded backup
// directory would quietly exhaust the disk.
const DefaultRetain = 10

// Rotator snapshots the store into timestamped gzip artifacts and keeps the
// directory bounded.
type Rotator struct {
	dir       string // backup directory, created on demand
	storePath string
	logger    *slog.Logger

	now func() time.Time
}

func New(dir, storePath string, logger *slog.Logger) *Rotator {
	return &Rotator{dir: dir, storePath: storePath, logger: logger, now: time.Now}
}

// Snapshot gzips the current store contents into a new artifact named for the
// current time, e.g. out-1724400000.csv.gz.
func (r *Rotator) Snapshot() error {
	if err := r.ensureDir(); err != nil {
		return err
	}
	src, err := os.Open(r.storePath)
	if err != nil {
		return fmt.Errorf("snapshot: %w", err)
	}
	defer func() { _ = src.Close() }()

	name := fmt.Sprintf("out-%d.csv.gz", r.now().Unix())
	path := filepath.Join(r.dir, name)
	dst, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("snapshot: %w", err)
	}
	zw := gzip.NewWriter(dst)
	_, werr := io.Copy(zw, src)
	if err := zw.Close(); werr == nil {
		werr = err
	}
	if err := dst.Close(); werr == nil {
		werr = err
	}
	if werr != nil {
		_ = os.Remove(path)
		return fmt.Errorf("snapshot: %w", werr)
	}
	r.logger.Debug("backup written", "path", path)
	return nil
}

// Prune keeps the retain most recent artifacts by modification time and
// deletes the rest. retain <= 0 is a configuration mistake and falls back to
// DefaultRetain.
func (r *Rotator) Prune(retain int) error {
	if retain <= 0 {
		r.logger.Warn("backup retention must be positive, using default", "default", DefaultRetain)
		retain = DefaultRetain
	}
	if err := r.ensureDir(); err != nil {
		return err
	}
	entries, err := os.ReadDir(r.dir)
	if err != nil {
		return fmt.Errorf("prune backups: %w", err)
	}
	type artifact struct {
		path string
		mod  time.Time
	}
	arts := make([]artifact, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		arts = append(arts, artifact{path: filepath.Join(r.dir, e.Name()), mod: info.ModTime()})
	}
	sort.Slice(arts, func(i, j int) bool { return arts[i].mod.After(arts[j].mod) })
	for _, old := range arts[min(retain, len(arts)):] {
		r.logger.Info("removing old backup", "path", old.path)
		if err := os.Remove(old.path); err != nil {
			return fmt.Errorf("prune backups: %w", err)
		}
	}
	return nil
}

func (r *Rotator) ensureDir() error {
	if _, err := os.Stat(r.dir); err == nil {
		return nil
	}
	r.logger.Info("no backup folder, creating", "dir", r.dir)
	return os.MkdirAll(r.dir, 0o755)
}
