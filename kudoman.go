package kudoman

import (
	"log/slog"

	"github.com/loykin/kudoman/internal/collector"
	"github.com/loykin/kudoman/internal/config"
	"github.com/loykin/kudoman/internal/history"
	"github.com/loykin/kudoman/internal/lock"
	"github.com/loykin/kudoman/internal/store"
)

// Re-export core types for external consumers.
// These are aliases so conversions are zero-cost.

type Config = config.Config

type Sample = store.Sample

type Row = store.Row

type Sink = history.Sink

type ConflictError = lock.ConflictError

// Collector is the single-instance kudos collection loop. Construct it with
// New and drive it with Run; cancelling the context shuts it down cleanly.
type Collector = collector.Collector

// New builds a Collector from a validated Config.
func New(cfg Config, logger *slog.Logger) *Collector {
	return collector.New(cfg, logger)
}

// LoadConfig reads configuration from the environment and an optional .env
// file in dir. See internal/config for validation and clamping rules.
func LoadConfig(dir string, logger *slog.Logger) (Config, error) {
	return config.Load(dir, logger)
}

// Derive computes the derived columns (MA, D1, MAD1) for an ordered sample
// sequence without touching any file.
func Derive(samples []Sample, maWindow int) []Row {
	return store.Derive(samples, maWindow)
}
