package history

import (
	"context"

	"github.com/loykin/kudoman/internal/store"
)

// Sink is an optional secondary destination for appended samples
// (analytics/statistics systems). The CSV store stays the source of truth;
// sink failures are logged and never interrupt collection.
type Sink interface {
	Send(ctx context.Context, s store.Sample) error
	Close() error
}
