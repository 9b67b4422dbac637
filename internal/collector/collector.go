package collector

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/loykin/kudoman/internal/backup"
	"github.com/loykin/kudoman/internal/chart"
	"github.com/loykin/kudoman/internal/config"
	"github.com/loykin/kudoman/internal/history"
	"github.com/loykin/kudoman/internal/horde"
	"github.com/loykin/kudoman/internal/lock"
	"github.com/loykin/kudoman/internal/metrics"
	"github.com/loykin/kudoman/internal/store"
)

// MetricSource supplies the polled metric. Satisfied by *horde.Client;
// replaceable in tests.
type MetricSource interface {
	CheckUser(ctx context.Context) error
	Fetch(ctx context.Context) (int64, error)
}

// Renderer consumes the recomputed series after each tick.
type Renderer interface {
	Render(rows []store.Row) error
}

// Collector is the single-instance control loop: acquire the directory lock,
// rotate backups, then poll-append-recompute-render on a fixed cadence until
// the context is cancelled. One logical worker; the store and lock are never
// touched concurrently from within the process.
type Collector struct {
	cfg    config.Config
	logger *slog.Logger
	lock   *lock.Lock
	st     *store.Store
	rot    *backup.Rotator
	source MetricSource
	render Renderer
	sink   history.Sink // optional, nil when no mirror is configured

	now func() time.Time
}

func New(cfg config.Config, logger *slog.Logger) *Collector {
	return &Collector{
		cfg:    cfg,
		logger: logger,
		lock:   lock.New(cfg.LockPath(), cfg.Dir),
		st:     store.New(cfg.StorePath(), cfg.MAWindow),
		rot:    backup.New(cfg.BackupDir(), cfg.StorePath(), logger),
		source: horde.New(cfg.BaseURL, cfg.APIKey),
		render: &chart.Renderer{
			Path:     cfg.ChartPath(),
			ShowMA:   cfg.ShowMA,
			ShowD1:   cfg.ShowD1,
			ShowMAD1: cfg.ShowMAD1,
		},
		now: time.Now,
	}
}

// Store exposes the underlying time series for read-only consumers (the
// status server).
func (c *Collector) Store() *store.Store { return c.st }

// SetSink attaches an optional history mirror. Must be called before Run.
func (c *Collector) SetSink(s history.Sink) { c.sink = s }

// Run drives the collector until ctx is cancelled. Cancellation is a normal
// shutdown (nil return) and always releases the lock. A non-nil return means
// the run could not start safely: *lock.ConflictError, horde.ErrUnknownUser,
// or lock/store I/O failure. On Conflict the other instance's lock file is
// left untouched.
func (c *Collector) Run(ctx context.Context) error {
	if err := c.lock.Acquire(); err != nil {
		var conflict *lock.ConflictError
		if errors.As(err, &conflict) {
			c.logger.Error("another instance of kudoman is probably running; stop it first, " +
				"or remove " + c.cfg.LockPath() + " if you are sure there is none")
			c.logger.Info(fmt.Sprintf("kudoman is running on PID %d, started at %s",
				conflict.Other.PID, conflict.Other.Acquired.Format(time.RFC3339)))
		}
		return err
	}
	// Every path out of Run below goes through the release. Release is a
	// no-op when this process does not own the lock.
	defer func() {
		if err := c.lock.Release(); err != nil {
			c.logger.Error("failed to remove lock file", "error", err)
		}
	}()

	if err := c.checkUser(ctx); err != nil {
		return err
	}

	c.logger.Info(fmt.Sprintf("fetching every %s", c.cfg.Interval))
	c.logger.Info(fmt.Sprintf("keeping %d backups", c.cfg.NumBackups))
	c.logger.Info(fmt.Sprintf("moving average window of %d samples", c.cfg.MAWindow))
	c.logger.Info("moving average: " + enabledDisabled(c.cfg.ShowMA))
	c.logger.Info("first difference: " + enabledDisabled(c.cfg.ShowD1))
	c.logger.Info("m.a. f.d.: " + enabledDisabled(c.cfg.ShowMAD1))

	if err := c.rot.Prune(c.cfg.NumBackups); err != nil {
		c.logger.Warn("pruning backups failed", "error", err)
	}
	if err := c.st.EnsureExists(); err != nil {
		return fmt.Errorf("create store: %w", err)
	}
	c.snapshot()

	for {
		c.tick(ctx)
		if err := sleepCtx(ctx, c.cfg.Interval); err != nil {
			c.logger.Info("shutting down, removing lock file")
			return nil
		}
	}
}

// checkUser validates the API key against the Horde once at startup. Only an
// unknown user (or cancellation) aborts; a transient failure is retried by
// the regular tick cycle.
func (c *Collector) checkUser(ctx context.Context) error {
	err := c.source.CheckUser(ctx)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, horde.ErrUnknownUser):
		c.logger.Error("user not found; is API_KEY in .env correct?")
		return err
	case ctx.Err() != nil:
		return nil
	default:
		c.logger.Warn("startup user check failed, will retry on the first tick", "error", err)
		return nil
	}
}

// tick runs one fetch-append-recompute-render cycle. Errors inside a tick are
// logged and the loop continues; only cancellation stops the collector.
func (c *Collector) tick(ctx context.Context) {
	kudos, err := c.source.Fetch(ctx)
	if err != nil {
		if ctx.Err() == nil {
			c.logger.Warn("fetching kudos failed", "error", err)
			metrics.IncFetch("error")
		}
		return
	}
	metrics.IncFetch("ok")
	metrics.SetKudos(float64(kudos))
	c.logger.Info(fmt.Sprintf("%d Kudos", kudos))

	smp := store.Sample{Time: float64(c.now().UnixNano()) / 1e9, Kudos: kudos}
	if err := c.st.Append(smp); err != nil {
		// The sample for this tick is lost; the store is still consistent.
		c.logger.Error("appending sample failed", "error", err)
		return
	}
	metrics.IncAppended()

	if c.sink != nil {
		if err := c.sink.Send(ctx, smp); err != nil {
			c.logger.Warn("history mirror failed", "error", err)
		}
	}

	start := c.now()
	rows, err := c.st.RecomputeDerived()
	if err != nil {
		// Atomic replace semantics: the store is at its last consistent state.
		c.logger.Error("recomputing derived columns failed", "error", err)
		return
	}
	metrics.ObserveRecompute(c.now().Sub(start).Seconds())

	if err := c.render.Render(rows); err != nil {
		c.logger.Warn("rendering chart failed", "error", err)
	}
}

// snapshot takes the session-start backup. Losing a backup is lower severity
// than losing the ability to record, so failure only logs.
func (c *Collector) snapshot() {
	if err := c.rot.Snapshot(); err != nil {
		c.logger.Warn("backup snapshot failed", "error", err)
		metrics.IncBackup("error")
		return
	}
	metrics.IncBackup("ok")
}

// sleepCtx waits for d or until ctx is cancelled, whichever comes first.
// Returns ctx.Err() on cancellation so the caller can route shutdown.
func sleepCtx(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func enabledDisabled(b bool) string {
	if b {
		return "enabled"
	}
	return "disabled"
}
