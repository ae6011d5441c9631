// Package cleanup removes listitems whose list no longer exists, at startup
// and then on a fixed interval.
package cleanup

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/mesh-intelligence/lists/internal/metrics"
	"github.com/mesh-intelligence/lists/internal/sqlite"
)

// Outcome classifies one cleanup run.
type Outcome string

const (
	OutcomeNothing   Outcome = "nothing"   // no orphans found
	OutcomeLive      Outcome = "live"      // orphans removed from active items only
	OutcomeTrash     Outcome = "trash"     // orphans removed from trashed items only
	OutcomeBoth      Outcome = "both"      // orphans removed from both
	OutcomeTruncated Outcome = "truncated" // no lists exist; every item removed
)

// DefaultInterval is the time between scheduled runs.
const DefaultInterval = 24 * time.Hour

// Report describes one cleanup run.
type Report struct {
	Outcome Outcome `json:"outcome"`
	Live    int64   `json:"live"`  // active items removed
	Trash   int64   `json:"trash"` // trashed items removed
}

// Coordinator runs orphan cleanup on a backend.
type Coordinator struct {
	backend  *sqlite.Backend
	logger   *slog.Logger
	metrics  *metrics.Metrics
	interval time.Duration
	lock     sync.Locker
}

// Option configures a Coordinator.
type Option func(*Coordinator)

func WithLogger(l *slog.Logger) Option {
	return func(c *Coordinator) { c.logger = l }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Coordinator) { c.metrics = m }
}

// WithInterval sets the time between scheduled runs. Non-positive values
// keep DefaultInterval.
func WithInterval(d time.Duration) Option {
	return func(c *Coordinator) {
		if d > 0 {
			c.interval = d
		}
	}
}

// WithLocker makes every run hold l, so runs do not interleave with other
// users of the same backend.
func WithLocker(l sync.Locker) Option {
	return func(c *Coordinator) { c.lock = l }
}

// New creates a Coordinator over b.
func New(b *sqlite.Backend, opts ...Option) *Coordinator {
	c := &Coordinator{backend: b, logger: b.Logger(), interval: DefaultInterval}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Interval returns the time between scheduled runs.
func (c *Coordinator) Interval() time.Duration { return c.interval }

// Run performs one cleanup. The ids of active and trashed lists are
// collected; items referencing any other list are removed from both the
// active and the trashed scope. When no list exists every item is removed.
// A failure to read list ids is logged and treated as no lists. Only a
// missing connection or a failed delete is returned as an error.
func (c *Coordinator) Run(ctx context.Context) (Report, error) {
	if c.lock != nil {
		c.lock.Lock()
		defer c.lock.Unlock()
	}
	conn, err := c.backend.Conn()
	if err != nil {
		return Report{}, err
	}

	var rep Report
	err = conn.Tx(ctx, func(ctx context.Context) error {
		valid := c.listIDs(ctx)
		items, trash := c.backend.Items(), c.backend.ItemsTrash()

		if len(valid) == 0 {
			live, err := items.Truncate(ctx)
			if err != nil {
				return err
			}
			trashed, err := trash.Truncate(ctx)
			if err != nil {
				return err
			}
			rep = Report{Outcome: OutcomeTruncated, Live: live, Trash: trashed}
			return nil
		}

		live, err := items.PurgeOrphaned(ctx, valid)
		if err != nil {
			return err
		}
		trashed, err := trash.PurgeOrphaned(ctx, valid)
		if err != nil {
			return err
		}
		rep = Report{Outcome: classify(live, trashed), Live: live, Trash: trashed}
		return nil
	})
	if err != nil {
		c.logger.Error("listitem cleanup failed", "err", err)
		return Report{}, err
	}

	c.log(rep)
	c.metrics.CleanupRun(string(rep.Outcome))
	c.metrics.OrphansPurged(sqlite.ScopeLive.String(), rep.Live)
	c.metrics.OrphansPurged(sqlite.ScopeTrash.String(), rep.Trash)
	return rep, nil
}

func (c *Coordinator) listIDs(ctx context.Context) []int64 {
	ids, err := c.backend.AllLists().IDs(ctx)
	if err != nil {
		c.logger.Warn("could not read list ids, treating as none", "err", err)
		return nil
	}
	return ids
}

func classify(live, trash int64) Outcome {
	switch {
	case live > 0 && trash > 0:
		return OutcomeBoth
	case live > 0:
		return OutcomeLive
	case trash > 0:
		return OutcomeTrash
	}
	return OutcomeNothing
}

func (c *Coordinator) log(rep Report) {
	switch rep.Outcome {
	case OutcomeNothing:
		c.logger.Debug("no orphaned listitems")
	case OutcomeLive:
		c.logger.Info("removed orphaned listitems", "live", rep.Live)
	case OutcomeTrash:
		c.logger.Info("removed orphaned trashed listitems", "trash", rep.Trash)
	case OutcomeBoth:
		c.logger.Info("removed orphaned listitems and trashed listitems", "live", rep.Live, "trash", rep.Trash)
	case OutcomeTruncated:
		c.logger.Info("no lists found, removed all listitems", "live", rep.Live, "trash", rep.Trash)
	}
}

// Start runs a cleanup immediately and then once per interval until ctx is
// done. Failed runs are logged and retried on the next tick. Start blocks;
// run it in its own goroutine.
func (c *Coordinator) Start(ctx context.Context) {
	c.runLogged(ctx)

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.runLogged(ctx)
		}
	}
}

func (c *Coordinator) runLogged(ctx context.Context) {
	if _, err := c.Run(ctx); err != nil {
		c.logger.Warn("scheduled cleanup skipped", "err", err)
	}
}
