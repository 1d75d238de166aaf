package monitoring

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Checker periodically logs a snapshot and warns when no run has landed
// within staleAfter.
type Checker struct {
	collector  *Collector
	interval   time.Duration
	staleAfter time.Duration
}

// NewChecker creates a background checker. A zero interval defaults to five
// minutes; a zero staleAfter disables the staleness warning.
func NewChecker(collector *Collector, interval, staleAfter time.Duration) *Checker {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &Checker{collector: collector, interval: interval, staleAfter: staleAfter}
}

// Run blocks until ctx is cancelled.
func (c *Checker) Run(ctx context.Context) {
	log := zap.L().With(zap.String("component", "monitoring.checker"))
	log.Info("starting stats checker", zap.Duration("interval", c.interval))

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info("stats checker stopped")
			return
		case <-ticker.C:
			c.check(ctx, log)
		}
	}
}

// check returns true when the pipeline looks stale.
func (c *Checker) check(ctx context.Context, log *zap.Logger) bool {
	snap, err := c.collector.Collect(ctx)
	if err != nil {
		log.Error("monitoring: failed to collect stats", zap.Error(err))
		return false
	}

	log.Info("monitoring: table counts",
		zap.Int64("runs", snap.Counts.Runs),
		zap.Int64("menu_items", snap.Counts.MenuItems),
		zap.Int64("ingredients", snap.Counts.Ingredients),
		zap.Int64("observations", snap.Counts.Observations),
		zap.Int64("current_links", snap.Counts.CurrentLinks),
	)

	if c.staleAfter <= 0 {
		return false
	}
	age := snap.LatestRunAge()
	if age < 0 || age > c.staleAfter {
		log.Warn("monitoring: no recent extraction run",
			zap.Duration("stale_after", c.staleAfter),
			zap.Duration("latest_run_age", age),
		)
		return true
	}
	return false
}
