// Package monitoring snapshots pipeline table counts and exposes them, along
// with run counters, as Prometheus metrics.
package monitoring

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/menu-ingredients/internal/model"
)

// StatsSource is the slice of store.Store the collector reads.
type StatsSource interface {
	Counts(ctx context.Context) (*model.TableCounts, error)
	ListRuns(ctx context.Context, limit int) ([]model.Run, error)
}

// Snapshot is a point-in-time view of the pipeline tables.
type Snapshot struct {
	Counts      model.TableCounts `json:"counts" yaml:"counts"`
	LatestRun   *model.Run        `json:"latest_run,omitempty" yaml:"latest_run,omitempty"`
	CollectedAt time.Time         `json:"collected_at" yaml:"collected_at"`
}

// LatestRunAge is the time since the newest run, or -1 when there is none.
func (s *Snapshot) LatestRunAge() time.Duration {
	if s.LatestRun == nil {
		return -1
	}
	return s.CollectedAt.Sub(s.LatestRun.CreatedAt)
}

// Collector gathers snapshots from the store.
type Collector struct {
	src StatsSource
	now func() time.Time
}

// NewCollector creates a Collector.
func NewCollector(src StatsSource) *Collector {
	return &Collector{src: src, now: func() time.Time { return time.Now().UTC() }}
}

// Collect reads table counts and the newest run.
func (c *Collector) Collect(ctx context.Context) (*Snapshot, error) {
	counts, err := c.src.Counts(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: table counts")
	}

	runs, err := c.src.ListRuns(ctx, 1)
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: latest run")
	}

	snap := &Snapshot{Counts: *counts, CollectedAt: c.now()}
	if len(runs) > 0 {
		snap.LatestRun = &runs[0]
	}
	return snap, nil
}
