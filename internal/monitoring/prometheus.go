package monitoring

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/push"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

const namespace = "menu"

// Pipeline metrics. They live in the short-lived run process and reach
// Prometheus through PushRunMetrics.
var (
	RunsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "runs_total",
		Help:      "Extraction runs by outcome.",
	}, []string{"status"})

	IngredientsWritten = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "ingredients_written_total",
		Help:      "Ingredient observations written by committed runs.",
	})

	TokensUsed = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "extraction_tokens_total",
		Help:      "Tokens consumed by extraction calls.",
	}, []string{"direction"})

	LastRunCompletion = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "last_run_completion_timestamp_seconds",
		Help:      "Time the last run finished, by outcome.",
	}, []string{"status"})
)

// Run outcomes for RunsTotal.
const (
	StatusCommitted = "committed"
	StatusFailed    = "failed"
	StatusEmpty     = "empty"
)

// RecordRun counts one finished run and stamps its completion time.
func RecordRun(status string) {
	RunsTotal.WithLabelValues(status).Inc()
	LastRunCompletion.WithLabelValues(status).SetToCurrentTime()
}

// PromCollector exports a fresh Snapshot as gauges on every scrape.
type PromCollector struct {
	collector *Collector
	timeout   time.Duration

	rows       *prometheus.Desc
	latestRun  *prometheus.Desc
	scrapeFail *prometheus.Desc
}

// NewPromCollector creates a PromCollector over c.
func NewPromCollector(c *Collector) *PromCollector {
	return &PromCollector{
		collector: c,
		timeout:   5 * time.Second,
		rows: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "table_rows"),
			"Row count per pipeline table.",
			[]string{"table"}, nil,
		),
		latestRun: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "latest_run_timestamp_seconds"),
			"Creation time of the newest extraction run.",
			nil, nil,
		),
		scrapeFail: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "stats_scrape_error"),
			"1 if the last stats scrape failed.",
			nil, nil,
		),
	}
}

// Describe implements prometheus.Collector.
func (p *PromCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- p.rows
	ch <- p.latestRun
	ch <- p.scrapeFail
}

// Collect implements prometheus.Collector.
func (p *PromCollector) Collect(ch chan<- prometheus.Metric) {
	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()

	snap, err := p.collector.Collect(ctx)
	if err != nil {
		zap.L().Warn("monitoring: stats scrape failed", zap.Error(err))
		ch <- prometheus.MustNewConstMetric(p.scrapeFail, prometheus.GaugeValue, 1)
		return
	}
	ch <- prometheus.MustNewConstMetric(p.scrapeFail, prometheus.GaugeValue, 0)

	for table, n := range map[string]int64{
		"extraction_runs":                   snap.Counts.Runs,
		"restaurants":                       snap.Counts.Restaurants,
		"menu_items":                        snap.Counts.MenuItems,
		"ingredients":                       snap.Counts.Ingredients,
		"menu_item_ingredient_observations": snap.Counts.Observations,
		"menu_item_ingredients":             snap.Counts.CurrentLinks,
	} {
		ch <- prometheus.MustNewConstMetric(p.rows, prometheus.GaugeValue, float64(n), table)
	}
	if snap.LatestRun != nil {
		ch <- prometheus.MustNewConstMetric(p.latestRun, prometheus.GaugeValue,
			float64(snap.LatestRun.CreatedAt.Unix()))
	}
}

// NewRegistry returns the registry served by the read API: the stats
// collector (when c is non-nil) and the Go runtime collectors.
func NewRegistry(c *Collector) *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	if c != nil {
		reg.MustRegister(NewPromCollector(c))
	}
	return reg
}

// NewRunRegistry returns a registry holding the pipeline metrics.
func NewRunRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(RunsTotal, IngredientsWritten, TokensUsed, LastRunCompletion)
	return reg
}

// PushRunMetrics replaces the job's metric group on the Pushgateway at url
// with everything g gathers.
func PushRunMetrics(ctx context.Context, url, job string, g prometheus.Gatherer) error {
	if err := push.New(url, job).Gatherer(g).PushContext(ctx); err != nil {
		return eris.Wrapf(err, "monitoring: push run metrics to %s", url)
	}
	zap.L().Debug("monitoring: pushed run metrics", zap.String("job", job))
	return nil
}
