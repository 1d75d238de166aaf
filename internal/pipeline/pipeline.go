// Package pipeline runs one batch end to end: load menu items from SQLite,
// extract ingredients, and persist the run.
package pipeline

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/menu-ingredients/internal/extract"
	"github.com/sells-group/menu-ingredients/internal/ingredient"
	"github.com/sells-group/menu-ingredients/internal/model"
	"github.com/sells-group/menu-ingredients/internal/monitoring"
	"github.com/sells-group/menu-ingredients/internal/source"
	"github.com/sells-group/menu-ingredients/pkg/anthropic"
)

// MenuSource loads the next batch of menu items.
type MenuSource interface {
	LoadMenuBatch(ctx context.Context, limit int) ([]model.SourceItem, error)
}

// Extractor turns menu text chunks into extraction results.
type Extractor interface {
	ExtractChunks(ctx context.Context, chunks []string) (*extract.Outcome, error)
}

// RunWriter persists a run atomically.
type RunWriter interface {
	PersistRun(ctx context.Context, results []model.ExtractionResult, meta model.RunMeta) (int64, error)
}

// Options controls a single batch.
type Options struct {
	Limit     int
	ChunkSize int
	Meta      model.RunMeta

	// DryRun extracts but skips the write.
	DryRun bool
}

// Phase statuses.
const (
	PhaseComplete = "complete"
	PhaseFailed   = "failed"
	PhaseSkipped  = "skipped"
)

// PhaseResult records how one phase went.
type PhaseResult struct {
	Name       string `json:"name" yaml:"name"`
	Status     string `json:"status" yaml:"status"`
	DurationMs int64  `json:"duration_ms" yaml:"duration_ms"`
	Error      string `json:"error,omitempty" yaml:"error,omitempty"`
}

// Result summarizes a batch.
type Result struct {
	RunID        int64                    `json:"run_id,omitempty" yaml:"run_id,omitempty"`
	Items        int                      `json:"items" yaml:"items"`
	Chunks       int                      `json:"chunks" yaml:"chunks"`
	Observations int                      `json:"observations" yaml:"observations"`
	Batch        bool                     `json:"batch" yaml:"batch"`
	DryRun       bool                     `json:"dry_run" yaml:"dry_run"`
	Usage        anthropic.TokenUsage     `json:"usage" yaml:"usage"`
	Phases       []PhaseResult            `json:"phases" yaml:"phases"`
	Results      []model.ExtractionResult `json:"results,omitempty" yaml:"results,omitempty"`
}

// Pipeline wires the three stages together.
type Pipeline struct {
	source    MenuSource
	extractor Extractor
	writer    RunWriter
}

// New creates a Pipeline. writer may be nil for dry runs.
func New(src MenuSource, ex Extractor, w RunWriter) *Pipeline {
	return &Pipeline{source: src, extractor: ex, writer: w}
}

// Run executes load, extract and persist. An empty batch is not an error.
func (p *Pipeline) Run(ctx context.Context, opts Options) (*Result, error) {
	log := zap.L().With(zap.Int("limit", opts.Limit), zap.Int("chunk_size", opts.ChunkSize))
	result := &Result{DryRun: opts.DryRun}

	track := func(name string, fn func() error) error {
		start := time.Now()
		err := fn()
		phase := PhaseResult{Name: name, Status: PhaseComplete, DurationMs: time.Since(start).Milliseconds()}
		if err != nil {
			phase.Status = PhaseFailed
			phase.Error = err.Error()
			log.Error("pipeline: phase failed", zap.String("phase", name), zap.Int64("duration_ms", phase.DurationMs), zap.Error(err))
		} else {
			log.Info("pipeline: phase complete", zap.String("phase", name), zap.Int64("duration_ms", phase.DurationMs))
		}
		result.Phases = append(result.Phases, phase)
		return err
	}

	var items []model.SourceItem
	if err := track("load", func() error {
		var err error
		items, err = p.source.LoadMenuBatch(ctx, opts.Limit)
		return err
	}); err != nil {
		return result, eris.Wrap(err, "pipeline: load menu batch")
	}
	result.Items = len(items)
	if len(items) == 0 {
		log.Warn("pipeline: no menu items found")
		monitoring.RecordRun(monitoring.StatusEmpty)
		return result, nil
	}

	chunks := source.Chunk(items, opts.ChunkSize)
	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = source.BuildMenuText(c)
	}
	result.Chunks = len(chunks)
	log.Info("pipeline: loaded menu items", zap.Int("items", len(items)), zap.Int("chunks", len(chunks)))

	var outcome *extract.Outcome
	if err := track("extract", func() error {
		var err error
		outcome, err = p.extractor.ExtractChunks(ctx, texts)
		return err
	}); err != nil {
		monitoring.RecordRun(monitoring.StatusFailed)
		return result, eris.Wrap(err, "pipeline: extract")
	}
	result.Results = outcome.Results
	result.Usage = outcome.Usage
	result.Batch = outcome.Batch
	result.Observations = CountObservations(outcome.Results)
	monitoring.TokensUsed.WithLabelValues("input").Add(float64(outcome.Usage.InputTokens))
	monitoring.TokensUsed.WithLabelValues("output").Add(float64(outcome.Usage.OutputTokens))

	if len(outcome.Results) != len(items) {
		log.Warn("pipeline: result count differs from item count",
			zap.Int("items", len(items)),
			zap.Int("results", len(outcome.Results)),
		)
	}

	if opts.DryRun || p.writer == nil {
		result.Phases = append(result.Phases, PhaseResult{Name: "persist", Status: PhaseSkipped})
		log.Info("pipeline: dry run, skipping write", zap.Int("results", len(outcome.Results)))
		return result, nil
	}

	if err := track("persist", func() error {
		var err error
		result.RunID, err = p.writer.PersistRun(ctx, outcome.Results, opts.Meta)
		return err
	}); err != nil {
		monitoring.RecordRun(monitoring.StatusFailed)
		return result, eris.Wrap(err, "pipeline: persist run")
	}

	monitoring.RecordRun(monitoring.StatusCommitted)
	monitoring.IngredientsWritten.Add(float64(result.Observations))
	log.Info("pipeline success",
		zap.Int64("run_id", result.RunID),
		zap.Int("results", len(outcome.Results)),
		zap.Int("observations", result.Observations),
	)
	return result, nil
}

// CountObservations returns the number of distinct (item, canonical name)
// pairs in results, which is what a committed run writes.
func CountObservations(results []model.ExtractionResult) int {
	var n int
	for _, r := range results {
		seen := make(map[string]struct{}, len(r.Ingredients))
		for _, ing := range r.Ingredients {
			key := ingredient.Canonicalize(ing.Name)
			if key == "" {
				continue
			}
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = struct{}{}
			n++
		}
	}
	return n
}
