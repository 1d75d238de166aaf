// Package extract turns menu text into ingredient extraction results using
// the Anthropic Messages API.
package extract

import (
	"context"
	"sync"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/sells-group/menu-ingredients/internal/model"
	"github.com/sells-group/menu-ingredients/internal/resilience"
	"github.com/sells-group/menu-ingredients/pkg/anthropic"
)

// Config controls how chunks are sent to the model.
type Config struct {
	Model     string
	MaxTokens int64

	// RateLimit is requests per second; 0 disables limiting.
	RateLimit float64

	// Concurrency bounds parallel direct calls.
	Concurrency int

	// BatchThreshold is the chunk count above which the Batches API is used.
	BatchThreshold int
	NoBatch        bool

	Retry       resilience.RetryConfig
	PollOptions []anthropic.PollOption
}

// Outcome is the result of extracting a set of chunks.
type Outcome struct {
	Results []model.ExtractionResult
	Usage   anthropic.TokenUsage
	Batch   bool
}

// Extractor calls the model for menu chunks.
type Extractor struct {
	client  anthropic.Client
	cfg     Config
	limiter *rate.Limiter
}

// New creates an Extractor.
func New(client anthropic.Client, cfg Config) *Extractor {
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 4096
	}
	cfg.Retry.ShouldRetry = anthropic.IsRetryable
	cfg.Retry.OnRetry = resilience.RetryLogger("extract: create message")

	limit := rate.Inf
	if cfg.RateLimit > 0 {
		limit = rate.Limit(cfg.RateLimit)
	}
	return &Extractor{
		client:  client,
		cfg:     cfg,
		limiter: rate.NewLimiter(limit, 1),
	}
}

func (e *Extractor) request(text string) anthropic.MessageRequest {
	return anthropic.MessageRequest{
		Model:     e.cfg.Model,
		MaxTokens: e.cfg.MaxTokens,
		System:    anthropic.CachedSystem(Instruction),
		Messages:  []anthropic.Message{{Role: "user", Content: text}},
	}
}

// Extract sends one chunk of menu text and parses the reply.
func (e *Extractor) Extract(ctx context.Context, text string) ([]model.ExtractionResult, anthropic.TokenUsage, error) {
	req := e.request(text)
	resp, err := resilience.DoVal(ctx, e.cfg.Retry, func(ctx context.Context) (*anthropic.MessageResponse, error) {
		if err := e.limiter.Wait(ctx); err != nil {
			return nil, eris.Wrap(err, "extract: rate limit wait")
		}
		return e.client.CreateMessage(ctx, req)
	})
	if err != nil {
		return nil, anthropic.TokenUsage{}, err
	}

	results, err := parseResults(resp.Text())
	if err != nil {
		return nil, resp.Usage, err
	}
	return results, resp.Usage, nil
}

// ExtractChunks extracts every chunk and returns results in chunk order.
// Any failed chunk fails the whole call.
func (e *Extractor) ExtractChunks(ctx context.Context, chunks []string) (*Outcome, error) {
	if len(chunks) == 0 {
		return &Outcome{}, nil
	}

	var (
		out *Outcome
		err error
	)
	if !e.cfg.NoBatch && e.cfg.BatchThreshold > 0 && len(chunks) > e.cfg.BatchThreshold {
		out, err = e.extractBatch(ctx, chunks)
	} else {
		out, err = e.extractDirect(ctx, chunks)
	}
	if err != nil {
		return nil, err
	}

	out.Usage.LogCost(e.cfg.Model, out.Batch)
	return out, nil
}

func (e *Extractor) extractDirect(ctx context.Context, chunks []string) (*Outcome, error) {
	log := zap.L().With(zap.String("mode", "direct"), zap.Int("chunks", len(chunks)))
	log.Debug("extract: starting direct calls", zap.Int("concurrency", e.cfg.Concurrency))

	perChunk := make([][]model.ExtractionResult, len(chunks))
	var (
		mu    sync.Mutex
		usage anthropic.TokenUsage
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.cfg.Concurrency)
	for i, text := range chunks {
		g.Go(func() error {
			results, u, err := e.Extract(gctx, text)
			mu.Lock()
			usage.Add(u)
			mu.Unlock()
			if err != nil {
				return eris.Wrapf(err, "extract: chunk %d", i)
			}
			perChunk[i] = results
			log.Debug("extract: chunk done", zap.Int("chunk", i), zap.Int("results", len(results)))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return &Outcome{Results: flatten(perChunk), Usage: usage}, nil
}

func flatten(perChunk [][]model.ExtractionResult) []model.ExtractionResult {
	var n int
	for _, r := range perChunk {
		n += len(r)
	}
	out := make([]model.ExtractionResult, 0, n)
	for _, r := range perChunk {
		out = append(out, r...)
	}
	return out
}
