package anthropic

import (
	"context"
	"math/rand/v2"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// Batch processing states.
const (
	BatchEnded     = "ended"
	BatchExpired   = "expired"
	BatchCanceled  = "canceled"
	BatchCanceling = "canceling"

	ResultSucceeded = "succeeded"
)

// PollOption configures PollBatch.
type PollOption func(*pollConfig)

type pollConfig struct {
	initial time.Duration
	cap     time.Duration
	timeout time.Duration
}

// WithPollInterval sets the first wait between status checks.
func WithPollInterval(d time.Duration) PollOption {
	return func(c *pollConfig) { c.initial = d }
}

// WithPollCap sets the longest wait between status checks.
func WithPollCap(d time.Duration) PollOption {
	return func(c *pollConfig) { c.cap = d }
}

// WithPollTimeout bounds polling when ctx has no deadline.
func WithPollTimeout(d time.Duration) PollOption {
	return func(c *pollConfig) { c.timeout = d }
}

// PollBatch waits for a batch to end, doubling the interval up to the cap
// with ±20% jitter. Expired or canceled batches are errors.
func PollBatch(ctx context.Context, client Client, batchID string, opts ...PollOption) (*BatchResponse, error) {
	cfg := pollConfig{initial: 2 * time.Second, cap: 15 * time.Second, timeout: 30 * time.Minute}
	for _, o := range opts {
		o(&cfg)
	}

	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.timeout)
		defer cancel()
	}

	interval := cfg.initial
	for {
		batch, err := client.GetBatch(ctx, batchID)
		if err != nil {
			return nil, eris.Wrapf(err, "anthropic: poll batch %s", batchID)
		}

		switch batch.ProcessingStatus {
		case BatchEnded:
			return batch, nil
		case BatchExpired:
			return batch, eris.Errorf("anthropic: batch %s expired", batchID)
		case BatchCanceled, BatchCanceling:
			return batch, eris.Errorf("anthropic: batch %s canceled", batchID)
		}

		zap.L().Debug("anthropic: batch in progress",
			zap.String("batch_id", batchID),
			zap.Int64("processing", batch.RequestCounts.Processing),
			zap.Duration("next_poll", interval),
		)

		select {
		case <-ctx.Done():
			return nil, eris.Wrapf(ctx.Err(), "anthropic: poll batch %s timed out", batchID)
		case <-time.After(interval):
		}

		interval = min(interval*2, cfg.cap)
		if spread := int64(interval) / 5; spread > 0 {
			interval += time.Duration(rand.Int64N(2*spread) - spread)
		}
	}
}

// BatchFailure is one batch request that did not succeed.
type BatchFailure struct {
	CustomID string
	Type     string
}

// BatchCollectResult splits batch results into replies and failures.
type BatchCollectResult struct {
	Succeeded map[string]*MessageResponse
	Failures  []BatchFailure
}

// CollectBatchResults drains iter and closes it.
func CollectBatchResults(iter BatchResultIterator) (*BatchCollectResult, error) {
	defer iter.Close() //nolint:errcheck

	out := &BatchCollectResult{Succeeded: make(map[string]*MessageResponse)}
	for iter.Next() {
		item := iter.Item()
		if item.Type == ResultSucceeded && item.Message != nil {
			out.Succeeded[item.CustomID] = item.Message
			continue
		}
		out.Failures = append(out.Failures, BatchFailure{CustomID: item.CustomID, Type: item.Type})
		zap.L().Warn("anthropic: batch item failed",
			zap.String("custom_id", item.CustomID),
			zap.String("type", item.Type),
		)
	}
	if err := iter.Err(); err != nil {
		return nil, eris.Wrap(err, "anthropic: collect batch results")
	}
	return out, nil
}
