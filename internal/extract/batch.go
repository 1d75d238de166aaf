package extract

import (
	"context"
	"fmt"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/menu-ingredients/internal/model"
	"github.com/sells-group/menu-ingredients/internal/resilience"
	"github.com/sells-group/menu-ingredients/pkg/anthropic"
)

func chunkID(i int) string { return fmt.Sprintf("chunk-%d", i) }

// extractBatch submits all chunks as one message batch and waits for it.
func (e *Extractor) extractBatch(ctx context.Context, chunks []string) (*Outcome, error) {
	reqs := make([]anthropic.BatchRequestItem, len(chunks))
	for i, text := range chunks {
		reqs[i] = anthropic.BatchRequestItem{CustomID: chunkID(i), Params: e.request(text)}
	}

	created, err := resilience.DoVal(ctx, e.cfg.Retry, func(ctx context.Context) (*anthropic.BatchResponse, error) {
		return e.client.CreateBatch(ctx, anthropic.BatchRequest{Requests: reqs})
	})
	if err != nil {
		return nil, eris.Wrap(err, "extract: submit batch")
	}

	log := zap.L().With(zap.String("mode", "batch"), zap.String("batch_id", created.ID))
	log.Info("extract: batch submitted", zap.Int("chunks", len(chunks)))

	ended, err := anthropic.PollBatch(ctx, e.client, created.ID, e.cfg.PollOptions...)
	if err != nil {
		return nil, eris.Wrap(err, "extract: wait for batch")
	}
	log.Info("extract: batch ended",
		zap.Int64("succeeded", ended.RequestCounts.Succeeded),
		zap.Int64("errored", ended.RequestCounts.Errored),
	)

	iter, err := e.client.GetBatchResults(ctx, created.ID)
	if err != nil {
		return nil, eris.Wrap(err, "extract: fetch batch results")
	}
	collected, err := anthropic.CollectBatchResults(iter)
	if err != nil {
		return nil, eris.Wrap(err, "extract: read batch results")
	}
	if len(collected.Failures) > 0 {
		f := collected.Failures[0]
		return nil, eris.Errorf("extract: %d batch chunks failed (first %s: %s)",
			len(collected.Failures), f.CustomID, f.Type)
	}

	out := &Outcome{Batch: true}
	perChunk := make([][]model.ExtractionResult, len(chunks))
	for i := range chunks {
		msg, ok := collected.Succeeded[chunkID(i)]
		if !ok {
			return nil, eris.Errorf("extract: batch result missing for %s", chunkID(i))
		}
		out.Usage.Add(msg.Usage)

		results, err := parseResults(msg.Text())
		if err != nil {
			return nil, eris.Wrapf(err, "extract: chunk %d", i)
		}
		perChunk[i] = results
	}
	out.Results = flatten(perChunk)
	return out, nil
}
