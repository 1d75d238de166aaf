package anthropic

import "go.uber.org/zap"

// pricing maps model id to {input, output} USD per million tokens.
var pricing = map[string][2]float64{
	"claude-haiku-4-5-20251001":  {1.00, 5.00},
	"claude-sonnet-4-5-20250929": {3.00, 15.00},
	"claude-opus-4-6":            {5.00, 25.00},
}

// batchDiscount applies to every token billed through the Batches API.
const batchDiscount = 0.5

// EstimateCost returns the USD cost of u for model. Unknown models cost 0.
func (u TokenUsage) EstimateCost(model string, batch bool) float64 {
	p, ok := pricing[model]
	if !ok {
		return 0
	}
	cost := float64(u.InputTokens)/1e6*p[0] +
		float64(u.OutputTokens)/1e6*p[1] +
		float64(u.CacheCreationInputTokens)/1e6*p[0]*1.25 +
		float64(u.CacheReadInputTokens)/1e6*p[0]*0.1
	if batch {
		cost *= batchDiscount
	}
	return cost
}

// LogCost logs token usage and estimated cost for one extraction pass.
func (u TokenUsage) LogCost(model string, batch bool) {
	zap.L().Info("anthropic: token usage",
		zap.String("model", model),
		zap.Bool("batch", batch),
		zap.Int64("input_tokens", u.InputTokens),
		zap.Int64("output_tokens", u.OutputTokens),
		zap.Int64("cache_write_tokens", u.CacheCreationInputTokens),
		zap.Int64("cache_read_tokens", u.CacheReadInputTokens),
		zap.Float64("estimated_cost_usd", u.EstimateCost(model, batch)),
	)
}
