package pipeline

import (
	"math"

	"github.com/llmweaver/gateway/internal/domain"
)

// modelPricing is the per-public-model-id pricing table, input/output per
// 1K tokens. Unknown models fall back to gpt-3.5-turbo's price.
var modelPricing = map[string]domain.CostPair{
	"gpt-4":             {Input: 0.03, Output: 0.06},
	"gpt-4-turbo":       {Input: 0.01, Output: 0.03},
	"gpt-3.5-turbo":     {Input: 0.0005, Output: 0.0015},
	"gpt-3.5-turbo-16k": {Input: 0.001, Output: 0.002},
	"claude-3-opus":     {Input: 0.015, Output: 0.075},
	"claude-3-sonnet":   {Input: 0.003, Output: 0.015},
	"claude-3-haiku":    {Input: 0.00025, Output: 0.00125},
	"gemini-pro":        {Input: 0.0005, Output: 0.0015},
	"gemini-ultra":      {Input: 0.001, Output: 0.003},
}

const fallbackPricingModel = "gpt-3.5-turbo"

// computeCost is (tokensIn/1000)*input + (tokensOut/1000)*output, rounded
// to 6 decimal places.
func computeCost(publicModel string, tokensIn, tokensOut int) float64 {
	price, ok := modelPricing[publicModel]
	if !ok {
		price = modelPricing[fallbackPricingModel]
	}
	raw := (float64(tokensIn)/1000)*price.Input + (float64(tokensOut)/1000)*price.Output
	return math.Round(raw*1e6) / 1e6
}
