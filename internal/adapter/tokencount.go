package adapter

import (
	"sync"

	"github.com/pkoukk/tiktoken-go"

	"github.com/llmweaver/gateway/internal/domain"
)

// tokenCounter refines EstimateTokens for OpenAI-kind channels using the
// real BPE tokenizer (pkoukk/tiktoken-go) instead of the len/3+1
// heuristic.
type tokenCounter struct {
	mu    sync.Mutex
	cache map[string]*tiktoken.Tiktoken
}

var defaultTokenCounter = &tokenCounter{cache: make(map[string]*tiktoken.Tiktoken)}

func (c *tokenCounter) encodingFor(model string) *tiktoken.Tiktoken {
	c.mu.Lock()
	defer c.mu.Unlock()

	if enc, ok := c.cache[model]; ok {
		return enc
	}

	enc, err := tiktoken.EncodingForModel(model)
	if err != nil {
		enc, err = tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			c.cache[model] = nil
			return nil
		}
	}
	c.cache[model] = enc
	return enc
}

// CountTokens returns the token count for text. For ProviderOpenAI it uses
// tiktoken-go's BPE encoder keyed by model; every other provider kind,
// Azure included, falls back to EstimateTokens.
func CountTokens(kind domain.ProviderKind, model, text string) int {
	if kind != domain.ProviderOpenAI {
		return EstimateTokens(text)
	}

	enc := defaultTokenCounter.encodingFor(model)
	if enc == nil {
		return EstimateTokens(text)
	}
	return len(enc.Encode(text, nil, nil))
}
