// Package adapter implements the per-provider upstream translation: one
// adapter per provider-kind, each building requests and normalizing
// responses (unary and streaming) into the OpenAI wire shape.
package adapter

import (
	"context"
	"net/http"

	"github.com/llmweaver/gateway/internal/domain"
)

// ChatMessage is one OpenAI-shape chat message.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatRequest is the client-facing request body.
type ChatRequest struct {
	Model            string        `json:"model"`
	Messages         []ChatMessage `json:"messages"`
	Temperature      *float64      `json:"temperature,omitempty"`
	MaxTokens        *int          `json:"max_tokens,omitempty"`
	Stream           bool          `json:"stream,omitempty"`
	TopP             *float64      `json:"top_p,omitempty"`
	FrequencyPenalty *float64      `json:"frequency_penalty,omitempty"`
	PresencePenalty  *float64      `json:"presence_penalty,omitempty"`
}

// Usage is the OpenAI usage object.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Choice is one completion choice (unary shape).
type Choice struct {
	Index        int         `json:"index"`
	Message      ChatMessage `json:"message"`
	FinishReason string      `json:"finish_reason"`
}

// ChatCompletion is a normalized, OpenAI-shape completion response.
type ChatCompletion struct {
	Choices []Choice `json:"choices"`
	Usage   Usage    `json:"usage"`
}

// Delta is one streaming delta.
type Delta struct {
	Role    string `json:"role,omitempty"`
	Content string `json:"content,omitempty"`
}

// ChunkChoice is one streaming choice.
type ChunkChoice struct {
	Index        int    `json:"index"`
	Delta        Delta  `json:"delta"`
	FinishReason string `json:"finish_reason,omitempty"`
}

// ChatCompletionChunk is one SSE `data:` payload in the streaming shape.
type ChatCompletionChunk struct {
	Choices []ChunkChoice `json:"choices"`
}

// Adapter is the common capability set every provider-kind implements.
type Adapter interface {
	// BuildUnaryRequest builds the upstream HTTP request for a
	// non-streaming call.
	BuildUnaryRequest(ctx context.Context, req ChatRequest, upstreamModel string, cfg domain.ChannelConfig) (*http.Request, error)
	// ParseUnaryResponse normalizes an upstream unary HTTP response into
	// the OpenAI shape.
	ParseUnaryResponse(resp *http.Response) (*ChatCompletion, error)
	// BuildStreamRequest builds the upstream HTTP request for a
	// streaming call.
	BuildStreamRequest(ctx context.Context, req ChatRequest, upstreamModel string, cfg domain.ChannelConfig) (*http.Request, error)
	// ParseStreamChunk normalizes one raw upstream stream line. done=true
	// signals end-of-stream (no chunk to emit).
	ParseStreamChunk(raw []byte) (chunk *ChatCompletionChunk, done bool, err error)
}

// EstimateTokens is the heuristic fallback for providers that omit
// usage: floor(len(text)/3) + 1.
func EstimateTokens(text string) int {
	return len(text)/3 + 1
}

// ForProvider returns the Adapter implementation for kind.
func ForProvider(kind domain.ProviderKind) Adapter {
	switch kind {
	case domain.ProviderOpenAI:
		return openAICompatible{kind: domain.ProviderOpenAI}
	case domain.ProviderAzure:
		return azureAdapter{}
	case domain.ProviderAnthropic:
		return anthropicAdapter{}
	case domain.ProviderGemini:
		return geminiAdapter{}
	case domain.ProviderMistral:
		return openAICompatible{kind: domain.ProviderMistral}
	case domain.ProviderCohere:
		return openAICompatible{kind: domain.ProviderCohere}
	default:
		return nil
	}
}
