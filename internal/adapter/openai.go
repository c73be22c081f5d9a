package adapter

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/pkg/errors"

	"github.com/llmweaver/gateway/internal/domain"
)

// openAICompatible handles OpenAI, Mistral, and Cohere — all treated as
// OpenAI-compatible for chat completions, differing only in base URL and
// path shaping. kind picks the canonical fallback host when a channel's
// api_base is unset.
type openAICompatible struct {
	kind domain.ProviderKind
}

func canonicalBase(cfg domain.ChannelConfig, kind domain.ProviderKind) string {
	if cfg.APIBase != "" {
		return strings.TrimRight(cfg.APIBase, "/")
	}
	switch kind {
	case domain.ProviderMistral:
		return "https://api.mistral.ai"
	case domain.ProviderCohere:
		return "https://api.cohere.ai"
	default:
		return "https://api.openai.com"
	}
}

func (a openAICompatible) buildRequest(ctx context.Context, req ChatRequest, upstreamModel string, cfg domain.ChannelConfig, stream bool) (*http.Request, error) {
	body := req
	body.Model = upstreamModel
	body.Stream = stream

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, errors.Wrap(err, "marshal openai-compatible request")
	}

	base := canonicalBase(cfg, a.kind)
	url := base + "/v1/chat/completions"

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, errors.Wrap(err, "build openai-compatible request")
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+cfg.APIKey)
	if cfg.Organization != "" {
		httpReq.Header.Set("OpenAI-Organization", cfg.Organization)
	}
	return httpReq, nil
}

func (a openAICompatible) BuildUnaryRequest(ctx context.Context, req ChatRequest, upstreamModel string, cfg domain.ChannelConfig) (*http.Request, error) {
	return a.buildRequest(ctx, req, upstreamModel, cfg, false)
}

func (a openAICompatible) BuildStreamRequest(ctx context.Context, req ChatRequest, upstreamModel string, cfg domain.ChannelConfig) (*http.Request, error) {
	return a.buildRequest(ctx, req, upstreamModel, cfg, true)
}

func (a openAICompatible) ParseUnaryResponse(resp *http.Response) (*ChatCompletion, error) {
	var out ChatCompletion
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, errors.Wrap(err, "decode openai-compatible response")
	}
	return &out, nil
}

// ParseStreamChunk strips SSE "data: " framing and decodes one chunk. The
// terminal "[DONE]" sentinel reports done=true.
func (a openAICompatible) ParseStreamChunk(raw []byte) (*ChatCompletionChunk, bool, error) {
	line := bytes.TrimSpace(raw)
	if len(line) == 0 {
		return nil, false, nil
	}
	line = bytes.TrimPrefix(line, []byte("data:"))
	line = bytes.TrimSpace(line)
	if string(line) == "[DONE]" {
		return nil, true, nil
	}

	var chunk ChatCompletionChunk
	if err := json.Unmarshal(line, &chunk); err != nil {
		return nil, false, errors.Wrap(err, "decode openai-compatible stream chunk")
	}
	return &chunk, false, nil
}
