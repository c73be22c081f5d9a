package adapter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/pkg/errors"

	"github.com/llmweaver/gateway/internal/domain"
)

// azureAdapter is identical to OpenAI except for the deployment-scoped
// path, api-key header, and mandatory api-version query param.
type azureAdapter struct{}

func (a azureAdapter) apiVersion(cfg domain.ChannelConfig) string {
	if cfg.APIVersion != "" {
		return cfg.APIVersion
	}
	return "2024-02-01"
}

func (a azureAdapter) buildRequest(ctx context.Context, req ChatRequest, upstreamModel string, cfg domain.ChannelConfig, stream bool) (*http.Request, error) {
	body := req
	body.Model = upstreamModel
	body.Stream = stream

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, errors.Wrap(err, "marshal azure request")
	}

	base := strings.TrimRight(cfg.APIBase, "/")
	url := fmt.Sprintf("%s/openai/deployments/%s/chat/completions?api-version=%s", base, upstreamModel, a.apiVersion(cfg))

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, errors.Wrap(err, "build azure request")
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("api-key", cfg.APIKey)
	return httpReq, nil
}

func (a azureAdapter) BuildUnaryRequest(ctx context.Context, req ChatRequest, upstreamModel string, cfg domain.ChannelConfig) (*http.Request, error) {
	return a.buildRequest(ctx, req, upstreamModel, cfg, false)
}

func (a azureAdapter) BuildStreamRequest(ctx context.Context, req ChatRequest, upstreamModel string, cfg domain.ChannelConfig) (*http.Request, error) {
	return a.buildRequest(ctx, req, upstreamModel, cfg, true)
}

func (a azureAdapter) ParseUnaryResponse(resp *http.Response) (*ChatCompletion, error) {
	var out ChatCompletion
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, errors.Wrap(err, "decode azure response")
	}
	return &out, nil
}

func (a azureAdapter) ParseStreamChunk(raw []byte) (*ChatCompletionChunk, bool, error) {
	return openAICompatible{}.ParseStreamChunk(raw)
}
