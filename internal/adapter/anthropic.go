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

// anthropicAdapter maps to Anthropic's Messages API: system message
// extraction into a top-level field, mandatory max_tokens, and
// stop_reason/usage-field translation back to the OpenAI shape.
type anthropicAdapter struct{}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicRequest struct {
	Model     string              `json:"model"`
	System    string              `json:"system,omitempty"`
	Messages  []anthropicMessage  `json:"messages"`
	MaxTokens int                 `json:"max_tokens"`
	Temperature *float64          `json:"temperature,omitempty"`
	TopP      *float64            `json:"top_p,omitempty"`
	Stream    bool                `json:"stream,omitempty"`
}

type anthropicContentBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type anthropicUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

type anthropicResponse struct {
	Content    []anthropicContentBlock `json:"content"`
	StopReason string                  `json:"stop_reason"`
	Usage      anthropicUsage          `json:"usage"`
}

const defaultAnthropicMaxTokens = 4096

func splitSystemMessage(msgs []ChatMessage) (system string, rest []anthropicMessage) {
	for _, m := range msgs {
		if m.Role == "system" {
			if system != "" {
				system += "\n"
			}
			system += m.Content
			continue
		}
		rest = append(rest, anthropicMessage{Role: m.Role, Content: m.Content})
	}
	return system, rest
}

func mapStopReason(upstream string) string {
	switch upstream {
	case "max_tokens":
		return "length"
	case "stop_sequence":
		return "stop"
	default:
		return upstream
	}
}

func (a anthropicAdapter) buildRequest(ctx context.Context, req ChatRequest, upstreamModel string, cfg domain.ChannelConfig, stream bool) (*http.Request, error) {
	system, messages := splitSystemMessage(req.Messages)

	maxTokens := defaultAnthropicMaxTokens
	if req.MaxTokens != nil && *req.MaxTokens > 0 {
		maxTokens = *req.MaxTokens
	}

	body := anthropicRequest{
		Model:       upstreamModel,
		System:      system,
		Messages:    messages,
		MaxTokens:   maxTokens,
		Temperature: req.Temperature,
		TopP:        req.TopP,
		Stream:      stream,
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, errors.Wrap(err, "marshal anthropic request")
	}

	base := cfg.APIBase
	if base == "" {
		base = "https://api.anthropic.com"
	}
	base = strings.TrimRight(base, "/")

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, base+"/v1/messages", bytes.NewReader(payload))
	if err != nil {
		return nil, errors.Wrap(err, "build anthropic request")
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", cfg.APIKey)

	version := cfg.APIVersion
	if version == "" {
		version = "2023-06-01"
	}
	httpReq.Header.Set("anthropic-version", version)
	return httpReq, nil
}

func (a anthropicAdapter) BuildUnaryRequest(ctx context.Context, req ChatRequest, upstreamModel string, cfg domain.ChannelConfig) (*http.Request, error) {
	return a.buildRequest(ctx, req, upstreamModel, cfg, false)
}

func (a anthropicAdapter) BuildStreamRequest(ctx context.Context, req ChatRequest, upstreamModel string, cfg domain.ChannelConfig) (*http.Request, error) {
	return a.buildRequest(ctx, req, upstreamModel, cfg, true)
}

func (a anthropicAdapter) ParseUnaryResponse(resp *http.Response) (*ChatCompletion, error) {
	var ar anthropicResponse
	if err := json.NewDecoder(resp.Body).Decode(&ar); err != nil {
		return nil, errors.Wrap(err, "decode anthropic response")
	}

	var text string
	if len(ar.Content) > 0 {
		text = ar.Content[0].Text
	}

	return &ChatCompletion{
		Choices: []Choice{{
			Index:        0,
			Message:      ChatMessage{Role: "assistant", Content: text},
			FinishReason: mapStopReason(ar.StopReason),
		}},
		Usage: Usage{
			PromptTokens:     ar.Usage.InputTokens,
			CompletionTokens: ar.Usage.OutputTokens,
			TotalTokens:      ar.Usage.InputTokens + ar.Usage.OutputTokens,
		},
	}, nil
}

// anthropicStreamEvent is Anthropic's native SSE event shape: distinct
// content_block_delta / message_delta / message_stop event types rather
// than OpenAI's single chunk-per-line shape.
type anthropicStreamEvent struct {
	Type  string `json:"type"`
	Delta struct {
		Type       string `json:"type"`
		Text       string `json:"text"`
		StopReason string `json:"stop_reason"`
	} `json:"delta"`
}

// ParseStreamChunk translates one Anthropic SSE data line into the OpenAI
// chunk shape. Event types this adapter has nothing to emit for (ping,
// message_start, content_block_start/stop) return (nil, false, nil) so
// the pipeline simply skips them.
func (a anthropicAdapter) ParseStreamChunk(raw []byte) (*ChatCompletionChunk, bool, error) {
	line := bytes.TrimSpace(raw)
	if len(line) == 0 || bytes.HasPrefix(line, []byte("event:")) {
		return nil, false, nil
	}
	line = bytes.TrimPrefix(line, []byte("data:"))
	line = bytes.TrimSpace(line)
	if len(line) == 0 {
		return nil, false, nil
	}

	var ev anthropicStreamEvent
	if err := json.Unmarshal(line, &ev); err != nil {
		return nil, false, errors.Wrap(err, "decode anthropic stream event")
	}

	switch ev.Type {
	case "content_block_delta":
		if ev.Delta.Type == "text_delta" {
			return &ChatCompletionChunk{Choices: []ChunkChoice{{Index: 0, Delta: Delta{Content: ev.Delta.Text}}}}, false, nil
		}
		return nil, false, nil
	case "message_delta":
		if ev.Delta.StopReason != "" {
			return &ChatCompletionChunk{Choices: []ChunkChoice{{Index: 0, FinishReason: mapStopReason(ev.Delta.StopReason)}}}, false, nil
		}
		return nil, false, nil
	case "message_stop":
		return nil, true, nil
	default:
		return nil, false, nil
	}
}
