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

// geminiAdapter maps to Gemini's generateContent API: contents[]/
// systemInstruction/generationConfig request shape, role remapping
// (assistant -> model), and usageMetadata-based usage accounting.
type geminiAdapter struct{}

const defaultGeminiMaxOutputTokens = 8192

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiGenerationConfig struct {
	Temperature     *float64 `json:"temperature,omitempty"`
	TopP            *float64 `json:"topP,omitempty"`
	MaxOutputTokens int      `json:"maxOutputTokens"`
}

type geminiRequest struct {
	Contents          []geminiContent         `json:"contents"`
	SystemInstruction *geminiContent          `json:"systemInstruction,omitempty"`
	GenerationConfig  geminiGenerationConfig  `json:"generationConfig"`
}

type geminiCandidate struct {
	Content      geminiContent `json:"content"`
	FinishReason string        `json:"finishReason"`
}

type geminiUsageMetadata struct {
	PromptTokenCount     int `json:"promptTokenCount"`
	CandidatesTokenCount int `json:"candidatesTokenCount"`
	TotalTokenCount      int `json:"totalTokenCount"`
}

type geminiResponse struct {
	Candidates    []geminiCandidate   `json:"candidates"`
	UsageMetadata geminiUsageMetadata `json:"usageMetadata"`
}

func geminiRole(role string) string {
	if role == "assistant" {
		return "model"
	}
	return "user"
}

func geminiFinishReason(upstream string) string {
	switch upstream {
	case "STOP":
		return "stop"
	case "MAX_TOKENS":
		return "length"
	default:
		return strings.ToLower(upstream)
	}
}

// buildGeminiBody splits out the system message into systemInstruction and
// remaps remaining roles, mirroring Laisky-one-api's ConvertRequest.
func buildGeminiBody(req ChatRequest) geminiRequest {
	var body geminiRequest
	var systemText string

	for _, m := range req.Messages {
		if m.Role == "system" {
			if systemText != "" {
				systemText += "\n"
			}
			systemText += m.Content
			continue
		}
		body.Contents = append(body.Contents, geminiContent{
			Role:  geminiRole(m.Role),
			Parts: []geminiPart{{Text: m.Content}},
		})
	}

	if systemText != "" {
		body.SystemInstruction = &geminiContent{Parts: []geminiPart{{Text: systemText}}}
	}

	maxTokens := defaultGeminiMaxOutputTokens
	if req.MaxTokens != nil && *req.MaxTokens > 0 {
		maxTokens = *req.MaxTokens
	}
	body.GenerationConfig = geminiGenerationConfig{
		Temperature:     req.Temperature,
		TopP:            req.TopP,
		MaxOutputTokens: maxTokens,
	}
	return body
}

func (a geminiAdapter) buildRequest(ctx context.Context, req ChatRequest, upstreamModel string, cfg domain.ChannelConfig, stream bool) (*http.Request, error) {
	body := buildGeminiBody(req)

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, errors.Wrap(err, "marshal gemini request")
	}

	base := cfg.APIBase
	if base == "" {
		base = "https://generativelanguage.googleapis.com"
	}
	base = strings.TrimRight(base, "/")

	version := cfg.APIVersion
	if version == "" {
		version = "v1beta"
	}

	action := "generateContent"
	if stream {
		action = "streamGenerateContent"
	}

	url := fmt.Sprintf("%s/%s/models/%s:%s?key=%s", base, version, upstreamModel, action, cfg.APIKey)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, errors.Wrap(err, "build gemini request")
	}
	httpReq.Header.Set("Content-Type", "application/json")
	return httpReq, nil
}

func (a geminiAdapter) BuildUnaryRequest(ctx context.Context, req ChatRequest, upstreamModel string, cfg domain.ChannelConfig) (*http.Request, error) {
	return a.buildRequest(ctx, req, upstreamModel, cfg, false)
}

func (a geminiAdapter) BuildStreamRequest(ctx context.Context, req ChatRequest, upstreamModel string, cfg domain.ChannelConfig) (*http.Request, error) {
	return a.buildRequest(ctx, req, upstreamModel, cfg, true)
}

func (a geminiAdapter) ParseUnaryResponse(resp *http.Response) (*ChatCompletion, error) {
	var gr geminiResponse
	if err := json.NewDecoder(resp.Body).Decode(&gr); err != nil {
		return nil, errors.Wrap(err, "decode gemini response")
	}

	var text, finish string
	if len(gr.Candidates) > 0 {
		c := gr.Candidates[0]
		finish = geminiFinishReason(c.FinishReason)
		for _, p := range c.Content.Parts {
			text += p.Text
		}
	}

	usage := Usage{
		PromptTokens:     gr.UsageMetadata.PromptTokenCount,
		CompletionTokens: gr.UsageMetadata.CandidatesTokenCount,
		TotalTokens:      gr.UsageMetadata.TotalTokenCount,
	}
	if usage.TotalTokens == 0 {
		usage.TotalTokens = usage.PromptTokens + usage.CompletionTokens
	}

	return &ChatCompletion{
		Choices: []Choice{{
			Index:        0,
			Message:      ChatMessage{Role: "assistant", Content: text},
			FinishReason: finish,
		}},
		Usage: usage,
	}, nil
}

// ParseStreamChunk decodes one element of Gemini's streamGenerateContent
// JSON-array response. Gemini does not use SSE "data:" framing; each raw
// line is treated as one whole array element, and this function trims the
// surrounding '[', ',', ']' array punctuation from it before decoding.
func (a geminiAdapter) ParseStreamChunk(raw []byte) (*ChatCompletionChunk, bool, error) {
	line := bytes.TrimSpace(raw)
	line = bytes.Trim(line, "[],")
	line = bytes.TrimSpace(line)
	if len(line) == 0 {
		return nil, false, nil
	}

	var gr geminiResponse
	if err := json.Unmarshal(line, &gr); err != nil {
		return nil, false, errors.Wrap(err, "decode gemini stream chunk")
	}

	if len(gr.Candidates) == 0 {
		return nil, false, nil
	}
	c := gr.Candidates[0]

	var text string
	for _, p := range c.Content.Parts {
		text += p.Text
	}

	chunk := &ChatCompletionChunk{
		Choices: []ChunkChoice{{
			Index: 0,
			Delta: Delta{Content: text},
		}},
	}
	if c.FinishReason != "" {
		chunk.Choices[0].FinishReason = geminiFinishReason(c.FinishReason)
	}
	return chunk, false, nil
}
