package adapter

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/llmweaver/gateway/internal/domain"
)

// TestAnthropicRoundTrip checks that a client request carrying a system
// message and max_tokens reaches the upstream with system extracted to a
// top-level field, and that the upstream's content/stop_reason/usage
// shape translates back to the OpenAI shape the client expects.
func TestAnthropicRoundTrip(t *testing.T) {
	a := anthropicAdapter{}
	cfg := domain.ChannelConfig{APIKey: "key-1", APIBase: "https://api.anthropic.com"}

	maxTokens := 50
	req := ChatRequest{
		Model: "claude-3-sonnet",
		Messages: []ChatMessage{
			{Role: "system", Content: "S"},
			{Role: "user", Content: "U"},
		},
		MaxTokens: &maxTokens,
	}

	httpReq, err := a.BuildUnaryRequest(context.Background(), req, "claude-3-sonnet-20240229", cfg)
	require.NoError(t, err)
	assert.Equal(t, "https://api.anthropic.com/v1/messages", httpReq.URL.String())
	assert.Equal(t, "key-1", httpReq.Header.Get("x-api-key"))
	assert.Equal(t, "2023-06-01", httpReq.Header.Get("anthropic-version"))

	body, err := io.ReadAll(httpReq.Body)
	require.NoError(t, err)

	var decoded anthropicRequest
	require.NoError(t, json.Unmarshal(body, &decoded))
	assert.Equal(t, "S", decoded.System)
	assert.Equal(t, 50, decoded.MaxTokens)
	require.Len(t, decoded.Messages, 1)
	assert.Equal(t, "user", decoded.Messages[0].Role)
	assert.Equal(t, "U", decoded.Messages[0].Content)

	upstreamBody := `{"content":[{"type":"text","text":"A"}],"stop_reason":"end_turn","usage":{"input_tokens":7,"output_tokens":3}}`
	resp := &http.Response{Body: io.NopCloser(strings.NewReader(upstreamBody))}

	completion, err := a.ParseUnaryResponse(resp)
	require.NoError(t, err)
	require.Len(t, completion.Choices, 1)
	assert.Equal(t, "assistant", completion.Choices[0].Message.Role)
	assert.Equal(t, "A", completion.Choices[0].Message.Content)
	assert.Equal(t, "end_turn", completion.Choices[0].FinishReason)
	assert.Equal(t, 7, completion.Usage.PromptTokens)
	assert.Equal(t, 3, completion.Usage.CompletionTokens)
	assert.Equal(t, 10, completion.Usage.TotalTokens)
}

func TestAnthropicStopReasonMapping(t *testing.T) {
	assert.Equal(t, "length", mapStopReason("max_tokens"))
	assert.Equal(t, "stop", mapStopReason("stop_sequence"))
	assert.Equal(t, "end_turn", mapStopReason("end_turn"))
}

func TestAnthropicDefaultMaxTokens(t *testing.T) {
	a := anthropicAdapter{}
	req := ChatRequest{Model: "claude-3-sonnet", Messages: []ChatMessage{{Role: "user", Content: "hi"}}}

	httpReq, err := a.BuildUnaryRequest(context.Background(), req, "claude-3-sonnet-20240229", domain.ChannelConfig{APIKey: "k"})
	require.NoError(t, err)

	body, err := io.ReadAll(httpReq.Body)
	require.NoError(t, err)

	var decoded anthropicRequest
	require.NoError(t, json.Unmarshal(body, &decoded))
	assert.Equal(t, defaultAnthropicMaxTokens, decoded.MaxTokens)
}

func TestAnthropicParseStreamChunk(t *testing.T) {
	a := anthropicAdapter{}

	chunk, done, err := a.ParseStreamChunk([]byte(`data: {"type":"content_block_delta","delta":{"type":"text_delta","text":"hel"}}`))
	require.NoError(t, err)
	assert.False(t, done)
	require.NotNil(t, chunk)
	assert.Equal(t, "hel", chunk.Choices[0].Delta.Content)

	chunk, done, err = a.ParseStreamChunk([]byte(`data: {"type":"message_delta","delta":{"stop_reason":"end_turn"}}`))
	require.NoError(t, err)
	assert.False(t, done)
	require.NotNil(t, chunk)
	assert.Equal(t, "end_turn", chunk.Choices[0].FinishReason)

	_, done, err = a.ParseStreamChunk([]byte(`data: {"type":"message_stop"}`))
	require.NoError(t, err)
	assert.True(t, done)

	chunk, done, err = a.ParseStreamChunk([]byte(`event: ping`))
	require.NoError(t, err)
	assert.False(t, done)
	assert.Nil(t, chunk)
}
