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

// TestOpenAIRoundTripIsLosslessShape verifies that an OpenAI request built
// by the adapter, then a response parsed by the adapter, preserves the
// client-visible shape: OpenAI to OpenAI is an identity translation.
func TestOpenAIRoundTripIsLosslessShape(t *testing.T) {
	a := openAICompatible{kind: domain.ProviderOpenAI}
	cfg := domain.ChannelConfig{APIKey: "sk-test", APIBase: "https://api.openai.com"}

	req := ChatRequest{
		Model:    "gpt-4",
		Messages: []ChatMessage{{Role: "user", Content: "hello"}},
	}

	httpReq, err := a.BuildUnaryRequest(context.Background(), req, "gpt-4-0613", cfg)
	require.NoError(t, err)
	assert.Equal(t, "https://api.openai.com/v1/chat/completions", httpReq.URL.String())
	assert.Equal(t, "Bearer sk-test", httpReq.Header.Get("Authorization"))

	body, err := io.ReadAll(httpReq.Body)
	require.NoError(t, err)
	var decoded ChatRequest
	require.NoError(t, json.Unmarshal(body, &decoded))
	assert.Equal(t, "gpt-4-0613", decoded.Model)
	assert.Equal(t, "hello", decoded.Messages[0].Content)

	upstreamBody := `{"choices":[{"index":0,"message":{"role":"assistant","content":"hi"},"finish_reason":"stop"}],"usage":{"prompt_tokens":1,"completion_tokens":1,"total_tokens":2}}`
	resp := &http.Response{Body: io.NopCloser(strings.NewReader(upstreamBody))}

	completion, err := a.ParseUnaryResponse(resp)
	require.NoError(t, err)
	assert.Equal(t, "hi", completion.Choices[0].Message.Content)
	assert.Equal(t, "stop", completion.Choices[0].FinishReason)
	assert.Equal(t, 2, completion.Usage.TotalTokens)
}

func TestOpenAIParseStreamChunkDoneSentinel(t *testing.T) {
	a := openAICompatible{kind: domain.ProviderOpenAI}

	chunk, done, err := a.ParseStreamChunk([]byte(`data: {"choices":[{"index":0,"delta":{"content":"hi"}}]}`))
	require.NoError(t, err)
	assert.False(t, done)
	assert.Equal(t, "hi", chunk.Choices[0].Delta.Content)

	_, done, err = a.ParseStreamChunk([]byte(`data: [DONE]`))
	require.NoError(t, err)
	assert.True(t, done)
}

func TestMistralFallsBackToItsOwnCanonicalHostNotOpenAI(t *testing.T) {
	a := ForProvider(domain.ProviderMistral)
	require.NotNil(t, a)
	cfg := domain.ChannelConfig{APIKey: "mistral-key"}

	req := ChatRequest{Messages: []ChatMessage{{Role: "user", Content: "hi"}}}
	httpReq, err := a.BuildUnaryRequest(context.Background(), req, "mistral-large-latest", cfg)
	require.NoError(t, err)

	assert.Equal(t, "https://api.mistral.ai/v1/chat/completions", httpReq.URL.String())
	assert.Equal(t, "Bearer mistral-key", httpReq.Header.Get("Authorization"))
}

func TestCohereFallsBackToItsOwnCanonicalHostNotOpenAI(t *testing.T) {
	a := ForProvider(domain.ProviderCohere)
	require.NotNil(t, a)
	cfg := domain.ChannelConfig{APIKey: "cohere-key"}

	req := ChatRequest{Messages: []ChatMessage{{Role: "user", Content: "hi"}}}
	httpReq, err := a.BuildUnaryRequest(context.Background(), req, "command-r", cfg)
	require.NoError(t, err)

	assert.Equal(t, "https://api.cohere.ai/v1/chat/completions", httpReq.URL.String())
	assert.Equal(t, "Bearer cohere-key", httpReq.Header.Get("Authorization"))
}

func TestAzureBuildRequestUsesDeploymentPath(t *testing.T) {
	a := azureAdapter{}
	cfg := domain.ChannelConfig{APIKey: "azure-key", APIBase: "https://myres.openai.azure.com"}

	req := ChatRequest{Messages: []ChatMessage{{Role: "user", Content: "hi"}}}
	httpReq, err := a.BuildUnaryRequest(context.Background(), req, "gpt-4-deployment", cfg)
	require.NoError(t, err)

	assert.Equal(t, "https://myres.openai.azure.com/openai/deployments/gpt-4-deployment/chat/completions?api-version=2024-02-01", httpReq.URL.String())
	assert.Equal(t, "azure-key", httpReq.Header.Get("api-key"))
	assert.Empty(t, httpReq.Header.Get("Authorization"))
}

func TestAzureUsesConfiguredAPIVersion(t *testing.T) {
	a := azureAdapter{}
	cfg := domain.ChannelConfig{APIKey: "k", APIBase: "https://myres.openai.azure.com", APIVersion: "2023-05-15"}

	req := ChatRequest{Messages: []ChatMessage{{Role: "user", Content: "hi"}}}
	httpReq, err := a.BuildUnaryRequest(context.Background(), req, "gpt-4", cfg)
	require.NoError(t, err)
	assert.Contains(t, httpReq.URL.String(), "api-version=2023-05-15")
}
