package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/llmweaver/gateway/internal/adapter"
)

func TestHandleChatCompletionsHappyPath(t *testing.T) {
	env := newTestEnv(t)

	body, err := json.Marshal(adapter.ChatRequest{
		Model:    "gpt-3.5-turbo",
		Messages: []adapter.ChatMessage{{Role: "user", Content: "hello"}},
	})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", bytes.NewReader(body))
	req.Header.Set("Authorization", "Bearer "+env.rawKey)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()

	env.server.Engine.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var completion adapter.ChatCompletion
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &completion))
	assert.Equal(t, "hi", completion.Choices[0].Message.Content)
}

func TestHandleChatCompletionsRejectsMissingAuth(t *testing.T) {
	env := newTestEnv(t)

	body, _ := json.Marshal(adapter.ChatRequest{Model: "gpt-3.5-turbo", Messages: []adapter.ChatMessage{{Role: "user", Content: "hi"}}})
	req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", bytes.NewReader(body))
	rec := httptest.NewRecorder()

	env.server.Engine.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestHandleChatCompletionsRejectsDisallowedModel(t *testing.T) {
	env := newTestEnv(t)

	body, _ := json.Marshal(adapter.ChatRequest{Model: "gpt-4", Messages: []adapter.ChatMessage{{Role: "user", Content: "hi"}}})
	req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", bytes.NewReader(body))
	req.Header.Set("Authorization", "Bearer "+env.rawKey)
	rec := httptest.NewRecorder()

	env.server.Engine.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestHandleChatCompletionsRejectsEmptyMessages(t *testing.T) {
	env := newTestEnv(t)

	body, _ := json.Marshal(adapter.ChatRequest{Model: "gpt-3.5-turbo"})
	req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", bytes.NewReader(body))
	req.Header.Set("Authorization", "Bearer "+env.rawKey)
	rec := httptest.NewRecorder()

	env.server.Engine.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleListModelsFiltersByAllowedModels(t *testing.T) {
	env := newTestEnv(t)

	req := httptest.NewRequest(http.MethodGet, "/v1/models", nil)
	req.Header.Set("Authorization", "Bearer "+env.rawKey)
	rec := httptest.NewRecorder()

	env.server.Engine.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp modelsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Data, 1)
	assert.Equal(t, "gpt-3.5-turbo", resp.Data[0].ID)
}
