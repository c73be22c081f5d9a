package httpapi

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/llmweaver/gateway/internal/adapter"
	"github.com/llmweaver/gateway/internal/gatewayerr"
	"github.com/llmweaver/gateway/internal/logging"
)

type modelEntry struct {
	ID      string `json:"id"`
	Object  string `json:"object"`
	Created int64  `json:"created"`
	OwnedBy string `json:"owned_by"`
}

type modelsResponse struct {
	Object string       `json:"object"`
	Data   []modelEntry `json:"data"`
}

func (s *Server) registerClientRoutes() {
	v1 := s.Engine.Group("/v1")
	v1.GET("/models", s.handleListModels)
	v1.POST("/chat/completions", s.handleChatCompletions)
}

func (s *Server) handleListModels(c *gin.Context) {
	token, ok := bearerToken(c)
	if !ok {
		writeGatewayError(c, gatewayerr.New(gatewayerr.Unauthenticated, "missing bearer token"))
		return
	}

	cred, err := s.channels.Authenticate(c.Request.Context(), token)
	if err != nil {
		writeGatewayError(c, gatewayerr.Wrap(gatewayerr.Unauthenticated, err, "authentication failed"))
		return
	}

	channels, err := s.channels.ActiveChannels(c.Request.Context())
	if err != nil {
		writeGatewayError(c, gatewayerr.Wrap(gatewayerr.UpstreamError, err, "failed to load channels"))
		return
	}

	seen := make(map[string]bool)
	var out []modelEntry
	createdAt := time.Now().Unix()
	for _, ch := range channels {
		models, err := s.catalog.ListModels(c.Request.Context(), ch)
		if err != nil {
			continue
		}
		for _, m := range models {
			if seen[m] {
				continue
			}
			if !cred.AllowsModel(m) {
				continue
			}
			seen[m] = true
			out = append(out, modelEntry{ID: m, Object: "model", Created: createdAt, OwnedBy: string(ch.Provider)})
		}
	}

	c.JSON(http.StatusOK, modelsResponse{Object: "list", Data: out})
}

func (s *Server) handleChatCompletions(c *gin.Context) {
	token, ok := bearerToken(c)
	if !ok {
		writeGatewayError(c, gatewayerr.New(gatewayerr.Unauthenticated, "missing bearer token"))
		return
	}

	var req adapter.ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeGatewayError(c, gatewayerr.Wrap(gatewayerr.ValidationError, err, "invalid request body"))
		return
	}
	if req.Model == "" || len(req.Messages) == 0 {
		writeGatewayError(c, gatewayerr.New(gatewayerr.ValidationError, "model and messages are required"))
		return
	}

	strategy := parseStrategyHeader(c.GetHeader("X-LB-Strategy"))
	reqID := requestID(c)

	if req.Stream {
		sr, gerr := s.pipeline.BeginStream(c.Request.Context(), token, req, strategy)
		if gerr != nil {
			writeGatewayError(c, gerr)
			return
		}

		c.Header("Content-Type", "text/event-stream")
		c.Header("Cache-Control", "no-cache")
		c.Header("Connection", "keep-alive")
		c.Status(http.StatusOK)

		sink := newSSESink(c.Writer)
		if gerr := s.pipeline.RunStream(c.Request.Context(), reqID, sr, req, sink); gerr != nil {
			// Headers are already committed at this point; the upstream
			// failure was already surfaced to the client as an in-band
			// SSE error chunk by RunStream itself.
			logging.Errorf(c.Request.Context(), "stream %s failed after headers sent: %v", reqID, gerr)
		}
		return
	}

	completion, gerr := s.pipeline.Unary(c.Request.Context(), reqID, token, req, strategy)
	if gerr != nil {
		writeGatewayError(c, gerr)
		return
	}
	c.JSON(http.StatusOK, completion)
}
