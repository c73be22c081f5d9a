package httpapi

import (
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/llmweaver/gateway/common/ctxkey"
	"github.com/llmweaver/gateway/internal/gatewayerr"
	"github.com/llmweaver/gateway/internal/logging"
)

// requestIDMiddleware assigns a request id used to correlate log lines
// and RequestOutcome rows for every call.
func requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader("X-Request-Id")
		if id == "" {
			id = uuid.NewString()
		}
		c.Set(ctxkey.RequestID, id)
		c.Request = c.Request.WithContext(logging.WithRequestID(c.Request.Context(), id))
		c.Header("X-Request-Id", id)
		c.Next()
	}
}

// bearerToken extracts the raw bearer token from the Authorization
// header, used for both client and admin callers.
func bearerToken(c *gin.Context) (string, bool) {
	h := c.GetHeader("Authorization")
	const prefix = "Bearer "
	if !strings.HasPrefix(h, prefix) {
		return "", false
	}
	return strings.TrimPrefix(h, prefix), true
}

func requestID(c *gin.Context) string {
	if v, ok := c.Get(ctxkey.RequestID); ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// adminAuthMiddleware gates the admin-facing surface with a separate
// caller identity from the client-facing bearer token.
func (s *Server) adminAuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := bearerToken(c)
		if !ok || !s.admin.AuthenticateAdmin(token) {
			writeGatewayError(c, gatewayerr.New(gatewayerr.Unauthenticated, "admin authentication required"))
			c.Abort()
			return
		}
		c.Next()
	}
}

func writeGatewayError(c *gin.Context, err *gatewayerr.Error) {
	c.JSON(err.HTTPStatus(), err.ToBody())
}
