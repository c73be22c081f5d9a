package httpapi

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/llmweaver/gateway/internal/domain"
	"github.com/llmweaver/gateway/internal/gatewayerr"
)

// healthCheckResult is the per-channel probe outcome the admin
// health-check endpoints report.
type healthCheckResult struct {
	ChannelID           int64  `json:"channel_id"`
	IsHealthy           bool   `json:"is_healthy"`
	CheckLatencyMS      int64  `json:"check_latency_ms"`
	ConsecutiveFailures int    `json:"consecutive_failures"`
	Message             string `json:"message,omitempty"`
}

func (s *Server) registerAdminRoutes() {
	admin := s.Engine.Group("/admin", s.adminAuthMiddleware())
	admin.POST("/channels/:id/health-check", s.handleHealthCheckOne)
	admin.POST("/channels/health-check/all", s.handleHealthCheckAll)
	admin.GET("/channels/:id/performance", s.handlePerformance)
	admin.GET("/load-balancer/status", s.handleLBStatus)
	admin.POST("/load-balancer/strategy", s.handleSetStrategy)
	admin.POST("/load-balancer/cache-tracking", s.handleSetCacheTracking)
}

func (s *Server) channelByID(c *gin.Context) (domain.Channel, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		writeGatewayError(c, gatewayerr.New(gatewayerr.ValidationError, "invalid channel id"))
		return domain.Channel{}, false
	}
	ch, found, err := s.channels.Channel(c.Request.Context(), id)
	if err != nil {
		writeGatewayError(c, gatewayerr.Wrap(gatewayerr.UpstreamError, err, "failed to load channel"))
		return domain.Channel{}, false
	}
	if !found {
		writeGatewayError(c, gatewayerr.New(gatewayerr.NoUpstream, "channel not found"))
		return domain.Channel{}, false
	}
	return ch, true
}

func (s *Server) handleHealthCheckOne(c *gin.Context) {
	ch, ok := s.channelByID(c)
	if !ok {
		return
	}

	results := s.lb.ProbeAll(c.Request.Context(), []domain.Channel{ch})
	if len(results) == 0 {
		writeGatewayError(c, gatewayerr.New(gatewayerr.UpstreamError, "probe produced no result"))
		return
	}
	c.JSON(http.StatusOK, toHealthCheckResult(results[0]))
}

func (s *Server) handleHealthCheckAll(c *gin.Context) {
	channels, err := s.channels.ActiveChannels(c.Request.Context())
	if err != nil {
		writeGatewayError(c, gatewayerr.Wrap(gatewayerr.UpstreamError, err, "failed to load channels"))
		return
	}

	results := s.lb.ProbeAll(c.Request.Context(), channels)
	out := make([]healthCheckResult, 0, len(results))
	healthy := 0
	for _, r := range results {
		if r.IsHealthy {
			healthy++
		}
		out = append(out, toHealthCheckResult(r))
	}

	c.JSON(http.StatusOK, gin.H{
		"checked":        len(out),
		"healthy":        healthy,
		"unhealthy":      len(out) - healthy,
		"health_results": out,
	})
}

func toHealthCheckResult(hs domain.HealthStatus) healthCheckResult {
	return healthCheckResult{
		ChannelID:           hs.ChannelID,
		IsHealthy:           hs.IsHealthy,
		CheckLatencyMS:      hs.LastProbeLatencyMS,
		ConsecutiveFailures: hs.ConsecutiveFailures,
	}
}

func (s *Server) handlePerformance(c *gin.Context) {
	ch, ok := s.channelByID(c)
	if !ok {
		return
	}
	model := c.Query("model")
	if model == "" {
		writeGatewayError(c, gatewayerr.New(gatewayerr.ValidationError, "model query parameter is required"))
		return
	}

	metrics := s.lb.Performance(c.Request.Context(), ch.ID, model)
	health, breaker := s.lb.ChannelHealth(ch.ID)

	c.JSON(http.StatusOK, gin.H{
		"performance":    metrics,
		"is_healthy":     health.IsHealthy,
		"breaker_state":  breaker,
		"channel_id":     ch.ID,
		"consecutive":    health.ConsecutiveFailures,
		"last_check_at":  health.LastCheckTime,
	})
}

func (s *Server) handleLBStatus(c *gin.Context) {
	c.JSON(http.StatusOK, s.lb.StatusSnapshot())
}

func (s *Server) handleSetStrategy(c *gin.Context) {
	raw := c.Query("strategy")
	strategy := domain.Strategy(raw)
	switch strategy {
	case domain.StrategyRandom, domain.StrategyWeightedRandom, domain.StrategyLowestCost, domain.StrategyBestPerf:
		s.lb.SetDefaultStrategy(strategy)
		c.JSON(http.StatusOK, gin.H{"default_strategy": strategy})
	default:
		writeGatewayError(c, gatewayerr.New(gatewayerr.ValidationError, "unknown strategy: "+raw))
	}
}

func (s *Server) handleSetCacheTracking(c *gin.Context) {
	enabled, err := strconv.ParseBool(c.Query("enabled"))
	if err != nil {
		writeGatewayError(c, gatewayerr.Wrap(gatewayerr.ValidationError, err, "enabled must be a boolean"))
		return
	}
	s.lb.SetStickyEnabled(enabled)
	c.JSON(http.StatusOK, gin.H{"cache_tracking_enabled": enabled})
}
