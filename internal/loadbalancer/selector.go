// Package loadbalancer is the stateful in-process selector: health
// table, metrics cache, sticky-route table, and the four
// strategy-driven selection algorithms (random, weighted-random,
// lowest-cost, best-performance).
package loadbalancer

import (
	"context"
	"math"
	"math/rand"
	"sort"
	"time"

	"github.com/llmweaver/gateway/internal/domain"
	"github.com/llmweaver/gateway/internal/logging"
	"github.com/llmweaver/gateway/internal/metrics"
)

// candidate pairs a channel with the mapping that made it eligible.
type candidate struct {
	channel domain.Channel
	mapping domain.ModelMapping
}

// SelectResult is what Select returns. Found is false (the NoChannel
// outcome, reported as a value rather than a Go error) when no channel
// supports a model.
type SelectResult struct {
	Channel domain.Channel
	Mapping domain.ModelMapping
	Found   bool
	// Reason documents why this channel was picked ("sticky", "healthy"
	// or "degraded"), surfaced for observability.
	Reason string
}

// Config is the set of runtime-tunable parameters for the selector.
type Config struct {
	WindowMinutes          int
	StickyTTL              time.Duration
	MaxConsecutiveFailures int
	DefaultStrategy        domain.Strategy
	StickyEnabled          bool
	// RedisURL, if set, attaches the optional cross-instance sticky-route
	// mirror. Empty disables it.
	RedisURL string
}

// LoadBalancer is the Load Balancer component.
type LoadBalancer struct {
	health  *healthTable
	sticky  *stickyTable
	mcache  *metricsCache
	store   *metrics.Store
	prober  Prober

	defaultStrategy domain.Strategy
}

// New constructs a LoadBalancer over a Metrics Store, with the given
// initial configuration.
func New(store *metrics.Store, cfg Config) *LoadBalancer {
	if cfg.WindowMinutes <= 0 {
		cfg.WindowMinutes = 30
	}
	if cfg.StickyTTL <= 0 {
		cfg.StickyTTL = 5 * time.Minute
	}
	if cfg.MaxConsecutiveFailures <= 0 {
		cfg.MaxConsecutiveFailures = 3
	}
	if cfg.DefaultStrategy == "" {
		cfg.DefaultStrategy = domain.DefaultStrategy
	}

	lb := &LoadBalancer{
		health:          newHealthTable(cfg.MaxConsecutiveFailures),
		sticky:          newStickyTable(cfg.StickyTTL),
		mcache:          newMetricsCache(store, cfg.WindowMinutes),
		store:           store,
		prober:          NewHTTPProber(),
		defaultStrategy: cfg.DefaultStrategy,
	}
	lb.sticky.SetEnabled(cfg.StickyEnabled)
	if cfg.RedisURL != "" {
		if mirror, err := NewRedisMirror(cfg.RedisURL); err == nil {
			lb.sticky.SetMirror(mirror)
		} else {
			logging.SysLogf("redis sticky mirror disabled, invalid GATEWAY_REDIS_URL: %v", err)
		}
	}
	return lb
}

// SetDefaultStrategy changes the strategy used when a request does not
// override it. Never fails.
func (lb *LoadBalancer) SetDefaultStrategy(s domain.Strategy) { lb.defaultStrategy = s }

// SetStickyEnabled toggles sticky routing globally.
func (lb *LoadBalancer) SetStickyEnabled(enabled bool) { lb.sticky.SetEnabled(enabled) }

// SetConfiguration updates window/TTL/failure-threshold together; each
// non-positive value is left unchanged, and the latency-weight argument is
// ignored.
func (lb *LoadBalancer) SetConfiguration(windowMinutes int, stickyTTL time.Duration, maxConsecutiveFailures int, _ float64) {
	if windowMinutes > 0 {
		lb.mcache.SetWindowMinutes(windowMinutes)
	}
	if stickyTTL > 0 {
		lb.sticky.ttl = stickyTTL
	}
	if maxConsecutiveFailures > 0 {
		lb.health.maxConsecutiveFailures = maxConsecutiveFailures
	}
}

// Select runs the eligibility -> sticky -> health -> strategy pipeline.
func (lb *LoadBalancer) Select(ctx context.Context, model string, callerOwnerID int64, channels []domain.Channel, strategy domain.Strategy, preferSticky bool) SelectResult {
	// Step 1: enumerate eligible channels.
	var eligible []candidate
	for _, ch := range channels {
		if ch.Status != domain.ChannelActive {
			continue
		}
		if mapping, ok := ch.MappingFor(model); ok {
			eligible = append(eligible, candidate{channel: ch, mapping: mapping})
		}
	}
	if len(eligible) == 0 {
		return SelectResult{Found: false}
	}

	// Step 2: sticky routing.
	if preferSticky {
		if route, ok := lb.sticky.Get(callerOwnerID, model); ok {
			for _, c := range eligible {
				if c.channel.ID == route.ChannelID && lb.health.IsHealthy(c.channel.ID) {
					return SelectResult{Channel: c.channel, Mapping: c.mapping, Found: true, Reason: "sticky"}
				}
			}
		}
	}

	// Step 3: partition healthy/unhealthy, degrade if needed.
	var healthy, unhealthy []candidate
	for _, c := range eligible {
		if lb.health.IsHealthy(c.channel.ID) {
			healthy = append(healthy, c)
		} else {
			unhealthy = append(unhealthy, c)
		}
	}
	pool := healthy
	reason := "healthy"
	if len(pool) == 0 {
		pool = eligible
		reason = "degraded"
		_ = unhealthy
	}

	// Step 4: apply strategy.
	if strategy == "" {
		strategy = lb.defaultStrategy
	}
	picked := lb.applyStrategy(ctx, strategy, pool, model)
	return SelectResult{Channel: picked.channel, Mapping: picked.mapping, Found: true, Reason: reason}
}

func (lb *LoadBalancer) applyStrategy(ctx context.Context, strategy domain.Strategy, pool []candidate, model string) candidate {
	switch strategy {
	case domain.StrategyRandom:
		return pool[rand.Intn(len(pool))]
	case domain.StrategyLowestCost:
		return lb.selectLowestCost(ctx, pool, model)
	case domain.StrategyBestPerf:
		return lb.selectBestPerformance(ctx, pool, model)
	case domain.StrategyWeightedRandom:
		fallthrough
	default:
		return lb.selectWeightedRandom(pool)
	}
}

// selectWeightedRandom picks a channel proportional to its weight,
// falling back to RANDOM when the total weight is zero.
func (lb *LoadBalancer) selectWeightedRandom(pool []candidate) candidate {
	total := 0
	for _, c := range pool {
		total += c.channel.Weight
	}
	if total <= 0 {
		return pool[rand.Intn(len(pool))]
	}

	r := rand.Intn(total)
	cumulative := 0
	for _, c := range pool {
		cumulative += c.channel.Weight
		if cumulative > r {
			return c
		}
	}
	return pool[len(pool)-1]
}

// selectLowestCost scores by cost/success ratio, then picks uniformly
// within the cohort of near-minimum scores.
func (lb *LoadBalancer) selectLowestCost(ctx context.Context, pool []candidate, model string) candidate {
	type scored struct {
		c     candidate
		score float64
	}
	scores := make([]scored, 0, len(pool))
	for _, c := range pool {
		input, output := resolveCost(c.channel, model)
		avgCost := (input + output) / 2

		successRate := 1.0
		pm := lb.mcache.Get(ctx, c.channel.ID, model)
		if pm.TotalRequests > 0 {
			successRate = math.Max(pm.SuccessRate, 0.1)
		}
		scores = append(scores, scored{c: c, score: avgCost / successRate})
	}
	sort.Slice(scores, func(i, j int) bool { return scores[i].score < scores[j].score })

	min := scores[0].score
	var cohort []candidate
	for _, s := range scores {
		if s.score-min <= 1e-3 {
			cohort = append(cohort, s.c)
		}
	}
	if len(cohort) > 3 {
		cohort = cohort[:3]
	}
	return cohort[rand.Intn(len(cohort))]
}

// selectBestPerformance scores a weighted blend of success rate and
// p95 latency, then picks uniformly among the top cohort.
func (lb *LoadBalancer) selectBestPerformance(ctx context.Context, pool []candidate, model string) candidate {
	type scored struct {
		c     candidate
		score float64
	}
	scores := make([]scored, 0, len(pool))
	for _, c := range pool {
		pm := lb.mcache.Get(ctx, c.channel.ID, model)
		var score float64
		if pm.TotalRequests == 0 {
			score = 0.5
		} else {
			latencyScore := math.Max(0, 1-float64(pm.P95LatencyMS)/10000)
			score = 0.7*pm.SuccessRate + 0.3*latencyScore
		}
		scores = append(scores, scored{c: c, score: score})
	}
	sort.Slice(scores, func(i, j int) bool { return scores[i].score > scores[j].score })

	top := scores
	if len(top) > 3 {
		top = top[:3]
	}
	return top[rand.Intn(len(top))].c
}

// defaultCosts is the per-provider-kind fallback pricing table,
// input/output per 1K tokens.
var defaultCosts = map[domain.ProviderKind]domain.CostPair{
	domain.ProviderOpenAI:    {Input: 0.01, Output: 0.03},
	domain.ProviderAzure:     {Input: 0.01, Output: 0.03},
	domain.ProviderAnthropic: {Input: 0.008, Output: 0.024},
	domain.ProviderGemini:    {Input: 0.0005, Output: 0.0015},
}

const fallbackCostInput = 0.01
const fallbackCostOutput = 0.03

func resolveCost(ch domain.Channel, model string) (input, output float64) {
	if ch.Config.ModelCosts != nil {
		if c, ok := ch.Config.ModelCosts[model]; ok {
			return c.Input, c.Output
		}
	}
	if ch.Config.DefaultCosts != nil {
		return ch.Config.DefaultCosts.Input, ch.Config.DefaultCosts.Output
	}
	if c, ok := defaultCosts[ch.Provider]; ok {
		return c.Input, c.Output
	}
	return fallbackCostInput, fallbackCostOutput
}

// Record applies post-invocation feedback: health state and sticky
// routing updates for (channelID, model, callerOwnerID).
func (lb *LoadBalancer) Record(channelID int64, model string, callerOwnerID int64, success bool, latencyMS int64, cacheSuspected bool) {
	lb.health.RecordOutcome(channelID, success)

	if success {
		if cacheSuspected || latencyMS < 50 {
			lb.sticky.Upsert(callerOwnerID, model, channelID)
		}
	} else {
		lb.sticky.InvalidateIfMatches(callerOwnerID, model, channelID)
	}
}

// Status is a snapshot for the GET /load-balancer/status admin endpoint.
type Status struct {
	DefaultStrategy domain.Strategy
	StickyEnabled   bool
	StickyRoutes    int
	MetricsCached   int
}

func (lb *LoadBalancer) StatusSnapshot() Status {
	return Status{
		DefaultStrategy: lb.defaultStrategy,
		StickyEnabled:   lb.sticky.enabled,
		StickyRoutes:    lb.sticky.Len(),
		MetricsCached:   lb.mcache.Len(),
	}
}

// ChannelHealth exposes one channel's HealthStatus plus the supplemental
// breaker state, for the per-channel performance admin endpoint.
func (lb *LoadBalancer) ChannelHealth(channelID int64) (domain.HealthStatus, string) {
	return lb.health.Status(channelID), lb.health.BreakerState(channelID)
}

// Performance exposes the cached PerformanceMetrics for (channelID, model).
func (lb *LoadBalancer) Performance(ctx context.Context, channelID int64, model string) domain.PerformanceMetrics {
	return lb.mcache.Get(ctx, channelID, model)
}
