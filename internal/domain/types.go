// Package domain holds the semantic entities the routing core reads and
// writes. Persistence and admin CRUD for these entities live outside the
// core; this package only defines the shapes the core depends on.
package domain

import "time"

// ProviderKind identifies which upstream wire protocol a Channel speaks.
type ProviderKind string

const (
	ProviderOpenAI    ProviderKind = "openai"
	ProviderAzure     ProviderKind = "azure"
	ProviderAnthropic ProviderKind = "anthropic"
	ProviderGemini    ProviderKind = "gemini"
	ProviderMistral   ProviderKind = "mistral"
	ProviderCohere    ProviderKind = "cohere"
)

// ChannelStatus mirrors the admin-managed lifecycle state of a Channel.
type ChannelStatus string

const (
	ChannelActive   ChannelStatus = "active"
	ChannelInactive ChannelStatus = "inactive"
	ChannelError    ChannelStatus = "error"
)

// CostPair is an input/output price per 1K tokens, in the same currency
// unit CallerCredential.budget_used is tracked in.
type CostPair struct {
	Input  float64 `json:"input"`
	Output float64 `json:"output"`
}

// ChannelConfig is the free-form per-channel configuration envelope.
type ChannelConfig struct {
	APIBase      string              `json:"api_base,omitempty"`
	APIKey       string              `json:"api_key"`
	APIVersion   string              `json:"api_version,omitempty"`
	Organization string              `json:"organization,omitempty"`
	ModelCosts   map[string]CostPair `json:"model_costs,omitempty"`
	DefaultCosts *CostPair           `json:"default_costs,omitempty"`
}

// Channel is a configured upstream provider endpoint. The core only reads
// it; creation/update/deletion is an external administrative concern.
type Channel struct {
	ID       int64
	Provider ProviderKind
	Config   ChannelConfig
	Weight   int
	Priority int
	Status   ChannelStatus
	IsSystem bool

	// Mappings is the channel's current ModelMapping set, read fresh per
	// selection rather than lazily loaded (per DESIGN NOTES §9: no
	// attribute-access lazy loading in the core).
	Mappings []ModelMapping
}

// ModelMapping links a public model id to the id a given channel expects
// upstream.
type ModelMapping struct {
	ChannelID      int64
	PublicModelID  string
	UpstreamModel  string
}

// MappingFor returns the mapping (if any) for publicModel on this channel.
func (c Channel) MappingFor(publicModel string) (ModelMapping, bool) {
	for _, m := range c.Mappings {
		if m.PublicModelID == publicModel {
			return m, true
		}
	}
	return ModelMapping{}, false
}

// SupportsModel reports whether the channel has a mapping for publicModel.
func (c Channel) SupportsModel(publicModel string) bool {
	_, ok := c.MappingFor(publicModel)
	return ok
}

// CallerCredential is the opaque "who is calling" projection the Routing
// Pipeline authenticates against and checks budget/allow-list on.
type CallerCredential struct {
	ID            int64
	OwnerID       int64
	AllowedModels []string // nil/empty means "all models allowed"
	BudgetLimit   float64  // 0 means unlimited
	BudgetUsed    float64
	Active        bool
}

// AllowsModel reports whether model is permitted for this caller.
func (c CallerCredential) AllowsModel(model string) bool {
	if len(c.AllowedModels) == 0 {
		return true
	}
	for _, m := range c.AllowedModels {
		if m == model {
			return true
		}
	}
	return false
}

// OverBudget reports whether the caller has exhausted its budget.
func (c CallerCredential) OverBudget() bool {
	return c.BudgetLimit > 0 && c.BudgetUsed >= c.BudgetLimit
}

// OutcomeStatus is the terminal status of a single routed request.
type OutcomeStatus string

const (
	OutcomeSuccess OutcomeStatus = "success"
	OutcomeError   OutcomeStatus = "error"
)

// RequestOutcome is appended exactly once per request, regardless of
// success or failure.
type RequestOutcome struct {
	RequestID    string
	CallerID     int64
	OwnerID      int64
	ChannelID    int64
	Model        string // public model id, never the upstream-mapped id
	Status       OutcomeStatus
	TokensIn     int
	TokensOut    int
	Cost         float64
	LatencyMS    int64
	ErrorMessage string
	Timestamp    time.Time
}

// HealthStatus is the Load Balancer's in-memory view of one channel's
// reachability, mutated by the health-probe loop and by Record.
type HealthStatus struct {
	ChannelID           int64
	IsHealthy           bool
	LastCheckTime       time.Time
	ConsecutiveFailures int
	LastProbeLatencyMS  int64
}

// PerformanceMetrics is the cached, lazily-computed aggregate for one
// (channel, model) pair over a rolling window.
type PerformanceMetrics struct {
	ChannelID     int64
	Model         string
	AvgLatencyMS  float64
	P50LatencyMS  int64
	P95LatencyMS  int64
	P99LatencyMS  int64
	SuccessRate   float64
	TotalRequests int
	CacheHitRate  float64
	ComputedAt    time.Time
}

// StickyRoute is a short-lived (owner, model) -> channel affinity.
type StickyRoute struct {
	OwnerID        int64
	Model          string
	ChannelID      int64
	LastUsedAt     time.Time
	ConsecutiveHit int
}

// Strategy is one of the four load-balancing strategies.
type Strategy string

const (
	StrategyRandom         Strategy = "random"
	StrategyWeightedRandom Strategy = "weighted_random"
	StrategyLowestCost     Strategy = "lowest_cost"
	StrategyBestPerf       Strategy = "performance"
)

// DefaultStrategy is used whenever a request does not request one
// explicitly and the Load Balancer has not been reconfigured.
const DefaultStrategy = StrategyWeightedRandom
