package loadbalancer

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/llmweaver/gateway/internal/domain"
	"github.com/llmweaver/gateway/internal/logging"
	"github.com/llmweaver/gateway/internal/shardmap"
)

// healthTable holds HealthStatus per channel, sharded so readers never
// block on a writer updating an unrelated channel.
type healthTable struct {
	statuses *shardmap.Map[domain.HealthStatus]
	breakers *shardmap.Map[*circuitBreaker]

	maxConsecutiveFailures int
	probeFreshness         time.Duration
}

func newHealthTable(maxConsecutiveFailures int) *healthTable {
	return &healthTable{
		statuses:               shardmap.New[domain.HealthStatus](),
		breakers:               shardmap.New[*circuitBreaker](),
		maxConsecutiveFailures: maxConsecutiveFailures,
		probeFreshness:         5 * time.Minute,
	}
}

func channelKey(id int64) string { return strconv.FormatInt(id, 10) }

func (h *healthTable) breakerFor(channelID int64) *circuitBreaker {
	key := channelKey(channelID)
	if cb, ok := h.breakers.Get(key); ok {
		return cb
	}
	cb := newCircuitBreaker(5, 30*time.Second, 2)
	h.breakers.Set(key, cb)
	return cb
}

// IsHealthy is the fast-path health predicate consulted on every selection.
func (h *healthTable) IsHealthy(channelID int64) bool {
	status, ok := h.statuses.Get(channelKey(channelID))
	if !ok {
		// No probe has ever run: consecutive_failures is implicitly 0 and
		// there is no recent probe, so the predicate is satisfied.
		return true
	}
	if status.ConsecutiveFailures >= h.maxConsecutiveFailures {
		return false
	}
	if status.LastCheckTime.IsZero() {
		return true
	}
	if time.Since(status.LastCheckTime) > h.probeFreshness {
		return true
	}
	return status.IsHealthy
}

// Status returns the current HealthStatus (a healthy status with zero
// counters if the channel has never been probed or recorded).
func (h *healthTable) Status(channelID int64) domain.HealthStatus {
	status, ok := h.statuses.Get(channelKey(channelID))
	if !ok {
		return domain.HealthStatus{ChannelID: channelID, IsHealthy: true}
	}
	return status
}

// RecordOutcome updates consecutive_failures from a completed request,
// resetting to 0 on success and incrementing by exactly 1 on failure.
func (h *healthTable) RecordOutcome(channelID int64, success bool) {
	key := channelKey(channelID)
	h.statuses.Update(key, func(cur domain.HealthStatus, found bool) domain.HealthStatus {
		if !found {
			cur = domain.HealthStatus{ChannelID: channelID, IsHealthy: true}
		}
		if success {
			cur.ConsecutiveFailures = 0
		} else {
			cur.ConsecutiveFailures++
		}
		return cur
	})

	cb := h.breakerFor(channelID)
	if success {
		cb.RecordSuccess()
	} else {
		cb.RecordFailure()
	}
}

// BreakerState reports the supplemental circuit-breaker state for a
// channel, for the per-channel performance admin endpoint only.
func (h *healthTable) BreakerState(channelID int64) string {
	cb := h.breakerFor(channelID)
	return cb.poll().String()
}

// Prober issues one reachability check against a channel and returns
// whether it is reachable plus the observed latency.
type Prober interface {
	Probe(ctx context.Context, ch domain.Channel) (healthy bool, latency time.Duration, err error)
}

// HTTPProber implements Prober with a per-provider-kind request shape.
type HTTPProber struct {
	Client *http.Client
}

// NewHTTPProber builds a prober with a 10-second timeout client,
// independent of the upstream request timeout.
func NewHTTPProber() *HTTPProber {
	return &HTTPProber{Client: &http.Client{Timeout: 10 * time.Second}}
}

func (p *HTTPProber) Probe(ctx context.Context, ch domain.Channel) (bool, time.Duration, error) {
	req, err := p.buildProbeRequest(ctx, ch)
	if err != nil {
		return false, 0, err
	}

	start := time.Now()
	resp, err := p.Client.Do(req)
	latency := time.Since(start)
	if err != nil {
		return false, latency, err
	}
	defer resp.Body.Close()

	switch ch.Provider {
	case domain.ProviderAnthropic:
		// Anthropic probes POST a minimal message; 200/400/429 all mean
		// "the endpoint is reachable and authenticating".
		reachable := resp.StatusCode == http.StatusOK ||
			resp.StatusCode == http.StatusBadRequest ||
			resp.StatusCode == http.StatusTooManyRequests
		return reachable, latency, nil
	default:
		return resp.StatusCode == http.StatusOK, latency, nil
	}
}

func (p *HTTPProber) buildProbeRequest(ctx context.Context, ch domain.Channel) (*http.Request, error) {
	base := ch.Config.APIBase
	switch ch.Provider {
	case domain.ProviderOpenAI, domain.ProviderMistral, domain.ProviderCohere:
		if base == "" {
			base = defaultBase(ch.Provider)
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, base+"/v1/models", nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Authorization", "Bearer "+ch.Config.APIKey)
		return req, nil

	case domain.ProviderAzure:
		v := ch.Config.APIVersion
		if v == "" {
			v = "2024-02-01"
		}
		url := fmt.Sprintf("%s/openai/models?api-version=%s", base, v)
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("api-key", ch.Config.APIKey)
		return req, nil

	case domain.ProviderAnthropic:
		if base == "" {
			base = defaultBase(ch.Provider)
		}
		body := `{"model":"claude-3-haiku-20240307","max_tokens":1,"messages":[{"role":"user","content":"hi"}]}`
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, base+"/v1/messages", strings.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("content-type", "application/json")
		req.Header.Set("x-api-key", ch.Config.APIKey)
		req.Header.Set("anthropic-version", "2023-06-01")
		return req, nil

	case domain.ProviderGemini:
		v := ch.Config.APIVersion
		if v == "" {
			v = "v1beta"
		}
		if base == "" {
			base = defaultBase(ch.Provider)
		}
		url := fmt.Sprintf("%s/%s/models?key=%s", base, v, ch.Config.APIKey)
		return http.NewRequestWithContext(ctx, http.MethodGet, url, nil)

	default:
		if base == "" {
			base = defaultBase(ch.Provider)
		}
		return http.NewRequestWithContext(ctx, http.MethodGet, base+"/v1/models", nil)
	}
}

func defaultBase(kind domain.ProviderKind) string {
	switch kind {
	case domain.ProviderOpenAI:
		return "https://api.openai.com"
	case domain.ProviderAnthropic:
		return "https://api.anthropic.com"
	case domain.ProviderGemini:
		return "https://generativelanguage.googleapis.com"
	case domain.ProviderMistral:
		return "https://api.mistral.ai"
	case domain.ProviderCohere:
		return "https://api.cohere.ai"
	default:
		return ""
	}
}

// ProbeAll runs Prober.Probe against every active channel concurrently,
// bounded by an errgroup so a single slow/unreachable channel can't delay
// the rest.
func (lb *LoadBalancer) ProbeAll(ctx context.Context, channels []domain.Channel) []domain.HealthStatus {
	results := make([]domain.HealthStatus, len(channels))

	g, gctx := errgroup.WithContext(ctx)
	for i, ch := range channels {
		if ch.Status != domain.ChannelActive {
			continue
		}
		i, ch := i, ch
		g.Go(func() error {
			probeCtx, cancel := context.WithTimeout(gctx, 10*time.Second)
			defer cancel()

			healthy, latency, err := lb.prober.Probe(probeCtx, ch)
			status := domain.HealthStatus{
				ChannelID:          ch.ID,
				LastCheckTime:      time.Now(),
				LastProbeLatencyMS: latency.Milliseconds(),
			}
			if err != nil {
				logging.Warnf(ctx, "health probe failed for channel %d: %s", ch.ID, err.Error())
				healthy = false
			}
			status.IsHealthy = healthy

			key := channelKey(ch.ID)
			lb.health.statuses.Update(key, func(cur domain.HealthStatus, found bool) domain.HealthStatus {
				if healthy {
					status.ConsecutiveFailures = 0
				} else {
					prev := 0
					if found {
						prev = cur.ConsecutiveFailures
					}
					status.ConsecutiveFailures = prev + 1
				}
				return status
			})

			cb := lb.health.breakerFor(ch.ID)
			if healthy {
				cb.RecordSuccess()
			} else {
				cb.RecordFailure()
			}

			results[i] = status
			return nil
		})
	}
	_ = g.Wait() // per-channel errors are absorbed into health state, never propagated

	out := make([]domain.HealthStatus, 0, len(channels))
	for i, ch := range channels {
		if ch.Status == domain.ChannelActive {
			out = append(out, results[i])
		}
	}
	return out
}
