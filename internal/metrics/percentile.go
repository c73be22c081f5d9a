package metrics

import (
	"context"
	"sort"
	"time"

	"github.com/llmweaver/gateway/internal/domain"
)

// Analyze computes the PerformanceMetrics for (channelID, model) over the
// window [now-windowMinutes, now]: nearest-rank percentiles over
// successful-request latencies, success rate over all outcomes, and the
// "cache hit" latency heuristic.
func Analyze(ctx context.Context, store *Store, channelID int64, model string, windowMinutes int) (domain.PerformanceMetrics, error) {
	since := time.Now().Add(-time.Duration(windowMinutes) * time.Minute)
	outcomes, err := store.Query(ctx, channelID, model, since)
	if err != nil {
		return domain.PerformanceMetrics{}, err
	}
	return analyzeOutcomes(channelID, model, outcomes), nil
}

func analyzeOutcomes(channelID int64, model string, outcomes []domain.RequestOutcome) domain.PerformanceMetrics {
	pm := domain.PerformanceMetrics{
		ChannelID:   channelID,
		Model:       model,
		SuccessRate: 1.0,
		ComputedAt:  time.Now(),
	}

	total := len(outcomes)
	pm.TotalRequests = total
	if total == 0 {
		return pm
	}

	errCount := 0
	latencies := make([]int64, 0, total)
	fastCount := 0
	for _, o := range outcomes {
		if o.Status == domain.OutcomeError {
			errCount++
			continue
		}
		latencies = append(latencies, o.LatencyMS)
		if o.LatencyMS < 50 {
			fastCount++
		}
	}
	pm.SuccessRate = float64(total-errCount) / float64(total)

	if len(latencies) == 0 {
		return pm
	}

	sort.Slice(latencies, func(i, j int) bool { return latencies[i] < latencies[j] })

	var sum int64
	for _, l := range latencies {
		sum += l
	}
	pm.AvgLatencyMS = float64(sum) / float64(len(latencies))
	pm.P50LatencyMS = nearestRank(latencies, 0.50)
	pm.P95LatencyMS = nearestRank(latencies, 0.95)
	pm.P99LatencyMS = nearestRank(latencies, 0.99)
	pm.CacheHitRate = float64(fastCount) / float64(len(latencies))

	return pm
}

// nearestRank returns sorted[floor(p*n)], clamped to the final element.
func nearestRank(sorted []int64, p float64) int64 {
	n := len(sorted)
	if n == 0 {
		return 0
	}
	idx := int(p * float64(n))
	if idx >= n {
		idx = n - 1
	}
	return sorted[idx]
}
