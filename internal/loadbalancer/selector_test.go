package loadbalancer

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/llmweaver/gateway/internal/domain"
	"github.com/llmweaver/gateway/internal/metrics"
)

func mustStore(t *testing.T) *metrics.Store {
	t.Helper()
	s, err := metrics.NewStore(nil, 10, time.Hour)
	require.NoError(t, err)
	return s
}

func chanWith(id int64, weight int, model string) domain.Channel {
	return domain.Channel{
		ID:       id,
		Provider: domain.ProviderOpenAI,
		Status:   domain.ChannelActive,
		Weight:   weight,
		Mappings: []domain.ModelMapping{{ChannelID: id, PublicModelID: model, UpstreamModel: model}},
	}
}

func TestWeightedRandomConvergesToWeightRatio(t *testing.T) {
	lb := New(mustStore(t), Config{DefaultStrategy: domain.StrategyWeightedRandom})
	channels := []domain.Channel{chanWith(1, 70, "gpt-3.5-turbo"), chanWith(2, 30, "gpt-3.5-turbo")}

	counts := map[int64]int{}
	const trials = 10000
	for i := 0; i < trials; i++ {
		res := lb.Select(context.Background(), "gpt-3.5-turbo", 1, channels, domain.StrategyWeightedRandom, false)
		require.True(t, res.Found)
		counts[res.Channel.ID]++
	}

	ratio := float64(counts[1]) / float64(trials)
	assert.True(t, ratio >= 0.65 && ratio <= 0.75, "expected C1 ratio in [0.65,0.75], got %f", ratio)
}

func TestSelectNoSupportingChannelsReturnsNoChannel(t *testing.T) {
	lb := New(mustStore(t), Config{})
	res := lb.Select(context.Background(), "unknown-model", 1, nil, domain.StrategyRandom, false)
	assert.False(t, res.Found)
}

func TestHealthExclusionAfterThreeFailures(t *testing.T) {
	lb := New(mustStore(t), Config{MaxConsecutiveFailures: 3})
	channels := []domain.Channel{chanWith(1, 50, "m"), chanWith(2, 50, "m")}

	lb.Record(1, "m", 1, false, 100, false)
	lb.Record(1, "m", 1, false, 100, false)
	lb.Record(1, "m", 1, false, 100, false)

	for i := 0; i < 20; i++ {
		res := lb.Select(context.Background(), "m", 1, channels, domain.StrategyWeightedRandom, false)
		require.True(t, res.Found)
		assert.Equal(t, int64(2), res.Channel.ID)
	}
}

func TestRecordSuccessResetsConsecutiveFailures(t *testing.T) {
	lb := New(mustStore(t), Config{MaxConsecutiveFailures: 3})
	lb.Record(1, "m", 1, false, 100, false)
	lb.Record(1, "m", 1, false, 100, false)
	lb.Record(1, "m", 1, true, 50, false)

	status, _ := lb.ChannelHealth(1)
	assert.Equal(t, 0, status.ConsecutiveFailures)
}

func TestStickyRoutingPreferredOverWeight(t *testing.T) {
	lb := New(mustStore(t), Config{StickyEnabled: true})
	channels := []domain.Channel{chanWith(1, 10, "m"), chanWith(2, 90, "m")}

	// Caller 1's first successful, fast request pins channel 1.
	lb.Record(1, "m", 1, true, 20, true)

	for i := 0; i < 5; i++ {
		res := lb.Select(context.Background(), "m", 1, channels, domain.StrategyWeightedRandom, true)
		require.True(t, res.Found)
		assert.Equal(t, int64(1), res.Channel.ID)
		assert.Equal(t, "sticky", res.Reason)
	}
}

func TestStickyRouteExpiresAfterTTL(t *testing.T) {
	lb := New(mustStore(t), Config{StickyEnabled: true, StickyTTL: 10 * time.Millisecond})
	channels := []domain.Channel{chanWith(1, 10, "m"), chanWith(2, 90, "m")}

	lb.Record(1, "m", 1, true, 20, true)
	time.Sleep(20 * time.Millisecond)

	res := lb.Select(context.Background(), "m", 1, channels, domain.StrategyWeightedRandom, true)
	require.True(t, res.Found)
	assert.NotEqual(t, "sticky", res.Reason)
}

func TestBestPerformancePrefersHigherSuccessAndLowerLatency(t *testing.T) {
	store := mustStore(t)
	lb := New(store, Config{})
	ctx := context.Background()

	now := time.Now()
	for i := 0; i < 10; i++ {
		store.Append(ctx, domain.RequestOutcome{ChannelID: 1, Model: "m", Status: domain.OutcomeSuccess, LatencyMS: 0, Timestamp: now})
	}
	for i := 0; i < 5; i++ {
		store.Append(ctx, domain.RequestOutcome{ChannelID: 2, Model: "m", Status: domain.OutcomeSuccess, LatencyMS: 9000, Timestamp: now})
	}
	for i := 0; i < 5; i++ {
		store.Append(ctx, domain.RequestOutcome{ChannelID: 2, Model: "m", Status: domain.OutcomeError, Timestamp: now})
	}

	channels := []domain.Channel{chanWith(1, 50, "m"), chanWith(2, 50, "m")}
	counts := map[int64]int{}
	for i := 0; i < 50; i++ {
		res := lb.Select(ctx, "m", 1, channels, domain.StrategyBestPerf, false)
		require.True(t, res.Found)
		counts[res.Channel.ID]++
	}
	assert.True(t, counts[1] > counts[2])
}

func TestLowestCostPrefersCheaperChannel(t *testing.T) {
	lb := New(mustStore(t), Config{})
	cheap := chanWith(1, 50, "m")
	cheap.Config.DefaultCosts = &domain.CostPair{Input: 0.0001, Output: 0.0001}
	expensive := chanWith(2, 50, "m")
	expensive.Config.DefaultCosts = &domain.CostPair{Input: 0.05, Output: 0.05}

	channels := []domain.Channel{cheap, expensive}
	counts := map[int64]int{}
	for i := 0; i < 50; i++ {
		res := lb.Select(context.Background(), "m", 1, channels, domain.StrategyLowestCost, false)
		require.True(t, res.Found)
		counts[res.Channel.ID]++
	}
	assert.Equal(t, 50, counts[1])
	assert.Equal(t, 0, counts[2])
}
