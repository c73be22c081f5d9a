package loadbalancer

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/llmweaver/gateway/internal/domain"
)

type fakeProber struct {
	healthyByChannel map[int64]bool
}

func (f *fakeProber) Probe(ctx context.Context, ch domain.Channel) (bool, time.Duration, error) {
	return f.healthyByChannel[ch.ID], 5 * time.Millisecond, nil
}

func TestProbeAllUpdatesHealthTable(t *testing.T) {
	lb := New(mustStore(t), Config{})
	lb.prober = &fakeProber{healthyByChannel: map[int64]bool{1: true, 2: false}}

	channels := []domain.Channel{chanWith(1, 10, "m"), chanWith(2, 10, "m")}
	results := lb.ProbeAll(context.Background(), channels)
	require.Len(t, results, 2)

	s1, _ := lb.ChannelHealth(1)
	s2, _ := lb.ChannelHealth(2)
	assert.True(t, s1.IsHealthy)
	assert.False(t, s2.IsHealthy)
	assert.Equal(t, 0, s1.ConsecutiveFailures)
	assert.Equal(t, 1, s2.ConsecutiveFailures)
}

func TestProbeAllSkipsInactiveChannels(t *testing.T) {
	lb := New(mustStore(t), Config{})
	lb.prober = &fakeProber{healthyByChannel: map[int64]bool{1: true}}

	inactive := chanWith(2, 10, "m")
	inactive.Status = domain.ChannelInactive
	channels := []domain.Channel{chanWith(1, 10, "m"), inactive}

	results := lb.ProbeAll(context.Background(), channels)
	assert.Len(t, results, 1)
}
