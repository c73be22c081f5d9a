package loadbalancer

import (
	"context"
	"strconv"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"golang.org/x/sync/singleflight"

	"github.com/llmweaver/gateway/internal/domain"
	"github.com/llmweaver/gateway/internal/metrics"
)

// metricsCache is a 5-minute-fresh PerformanceMetrics cache backed by
// patrickmn/go-cache. A singleflight group collapses concurrent misses
// for the same (channel, model) key into one metrics.Analyze call, since
// a burst of requests landing on a just-expired entry would otherwise
// all recompute the same rolling window at once.
type metricsCache struct {
	cache         *gocache.Cache
	group         singleflight.Group
	store         *metrics.Store
	windowMinutes int
}

func newMetricsCache(store *metrics.Store, windowMinutes int) *metricsCache {
	return &metricsCache{
		cache:         gocache.New(5*time.Minute, 10*time.Minute),
		store:         store,
		windowMinutes: windowMinutes,
	}
}

func metricsCacheKey(channelID int64, model string) string {
	return strconv.FormatInt(channelID, 10) + "|" + model
}

// Get returns the cached or freshly computed PerformanceMetrics for
// (channelID, model).
func (m *metricsCache) Get(ctx context.Context, channelID int64, model string) domain.PerformanceMetrics {
	key := metricsCacheKey(channelID, model)
	if v, ok := m.cache.Get(key); ok {
		return v.(domain.PerformanceMetrics)
	}

	v, _, _ := m.group.Do(key, func() (interface{}, error) {
		pm, err := metrics.Analyze(ctx, m.store, channelID, model, m.windowMinutes)
		if err != nil {
			// Metrics computation never fails the caller: fall back to an
			// empty-window result.
			pm = domain.PerformanceMetrics{ChannelID: channelID, Model: model, SuccessRate: 1.0}
		}
		m.cache.SetDefault(key, pm)
		return pm, nil
	})
	return v.(domain.PerformanceMetrics)
}

func (m *metricsCache) SetWindowMinutes(minutes int) { m.windowMinutes = minutes }

func (m *metricsCache) Len() int { return m.cache.ItemCount() }
