package loadbalancer

import (
	"strconv"
	"time"

	"github.com/llmweaver/gateway/internal/domain"
	"github.com/llmweaver/gateway/internal/shardmap"
)

// stickyTable is the (owner_id, model) -> channel affinity table,
// held in the same kind of sharded map as the health table. An optional
// RedisMirror gives it a cross-instance fallback.
type stickyTable struct {
	routes  *shardmap.Map[domain.StickyRoute]
	ttl     time.Duration
	enabled bool
	mirror  *RedisMirror
}

func newStickyTable(ttl time.Duration) *stickyTable {
	return &stickyTable{
		routes:  shardmap.New[domain.StickyRoute](),
		ttl:     ttl,
		enabled: true,
	}
}

// SetMirror attaches the optional Redis cross-instance hint.
func (s *stickyTable) SetMirror(m *RedisMirror) { s.mirror = m }

func stickyKey(ownerID int64, model string) string {
	return strconv.FormatInt(ownerID, 10) + "|" + model
}

// Get returns the sticky route for (ownerID, model) if one exists and has
// not expired. Expired entries are treated as absent and removed on read.
func (s *stickyTable) Get(ownerID int64, model string) (domain.StickyRoute, bool) {
	if !s.enabled {
		return domain.StickyRoute{}, false
	}
	key := stickyKey(ownerID, model)
	route, ok := s.routes.Get(key)
	if !ok {
		if channelID, hit := s.mirror.lookupSticky(ownerID, model); hit {
			return domain.StickyRoute{OwnerID: ownerID, Model: model, ChannelID: channelID, LastUsedAt: time.Now(), ConsecutiveHit: 1}, true
		}
		return domain.StickyRoute{}, false
	}
	if time.Since(route.LastUsedAt) > s.ttl {
		s.routes.Delete(key)
		return domain.StickyRoute{}, false
	}
	return route, true
}

// Upsert creates or refreshes the sticky route for (ownerID, model),
// incrementing consecutive_hits when the channel is unchanged.
func (s *stickyTable) Upsert(ownerID int64, model string, channelID int64) {
	key := stickyKey(ownerID, model)
	s.routes.Update(key, func(cur domain.StickyRoute, found bool) domain.StickyRoute {
		hits := 1
		if found && cur.ChannelID == channelID {
			hits = cur.ConsecutiveHit + 1
		}
		return domain.StickyRoute{
			OwnerID:        ownerID,
			Model:          model,
			ChannelID:      channelID,
			LastUsedAt:     time.Now(),
			ConsecutiveHit: hits,
		}
	})
	s.mirror.mirrorStickyAsync(ownerID, model, channelID, s.ttl)
}

// InvalidateIfMatches deletes the sticky route for (ownerID, model) if it
// currently points at channelID, releasing affinity after a failure.
func (s *stickyTable) InvalidateIfMatches(ownerID int64, model string, channelID int64) {
	key := stickyKey(ownerID, model)
	if route, ok := s.routes.Get(key); ok && route.ChannelID == channelID {
		s.routes.Delete(key)
	}
	s.mirror.invalidateStickyAsync(ownerID, model)
}

func (s *stickyTable) SetEnabled(enabled bool) { s.enabled = enabled }
func (s *stickyTable) Len() int                { return s.routes.Len() }
