package loadbalancer

import (
	"context"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/llmweaver/gateway/internal/logging"
)

// RedisMirror is a best-effort, optional cross-instance hint for sticky
// routes: the in-process stickyTable remains the authoritative store,
// Redis only helps a cold instance that has no local entry yet pick the
// same channel another instance already pinned. Every call is bounded by
// a short timeout and never returns an error the caller must handle — a
// Redis outage degrades silently back to in-process-only sticky routing.
type RedisMirror struct {
	client *redis.Client
}

// NewRedisMirror parses url and returns a mirror, or an error if the URL
// is malformed. It does not dial eagerly.
func NewRedisMirror(url string) (*RedisMirror, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	return &RedisMirror{client: redis.NewClient(opt)}, nil
}

func redisStickyKey(ownerID int64, model string) string {
	return "llmweaver:sticky:" + strconv.FormatInt(ownerID, 10) + ":" + model
}

// mirrorStickyAsync writes channelID for (ownerID, model) without
// blocking the caller; the hot routing path never waits on a network
// round trip to Redis.
func (m *RedisMirror) mirrorStickyAsync(ownerID int64, model string, channelID int64, ttl time.Duration) {
	if m == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
		defer cancel()
		if err := m.client.Set(ctx, redisStickyKey(ownerID, model), channelID, ttl).Err(); err != nil {
			logging.SysLogf("redis sticky mirror write failed: %v", err)
		}
	}()
}

func (m *RedisMirror) invalidateStickyAsync(ownerID int64, model string) {
	if m == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
		defer cancel()
		_ = m.client.Del(ctx, redisStickyKey(ownerID, model)).Err()
	}()
}

// lookupSticky is a short-timeout read used only on a local sticky-table
// miss, so an unreachable Redis costs at most one bounded round trip per
// miss rather than degrading every request.
func (m *RedisMirror) lookupSticky(ownerID int64, model string) (int64, bool) {
	if m == nil {
		return 0, false
	}
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	v, err := m.client.Get(ctx, redisStickyKey(ownerID, model)).Result()
	if err != nil {
		return 0, false
	}
	id, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}
