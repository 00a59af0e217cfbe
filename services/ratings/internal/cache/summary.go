// Package cache provides a Redis cache for resource rating summaries. The
// aggregation engine writes entries through after each recompute; reads
// never populate it. A nil *SummaryCache is a safe no-op, so Redis stays
// optional.
package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/example/campus-share/services/ratings/internal/store"
)

type SummaryCache struct {
	Client *redis.Client
	TTL    time.Duration
}

func New(url string, ttl time.Duration) (*SummaryCache, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	return &SummaryCache{Client: redis.NewClient(opt), TTL: ttl}, nil
}

func key(resourceID string) string { return "ratings:summary:" + resourceID }

func (c *SummaryCache) Get(ctx context.Context, resourceID string) (store.ResourceSummary, bool, error) {
	if c == nil || c.Client == nil {
		return store.ResourceSummary{}, false, nil
	}
	val, err := c.Client.Get(ctx, key(resourceID)).Result()
	if err != nil {
		if err == redis.Nil {
			return store.ResourceSummary{}, false, nil
		}
		return store.ResourceSummary{}, false, err
	}
	var s store.ResourceSummary
	if err := json.Unmarshal([]byte(val), &s); err != nil {
		return store.ResourceSummary{}, false, err
	}
	return s, true, nil
}

func (c *SummaryCache) Set(ctx context.Context, resourceID string, s store.ResourceSummary) error {
	if c == nil || c.Client == nil {
		return nil
	}
	b, err := json.Marshal(s)
	if err != nil {
		return err
	}
	return c.Client.Set(ctx, key(resourceID), b, c.TTL).Err()
}
