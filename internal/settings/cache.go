package settings

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

// CacheMetrics receives cache hit/miss notifications. Implemented by
// observability.Metrics; nil disables instrumentation.
type CacheMetrics interface {
	SettingsCacheHit(group string)
	SettingsCacheMiss(group string)
}

// GroupCache caches whole settings groups in Redis as JSON payloads.
// Loads are deduplicated with singleflight so a cold group triggers a single
// database round trip per process.
type GroupCache struct {
	client  *redis.Client
	ttl     time.Duration
	metrics CacheMetrics
	group   singleflight.Group
}

// NewGroupCache instantiates the cache helper.
func NewGroupCache(client *redis.Client, ttl time.Duration, metrics CacheMetrics) *GroupCache {
	return &GroupCache{client: client, ttl: ttl, metrics: metrics}
}

// Fetch returns the cached group values, populating the cache from loader on
// a miss. A nil cache or Redis failure degrades to a direct loader call.
func (c *GroupCache) Fetch(ctx context.Context, group string, loader func(context.Context) (map[string]string, error)) (map[string]string, error) {
	if loader == nil {
		return nil, errors.New("settings: cache loader required")
	}
	if c == nil || c.client == nil {
		return loader(ctx)
	}

	payload, err := c.client.Get(ctx, c.key(group)).Bytes()
	if err == nil {
		var values map[string]string
		if err := json.Unmarshal(payload, &values); err == nil {
			if c.metrics != nil {
				c.metrics.SettingsCacheHit(group)
			}
			return values, nil
		}
		// Corrupt payload: drop it and reload.
		_ = c.client.Del(ctx, c.key(group)).Err()
	} else if !errors.Is(err, redis.Nil) {
		return loader(ctx)
	}

	if c.metrics != nil {
		c.metrics.SettingsCacheMiss(group)
	}

	result, err, _ := c.group.Do(group, func() (any, error) {
		values, err := loader(ctx)
		if err != nil {
			return nil, err
		}
		raw, err := json.Marshal(values)
		if err != nil {
			return nil, err
		}
		_ = c.client.Set(ctx, c.key(group), raw, c.ttl).Err()
		return values, nil
	})
	if err != nil {
		return nil, err
	}
	return result.(map[string]string), nil
}

// Invalidate drops the cached payload for a group so the next read observes
// freshly written values.
func (c *GroupCache) Invalidate(ctx context.Context, group string) error {
	if c == nil || c.client == nil {
		return nil
	}
	if err := c.client.Del(ctx, c.key(group)).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return err
	}
	return nil
}

func (c *GroupCache) key(group string) string {
	return "settings:" + group
}
