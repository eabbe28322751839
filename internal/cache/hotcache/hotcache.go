// Package hotcache implements a size-bounded, approximately-LRU hot cache:
// a Redis-backed store fronted by a local LRU tracker per namespace that
// evicts from Redis once a namespace goes over its configured capacity.
// Redis transport errors degrade to a miss or no-op rather than propagating.
package hotcache

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/baroni200/overpass-landmarks/internal/cache/keys"
	"github.com/baroni200/overpass-landmarks/internal/cache/redisstore"
	"github.com/baroni200/overpass-landmarks/internal/core/model"
	"github.com/baroni200/overpass-landmarks/internal/core/observability"
)

const (
	NamespaceLandmarks = "landmarks"
	NamespaceRequests  = "requests"
)

type Cache struct {
	redis *redisstore.Client
	ttl   time.Duration
	log   *slog.Logger

	mu      sync.Mutex
	tracker map[string]*lru.Cache[string, struct{}]
	maxSize int
}

func New(redis *redisstore.Client, ttl time.Duration, maxEntries int, log *slog.Logger) *Cache {
	if log == nil {
		log = slog.Default()
	}
	return &Cache{
		redis:   redis,
		ttl:     ttl,
		log:     log,
		tracker: make(map[string]*lru.Cache[string, struct{}]),
		maxSize: maxEntries,
	}
}

func (c *Cache) trackerFor(namespace string) *lru.Cache[string, struct{}] {
	c.mu.Lock()
	defer c.mu.Unlock()
	if t, ok := c.tracker[namespace]; ok {
		return t
	}
	t, _ := lru.New[string, struct{}](c.maxSize)
	c.tracker[namespace] = t
	return t
}

// GetLandmarks returns the cached landmark projections for a canonical key,
// degrading to a miss on any transport error.
func (c *Cache) GetLandmarks(ctx context.Context, key model.CanonicalKey) ([]model.LandmarkProjection, bool) {
	raw, ok, err := c.redis.Get(ctx, keys.Landmarks(NamespaceLandmarks, key))
	if err != nil {
		c.log.Warn("hotcache get degraded to miss", "namespace", NamespaceLandmarks, "err", err)
	}
	if err != nil || !ok {
		observability.AddCacheMiss(NamespaceLandmarks)
		return nil, false
	}
	var out []model.LandmarkProjection
	if err := json.Unmarshal(raw, &out); err != nil {
		observability.AddCacheMiss(NamespaceLandmarks)
		return nil, false
	}
	observability.AddCacheHit(NamespaceLandmarks)
	return out, true
}

// PutLandmarks writes the landmark projections and records the key in the
// namespace's capacity tracker, evicting the oldest key from Redis too if
// the namespace is over its cap.
func (c *Cache) PutLandmarks(ctx context.Context, key model.CanonicalKey, landmarks []model.LandmarkProjection) {
	raw, err := json.Marshal(landmarks)
	if err != nil {
		return
	}
	cacheKey := keys.Landmarks(NamespaceLandmarks, key)
	if err := c.redis.Set(ctx, cacheKey, raw, c.ttl); err != nil {
		c.log.Warn("hotcache put degraded to no-op", "namespace", NamespaceLandmarks, "err", err)
		return
	}
	c.track(ctx, NamespaceLandmarks, cacheKey)
}

// InvalidateLandmarks removes the cached landmark set for a key.
func (c *Cache) InvalidateLandmarks(ctx context.Context, key model.CanonicalKey) {
	if err := c.redis.Del(ctx, keys.Landmarks(NamespaceLandmarks, key)); err != nil {
		c.log.Warn("hotcache invalidate degraded to no-op", "namespace", NamespaceLandmarks, "err", err)
	}
}

// GetRequest returns the cached RequestRecord snapshot for a canonical key,
// used to short-circuit Submit's store probe when a live request for the
// same key was cached by a previous Submit or worker run.
func (c *Cache) GetRequest(ctx context.Context, key model.CanonicalKey) (model.RequestRecord, bool) {
	raw, ok, err := c.redis.Get(ctx, keys.Landmarks(NamespaceRequests, key))
	if err != nil {
		c.log.Warn("hotcache get degraded to miss", "namespace", NamespaceRequests, "err", err)
	}
	if err != nil || !ok {
		observability.AddCacheMiss(NamespaceRequests)
		return model.RequestRecord{}, false
	}
	var out model.RequestRecord
	if err := json.Unmarshal(raw, &out); err != nil {
		observability.AddCacheMiss(NamespaceRequests)
		return model.RequestRecord{}, false
	}
	observability.AddCacheHit(NamespaceRequests)
	return out, true
}

func (c *Cache) PutRequest(ctx context.Context, key model.CanonicalKey, r model.RequestRecord) {
	raw, err := json.Marshal(r)
	if err != nil {
		return
	}
	cacheKey := keys.Landmarks(NamespaceRequests, key)
	if err := c.redis.Set(ctx, cacheKey, raw, c.ttl); err != nil {
		c.log.Warn("hotcache put degraded to no-op", "namespace", NamespaceRequests, "err", err)
		return
	}
	c.track(ctx, NamespaceRequests, cacheKey)
}

// InvalidateRequest removes the cached request snapshot for a key.
func (c *Cache) InvalidateRequest(ctx context.Context, key model.CanonicalKey) {
	if err := c.redis.Del(ctx, keys.Landmarks(NamespaceRequests, key)); err != nil {
		c.log.Warn("hotcache invalidate degraded to no-op", "namespace", NamespaceRequests, "err", err)
	}
}

func (c *Cache) track(ctx context.Context, namespace, cacheKey string) {
	t := c.trackerFor(namespace)

	c.mu.Lock()
	wasFull := t.Len() >= c.maxSize && !t.Contains(cacheKey)
	var oldestKey string
	var hadOldest bool
	if wasFull {
		oldestKey, _, hadOldest = t.GetOldest()
	}
	t.Add(cacheKey, struct{}{})
	c.mu.Unlock()

	if wasFull && hadOldest && oldestKey != cacheKey {
		if err := c.redis.Del(ctx, oldestKey); err == nil {
			observability.AddCacheEviction(namespace)
		}
	}
}
