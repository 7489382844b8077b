package recipe

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"recipescan/internal/platform/metrics"
)

// HotCache is a fast key/value layer consulted before the store.
type HotCache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
}

// FingerprintFinder looks up stored recipes by content fingerprint.
type FingerprintFinder interface {
	FindByFingerprint(ctx context.Context, fingerprint string) (*StoredRecipe, error)
}

// Cache short-circuits extraction for files that were already saved.
type Cache struct {
	store   FingerprintFinder
	hot     HotCache
	ttl     time.Duration
	log     *zap.Logger
	metrics *metrics.Metrics
}

// NewCache creates a Cache over store. hot may be nil.
func NewCache(store FingerprintFinder, hot HotCache, ttl time.Duration, log *zap.Logger, m *metrics.Metrics) *Cache {
	if log == nil {
		log = zap.NewNop()
	}
	return &Cache{store: store, hot: hot, ttl: ttl, log: log, metrics: m}
}

func cacheKey(fingerprint string) string {
	return "recipe:fp:" + fingerprint
}

// Lookup returns the recipe stored for fingerprint, or nil if none exists.
// Hot cache failures are treated as misses.
func (c *Cache) Lookup(ctx context.Context, fingerprint string) (*StoredRecipe, error) {
	if c.hot != nil {
		data, ok, err := c.hot.Get(ctx, cacheKey(fingerprint))
		switch {
		case err != nil:
			c.log.Warn("hot cache lookup failed", zap.String("file_hash", fingerprint), zap.Error(err))
		case ok:
			var r StoredRecipe
			if err := json.Unmarshal(data, &r); err == nil {
				c.metrics.ObserveCacheLookup("hot", "hit")
				return &r, nil
			}
			c.log.Warn("discarding undecodable hot cache entry", zap.String("file_hash", fingerprint))
		}
		c.metrics.ObserveCacheLookup("hot", "miss")
	}

	r, err := c.store.FindByFingerprint(ctx, fingerprint)
	if err != nil {
		c.metrics.ObserveCacheLookup("store", "error")
		return nil, fmt.Errorf("failed to look up recipe by fingerprint: %w", err)
	}
	if r == nil {
		c.metrics.ObserveCacheLookup("store", "miss")
		return nil, nil
	}
	c.metrics.ObserveCacheLookup("store", "hit")

	if c.hot != nil {
		data, err := json.Marshal(r)
		if err == nil {
			err = c.hot.Set(ctx, cacheKey(fingerprint), data, c.ttl)
		}
		if err != nil {
			c.log.Warn("failed to populate hot cache", zap.String("file_hash", fingerprint), zap.Error(err))
		}
	}
	return r, nil
}

// Invalidate drops the hot entry for fingerprint.
func (c *Cache) Invalidate(ctx context.Context, fingerprint string) error {
	if c.hot == nil || fingerprint == "" {
		return nil
	}
	if err := c.hot.Del(ctx, cacheKey(fingerprint)); err != nil {
		return fmt.Errorf("failed to invalidate cached recipe: %w", err)
	}
	return nil
}
