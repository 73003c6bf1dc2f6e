package search

import (
	"context"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru"

	"github.com/danshapiro/newsroom/internal/metrics"
)

type cacheEntry struct {
	results   []Result
	expiresAt time.Time
}

// Cached memoizes successful searches in a bounded LRU. Failures are not
// cached.
type Cached struct {
	next  Provider
	cache *lru.Cache
	ttl   time.Duration
	now   func() time.Time
}

// NewCached wraps next with an LRU of the given size. ttl <= 0 keeps entries
// until evicted.
func NewCached(next Provider, size int, ttl time.Duration) (*Cached, error) {
	cache, err := lru.New(size)
	if err != nil {
		return nil, err
	}
	return &Cached{next: next, cache: cache, ttl: ttl, now: time.Now}, nil
}

func cacheKey(query string) string {
	return strings.ToLower(strings.Join(strings.Fields(query), " "))
}

func (c *Cached) Search(ctx context.Context, query string) ([]Result, error) {
	key := cacheKey(query)
	if v, ok := c.cache.Get(key); ok {
		entry := v.(cacheEntry)
		if entry.expiresAt.IsZero() || c.now().Before(entry.expiresAt) {
			metrics.SearchCacheHitsTotal.Inc()
			return append([]Result(nil), entry.results...), nil
		}
		c.cache.Remove(key)
	}

	results, err := c.next.Search(ctx, query)
	if err != nil {
		return nil, err
	}
	entry := cacheEntry{results: append([]Result(nil), results...)}
	if c.ttl > 0 {
		entry.expiresAt = c.now().Add(c.ttl)
	}
	c.cache.Add(key, entry)
	return results, nil
}

func (c *Cached) Len() int { return c.cache.Len() }
