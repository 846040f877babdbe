package cache

import (
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"
)

// Config holds the settings for a memory cache instance.
type Config struct {
	// Size is the maximum number of entries before LRU eviction kicks in.
	Size int

	// TTL is the time-to-live for cache entries.
	TTL time.Duration

	// OnEvict is called when an entry is evicted.
	OnEvict EvictCallback

	// Group is an optional label value used to namespace Prometheus metrics
	// (cache_hits_total, cache_misses_total, etc.). When non-empty the cache
	// is automatically wrapped with metric instrumentation.
	Group string
}

// memoryCache wraps hashicorp/golang-lru/v2/expirable to implement the Cache
// interface.
type memoryCache struct {
	inner *lru.LRU[string, []byte]
}

// NewMemory creates an in-memory LRU cache. When cfg.Group is non-empty the
// result is wrapped with metric instrumentation: hits, misses and evictions
// are counted under a "cache" label equal to Group, and a lazy entries
// collector queries Len() at scrape time.
func NewMemory(cfg Config) Cache {
	group := cfg.Group
	onEvict := cfg.OnEvict
	if group != "" {
		// Count evictions in the cache layer itself so callers don't have to.
		original := onEvict
		onEvict = func(key string, value []byte) {
			EvictionsTotal.WithLabelValues(group).Inc()
			if original != nil {
				original(key, value)
			}
		}
	}

	var inner *memoryCache
	if onEvict != nil {
		cb := onEvict
		inner = &memoryCache{inner: lru.NewLRU[string, []byte](cfg.Size, func(key string, value []byte) { cb(key, value) }, cfg.TTL)}
	} else {
		inner = &memoryCache{inner: lru.NewLRU[string, []byte](cfg.Size, nil, cfg.TTL)}
	}

	if group == "" {
		return inner
	}
	return newInstrumentedCache(inner, group)
}

func (m *memoryCache) Get(key string) ([]byte, bool) {
	return m.inner.Get(key)
}

func (m *memoryCache) Set(key string, value []byte) {
	m.inner.Add(key, value)
}

func (m *memoryCache) Remove(key string) {
	m.inner.Remove(key)
}

func (m *memoryCache) Len() int {
	return m.inner.Len()
}

func (m *memoryCache) Close() error {
	return nil
}
