package cache

import (
	"slices"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	cacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "quill_cache_hits_total",
		Help: "Encoded vector cache hits",
	})
	cacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "quill_cache_misses_total",
		Help: "Encoded vector cache misses",
	})
	cacheDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "quill_cache_dropped_total",
		Help: "Puts dropped because the cache was full",
	})
)

// VectorCache caches encoded index vectors by input text.
type VectorCache interface {
	// Get retrieves a vector from the cache.
	Get(key string) ([]int64, bool)
	// Put stores a vector in the cache.
	Put(key string, vec []int64)
	// Size returns the number of items in the cache.
	Size() int
}

// MapCache is a simple in-memory implementation of VectorCache. Once it holds
// maxEntries vectors, puts of new keys are dropped.
type MapCache struct {
	data       map[string][]int64
	maxEntries int
	mu         sync.RWMutex
}

// NewMapCache returns a cache holding at most maxEntries vectors; zero or
// negative means unbounded.
func NewMapCache(maxEntries int) *MapCache {
	return &MapCache{
		data:       make(map[string][]int64),
		maxEntries: maxEntries,
	}
}

func (c *MapCache) Get(key string) ([]int64, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	// Return copy to avoid modification of cached value
	if v, ok := c.data[key]; ok {
		cacheHits.Inc()
		return slices.Clone(v), true
	}
	cacheMisses.Inc()
	return nil, false
}

func (c *MapCache) Put(key string, vec []int64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.data[key]; !exists && c.maxEntries > 0 && len(c.data) >= c.maxEntries {
		cacheDropped.Inc()
		return
	}
	dst := make([]int64, len(vec))
	copy(dst, vec)
	c.data[key] = dst
}

func (c *MapCache) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.data)
}
