package aggregate

import (
	"fmt"
	"sync/atomic"

	"github.com/dgraph-io/ristretto"

	"github.com/vjranagit/homeenergy/pkg/metrics"
	"github.com/vjranagit/homeenergy/pkg/types"
)

// Cache memoises Resolve results per snapshot version. A new snapshot gets a
// new version, so stale entries are never returned; they age out of the
// cache on their own.
type Cache struct {
	cache  *ristretto.Cache
	hits   atomic.Uint64
	misses atomic.Uint64
}

// CacheStats contains cache statistics
type CacheStats struct {
	Hits   uint64
	Misses uint64
}

// NewCache creates a resolver cache holding up to capacity chart results
func NewCache(capacity int64) (*Cache, error) {
	if capacity < 1 {
		capacity = 1
	}
	c, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: capacity * 10,
		MaxCost:     capacity,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create resolver cache: %w", err)
	}
	return &Cache{cache: c}, nil
}

// Resolve returns the aggregates for chart in the snapshot identified by
// version, computing them on a miss.
func (c *Cache) Resolve(version uint64, snapshot types.Collections, chart types.ChartSpec) ChartAggregates {
	key := cacheKey(version, chart)
	if v, ok := c.cache.Get(key); ok {
		if agg, ok := v.(ChartAggregates); ok {
			c.hits.Add(1)
			metrics.ResolverCache.WithLabelValues("hit").Inc()
			return agg
		}
	}

	c.misses.Add(1)
	metrics.ResolverCache.WithLabelValues("miss").Inc()

	agg := Resolve(snapshot, chart)
	c.cache.Set(key, agg, 1)
	return agg
}

// Wait blocks until pending writes are visible to Resolve
func (c *Cache) Wait() {
	c.cache.Wait()
}

// Stats returns hit and miss counts
func (c *Cache) Stats() CacheStats {
	return CacheStats{Hits: c.hits.Load(), Misses: c.misses.Load()}
}

// Close releases the cache's background goroutines
func (c *Cache) Close() {
	c.cache.Close()
}

func cacheKey(version uint64, chart types.ChartSpec) string {
	return fmt.Sprintf("%d\x00%s\x00%s\x00%s\x00%s",
		version, chart.SensorID, chart.Source, chart.Day, chart.MeasurementType)
}
