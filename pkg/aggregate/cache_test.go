package aggregate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vjranagit/homeenergy/pkg/types"
)

func TestCacheResolve(t *testing.T) {
	cache, err := NewCache(100)
	require.NoError(t, err)
	defer cache.Close()

	c := types.NewCollections(map[string]map[string]types.Document{
		DailyCollection: {"sensorId-1970-01-01-reading-activeEnergy": {"_id": "X"}},
	})

	agg := cache.Resolve(1, c, readingChart)
	assert.Equal(t, "X", agg.Daily().ID())

	cache.Wait()
	agg = cache.Resolve(1, c, readingChart)
	assert.Equal(t, "X", agg.Daily().ID())

	stats := cache.Stats()
	assert.Equal(t, uint64(2), stats.Hits+stats.Misses)
	assert.GreaterOrEqual(t, stats.Misses, uint64(1))
}

func TestCacheKeyedByVersion(t *testing.T) {
	cache, err := NewCache(100)
	require.NoError(t, err)
	defer cache.Close()

	first := types.NewCollections(map[string]map[string]types.Document{
		DailyCollection: {"sensorId-1970-01-01-reading-activeEnergy": {"_id": "first"}},
	})
	second := types.NewCollections(map[string]map[string]types.Document{
		DailyCollection: {"sensorId-1970-01-01-reading-activeEnergy": {"_id": "second"}},
	})

	assert.Equal(t, "first", cache.Resolve(1, first, readingChart).Daily().ID())
	cache.Wait()
	assert.Equal(t, "second", cache.Resolve(2, second, readingChart).Daily().ID())
}
