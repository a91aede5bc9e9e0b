// Package query decorates a domain.Querier with memoization and metrics.
package query

import (
	"fmt"

	"github.com/brunoga/deep"
	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/couchcryptid/s2s-forecast-service/internal/domain"
	"github.com/couchcryptid/s2s-forecast-service/internal/observability"
)

// CachedEngine wraps a Querier with an in-memory LRU cache. A cube never
// changes once built, so entries never go stale; a reload builds a fresh
// CachedEngine around the new cube.
type CachedEngine struct {
	inner   domain.Querier
	cache   *expirable.LRU[string, any]
	metrics *observability.Metrics
}

// NewCachedEngine creates a cache decorator holding at most maxEntries results.
func NewCachedEngine(inner domain.Querier, maxEntries int, metrics *observability.Metrics) *CachedEngine {
	return &CachedEngine{
		inner:   inner,
		cache:   expirable.NewLRU[string, any](maxEntries, nil, 0),
		metrics: metrics,
	}
}

func (c *CachedEngine) Snapshot(variable string, step int) (domain.Snapshot, error) {
	key := fmt.Sprintf("snap:%s|%d", variable, step)
	return cached(c, "snapshot", key, func() (domain.Snapshot, error) {
		return c.inner.Snapshot(variable, step)
	})
}

func (c *CachedEngine) PointSeries(variable string, lat, lon float64) (domain.PointSeries, error) {
	key := fmt.Sprintf("series:%s|%g,%g", variable, lat, lon)
	return cached(c, "series", key, func() (domain.PointSeries, error) {
		return c.inner.PointSeries(variable, lat, lon)
	})
}

func (c *CachedEngine) Statistics(variable string, step int) (domain.Statistics, error) {
	key := fmt.Sprintf("stats:%s|%d", variable, step)
	return cached(c, "statistics", key, func() (domain.Statistics, error) {
		return c.inner.Statistics(variable, step)
	})
}

func (c *CachedEngine) Histogram(variable string, step, bins int) (domain.Histogram, error) {
	key := fmt.Sprintf("hist:%s|%d|%d", variable, step, bins)
	return cached(c, "histogram", key, func() (domain.Histogram, error) {
		return c.inner.Histogram(variable, step, bins)
	})
}

func (c *CachedEngine) Info() domain.CubeInfo {
	return c.inner.Info()
}

// Len reports the number of cached results.
func (c *CachedEngine) Len() int {
	return c.cache.Len()
}

// cached serves key from the cache or computes and stores it. Errors are not
// cached. Callers always receive a private copy so they may mutate it.
func cached[T any](c *CachedEngine, op, key string, compute func() (T, error)) (T, error) {
	if v, ok := c.cache.Get(key); ok {
		c.metrics.QueryCache.WithLabelValues(op, "hit").Inc()
		return deep.MustCopy(v.(T)), nil
	}
	c.metrics.QueryCache.WithLabelValues(op, "miss").Inc()

	result, err := compute()
	if err != nil {
		return result, err
	}
	c.cache.Add(key, result)
	return deep.MustCopy(result), nil
}
