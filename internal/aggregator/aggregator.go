// Package aggregator implements §4.6: for every metric, cache its latest
// value and append it to history, concurrently, never failing the caller.
package aggregator

import (
	"context"
	"sync"
	"time"

	"github.com/monitoring/pipeline/internal/cache"
	"github.com/monitoring/pipeline/internal/codec"
	"github.com/monitoring/pipeline/internal/metrics"
	"github.com/rs/zerolog"
)

// MetricPersister is the subset of store.MetricStore the Aggregator needs.
type MetricPersister interface {
	Insert(ctx context.Context, m *codec.MetricEvent) error
}

// Result reports the per-operation outcome of aggregating one event.
type Result struct {
	Cached    bool
	Persisted bool
}

// Aggregator caches the latest value and persists history for each
// MetricEvent it sees.
type Aggregator struct {
	cache    *cache.Client
	store    MetricPersister
	cacheTTL time.Duration
	logger   zerolog.Logger
}

// New builds an Aggregator.
func New(c *cache.Client, store MetricPersister, cacheTTL time.Duration, logger zerolog.Logger) *Aggregator {
	return &Aggregator{cache: c, store: store, cacheTTL: cacheTTL, logger: logger}
}

// Process runs the cache write and the history insert concurrently and
// waits for both. Cache errors degrade to Cached=false; persistence
// errors are logged and reported as Persisted=false. Neither propagates
// as an error — the Alert Engine pipeline proceeds regardless (§4.6).
func (a *Aggregator) Process(ctx context.Context, m *codec.MetricEvent) Result {
	var (
		wg  sync.WaitGroup
		res Result
	)

	wg.Add(2)

	go func() {
		defer wg.Done()
		res.Cached = a.cacheLatest(ctx, m)
	}()

	go func() {
		defer wg.Done()
		res.Persisted = a.persistHistory(ctx, m)
	}()

	wg.Wait()
	return res
}

func (a *Aggregator) cacheLatest(ctx context.Context, m *codec.MetricEvent) bool {
	data, err := codec.EncodeMetricEvent(m)
	if err != nil {
		a.logger.Error().Err(err).Str("service", m.ServiceName).Msg("encode metric for cache failed")
		return false
	}
	key := cache.MetricKey(m.ServiceName, string(m.MetricType))
	cached, err := a.cache.Set(ctx, key, data, a.cacheTTL)
	if err != nil {
		a.logger.Warn().Err(err).Str("key", key).Msg("cache metric failed")
		return false
	}
	if cached {
		metrics.MetricsCachedTotal.Inc()
	}
	return cached
}

func (a *Aggregator) persistHistory(ctx context.Context, m *codec.MetricEvent) bool {
	if err := a.store.Insert(ctx, m); err != nil {
		a.logger.Error().Err(err).Str("service", m.ServiceName).Msg("persist metric history failed")
		return false
	}
	metrics.MetricsPersistedTotal.Inc()
	return true
}
