package streamhub

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/monitoring/pipeline/internal/cache"
	"github.com/monitoring/pipeline/internal/metrics"
	"github.com/rs/zerolog"
)

// LatestReader periodically scans the cache's latest-value keyspace and
// emits a snapshot to subscribers of the periodic latest-value stream
// (§4.12). Each subscriber's buffer keeps only the latest push — a slow
// subscriber never needs the intermediate ticks replayed (§4.10).
type LatestReader struct {
	cache    *cache.Client
	interval time.Duration
	logger   zerolog.Logger

	mu     sync.RWMutex
	subs   map[int64]*latestSubscriber
	nextID int64
}

type latestSubscriber struct {
	serviceFilter string
	buf           *buffer
}

// NewLatestReader builds a LatestReader ticking every interval.
func NewLatestReader(c *cache.Client, interval time.Duration, bufferSize int, logger zerolog.Logger) *LatestReader {
	return &LatestReader{
		cache:    c,
		interval: interval,
		logger:   logger,
		subs:     make(map[int64]*latestSubscriber),
	}
}

// Subscribe registers a subscriber to the latest-value stream, optionally
// scoped to one service.
func (r *LatestReader) Subscribe(serviceFilter string, bufferSize int) (*buffer, func()) {
	id := atomic.AddInt64(&r.nextID, 1)
	sub := &latestSubscriber{
		serviceFilter: serviceFilter,
		buf:           newBuffer(bufferSize, KeepLatest),
	}

	r.mu.Lock()
	r.subs[id] = sub
	r.mu.Unlock()
	metrics.StreamSubscribersActive.WithLabelValues("latest-metrics").Inc()

	return sub.buf, func() {
		r.mu.Lock()
		delete(r.subs, id)
		r.mu.Unlock()
		sub.buf.close()
		metrics.StreamSubscribersActive.WithLabelValues("latest-metrics").Dec()
	}
}

// Run ticks every r.interval until ctx is cancelled, scanning the metric
// latest-value keyspace and emitting each decoded entry to matching
// subscribers.
func (r *LatestReader) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.tick(ctx)
		}
	}
}

func (r *LatestReader) tick(ctx context.Context) {
	r.mu.RLock()
	if len(r.subs) == 0 {
		r.mu.RUnlock()
		return
	}
	r.mu.RUnlock()

	prefix := "monitoring:metric:"
	err := r.cache.Scan(ctx, prefix, func(key string) error {
		value, ok, err := r.cache.Get(ctx, key)
		if err != nil || !ok {
			return nil
		}
		r.emit(key, prefix, value)
		return nil
	})
	if err != nil {
		r.logger.Warn().Err(err).Msg("latest-value scan failed")
	}
}

func (r *LatestReader) emit(key, prefix string, value []byte) {
	// key is "monitoring:metric:<service>:<METRIC_TYPE>"
	rest := strings.TrimPrefix(key, prefix)
	parts := strings.SplitN(rest, ":", 2)
	if len(parts) != 2 {
		return
	}
	service, metricType := parts[0], parts[1]
	dedupKey := service + ":" + metricType

	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, sub := range r.subs {
		if sub.serviceFilter != "" && sub.serviceFilter != service {
			continue
		}
		sub.buf.push(dedupKey, value)
	}
}
