// Package streamhub implements §4.10: one shared, late-join upstream
// subscription per topic, multicast to many per-subscriber bounded
// buffers, with filter pushdown applied at the subscriber rather than the
// consumer group.
package streamhub

import (
	"context"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/monitoring/pipeline/internal/codec"
	"github.com/monitoring/pipeline/internal/messagelog"
	"github.com/monitoring/pipeline/internal/metrics"
	"github.com/rs/zerolog"
)

// Consumer group names for the streaming services (§4.2).
const (
	MetricsConsumerGroup = "streaming.metrics"
	AlertsConsumerGroup  = "streaming.alerts"
)

// Config sizes subscriber buffers and the broadcast fanout pool.
type Config struct {
	BufferSize int

	// FanoutWorkers bounds the goroutines used to fan one broadcast out
	// to subscribers. Zero selects 2x GOMAXPROCS.
	FanoutWorkers int
	// FanoutQueueSize bounds the pending-task queue per worker batch.
	// Zero selects FanoutWorkers*100.
	FanoutQueueSize int
}

// Hub owns the two shared upstream subscriptions and the set of live
// subscribers fed from them.
type Hub struct {
	cfg    Config
	logger zerolog.Logger
	pool   *broadcastPool

	mu         sync.RWMutex
	metricSubs map[int64]*metricSubscriber
	alertSubs  map[int64]*alertSubscriber
	nextID     int64
}

// New builds a Hub. Call Start to begin consuming from the log.
func New(cfg Config, logger zerolog.Logger) *Hub {
	if cfg.FanoutWorkers <= 0 {
		cfg.FanoutWorkers = 2 * runtime.GOMAXPROCS(0)
	}
	if cfg.FanoutQueueSize <= 0 {
		cfg.FanoutQueueSize = cfg.FanoutWorkers * 100
	}
	return &Hub{
		cfg:        cfg,
		logger:     logger,
		pool:       newBroadcastPool(cfg.FanoutWorkers, cfg.FanoutQueueSize, logger),
		metricSubs: make(map[int64]*metricSubscriber),
		alertSubs:  make(map[int64]*alertSubscriber),
	}
}

// Start runs the two shared consumer group loops and the broadcast
// fanout pool until ctx is cancelled. Both consumer loops use
// offset-reset=latest (§4.2) so dashboards never replay history.
// Transient consumer errors are retried indefinitely inside
// messagelog.Consumer.Run without terminating the shared stream (§4.10).
func (h *Hub) Start(ctx context.Context, metricsConsumer, alertsConsumer *messagelog.Consumer) {
	h.pool.start(ctx)
	go func() {
		if err := metricsConsumer.Run(ctx, h.handleMetricRecord); err != nil {
			h.logger.Error().Err(err).Msg("metrics stream consumer exited")
		}
	}()
	go func() {
		if err := alertsConsumer.Run(ctx, h.handleAlertRecord); err != nil {
			h.logger.Error().Err(err).Msg("alerts stream consumer exited")
		}
	}()
}

// DroppedFanoutTasks reports how many broadcast fanout tasks have been
// dropped for backpressure since Start was called.
func (h *Hub) DroppedFanoutTasks() int64 {
	return h.pool.droppedCount()
}

func (h *Hub) handleMetricRecord(_ context.Context, rec messagelog.Record) error {
	m, err := codec.DecodeMetricEvent(rec.Value)
	if err != nil {
		h.logger.Warn().Err(err).Str("topic", rec.Topic).Msg("dropping undecodable metric record")
		return nil
	}
	h.BroadcastMetric(m)
	return nil
}

func (h *Hub) handleAlertRecord(_ context.Context, rec messagelog.Record) error {
	a, err := codec.DecodeAlertEvent(rec.Value)
	if err != nil {
		h.logger.Warn().Err(err).Str("topic", rec.Topic).Msg("dropping undecodable alert record")
		return nil
	}
	h.BroadcastAlert(a)
	return nil
}

// BroadcastMetric fans a decoded metric out to every metric subscriber
// whose filter accepts it. Latest-value subscribers are not fed here;
// LatestReader serves them from the cache (see latestreader.go).
func (h *Hub) BroadcastMetric(m *codec.MetricEvent) {
	data, err := codec.EncodeMetricEvent(m)
	if err != nil {
		h.logger.Error().Err(err).Msg("encode metric for broadcast failed")
		return
	}

	key := m.ServiceName + ":" + string(m.MetricType)

	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, sub := range h.metricSubs {
		if sub.serviceFilter != "" && sub.serviceFilter != m.ServiceName {
			continue
		}
		buf := sub.buf
		h.pool.submit(func() { buf.push(key, data) })
	}
}

// BroadcastAlert fans a decoded alert out to every alert subscriber whose
// filter accepts it. The critical-alert path additionally requires
// severity == CRITICAL (§4.10).
func (h *Hub) BroadcastAlert(a *codec.AlertEvent) {
	data, err := codec.EncodeAlertEvent(a)
	if err != nil {
		h.logger.Error().Err(err).Msg("encode alert for broadcast failed")
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, sub := range h.alertSubs {
		if sub.serviceFilter != "" && sub.serviceFilter != a.ServiceName {
			continue
		}
		if sub.criticalOnly && a.Severity != codec.SeverityCritical {
			continue
		}
		buf := sub.buf
		h.pool.submit(func() { buf.push("", data) })
	}
}

type metricSubscriber struct {
	id            int64
	serviceFilter string
	buf           *buffer
}

type alertSubscriber struct {
	id            int64
	serviceFilter string
	criticalOnly  bool
	buf           *buffer
}

// SubscribeMetrics registers a metric subscriber. combined selects the
// wider, deduplicating buffer used by the all-services stream; empty
// serviceFilter means "all services" for that subscriber's own filter
// (distinct from combined, which only changes buffer sizing/policy).
func (h *Hub) SubscribeMetrics(serviceFilter string, combined bool) (*buffer, func()) {
	size := h.cfg.BufferSize
	policy := DropOldest
	if combined {
		size *= 2
		policy = Dedup
	}
	sub := &metricSubscriber{
		id:            atomic.AddInt64(&h.nextID, 1),
		serviceFilter: serviceFilter,
		buf:           newBuffer(size, policy),
	}

	h.mu.Lock()
	h.metricSubs[sub.id] = sub
	h.mu.Unlock()
	metrics.StreamSubscribersActive.WithLabelValues("metrics").Inc()

	return sub.buf, func() {
		h.mu.Lock()
		delete(h.metricSubs, sub.id)
		h.mu.Unlock()
		sub.buf.close()
		metrics.StreamSubscribersActive.WithLabelValues("metrics").Dec()
	}
}

// SubscribeAlerts registers an alert subscriber.
func (h *Hub) SubscribeAlerts(serviceFilter string, criticalOnly bool) (*buffer, func()) {
	sub := &alertSubscriber{
		id:            atomic.AddInt64(&h.nextID, 1),
		serviceFilter: serviceFilter,
		criticalOnly:  criticalOnly,
		buf:           newBuffer(h.cfg.BufferSize, DropOldest),
	}

	h.mu.Lock()
	h.alertSubs[sub.id] = sub
	h.mu.Unlock()
	metrics.StreamSubscribersActive.WithLabelValues("alerts").Inc()

	return sub.buf, func() {
		h.mu.Lock()
		delete(h.alertSubs, sub.id)
		h.mu.Unlock()
		sub.buf.close()
		metrics.StreamSubscribersActive.WithLabelValues("alerts").Dec()
	}
}
