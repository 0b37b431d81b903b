package streamhub

import (
	"context"
	"testing"
	"time"

	"github.com/monitoring/pipeline/internal/codec"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestHub(t *testing.T) *Hub {
	t.Helper()
	h := New(Config{BufferSize: 16, FanoutWorkers: 2, FanoutQueueSize: 16}, zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	h.pool.start(ctx)
	return h
}

func drainSoon(t *testing.T, buf *buffer) []item {
	t.Helper()
	deadline := time.After(time.Second)
	for {
		select {
		case <-buf.notify:
			return buf.drain()
		case <-deadline:
			t.Fatal("timed out waiting for buffer notification")
			return nil
		}
	}
}

func TestHubBroadcastMetricRespectsServiceFilter(t *testing.T) {
	h := newTestHub(t)
	buf, unsubscribe := h.SubscribeMetrics("payments-api", false)
	defer unsubscribe()

	h.BroadcastMetric(&codec.MetricEvent{ServiceName: "other-api", MetricType: codec.MetricCPU, MetricValue: 1})
	h.BroadcastMetric(&codec.MetricEvent{ServiceName: "payments-api", MetricType: codec.MetricCPU, MetricValue: 50})

	items := drainSoon(t, buf)
	require.Len(t, items, 1)

	decoded, err := codec.DecodeMetricEvent(items[0].data)
	require.NoError(t, err)
	assert.Equal(t, "payments-api", decoded.ServiceName)
}

func TestHubBroadcastAlertCriticalOnlyFilter(t *testing.T) {
	h := newTestHub(t)
	buf, unsubscribe := h.SubscribeAlerts("", true)
	defer unsubscribe()

	h.BroadcastAlert(&codec.AlertEvent{ServiceName: "payments-api", Severity: codec.SeverityHigh})
	h.BroadcastAlert(&codec.AlertEvent{ServiceName: "payments-api", Severity: codec.SeverityCritical})

	items := drainSoon(t, buf)
	require.Len(t, items, 1)

	decoded, err := codec.DecodeAlertEvent(items[0].data)
	require.NoError(t, err)
	assert.Equal(t, codec.SeverityCritical, decoded.Severity)
}

func TestHubUnsubscribeStopsDelivery(t *testing.T) {
	h := newTestHub(t)
	buf, unsubscribe := h.SubscribeMetrics("", false)
	unsubscribe()

	h.BroadcastMetric(&codec.MetricEvent{ServiceName: "payments-api", MetricType: codec.MetricCPU})
	assert.Empty(t, buf.drain())
}
