// Package metrics holds the Prometheus instrumentation shared across the
// four services, registered on the default registry and served from each
// service's /metrics endpoint.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	MetricsIngestedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "monitoring_metrics_ingested_total",
		Help: "Total number of metric samples accepted by ingestion",
	})

	MetricsRejectedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "monitoring_metrics_rejected_total",
		Help: "Total number of metric samples rejected at the ingestion boundary",
	}, []string{"reason"})

	MetricsCachedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "monitoring_metrics_cached_total",
		Help: "Total number of metric samples written to the latest-value cache",
	})

	MetricsPersistedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "monitoring_metrics_persisted_total",
		Help: "Total number of metric samples appended to the history store",
	})

	AlertsTriggeredTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "monitoring_alerts_triggered_total",
		Help: "Total number of alerts transitioned to ACTIVE",
	}, []string{"severity"})

	AlertsResolvedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "monitoring_alerts_resolved_total",
		Help: "Total number of alerts transitioned to RESOLVED",
	}, []string{"severity"})

	AlertsSuppressedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "monitoring_alerts_suppressed_total",
		Help: "Total number of alerts suppressed by the notification throttler",
	})

	CacheDegradedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "monitoring_cache_degraded_total",
		Help: "Total number of cache operations that fell back after redis was unavailable",
	}, []string{"op"})

	StreamSubscribersActive = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "monitoring_stream_subscribers_active",
		Help: "Current number of live SSE subscribers by stream",
	}, []string{"stream"})

	NotificationSinkFailuresTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "monitoring_notification_sink_failures_total",
		Help: "Total number of notification sink delivery failures",
	}, []string{"sink"})

	StreamCapacityRejectionsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "monitoring_stream_capacity_rejections_total",
		Help: "Total number of SSE connections rejected by the subscriber admission gate (cgroup-derived capacity or CPU brake)",
	})

	StreamBroadcastPanicsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "monitoring_stream_broadcast_panics_total",
		Help: "Total number of panics recovered from the stream hub's broadcast worker pool",
	})

	StreamCPUPercent = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "monitoring_stream_cpu_percent",
		Help: "Most recently sampled host CPU utilization observed by the streaming service's CPU guard",
	})

	StreamCPUOverloadRejectionsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "monitoring_stream_cpu_overload_rejections_total",
		Help: "Total number of SSE connections rejected because sampled CPU usage was above the reject threshold",
	})
)

// Register adds every collector in this package to the default registry.
// Safe to call once per process.
func Register() {
	prometheus.MustRegister(
		MetricsIngestedTotal,
		MetricsRejectedTotal,
		MetricsCachedTotal,
		MetricsPersistedTotal,
		AlertsTriggeredTotal,
		AlertsResolvedTotal,
		AlertsSuppressedTotal,
		CacheDegradedTotal,
		StreamSubscribersActive,
		NotificationSinkFailuresTotal,
		StreamCapacityRejectionsTotal,
		StreamBroadcastPanicsTotal,
		StreamCPUPercent,
		StreamCPUOverloadRejectionsTotal,
	)
}

// Handler returns the promhttp handler for mounting at /metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}
