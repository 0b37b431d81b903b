// sse.go wires the Stream Hub and Latest-Metric Reader to the SSE HTTP
// surface named in §6: content type text/event-stream, event id is the
// event's natural id, CORS permissive on /api/**.
package streamhub

import (
	"context"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/monitoring/pipeline/internal/codec"
	"github.com/monitoring/pipeline/internal/metrics"
	"github.com/rs/zerolog"
)

// Router builds the /api/stream/* routes.
type Router struct {
	hub            *Hub
	latest         *LatestReader
	bufferSize     int
	heartbeatEvery time.Duration
	logger         zerolog.Logger

	maxSubscribers int32
	subscribers    int32
	cpu            *cpuGuard
}

// NewRouter builds a Router bound to hub and latest. maxSubscribers caps
// concurrent SSE connections this process will accept; callers typically
// size it from MaxSubscribers(), the cgroup-derived memory budget.
// cpuRejectThresholdPercent adds a second, CPU-based brake on top of that
// cap; zero or negative disables it.
func NewRouter(hub *Hub, latest *LatestReader, bufferSize int, heartbeatEvery time.Duration, maxSubscribers int, cpuRejectThresholdPercent float64, logger zerolog.Logger) *Router {
	return &Router{
		hub:            hub,
		latest:         latest,
		bufferSize:     bufferSize,
		heartbeatEvery: heartbeatEvery,
		maxSubscribers: int32(maxSubscribers),
		cpu:            newCPUGuard(cpuRejectThresholdPercent, logger),
		logger:         logger,
	}
}

// StartCPUGuard begins periodic CPU sampling until ctx is cancelled. Call
// once after Mount; a Router whose guard was never started always reports
// not-overloaded (the threshold check uses the zero sample).
func (sr *Router) StartCPUGuard(ctx context.Context, interval time.Duration) {
	go sr.cpu.run(ctx, interval)
}

// acquireSlot reserves one of the router's subscriber slots, returning
// false if the process is already at its cgroup-derived capacity or its
// sampled CPU usage is over threshold.
func (sr *Router) acquireSlot() bool {
	if sr.cpu.overloaded() {
		metrics.StreamCPUOverloadRejectionsTotal.Inc()
		return false
	}
	if sr.maxSubscribers <= 0 {
		return true
	}
	for {
		cur := atomic.LoadInt32(&sr.subscribers)
		if cur >= sr.maxSubscribers {
			return false
		}
		if atomic.CompareAndSwapInt32(&sr.subscribers, cur, cur+1) {
			return true
		}
	}
}

func (sr *Router) releaseSlot() {
	if sr.maxSubscribers > 0 {
		atomic.AddInt32(&sr.subscribers, -1)
	}
}

// Mount registers every route from §6 onto r.
func (sr *Router) Mount(r chi.Router) {
	r.Use(corsPermissive)

	r.Get("/api/stream/metrics", sr.streamMetrics(""))
	r.Get("/api/stream/metrics/{service}", sr.streamMetricsByPath)
	r.Get("/api/stream/metrics/latest", sr.streamLatestMetric)
	r.Get("/api/stream/metrics/heartbeat", sr.streamHeartbeat)
	r.Get("/api/stream/alerts", sr.streamAlerts("", false))
	r.Get("/api/stream/alerts/{service}", sr.streamAlertsByPath)
	r.Get("/api/stream/alerts/active", sr.streamActiveAlerts)
	r.Get("/api/stream/alerts/critical", sr.streamAlerts("", true))
}

func corsPermissive(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if req.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, req)
	})
}

// sseWriter owns the connection's flusher and writes one SSE frame.
type sseWriter struct {
	w       http.ResponseWriter
	flusher http.Flusher
}

func newSSEWriter(w http.ResponseWriter) (*sseWriter, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("response writer does not support flushing")
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()
	return &sseWriter{w: w, flusher: flusher}, nil
}

func (s *sseWriter) write(id, event string, data []byte) {
	fmt.Fprintf(s.w, "id: %s\nevent: %s\ndata: %s\n\n", id, event, data)
	s.flusher.Flush()
}

func (sr *Router) streamMetrics(_ string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sr.serveMetricStream(w, r, "", true)
	}
}

func (sr *Router) streamMetricsByPath(w http.ResponseWriter, r *http.Request) {
	service := chi.URLParam(r, "service")
	sr.serveMetricStream(w, r, service, false)
}

func (sr *Router) serveMetricStream(w http.ResponseWriter, r *http.Request, serviceFilter string, combined bool) {
	if !sr.acquireSlot() {
		metrics.StreamCapacityRejectionsTotal.Inc()
		http.Error(w, "streaming service at capacity", http.StatusServiceUnavailable)
		return
	}
	defer sr.releaseSlot()

	buf, unsubscribe := sr.hub.SubscribeMetrics(serviceFilter, combined)
	defer unsubscribe()

	sw, err := newSSEWriter(w)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	drainLoop(r.Context(), buf, func(data []byte) {
		m, err := codec.DecodeMetricEvent(data)
		if err != nil {
			return
		}
		sw.write(m.EventID, "metric", data)
	})
}

func (sr *Router) streamLatestMetric(w http.ResponseWriter, r *http.Request) {
	if !sr.acquireSlot() {
		metrics.StreamCapacityRejectionsTotal.Inc()
		http.Error(w, "streaming service at capacity", http.StatusServiceUnavailable)
		return
	}
	defer sr.releaseSlot()

	serviceFilter := r.URL.Query().Get("serviceName")
	buf, unsubscribe := sr.latest.Subscribe(serviceFilter, sr.bufferSize)
	defer unsubscribe()

	sw, err := newSSEWriter(w)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	drainLoop(r.Context(), buf, func(data []byte) {
		m, err := codec.DecodeMetricEvent(data)
		if err != nil {
			return
		}
		sw.write(m.EventID, "latest-metric", data)
	})
}

func (sr *Router) streamHeartbeat(w http.ResponseWriter, r *http.Request) {
	if !sr.acquireSlot() {
		metrics.StreamCapacityRejectionsTotal.Inc()
		http.Error(w, "streaming service at capacity", http.StatusServiceUnavailable)
		return
	}
	defer sr.releaseSlot()

	sw, err := newSSEWriter(w)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	ticker := time.NewTicker(sr.heartbeatEvery)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case t := <-ticker.C:
			sw.write(fmt.Sprintf("%d", t.UnixNano()), "heartbeat", []byte(`{"status":"ok"}`))
		}
	}
}

func (sr *Router) streamAlerts(_ string, criticalOnly bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sr.serveAlertStream(w, r, "", criticalOnly, false)
	}
}

func (sr *Router) streamAlertsByPath(w http.ResponseWriter, r *http.Request) {
	service := chi.URLParam(r, "service")
	sr.serveAlertStream(w, r, service, false, false)
}

func (sr *Router) streamActiveAlerts(w http.ResponseWriter, r *http.Request) {
	serviceFilter := r.URL.Query().Get("serviceName")
	sr.serveAlertStream(w, r, serviceFilter, false, true)
}

func (sr *Router) serveAlertStream(w http.ResponseWriter, r *http.Request, serviceFilter string, criticalOnly, activeOnly bool) {
	if !sr.acquireSlot() {
		metrics.StreamCapacityRejectionsTotal.Inc()
		http.Error(w, "streaming service at capacity", http.StatusServiceUnavailable)
		return
	}
	defer sr.releaseSlot()

	buf, unsubscribe := sr.hub.SubscribeAlerts(serviceFilter, criticalOnly)
	defer unsubscribe()

	sw, err := newSSEWriter(w)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	drainLoop(r.Context(), buf, func(data []byte) {
		a, err := codec.DecodeAlertEvent(data)
		if err != nil {
			return
		}
		if activeOnly && a.Status != codec.StatusActive {
			return
		}
		eventName := "alert-update"
		switch {
		case criticalOnly:
			eventName = "alert-critical"
		case activeOnly:
			eventName = "alert-active"
		case a.Status == codec.StatusActive:
			eventName = "alert-triggered"
		case a.Status == codec.StatusResolved || a.Status == codec.StatusAutoResolved:
			eventName = "alert-resolved"
		case a.Status == codec.StatusAcknowledged:
			eventName = "alert-acknowledged"
		}
		sw.write(a.AlertID, eventName, data)
	})
}

// drainLoop wakes on buf's notify channel and on the request context's
// cancellation, delivering every buffered item through emit. It returns
// (releasing the subscriber synchronously via the caller's deferred
// unsubscribe) as soon as the client disconnects (§5).
func drainLoop(ctx context.Context, buf *buffer, emit func(data []byte)) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-buf.notify:
			for _, it := range buf.drain() {
				emit(it.data)
			}
		}
	}
}
