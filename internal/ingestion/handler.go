package ingestion

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/monitoring/pipeline/internal/codec"
	"github.com/monitoring/pipeline/internal/messagelog"
	"github.com/monitoring/pipeline/internal/metrics"
	"github.com/rs/zerolog"
)

const maxBatchSize = 100

// Handler exposes the ingestion HTTP surface (§6). It is the system's one
// external collaborator boundary: everything downstream trusts that a
// MetricEvent reaching metrics.raw has already passed Validate.
type Handler struct {
	validate *Validator
	producer *messagelog.Producer
	topic    string
	logger   zerolog.Logger
}

// NewHandler builds a Handler publishing accepted metrics to topic.
func NewHandler(validate *Validator, producer *messagelog.Producer, topic string, logger zerolog.Logger) *Handler {
	return &Handler{validate: validate, producer: producer, topic: topic, logger: logger}
}

// Mount registers the ingestion routes onto r.
func (h *Handler) Mount(r chi.Router) {
	r.Post("/api/metrics", h.postMetric)
	r.Post("/api/metrics/batch", h.postMetricsBatch)
	r.Get("/api/metrics/health", h.health)
}

type errorResponse struct {
	Success bool     `json:"success"`
	Message string   `json:"message"`
	Errors  []string `json:"errors,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func badRequest(w http.ResponseWriter, message string, errs []string) {
	writeJSON(w, http.StatusBadRequest, errorResponse{Success: false, Message: message, Errors: errs})
}

func (h *Handler) postMetric(w http.ResponseWriter, r *http.Request) {
	var req metricRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "malformed request body", []string{err.Error()})
		return
	}

	if errs := h.validate.Validate(req); len(errs) > 0 {
		metrics.MetricsRejectedTotal.WithLabelValues("validation").Inc()
		badRequest(w, "validation failed", errs)
		return
	}

	event, err := toMetricEvent(req)
	if err != nil {
		metrics.MetricsRejectedTotal.WithLabelValues("validation").Inc()
		badRequest(w, "validation failed", []string{err.Error()})
		return
	}

	if err := h.publish(r.Context(), event); err != nil {
		h.logger.Error().Err(err).Str("service_name", event.ServiceName).Msg("publish metric failed")
		metrics.MetricsRejectedTotal.WithLabelValues("publish_failed").Inc()
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Success: false, Message: "failed to accept metric"})
		return
	}

	metrics.MetricsIngestedTotal.Inc()
	writeJSON(w, http.StatusAccepted, map[string]any{"success": true, "eventId": event.EventID})
}

func (h *Handler) postMetricsBatch(w http.ResponseWriter, r *http.Request) {
	var batch batchRequest
	if err := json.NewDecoder(r.Body).Decode(&batch); err != nil {
		badRequest(w, "malformed request body", []string{err.Error()})
		return
	}

	if len(batch.Metrics) == 0 || len(batch.Metrics) > maxBatchSize {
		badRequest(w, "batch size must be between 1 and 100", nil)
		return
	}

	var errs []string
	events := make([]*codec.MetricEvent, 0, len(batch.Metrics))
	for i, req := range batch.Metrics {
		if fieldErrs := h.validate.Validate(req); len(fieldErrs) > 0 {
			for _, fe := range fieldErrs {
				errs = append(errs, prefixedError(i, fe))
			}
			continue
		}
		event, err := toMetricEvent(req)
		if err != nil {
			errs = append(errs, prefixedError(i, err.Error()))
			continue
		}
		events = append(events, event)
	}

	if len(errs) > 0 {
		badRequest(w, "validation failed", errs)
		return
	}

	accepted := 0
	for _, event := range events {
		if err := h.publish(r.Context(), event); err != nil {
			h.logger.Error().Err(err).Str("service_name", event.ServiceName).Msg("publish metric failed")
			metrics.MetricsRejectedTotal.WithLabelValues("publish_failed").Inc()
			continue
		}
		metrics.MetricsIngestedTotal.Inc()
		accepted++
	}

	writeJSON(w, http.StatusAccepted, map[string]any{"success": true, "accepted": accepted, "total": len(events)})
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "status": "ok"})
}

func (h *Handler) publish(ctx context.Context, event *codec.MetricEvent) error {
	data, err := codec.EncodeMetricEvent(event)
	if err != nil {
		return err
	}
	_, err = h.producer.Publish(ctx, h.topic, event.ServiceName, data)
	return err
}

func prefixedError(index int, message string) string {
	return "metrics[" + strconv.Itoa(index) + "]: " + message
}
