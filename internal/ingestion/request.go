// Package ingestion implements the HTTP boundary that turns validated
// requests into MetricEvents and publishes them to metrics.raw (§6). The
// core treats this boundary's output as its only contract: anything
// published here is already normalized and within bounds (§7).
package ingestion

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/monitoring/pipeline/internal/codec"
)

// timestampLayouts lists the formats accepted from clients, tried in
// order. Producers are expected to send the bare wire layout, but RFC3339
// (with or without an offset) is accepted and its zone discarded, since
// the wire form itself carries no timezone.
var timestampLayouts = []string{
	"2006-01-02T15:04:05",
	time.RFC3339,
}

func parseTimestamp(raw string) (time.Time, error) {
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unparsable timestamp %q", raw)
}

// metricRequest is the wire shape accepted by POST /api/metrics and each
// element of POST /api/metrics/batch.
type metricRequest struct {
	ServiceName string            `json:"serviceName" validate:"required"`
	MetricType  string            `json:"metricType" validate:"required"`
	MetricValue float64           `json:"metricValue" validate:"required"`
	Timestamp   string            `json:"timestamp" validate:"required"`
	Unit        string            `json:"unit"`
	Hostname    string            `json:"hostname"`
	Environment string            `json:"environment"`
	Version     string            `json:"version"`
	Tags        map[string]string `json:"tags"`
}

type batchRequest struct {
	Metrics []metricRequest `json:"metrics" validate:"required,min=1,max=100,dive"`
}

// toMetricEvent normalizes req into a codec.MetricEvent. Callers must run
// it through the Validator first.
func toMetricEvent(req metricRequest) (*codec.MetricEvent, error) {
	ts, err := parseTimestamp(req.Timestamp)
	if err != nil {
		return nil, err
	}

	metricType := codec.MetricType(strings.ToUpper(req.MetricType))
	unit := req.Unit
	if unit == "" {
		unit = metricType.DefaultUnit()
	}

	env := codec.Environment(strings.ToLower(req.Environment))
	if env == "" {
		env = codec.EnvUnknown
	}

	now := codec.NewWireTime(time.Now())
	return &codec.MetricEvent{
		EventID:     uuid.NewString(),
		ServiceName: strings.ToLower(strings.TrimSpace(req.ServiceName)),
		MetricType:  metricType,
		MetricValue: req.MetricValue,
		Timestamp:   codec.NewWireTime(ts),
		Unit:        unit,
		Hostname:    req.Hostname,
		Environment: env,
		Version:     req.Version,
		Tags:        req.Tags,
		CreatedAt:   &now,
	}, nil
}
