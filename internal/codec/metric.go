// Package codec defines the wire form shared by every service in the
// pipeline: MetricEvent and AlertEvent. Field names are lowerCamelCase,
// enums are serialized as their uppercase constant name, and timestamps
// are encoded without a timezone offset (the producer's local clock).
package codec

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// MetricType is the closed set of measurement kinds a MetricEvent can carry.
type MetricType string

const (
	MetricCPU              MetricType = "CPU"
	MetricMemory           MetricType = "MEMORY"
	MetricLatency          MetricType = "LATENCY"
	MetricErrorRate        MetricType = "ERROR_RATE"
	MetricThroughput       MetricType = "THROUGHPUT"
	MetricDiskIO           MetricType = "DISK_IO"
	MetricNetworkBandwidth MetricType = "NETWORK_BANDWIDTH"
	MetricDBConnections    MetricType = "DB_CONNECTIONS"
	MetricQueueDepth       MetricType = "QUEUE_DEPTH"
	MetricCacheHitRate     MetricType = "CACHE_HIT_RATE"
	MetricHeapMemory       MetricType = "HEAP_MEMORY"
	MetricThreadCount      MetricType = "THREAD_COUNT"
	MetricGCTime           MetricType = "GC_TIME"
	MetricCustom           MetricType = "CUSTOM"
)

// defaultUnits gives every metric type a default unit when the producer
// doesn't supply one.
var defaultUnits = map[MetricType]string{
	MetricCPU:              "percent",
	MetricMemory:           "percent",
	MetricLatency:          "ms",
	MetricErrorRate:        "percent",
	MetricThroughput:       "req/s",
	MetricDiskIO:           "bytes/s",
	MetricNetworkBandwidth: "bytes/s",
	MetricDBConnections:    "count",
	MetricQueueDepth:       "count",
	MetricCacheHitRate:     "percent",
	MetricHeapMemory:       "bytes",
	MetricThreadCount:      "count",
	MetricGCTime:           "ms",
	MetricCustom:           "unit",
}

// DefaultUnit returns the default unit for t, or "" if t is not recognized.
func (t MetricType) DefaultUnit() string {
	return defaultUnits[t]
}

// Valid reports whether t is one of the closed enum values.
func (t MetricType) Valid() bool {
	_, ok := defaultUnits[t]
	return ok
}

// IsPercentFamily reports whether the metric's value is bounded at 100,
// either because its default unit is a percentage or its name carries
// "RATE".
func (t MetricType) IsPercentFamily() bool {
	unit := t.DefaultUnit()
	return strings.Contains(unit, "percent") || strings.Contains(string(t), "RATE")
}

// DisplayName renders the metric type for human-readable alert messages,
// e.g. "CPU" -> "cpu", "ERROR_RATE" -> "error rate".
func (t MetricType) DisplayName() string {
	return strings.ToLower(strings.ReplaceAll(string(t), "_", " "))
}

// Environment is the deployment tier a metric was observed in.
type Environment string

const (
	EnvDev        Environment = "dev"
	EnvStaging    Environment = "staging"
	EnvProduction Environment = "production"
	EnvUnknown    Environment = "unknown"
)

// wireTimeLayout matches "yyyy-MM-dd'T'HH:mm:ss" with no timezone,
// interpreted as the producer's local clock.
const wireTimeLayout = "2006-01-02T15:04:05"

// WireTime wraps time.Time to serialize without a timezone offset per §4.1.
type WireTime time.Time

func (w WireTime) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Time(w).Format(wireTimeLayout))
}

func (w *WireTime) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	t, err := time.Parse(wireTimeLayout, s)
	if err != nil {
		return fmt.Errorf("parse wire timestamp %q: %w", s, err)
	}
	*w = WireTime(t)
	return nil
}

// Time unwraps to a plain time.Time.
func (w WireTime) Time() time.Time { return time.Time(w) }

// NewWireTime converts a time.Time, truncating to whole seconds.
func NewWireTime(t time.Time) WireTime { return WireTime(t.Truncate(time.Second)) }

// MetricEvent is a single time-stamped measurement emitted by a monitored
// service. EventID is the record's unique identity; unknown fields are
// ignored on read and tags/metadata are omitted from the wire form when
// empty.
type MetricEvent struct {
	EventID      string            `json:"eventId"`
	ServiceName  string            `json:"serviceName"`
	MetricType   MetricType        `json:"metricType"`
	MetricValue  float64           `json:"metricValue"`
	Timestamp    WireTime          `json:"timestamp"`
	Unit         string            `json:"unit,omitempty"`
	Hostname     string            `json:"hostname,omitempty"`
	Environment  Environment       `json:"environment,omitempty"`
	Version      string            `json:"version,omitempty"`
	Tags         map[string]string `json:"tags,omitempty"`
	CreatedAt    *WireTime         `json:"createdAt,omitempty"`
}

// EncodeMetricEvent renders m as its wire JSON form.
func EncodeMetricEvent(m *MetricEvent) ([]byte, error) {
	data, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("encode metric event: %w", err)
	}
	return data, nil
}

// DecodeMetricEvent parses the wire JSON form into a MetricEvent.
func DecodeMetricEvent(data []byte) (*MetricEvent, error) {
	var m MetricEvent
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("decode metric event: %w", err)
	}
	return &m, nil
}
