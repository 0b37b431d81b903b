package codec

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Severity is the alert rule's configured severity.
type Severity string

const (
	SeverityLow      Severity = "LOW"
	SeverityMedium   Severity = "MEDIUM"
	SeverityHigh     Severity = "HIGH"
	SeverityCritical Severity = "CRITICAL"
)

// AlertStatus is the lifecycle state of an AlertEvent.
type AlertStatus string

const (
	StatusActive       AlertStatus = "ACTIVE"
	StatusAcknowledged AlertStatus = "ACKNOWLEDGED"
	StatusResolved     AlertStatus = "RESOLVED"
	StatusAutoResolved AlertStatus = "AUTO_RESOLVED"
	StatusSuppressed   AlertStatus = "SUPPRESSED"
	StatusPending      AlertStatus = "PENDING"
)

// AlertType derives the scoping label "<METRIC_TYPE>_<SEVERITY>" used to
// key alert state in the cache and history store.
func AlertType(metricType MetricType, severity Severity) string {
	return strings.ToUpper(string(metricType) + "_" + string(severity))
}

// AlertEvent records a rule violation and, once resolved, its resolution.
type AlertEvent struct {
	AlertID         string            `json:"alertId"`
	ServiceName     string            `json:"serviceName"`
	AlertType       string            `json:"alertType"`
	Severity        Severity          `json:"severity"`
	Status          AlertStatus       `json:"status"`
	Message         string            `json:"message"`
	Description     string            `json:"description,omitempty"`
	ThresholdValue  float64           `json:"thresholdValue"`
	CurrentValue    float64           `json:"currentValue"`
	TriggeredAt     WireTime          `json:"triggeredAt"`
	ResolvedAt      *WireTime         `json:"resolvedAt,omitempty"`
	DurationSeconds *int64            `json:"durationSeconds,omitempty"`
	Hostname        string            `json:"hostname,omitempty"`
	Environment     Environment       `json:"environment,omitempty"`
	Metadata        map[string]string `json:"metadata,omitempty"`
}

// EncodeAlertEvent renders a as its wire JSON form.
func EncodeAlertEvent(a *AlertEvent) ([]byte, error) {
	data, err := json.Marshal(a)
	if err != nil {
		return nil, fmt.Errorf("encode alert event: %w", err)
	}
	return data, nil
}

// DecodeAlertEvent parses the wire JSON form into an AlertEvent.
func DecodeAlertEvent(data []byte) (*AlertEvent, error) {
	var a AlertEvent
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, fmt.Errorf("decode alert event: %w", err)
	}
	return &a, nil
}

// IsActive reports whether a currently represents an active (unresolved)
// alert instance.
func (a *AlertEvent) IsActive() bool {
	return a != nil && a.Status == StatusActive
}
