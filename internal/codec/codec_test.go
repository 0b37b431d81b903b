package codec

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricEventRoundTrip(t *testing.T) {
	now := NewWireTime(time.Date(2026, 3, 1, 12, 30, 0, 0, time.UTC))
	m := &MetricEvent{
		EventID:     "evt-1",
		ServiceName: "payments-api",
		MetricType:  MetricCPU,
		MetricValue: 72.5,
		Timestamp:   now,
		Unit:        "percent",
		Hostname:    "host-1",
		Environment: EnvProduction,
		Tags:        map[string]string{"region": "us-east"},
	}

	data, err := EncodeMetricEvent(m)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"timestamp":"2026-03-01T12:30:00"`)

	decoded, err := DecodeMetricEvent(data)
	require.NoError(t, err)
	assert.Equal(t, m.EventID, decoded.EventID)
	assert.Equal(t, m.MetricValue, decoded.MetricValue)
	assert.True(t, m.Timestamp.Time().Equal(decoded.Timestamp.Time()))
}

func TestWireTimeDropsTimezone(t *testing.T) {
	var w WireTime
	err := w.UnmarshalJSON([]byte(`"2026-01-15T08:00:00"`))
	require.NoError(t, err)
	assert.Equal(t, 2026, w.Time().Year())
	assert.Equal(t, 8, w.Time().Hour())

	err = w.UnmarshalJSON([]byte(`"not-a-time"`))
	assert.Error(t, err)
}

func TestMetricTypeHelpers(t *testing.T) {
	assert.True(t, MetricCPU.Valid())
	assert.False(t, MetricType("BOGUS").Valid())
	assert.Equal(t, "percent", MetricCPU.DefaultUnit())
	assert.True(t, MetricCPU.IsPercentFamily())
	assert.True(t, MetricErrorRate.IsPercentFamily())
	assert.False(t, MetricLatency.IsPercentFamily())
	assert.Equal(t, "error rate", MetricErrorRate.DisplayName())
}

func TestAlertType(t *testing.T) {
	assert.Equal(t, "CPU_HIGH", AlertType(MetricCPU, SeverityHigh))
}

func TestAlertEventRoundTrip(t *testing.T) {
	a := &AlertEvent{
		AlertID:        "alert-1",
		ServiceName:    "payments-api",
		AlertType:      "CPU_HIGH",
		Severity:       SeverityHigh,
		Status:         StatusActive,
		Message:        "CPU usage above 80%",
		ThresholdValue: 80,
		CurrentValue:   91.2,
		TriggeredAt:    NewWireTime(time.Now()),
	}
	data, err := EncodeAlertEvent(a)
	require.NoError(t, err)

	decoded, err := DecodeAlertEvent(data)
	require.NoError(t, err)
	assert.True(t, decoded.IsActive())

	decoded.Status = StatusResolved
	assert.False(t, decoded.IsActive())
}
