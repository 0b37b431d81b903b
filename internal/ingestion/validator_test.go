package ingestion

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func testConfig() Config {
	return Config{
		MaxMetricValue:        1_000_000,
		AllowedEnvironments:   map[string]bool{"dev": true, "production": true},
		TimestampPastWindow:   24 * time.Hour,
		TimestampFutureWindow: time.Hour,
	}
}

func validRequest() metricRequest {
	return metricRequest{
		ServiceName: "payments-api",
		MetricType:  "CPU",
		MetricValue: 42.5,
		Timestamp:   time.Now().Format("2006-01-02T15:04:05"),
		Environment: "production",
	}
}

func TestValidatorAcceptsWellFormedRequest(t *testing.T) {
	v := NewValidator(testConfig())
	errs := v.Validate(validRequest())
	assert.Empty(t, errs)
}

func TestValidatorAcceptsMixedCaseServiceName(t *testing.T) {
	v := NewValidator(testConfig())
	req := validRequest()
	req.ServiceName = "Payments-API"
	errs := v.Validate(req)
	assert.Empty(t, errs)

	event, err := toMetricEvent(req)
	assert.NoError(t, err)
	assert.Equal(t, "payments-api", event.ServiceName)
}

func TestValidatorRejectsBadServiceName(t *testing.T) {
	v := NewValidator(testConfig())
	req := validRequest()
	req.ServiceName = "Payments API!"
	errs := v.Validate(req)
	assert.NotEmpty(t, errs)
}

func TestValidatorRejectsUnknownMetricType(t *testing.T) {
	v := NewValidator(testConfig())
	req := validRequest()
	req.MetricType = "BOGUS"
	errs := v.Validate(req)
	assert.Contains(t, errs, `metricType: "BOGUS" is not a recognized metric type`)
}

func TestValidatorRejectsPercentFamilyOverCeiling(t *testing.T) {
	v := NewValidator(testConfig())
	req := validRequest()
	req.MetricType = "CPU"
	req.MetricValue = 150
	errs := v.Validate(req)
	assert.Contains(t, errs, "metricValue: percent-family metrics must be <= 100")
}

func TestValidatorRejectsNegativeValue(t *testing.T) {
	v := NewValidator(testConfig())
	req := validRequest()
	req.MetricValue = -1
	errs := v.Validate(req)
	assert.Contains(t, errs, "metricValue: must be non-negative")
}

func TestValidatorRejectsDisallowedEnvironment(t *testing.T) {
	v := NewValidator(testConfig())
	req := validRequest()
	req.Environment = "qa"
	errs := v.Validate(req)
	assert.Contains(t, errs, `environment: "qa" is not in the allowed set`)
}

func TestValidatorRejectsStaleTimestamp(t *testing.T) {
	v := NewValidator(testConfig())
	req := validRequest()
	req.Timestamp = time.Now().Add(-48 * time.Hour).Format("2006-01-02T15:04:05")
	errs := v.Validate(req)
	assert.Contains(t, errs, "timestamp: outside the accepted window")
}

func TestValidatorAcceptsRFC3339Timestamp(t *testing.T) {
	v := NewValidator(testConfig())
	req := validRequest()
	req.Timestamp = time.Now().Format(time.RFC3339)
	errs := v.Validate(req)
	assert.Empty(t, errs)
}

func TestToMetricEventDefaultsUnitAndEnvironment(t *testing.T) {
	req := validRequest()
	req.Environment = ""
	req.Unit = ""
	event, err := toMetricEvent(req)
	assert.NoError(t, err)
	assert.Equal(t, "percent", event.Unit)
	assert.Equal(t, "unknown", string(event.Environment))
	assert.Equal(t, "payments-api", event.ServiceName)
}
