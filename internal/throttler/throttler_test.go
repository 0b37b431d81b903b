package throttler

import (
	"testing"
	"time"

	"github.com/monitoring/pipeline/internal/codec"
	"github.com/stretchr/testify/assert"
)

func alertFor(service, alertType string) *codec.AlertEvent {
	return &codec.AlertEvent{ServiceName: service, AlertType: alertType}
}

func TestDuplicateSuppressionWindow(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	th := New(Config{DuplicateSuppressionMinutes: 5, MaxNotificationsPerHour: 100}).WithClock(func() time.Time { return now })

	a := alertFor("payments-api", "CPU_HIGH")
	assert.False(t, th.Allow(a), "first sighting should not be suppressed")
	assert.True(t, th.Allow(a), "within the window, duplicate should be suppressed")

	now = now.Add(6 * time.Minute)
	assert.False(t, th.Allow(a), "after the window elapses, it should be allowed again")
}

func TestHourlyRateLimit(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	th := New(Config{DuplicateSuppressionMinutes: 0, MaxNotificationsPerHour: 2}).WithClock(func() time.Time { return now })

	for i := 0; i < 2; i++ {
		a := alertFor("payments-api", "CPU_HIGH_"+string(rune('A'+i)))
		assert.False(t, th.Allow(a))
	}

	a := alertFor("payments-api", "CPU_HIGH_THIRD")
	assert.True(t, th.Allow(a), "third notification in the hour should be suppressed")

	now = now.Add(61 * time.Minute)
	assert.False(t, th.Allow(a), "next hour bucket should reset the count")
}

func TestDifferentServicesTrackedIndependently(t *testing.T) {
	now := time.Now()
	th := New(Config{DuplicateSuppressionMinutes: 5, MaxNotificationsPerHour: 1}).WithClock(func() time.Time { return now })

	assert.False(t, th.Allow(alertFor("service-a", "CPU_HIGH")))
	assert.False(t, th.Allow(alertFor("service-b", "CPU_HIGH")))
}
