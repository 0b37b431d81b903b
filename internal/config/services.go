package config

import (
	"strings"
	"time"
)

// IngestionConfig configures cmd/ingestion (§6: HTTP ingestion surface).
type IngestionConfig struct {
	Shared

	HTTPPort int `env:"HTTP_PORT" envDefault:"8080"`

	RateLimitPerSecond float64 `env:"INGEST_RATE_LIMIT_PER_SECOND" envDefault:"500"`
	RateLimitBurst     int     `env:"INGEST_RATE_LIMIT_BURST" envDefault:"1000"`

	AllowedEnvironments         string `env:"VALIDATION_ALLOWED_ENVIRONMENTS" envDefault:"dev,staging,production,unknown"`
	TimestampPastWindowHours    int    `env:"VALIDATION_TIMESTAMP_PAST_HOURS" envDefault:"24"`
	TimestampFutureWindowMinutes int   `env:"VALIDATION_TIMESTAMP_FUTURE_MINUTES" envDefault:"60"`
}

// AllowedEnvironmentSet parses AllowedEnvironments into a lookup set.
func (c *IngestionConfig) AllowedEnvironmentSet() map[string]bool {
	return splitSet(c.AllowedEnvironments)
}

// TimestampPastWindow returns the accepted past window as a duration.
func (c *IngestionConfig) TimestampPastWindow() time.Duration {
	return time.Duration(c.TimestampPastWindowHours) * time.Hour
}

// TimestampFutureWindow returns the accepted future window as a duration.
func (c *IngestionConfig) TimestampFutureWindow() time.Duration {
	return time.Duration(c.TimestampFutureWindowMinutes) * time.Minute
}

// ProcessingConfig configures cmd/processing (§4.6-§4.9: aggregator and
// alert engine).
type ProcessingConfig struct {
	Shared
}

// StreamingConfig configures cmd/streaming (§4.10, §6: SSE fan-out).
type StreamingConfig struct {
	Shared

	HTTPPort                 int `env:"HTTP_PORT" envDefault:"8081"`
	StreamBufferSize         int `env:"STREAM_BUFFER_SIZE" envDefault:"256"`
	LatestPollIntervalSeconds int `env:"STREAM_LATEST_POLL_INTERVAL_SECONDS" envDefault:"5"`
	HeartbeatIntervalSeconds int `env:"STREAM_HEARTBEAT_INTERVAL_SECONDS" envDefault:"15"`

	CPURejectThresholdPercent float64 `env:"STREAM_CPU_REJECT_THRESHOLD_PERCENT" envDefault:"90"`
	CPUSampleIntervalSeconds  int     `env:"STREAM_CPU_SAMPLE_INTERVAL_SECONDS" envDefault:"15"`
}

// CPUSampleInterval returns the CPU guard's sampling interval.
func (c *StreamingConfig) CPUSampleInterval() time.Duration {
	return time.Duration(c.CPUSampleIntervalSeconds) * time.Second
}

// LatestPollInterval returns the latest-value reader's scan interval.
func (c *StreamingConfig) LatestPollInterval() time.Duration {
	return time.Duration(c.LatestPollIntervalSeconds) * time.Second
}

// HeartbeatInterval returns the SSE heartbeat tick interval.
func (c *StreamingConfig) HeartbeatInterval() time.Duration {
	return time.Duration(c.HeartbeatIntervalSeconds) * time.Second
}

// NotificationConfig configures cmd/notification (§4.11: throttling and
// dispatch).
type NotificationConfig struct {
	Shared

	WebhookURL string `env:"NOTIFICATION_WEBHOOK_URL" envDefault:""`

	ThrottleDuplicateSuppressionMinutes int `env:"NOTIFICATIONS_THROTTLING_DUPLICATE_SUPPRESSION_MINUTES" envDefault:"5"`
	ThrottleMaxPerHour                  int `env:"NOTIFICATIONS_THROTTLING_MAX_PER_HOUR" envDefault:"20"`
}

func splitSet(raw string) map[string]bool {
	out := make(map[string]bool)
	for _, v := range strings.Split(raw, ",") {
		if v = strings.TrimSpace(v); v != "" {
			out[v] = true
		}
	}
	return out
}
