package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSharedValidateRequiresKafkaBrokers(t *testing.T) {
	s := Shared{RedisAddr: "localhost:6379", PostgresDSN: "postgres://x", CacheTTLMinutes: 1, LogLevel: "info"}
	err := s.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "KAFKA_BROKERS")
}

func TestSharedValidateRejectsBadLogLevel(t *testing.T) {
	s := Shared{KafkaBrokers: "localhost:9092", RedisAddr: "localhost:6379", PostgresDSN: "postgres://x", CacheTTLMinutes: 1, LogLevel: "verbose"}
	err := s.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "LOG_LEVEL")
}

func TestSharedValidateRejectsNonPositiveCacheTTL(t *testing.T) {
	s := Shared{KafkaBrokers: "localhost:9092", RedisAddr: "localhost:6379", PostgresDSN: "postgres://x", CacheTTLMinutes: 0, LogLevel: "info"}
	err := s.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "CACHE_TTL_MINUTES")
}

func TestSharedValidateAccepts(t *testing.T) {
	s := Shared{KafkaBrokers: "localhost:9092", RedisAddr: "localhost:6379", PostgresDSN: "postgres://x", CacheTTLMinutes: 30, LogLevel: "debug"}
	assert.NoError(t, s.Validate())
}

func TestIngestionAllowedEnvironmentSet(t *testing.T) {
	c := IngestionConfig{AllowedEnvironments: " dev, staging ,production"}
	set := c.AllowedEnvironmentSet()
	assert.True(t, set["dev"])
	assert.True(t, set["staging"])
	assert.True(t, set["production"])
	assert.False(t, set["qa"])
}

func TestIngestionTimestampWindows(t *testing.T) {
	c := IngestionConfig{TimestampPastWindowHours: 24, TimestampFutureWindowMinutes: 60}
	assert.Equal(t, 24*60, int(c.TimestampPastWindow().Minutes()))
	assert.Equal(t, 60, int(c.TimestampFutureWindow().Minutes()))
}

func TestStreamingIntervals(t *testing.T) {
	c := StreamingConfig{LatestPollIntervalSeconds: 5, HeartbeatIntervalSeconds: 15, CPUSampleIntervalSeconds: 10}
	assert.Equal(t, 5, int(c.LatestPollInterval().Seconds()))
	assert.Equal(t, 15, int(c.HeartbeatInterval().Seconds()))
	assert.Equal(t, 10, int(c.CPUSampleInterval().Seconds()))
}
