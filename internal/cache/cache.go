// Package cache wraps redis/go-redis into the key/value contract used
// throughout the pipeline (§4.3): set/get/delete/scan/expire/hash-set, all
// prefixed under "monitoring:", all nonblocking to the caller's scheduler,
// and all except Delete degrading to a defined fallback instead of failing
// the caller when redis is unavailable.
package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/monitoring/pipeline/internal/metrics"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const keyPrefix = "monitoring:"

// MetricKey builds the latest-value cache key for (service, metricType).
func MetricKey(service, metricType string) string {
	return fmt.Sprintf("%smetric:%s:%s", keyPrefix, service, metricType)
}

// AlertStateKey builds the current-alert-state cache key for (service, alertType).
func AlertStateKey(service, alertType string) string {
	return fmt.Sprintf("%salert:state:%s:%s", keyPrefix, service, alertType)
}

// AlertPendingKey builds the duration-gate "first violation seen at" key.
func AlertPendingKey(service, alertType string) string {
	return fmt.Sprintf("%salert:pending:%s:%s", keyPrefix, service, alertType)
}

// StatsKey builds an aggregate-stats hash key for (service, metricType, window).
func StatsKey(service, metricType, window string) string {
	return fmt.Sprintf("%sstats:%s:%s:%s", keyPrefix, service, metricType, window)
}

// Client is the cache contract every component in the pipeline depends on.
type Client struct {
	rdb    *redis.Client
	logger zerolog.Logger
}

// Config configures the underlying redis connection.
type Config struct {
	Addr     string
	Password string
	DB       int
}

// New connects to redis. Connectivity is not required at construction
// time: per-call timeouts and the fallback in Get/Set/Scan mean an
// unreachable redis degrades calls instead of failing startup.
func New(cfg Config, logger zerolog.Logger) *Client {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	return &Client{rdb: rdb, logger: logger}
}

// Close releases the underlying connection pool.
func (c *Client) Close() error { return c.rdb.Close() }

func (c *Client) unavailable(op string, err error) bool {
	if err == nil {
		return false
	}
	c.logger.Warn().Err(err).Str("op", op).Msg("cache unavailable, degrading")
	metrics.CacheDegradedTotal.WithLabelValues(op).Inc()
	return true
}

// Set writes value under key with the given ttl. On redis unavailability
// it logs and returns (false, nil) — "not cached" — rather than failing
// the caller.
func (c *Client) Set(ctx context.Context, key string, value []byte, ttl time.Duration) (cached bool, err error) {
	if err := c.rdb.Set(ctx, key, value, ttl).Err(); err != nil {
		if c.unavailable("set", err) {
			return false, nil
		}
		return false, fmt.Errorf("cache set %s: %w", key, err)
	}
	return true, nil
}

// Get reads key. On miss or redis unavailability it returns (nil, false,
// nil) — "empty" — never an error the caller must special-case.
func (c *Client) Get(ctx context.Context, key string) (value []byte, ok bool, err error) {
	val, err := c.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		if c.unavailable("get", err) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("cache get %s: %w", key, err)
	}
	return val, true, nil
}

// Delete removes key. It does not degrade: any failure, unavailability
// included, is returned to the caller, so the Alert Engine's RESOLVE path
// can leave its metric un-acknowledged while the alert state is still
// cached.
func (c *Client) Delete(ctx context.Context, key string) error {
	if err := c.rdb.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("cache delete %s: %w", key, err)
	}
	return nil
}

// Expire refreshes key's TTL without rewriting its value.
func (c *Client) Expire(ctx context.Context, key string, ttl time.Duration) error {
	if err := c.rdb.Expire(ctx, key, ttl).Err(); err != nil {
		if c.unavailable("expire", err) {
			return nil
		}
		return fmt.Errorf("cache expire %s: %w", key, err)
	}
	return nil
}

// Scan iterates keys matching prefix+"*", calling fn for each. Scan never
// blocks the caller's scheduler across the whole keyspace — it pages
// through redis's cursor-based SCAN. Unavailability returns immediately
// with no error and no keys visited.
func (c *Client) Scan(ctx context.Context, prefix string, fn func(key string) error) error {
	var cursor uint64
	for {
		keys, next, err := c.rdb.Scan(ctx, cursor, prefix+"*", 100).Result()
		if err != nil {
			c.unavailable("scan", err)
			return nil
		}
		for _, k := range keys {
			if err := fn(k); err != nil {
				return err
			}
		}
		if next == 0 {
			return nil
		}
		cursor = next
	}
}

// HSetFloats writes a hash of float64 aggregates under key with ttl.
func (c *Client) HSetFloats(ctx context.Context, key string, fields map[string]float64, ttl time.Duration) (cached bool, err error) {
	values := make(map[string]any, len(fields))
	for k, v := range fields {
		values[k] = v
	}
	pipe := c.rdb.TxPipeline()
	pipe.HSet(ctx, key, values)
	pipe.Expire(ctx, key, ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		if c.unavailable("hset", err) {
			return false, nil
		}
		return false, fmt.Errorf("cache hset %s: %w", key, err)
	}
	return true, nil
}

// HGetFloats reads back a hash of float64 aggregates written by HSetFloats.
func (c *Client) HGetFloats(ctx context.Context, key string) (map[string]float64, error) {
	raw, err := c.rdb.HGetAll(ctx, key).Result()
	if err != nil {
		if c.unavailable("hgetall", err) {
			return nil, nil
		}
		return nil, fmt.Errorf("cache hgetall %s: %w", key, err)
	}
	out := make(map[string]float64, len(raw))
	for k, v := range raw {
		var f float64
		if _, err := fmt.Sscanf(v, "%g", &f); err == nil {
			out[k] = f
		}
	}
	return out, nil
}
