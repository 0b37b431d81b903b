// Package metricconsumer drains metrics.raw with consumer group
// processing.metrics, driving the Aggregator and Alert Engine
// concurrently per event (§4.8).
package metricconsumer

import (
	"context"
	"fmt"
	"sync"

	"github.com/monitoring/pipeline/internal/aggregator"
	"github.com/monitoring/pipeline/internal/alertengine"
	"github.com/monitoring/pipeline/internal/codec"
	"github.com/monitoring/pipeline/internal/messagelog"
	"github.com/rs/zerolog"
)

// ConsumerGroup is the fixed group name processing.metrics consumes with (§4.2).
const ConsumerGroup = "processing.metrics"

// Consumer drives the Aggregator and Alert Engine for every record on
// metrics.raw.
type Consumer struct {
	aggregator *aggregator.Aggregator
	engine     *alertengine.Engine
	logger     zerolog.Logger
}

// New builds a Consumer.
func New(agg *aggregator.Aggregator, engine *alertengine.Engine, logger zerolog.Logger) *Consumer {
	return &Consumer{aggregator: agg, engine: engine, logger: logger}
}

// Handle is a messagelog.Handler: it decodes the record, runs Aggregator
// and Alert Engine concurrently, and only returns nil (ack) once both
// complete without error. Any error leaves the record un-acknowledged so
// the log redelivers it — safe because TRIGGER is cache-guarded and
// RESOLVE is idempotent on the (alertId, status) row (§4.8, §9).
func (c *Consumer) Handle(ctx context.Context, rec messagelog.Record) error {
	m, err := codec.DecodeMetricEvent(rec.Value)
	if err != nil {
		// Malformed record: drop rather than redeliver forever (§7 codec
		// policy treats this as unambiguous and safe to skip).
		c.logger.Error().Err(err).Str("topic", rec.Topic).Msg("decode metric event failed, dropping record")
		return nil
	}

	var (
		wg        sync.WaitGroup
		engineErr error
	)
	wg.Add(2)

	go func() {
		defer wg.Done()
		c.aggregator.Process(ctx, m)
	}()

	go func() {
		defer wg.Done()
		engineErr = c.engine.Process(ctx, m)
	}()

	wg.Wait()

	if engineErr != nil {
		return fmt.Errorf("alert engine processing failed: %w", engineErr)
	}
	return nil
}
