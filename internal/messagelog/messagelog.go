// Package messagelog wraps franz-go into the partitioned, durable,
// at-least-once pub/sub abstraction the rest of the pipeline depends on
// (§4.2). Partition key is always serviceName: all records with the same
// key are delivered in publish order to one consumer in a group.
package messagelog

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/twmb/franz-go/pkg/kgo"
)

// OffsetReset selects where a new consumer group starts reading from.
type OffsetReset int

const (
	// ResetCommitted resumes from the group's committed offsets (or
	// earliest, for a brand-new group). Used by processing and
	// notification consumer groups, which must not skip records.
	ResetCommitted OffsetReset = iota
	// ResetLatest always starts at the end of the log. Used by the
	// streaming consumer groups so dashboards never replay history.
	ResetLatest
)

// ParseBrokers splits a comma-separated broker list, trimming whitespace.
func ParseBrokers(raw string) []string {
	var out []string
	for _, b := range strings.Split(raw, ",") {
		if b = strings.TrimSpace(b); b != "" {
			out = append(out, b)
		}
	}
	return out
}

// Producer publishes records keyed by serviceName.
type Producer struct {
	client *kgo.Client
	logger zerolog.Logger
}

// NewProducer builds a Producer seeded with brokers.
func NewProducer(brokers []string, logger zerolog.Logger) (*Producer, error) {
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.ProducerBatchMaxBytes(4*1024*1024),
	)
	if err != nil {
		return nil, fmt.Errorf("create producer client: %w", err)
	}
	return &Producer{client: client, logger: logger}, nil
}

// PublishResult reports where a successfully published record landed.
type PublishResult struct {
	Topic     string
	Partition int32
	Offset    int64
}

// Publish sends value to topic keyed by key (serviceName) and blocks until
// the broker acknowledges or reports a send error. A broker-side error or
// a context deadline is treated as failure (§4.9); the caller decides
// whether to retry.
func (p *Producer) Publish(ctx context.Context, topic, key string, value []byte) (PublishResult, error) {
	record := &kgo.Record{
		Topic: topic,
		Key:   []byte(key),
		Value: value,
	}

	resultCh := make(chan PublishResult, 1)
	errCh := make(chan error, 1)

	p.client.Produce(ctx, record, func(r *kgo.Record, err error) {
		if err != nil {
			errCh <- err
			return
		}
		resultCh <- PublishResult{Topic: r.Topic, Partition: r.Partition, Offset: r.Offset}
	})

	select {
	case res := <-resultCh:
		return res, nil
	case err := <-errCh:
		return PublishResult{}, fmt.Errorf("publish to %s: %w", topic, err)
	case <-ctx.Done():
		return PublishResult{}, fmt.Errorf("publish to %s: %w", topic, ctx.Err())
	}
}

// Close releases the producer's connections.
func (p *Producer) Close() { p.client.Close() }

// Record is a single decoded-or-not delivery handed to a Handler. Ack must
// be called only after processing succeeds; an un-acked record is
// redelivered on the next poll of this consumer group (§4.8, §7).
type Record struct {
	Topic     string
	Partition int32
	Offset    int64
	Key       string
	Value     []byte

	commit func()
}

// Ack commits the record's offset. Call it only once processing has fully
// succeeded; never call it on failure.
func (r Record) Ack() {
	if r.commit != nil {
		r.commit()
	}
}

// Handler processes one record. A non-nil error leaves the record
// un-acknowledged so the log redelivers it.
type Handler func(ctx context.Context, rec Record) error

// ConsumerConfig configures a consumer group subscription.
type ConsumerConfig struct {
	Brokers       []string
	ConsumerGroup string
	Topics        []string
	OffsetReset   OffsetReset
	Logger        zerolog.Logger
}

// Consumer polls a consumer group and dispatches records to a Handler.
type Consumer struct {
	client *kgo.Client
	logger zerolog.Logger
	cfg    ConsumerConfig
}

// NewConsumer builds a Consumer for the given config.
func NewConsumer(cfg ConsumerConfig) (*Consumer, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("at least one broker is required")
	}
	if cfg.ConsumerGroup == "" {
		return nil, fmt.Errorf("consumer group is required")
	}
	if len(cfg.Topics) == 0 {
		return nil, fmt.Errorf("at least one topic is required")
	}

	opts := []kgo.Opt{
		kgo.SeedBrokers(cfg.Brokers...),
		kgo.ConsumerGroup(cfg.ConsumerGroup),
		kgo.ConsumeTopics(cfg.Topics...),
		kgo.FetchMaxWait(500 * time.Millisecond),
		kgo.DisableAutoCommit(),
		kgo.OnPartitionsAssigned(func(_ context.Context, _ *kgo.Client, assigned map[string][]int32) {
			cfg.Logger.Info().Interface("partitions", assigned).Msg("partitions assigned")
		}),
		kgo.OnPartitionsRevoked(func(_ context.Context, _ *kgo.Client, revoked map[string][]int32) {
			cfg.Logger.Info().Interface("partitions", revoked).Msg("partitions revoked")
		}),
	}
	if cfg.OffsetReset == ResetLatest {
		opts = append(opts, kgo.ConsumeResetOffset(kgo.NewOffset().AtEnd()))
	} else {
		opts = append(opts, kgo.ConsumeResetOffset(kgo.NewOffset().AtStart()))
	}

	client, err := kgo.NewClient(opts...)
	if err != nil {
		return nil, fmt.Errorf("create consumer client: %w", err)
	}

	return &Consumer{client: client, logger: cfg.Logger, cfg: cfg}, nil
}

// Run polls until ctx is cancelled, dispatching every fetched record to
// handler. Records whose handler returns an error are not committed and
// will be redelivered; transient fetch errors are logged and retried
// indefinitely (§7).
func (c *Consumer) Run(ctx context.Context, handler Handler) error {
	defer c.client.Close()

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		fetches := c.client.PollFetches(ctx)
		if fetches.IsClientClosed() {
			return nil
		}

		for _, err := range fetches.Errors() {
			c.logger.Error().
				Err(err.Err).
				Str("topic", err.Topic).
				Int32("partition", err.Partition).
				Msg("fetch error, retrying")
		}

		fetches.EachRecord(func(rec *kgo.Record) {
			record := Record{
				Topic:     rec.Topic,
				Partition: rec.Partition,
				Offset:    rec.Offset,
				Key:       string(rec.Key),
				Value:     rec.Value,
				commit: func() {
					if err := c.client.CommitRecords(ctx, rec); err != nil {
						c.logger.Error().Err(err).Msg("commit failed")
					}
				},
			}

			if err := handler(ctx, record); err != nil {
				c.logger.Error().
					Err(err).
					Str("topic", record.Topic).
					Int64("offset", record.Offset).
					Msg("handler failed, leaving record unacknowledged")
				return
			}
			record.Ack()
		})
	}
}

// Close releases the consumer's connections without waiting for Run.
func (c *Consumer) Close() { c.client.Close() }
