// Package alertbus is the alerts topic's two endpoints: the publisher the
// Alert Engine calls through, and a generic decoding consumer wrapper
// (§4.9, §4.10). The notification and streaming services run their own
// consumer handlers and do not call Consume.
package alertbus

import (
	"context"
	"fmt"

	"github.com/monitoring/pipeline/internal/codec"
	"github.com/monitoring/pipeline/internal/messagelog"
	"github.com/rs/zerolog"
)

// Publisher emits AlertEvents to the alerts topic keyed by serviceName.
type Publisher struct {
	producer *messagelog.Producer
	topic    string
	logger   zerolog.Logger
}

// NewPublisher binds a messagelog.Producer to the alerts topic.
func NewPublisher(producer *messagelog.Producer, topic string, logger zerolog.Logger) *Publisher {
	return &Publisher{producer: producer, topic: topic, logger: logger}
}

// Publish sends value (an already-encoded AlertEvent) keyed by
// serviceName. A broker-side error or a context deadline is a failure
// (§4.9); success returns the assigned partition and offset for logging.
func (p *Publisher) Publish(ctx context.Context, serviceName string, value []byte) error {
	result, err := p.producer.Publish(ctx, p.topic, serviceName, value)
	if err != nil {
		return fmt.Errorf("publish alert event: %w", err)
	}
	p.logger.Debug().
		Str("service", serviceName).
		Str("topic", result.Topic).
		Int32("partition", result.Partition).
		Int64("offset", result.Offset).
		Msg("alert event published")
	return nil
}

// AsEngineFunc adapts Publish to the closure shape alertengine.Engine
// expects.
func (p *Publisher) AsEngineFunc() func(ctx context.Context, key string, value []byte) error {
	return p.Publish
}

// Handler processes one decoded AlertEvent.
type Handler func(ctx context.Context, a *codec.AlertEvent) error

// Consume wraps a messagelog.Consumer's Run loop, decoding each record
// before handing it to handler. Decode failures are dropped and logged,
// never redelivered forever (§7 codec policy).
func Consume(ctx context.Context, consumer *messagelog.Consumer, logger zerolog.Logger, handler Handler) error {
	return consumer.Run(ctx, func(ctx context.Context, rec messagelog.Record) error {
		alert, err := codec.DecodeAlertEvent(rec.Value)
		if err != nil {
			logger.Error().Err(err).Str("topic", rec.Topic).Msg("decode alert event failed, dropping record")
			return nil
		}
		return handler(ctx, alert)
	})
}
