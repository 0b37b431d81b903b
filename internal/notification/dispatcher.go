package notification

import (
	"context"

	"github.com/monitoring/pipeline/internal/codec"
	"github.com/monitoring/pipeline/internal/messagelog"
	"github.com/monitoring/pipeline/internal/metrics"
	"github.com/monitoring/pipeline/internal/throttler"
	"github.com/rs/zerolog"
)

// ConsumerGroup is the consumer group name notification uses on the
// alerts topic (§4.2).
const ConsumerGroup = "notification.alerts"

// Dispatcher consumes the alerts topic, throttles duplicates/bursts, and
// hands every accepted alert to each configured sink in turn. A sink
// failure is logged, not propagated — dispatch never blocks the
// consumer's ability to acknowledge the record.
type Dispatcher struct {
	throttler *throttler.Throttler
	sinks     []Sink
	logger    zerolog.Logger
}

// New builds a Dispatcher fanning accepted alerts out to sinks.
func New(t *throttler.Throttler, sinks []Sink, logger zerolog.Logger) *Dispatcher {
	return &Dispatcher{throttler: t, sinks: sinks, logger: logger}
}

// Handle is a messagelog.Handler: it decodes the record, applies the
// throttle, and dispatches to every sink. Decode failures are dropped and
// logged per §7; sink failures are logged and do not fail the record.
func (d *Dispatcher) Handle(ctx context.Context, rec messagelog.Record) error {
	a, err := codec.DecodeAlertEvent(rec.Value)
	if err != nil {
		d.logger.Warn().Err(err).Str("topic", rec.Topic).Msg("dropping undecodable alert record")
		return nil
	}

	if d.throttler.Allow(a) {
		metrics.AlertsSuppressedTotal.Inc()
		d.logger.Debug().Str("service_name", a.ServiceName).Str("alert_type", a.AlertType).Msg("alert suppressed by throttler")
		return nil
	}

	for _, sink := range d.sinks {
		if err := sink.Send(ctx, a); err != nil {
			metrics.NotificationSinkFailuresTotal.WithLabelValues(sink.Name()).Inc()
			d.logger.Error().Err(err).Str("sink", sink.Name()).Str("alert_id", a.AlertID).Msg("notification sink delivery failed")
		}
	}
	return nil
}
