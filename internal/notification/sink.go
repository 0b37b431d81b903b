// Package notification implements the alert-dispatch side of the
// pipeline: consume alerts, throttle, and hand each accepted alert to a
// set of sinks. The sinks themselves (email/chat/webhook formatting) are
// deliberately out of scope — specified only at their interface — so
// this package carries a console sink for local operation and a webhook
// sink as the one concrete example of the external-collaborator shape.
package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/monitoring/pipeline/internal/codec"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"
)

// Sink delivers a triggered or resolved alert to one external channel.
type Sink interface {
	Name() string
	Send(ctx context.Context, a *codec.AlertEvent) error
}

// ConsoleSink logs alerts at warn/info level; always available, used for
// local development and as the fallback when no external sink is configured.
type ConsoleSink struct {
	logger zerolog.Logger
}

// NewConsoleSink builds a ConsoleSink.
func NewConsoleSink(logger zerolog.Logger) *ConsoleSink {
	return &ConsoleSink{logger: logger}
}

func (c *ConsoleSink) Name() string { return "console" }

func (c *ConsoleSink) Send(_ context.Context, a *codec.AlertEvent) error {
	event := c.logger.Warn()
	if a.Status != codec.StatusActive {
		event = c.logger.Info()
	}
	event.
		Str("alert_id", a.AlertID).
		Str("service_name", a.ServiceName).
		Str("alert_type", a.AlertType).
		Str("status", string(a.Status)).
		Str("severity", string(a.Severity)).
		Msg(a.Message)
	return nil
}

// WebhookSink posts the AlertEvent as JSON to a configured URL. It is the
// one wired example of the external collaborator the spec leaves at its
// interface boundary.
type WebhookSink struct {
	url    string
	client *http.Client
}

// NewWebhookSink builds a WebhookSink posting to url.
func NewWebhookSink(url string) *WebhookSink {
	return &WebhookSink{url: url, client: &http.Client{Timeout: 5 * time.Second}}
}

func (w *WebhookSink) Name() string { return "webhook" }

func (w *WebhookSink) Send(ctx context.Context, a *codec.AlertEvent) error {
	if w.url == "" {
		return nil
	}
	payload, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("marshal alert for webhook: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("send webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("webhook sink returned status %d", resp.StatusCode)
	}
	return nil
}

// CircuitSink wraps a Sink with a gobreaker circuit breaker so a
// misbehaving external collaborator can't back-pressure the dispatcher.
type CircuitSink struct {
	inner   Sink
	breaker *gobreaker.CircuitBreaker
	logger  zerolog.Logger
}

// NewCircuitSink wraps inner with a breaker that opens after
// consecutive failures and half-opens on a fixed timeout.
func NewCircuitSink(inner Sink, logger zerolog.Logger) *CircuitSink {
	settings := gobreaker.Settings{
		Name:        inner.Name(),
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn().Str("sink", name).Str("from", from.String()).Str("to", to.String()).Msg("notification sink circuit breaker changed state")
		},
	}
	return &CircuitSink{inner: inner, breaker: gobreaker.NewCircuitBreaker(settings), logger: logger}
}

func (c *CircuitSink) Name() string { return c.inner.Name() }

func (c *CircuitSink) Send(ctx context.Context, a *codec.AlertEvent) error {
	_, err := c.breaker.Execute(func() (any, error) {
		return nil, c.inner.Send(ctx, a)
	})
	return err
}
